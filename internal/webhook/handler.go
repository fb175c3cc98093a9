package webhook

import (
	"strings"

	"outreach_backend/platform/apperr"
	"outreach_backend/platform/httpkit"
	"outreach_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const (
	errInvalidRequest = "invalid request body"
	errValidation     = "validation error"

	maxFormMemory = 1 << 20
)

// Handler handles webhook HTTP requests.
type Handler struct {
	service *Service
	val     *validator.Validator
}

// NewHandler creates a new webhook handler.
func NewHandler(service *Service, val *validator.Validator) *Handler {
	return &Handler{service: service, val: val}
}

// HandleLeadSubmission accepts a lead as JSON or as form data.
// POST /api/v1/webhook/leads
func (h *Handler) HandleLeadSubmission(c *gin.Context) {
	req, ok := h.parseSubmission(c)
	if !ok {
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.HandleError(c, apperr.Validation(errValidation).WithDetails(validator.FieldErrors(err)))
		return
	}

	resp, err := h.service.Submit(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.Created(c, resp)
}

func (h *Handler) parseSubmission(c *gin.Context) (IntakeRequest, bool) {
	var req IntakeRequest
	if strings.HasPrefix(c.ContentType(), gin.MIMEJSON) {
		if err := c.ShouldBindJSON(&req); err != nil {
			httpkit.HandleError(c, apperr.BadRequest(errInvalidRequest).WithDetails(err.Error()))
			return req, false
		}
		return req, true
	}

	if err := c.Request.ParseMultipartForm(maxFormMemory); err != nil {
		if err := c.Request.ParseForm(); err != nil {
			httpkit.HandleError(c, apperr.BadRequest("unable to parse form data"))
			return req, false
		}
	}

	fields := make(map[string]string, len(c.Request.PostForm))
	for key, values := range c.Request.PostForm {
		if len(values) > 0 {
			fields[key] = values[0]
		}
	}
	return ExtractFields(fields), true
}
