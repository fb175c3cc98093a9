package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"outreach_backend/internal/leads/domain"
	"outreach_backend/platform/apperr"
	"outreach_backend/platform/logger"
)

// Request is one completion call.
type Request struct {
	Task      Task
	LeadEmail string
	Prompt    string
	MaxSteps  int
}

// Completion is the final model text. Exhausted is set when the step ceiling
// was hit while the model was still requesting tools.
type Completion struct {
	Text      string
	Steps     int
	Exhausted bool
}

// Completer runs the model loop for one request.
type Completer interface {
	Complete(ctx context.Context, req Request) (Completion, error)
}

// Client issues typed decision requests.
type Client struct {
	completer   Completer
	timeout     time.Duration
	bookingLink string
	fromName    string
	log         *logger.Logger
}

// Config holds the settings the client adds to every prompt.
type Config struct {
	Timeout     time.Duration
	BookingLink string
	FromName    string
}

// NewClient wraps completer.
func NewClient(completer Completer, cfg Config, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Discard()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	return &Client{
		completer:   completer,
		timeout:     cfg.Timeout,
		bookingLink: cfg.BookingLink,
		fromName:    cfg.FromName,
		log:         log,
	}
}

var taskInstructions = map[Task]string{
	TaskAnalysis:      "Analyze this lead and provide engagement recommendations.",
	TaskEmail:         "Generate the requested email for this lead.",
	TaskReply:         "Analyze this reply and determine the appropriate response.",
	TaskFollowUp:      "Should we follow up with this lead? If yes, what should we say?",
	TaskQualification: "Qualify this lead based on the available information.",
}

// Decide sends input as JSON context for task and parses the answer.
// Transport failures are errors; unusable output is an Unparsed result.
func (c *Client) Decide(ctx context.Context, task Task, leadEmail string, input any, maxSteps int) (Result, error) {
	if maxSteps <= 0 {
		maxSteps = MaxSteps(task)
	}
	payload, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "encode decision context", err).WithOp("decision." + string(task))
	}
	prompt := fmt.Sprintf("%s\n\nContext:\n```json\n%s\n```", taskInstructions[task], payload)

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	completion, err := c.completer.Complete(callCtx, Request{
		Task:      task,
		LeadEmail: leadEmail,
		Prompt:    prompt,
		MaxSteps:  maxSteps,
	})
	if err != nil {
		return nil, apperr.External("decision request failed", err).WithOp("decision." + string(task))
	}

	c.log.Debug("decision completed",
		"task", string(task),
		"lead", leadEmail,
		"steps", completion.Steps,
		"exhausted", completion.Exhausted,
		"duration_ms", time.Since(started).Milliseconds())

	if completion.Exhausted {
		return Unparsed{Task: task, Raw: completion.Text, Reason: ReasonMaxIterations}, nil
	}
	return Parse(task, completion.Text), nil
}

type analysisInput struct {
	Lead map[string]any `json:"lead"`
}

// AnalyzeLead assesses a new lead.
func (c *Client) AnalyzeLead(ctx context.Context, lead domain.Lead) (Result, error) {
	return c.Decide(ctx, TaskAnalysis, lead.Email, analysisInput{Lead: lead.Profile()}, 0)
}

// EmailRequest describes the email to generate.
type EmailRequest struct {
	Lead              domain.Lead
	EmailType         string
	History           string
	AdditionalContext string
}

type emailInput struct {
	Lead                map[string]any `json:"lead"`
	EmailType           string         `json:"email_type"`
	ConversationHistory string         `json:"conversation_history"`
	BookingLink         string         `json:"booking_link"`
	FromName            string         `json:"from_name"`
	AdditionalContext   string         `json:"additional_context,omitempty"`
}

// GenerateEmail writes outbound copy of the requested type.
func (c *Client) GenerateEmail(ctx context.Context, req EmailRequest) (Result, error) {
	return c.Decide(ctx, TaskEmail, req.Lead.Email, emailInput{
		Lead:                req.Lead.Profile(),
		EmailType:           req.EmailType,
		ConversationHistory: req.History,
		BookingLink:         c.bookingLinkFor(req.Lead),
		FromName:            c.fromName,
		AdditionalContext:   req.AdditionalContext,
	}, 0)
}

type replyInput struct {
	Lead                map[string]any `json:"lead"`
	Reply               string         `json:"reply"`
	ConversationHistory string         `json:"conversation_history"`
	BookingLink         string         `json:"booking_link"`
}

// HandleReply decides how to answer an inbound reply.
func (c *Client) HandleReply(ctx context.Context, lead domain.Lead, reply, history string) (Result, error) {
	return c.Decide(ctx, TaskReply, lead.Email, replyInput{
		Lead:                lead.Profile(),
		Reply:               reply,
		ConversationHistory: history,
		BookingLink:         c.bookingLinkFor(lead),
	}, 0)
}

// FollowUpRequest is the context for a follow-up decision.
type FollowUpRequest struct {
	Lead          domain.Lead
	HoursSince    float64
	FollowUpCount int
	MaxFollowUps  int
	Intervals     []int
	History       string
}

type followUpInput struct {
	Lead                  map[string]any `json:"lead"`
	HoursSinceLastContact float64        `json:"hours_since_last_contact"`
	FollowUpCount         int            `json:"follow_up_count"`
	MaxFollowUps          int            `json:"max_follow_ups"`
	StandardIntervals     []int          `json:"standard_intervals"`
	ConversationHistory   string         `json:"conversation_history"`
	BookingLink           string         `json:"booking_link"`
}

// DecideFollowUp decides whether to send the next follow-up.
func (c *Client) DecideFollowUp(ctx context.Context, req FollowUpRequest) (Result, error) {
	return c.Decide(ctx, TaskFollowUp, req.Lead.Email, followUpInput{
		Lead:                  req.Lead.Profile(),
		HoursSinceLastContact: req.HoursSince,
		FollowUpCount:         req.FollowUpCount,
		MaxFollowUps:          req.MaxFollowUps,
		StandardIntervals:     req.Intervals,
		ConversationHistory:   req.History,
		BookingLink:           c.bookingLinkFor(req.Lead),
	}, 0)
}

type qualificationInput struct {
	Lead                map[string]any `json:"lead"`
	ConversationHistory string         `json:"conversation_history"`
}

// QualifyLead scores a lead after the diagnostic call.
func (c *Client) QualifyLead(ctx context.Context, lead domain.Lead, history string) (Result, error) {
	return c.Decide(ctx, TaskQualification, lead.Email, qualificationInput{
		Lead:                lead.Profile(),
		ConversationHistory: history,
	}, 0)
}

func (c *Client) bookingLinkFor(lead domain.Lead) string {
	if lead.BookingLink != "" {
		return lead.BookingLink
	}
	return c.bookingLink
}
