package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	apphttp "outreach_backend/internal/http"
	"outreach_backend/internal/leads/domain"
	"outreach_backend/internal/outreach"
	"outreach_backend/platform/apperr"
	"outreach_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

type fakePipeline struct{}

func (fakePipeline) PipelineSummary(context.Context) (*outreach.PipelineSummary, error) {
	return &outreach.PipelineSummary{Total: 2, ByStatus: map[string]int{"BOOKED": 2}}, nil
}

func (fakePipeline) LeadStatus(_ context.Context, leadEmail string) (*outreach.LeadStatus, error) {
	if leadEmail != "ada@firm.test" {
		return nil, apperr.NotFound("lead not found")
	}
	return &outreach.LeadStatus{Lead: &domain.Lead{Email: leadEmail, Status: domain.StateBooked}}, nil
}

type fakeSchedule struct{}

func (fakeSchedule) Schedule(context.Context) ([]outreach.ScheduleEntry, error) { return nil, nil }

type fakeQualifier struct{ calls []string }

func (q *fakeQualifier) CompleteCall(_ context.Context, e string) (outreach.Outcome, error) {
	q.calls = append(q.calls, "complete:"+e)
	return outreach.Outcome{Email: e, Action: outreach.OutcomeCallCompleted, Success: true}, nil
}

func (q *fakeQualifier) Qualify(_ context.Context, e string) (outreach.Outcome, error) {
	q.calls = append(q.calls, "qualify:"+e)
	return outreach.Outcome{}, apperr.Conflict("lead is BOOKED; qualify is not allowed")
}

func (q *fakeQualifier) DeliverScorecard(_ context.Context, e string) (outreach.Outcome, error) {
	q.calls = append(q.calls, "scorecard:"+e)
	return outreach.Outcome{Email: e, Success: true}, nil
}

type fakeRunner struct {
	runs int
	err  error
}

func (r *fakeRunner) RunOnce(context.Context) (*outreach.CycleReport, error) {
	r.runs++
	if r.err != nil {
		return nil, r.err
	}
	return &outreach.CycleReport{ID: "cycle-1"}, nil
}

type fakeEnqueuer struct {
	triggers []string
	err      error
}

func (e *fakeEnqueuer) EnqueueCycle(_ context.Context, trigger string) (string, error) {
	e.triggers = append(e.triggers, trigger)
	return "task-1", e.err
}

func newEngine(q *fakeQualifier, runner *fakeRunner, enqueuer CycleEnqueuer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	m := NewModule(fakePipeline{}, fakeSchedule{}, q, runner, enqueuer, logger.Discard())
	m.RegisterRoutes(&apphttp.RouterContext{Engine: engine, Admin: engine.Group("/admin")})
	return engine
}

func do(engine *gin.Engine, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestReadRoutes(t *testing.T) {
	engine := newEngine(&fakeQualifier{}, &fakeRunner{}, nil)

	rec := do(engine, http.MethodGet, "/admin/pipeline")
	if rec.Code != http.StatusOK {
		t.Fatalf("pipeline: expected 200, got %d", rec.Code)
	}
	var summary outreach.PipelineSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil || summary.Total != 2 {
		t.Fatalf("unexpected summary %s (%v)", rec.Body.String(), err)
	}

	if rec := do(engine, http.MethodGet, "/admin/leads/ada@firm.test"); rec.Code != http.StatusOK {
		t.Fatalf("lead: expected 200, got %d", rec.Code)
	}
	if rec := do(engine, http.MethodGet, "/admin/leads/nobody@firm.test"); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown lead: expected 404, got %d", rec.Code)
	}

	rec = do(engine, http.MethodGet, "/admin/follow-ups")
	if rec.Code != http.StatusOK || rec.Body.String() != "[]" {
		t.Fatalf("follow-ups: expected empty list, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestTriggerCycleInline(t *testing.T) {
	runner := &fakeRunner{}
	engine := newEngine(&fakeQualifier{}, runner, nil)
	if rec := do(engine, http.MethodPost, "/admin/cycles"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	runner.err = outreach.ErrCycleInProgress
	if rec := do(engine, http.MethodPost, "/admin/cycles"); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 while a cycle runs, got %d", rec.Code)
	}
	if runner.runs != 2 {
		t.Fatalf("expected 2 runs, got %d", runner.runs)
	}
}

func TestTriggerCycleQueued(t *testing.T) {
	runner := &fakeRunner{}
	enqueuer := &fakeEnqueuer{}
	engine := newEngine(&fakeQualifier{}, runner, enqueuer)

	if rec := do(engine, http.MethodPost, "/admin/cycles"); rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if runner.runs != 0 || len(enqueuer.triggers) != 1 || enqueuer.triggers[0] != "api" {
		t.Fatalf("expected one queued api cycle, runs=%d triggers=%v", runner.runs, enqueuer.triggers)
	}

	enqueuer.err = outreach.ErrCycleInProgress
	if rec := do(engine, http.MethodPost, "/admin/cycles"); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for a duplicate task, got %d", rec.Code)
	}
}

func TestQualificationRoutes(t *testing.T) {
	q := &fakeQualifier{}
	engine := newEngine(q, &fakeRunner{}, nil)

	if rec := do(engine, http.MethodPost, "/admin/leads/ada@firm.test/call-completed"); rec.Code != http.StatusOK {
		t.Fatalf("call-completed: expected 200, got %d", rec.Code)
	}
	if rec := do(engine, http.MethodPost, "/admin/leads/ada@firm.test/qualify"); rec.Code != http.StatusConflict {
		t.Fatalf("qualify: expected 409, got %d", rec.Code)
	}
	if rec := do(engine, http.MethodPost, "/admin/leads/ada@firm.test/scorecard"); rec.Code != http.StatusOK {
		t.Fatalf("scorecard: expected 200, got %d", rec.Code)
	}
	want := []string{"complete:ada@firm.test", "qualify:ada@firm.test", "scorecard:ada@firm.test"}
	if len(q.calls) != len(want) {
		t.Fatalf("unexpected calls %v", q.calls)
	}
	for i := range want {
		if q.calls[i] != want[i] {
			t.Fatalf("unexpected calls %v", q.calls)
		}
	}
}
