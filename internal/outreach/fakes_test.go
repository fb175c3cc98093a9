package outreach

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	apptrepo "outreach_backend/internal/appointments/repository"
	"outreach_backend/internal/decision"
	"outreach_backend/internal/email"
	"outreach_backend/internal/leads/domain"
	"outreach_backend/internal/leads/repository"
	"outreach_backend/internal/memory"
	"outreach_backend/platform/logger"
)

var testEpoch = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeLeads is an in-memory LeadStore.
type fakeLeads struct {
	mu          sync.Mutex
	clock       *testClock
	leads       map[string]*domain.Lead
	transitions []string
	fields      map[string]any
	listErr     error

	// failStatusTo makes the next failStatusN writes of that status fail.
	failStatusTo domain.State
	failStatusN  int
}

func newFakeLeads(clock *testClock, leads ...domain.Lead) *fakeLeads {
	f := &fakeLeads{clock: clock, leads: make(map[string]*domain.Lead), fields: make(map[string]any)}
	for _, l := range leads {
		f.add(l)
	}
	return f
}

func (f *fakeLeads) add(l domain.Lead) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l.Email = domain.NormalizeEmail(l.Email)
	if l.CreatedAt.IsZero() {
		l.CreatedAt = f.clock.Now().Add(-48 * time.Hour)
	}
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = l.CreatedAt
	}
	f.leads[l.Email] = &l
}

func (f *fakeLeads) get(email string) domain.Lead {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.leads[domain.NormalizeEmail(email)]
}

func (f *fakeLeads) countTransitionsTo(status domain.State) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.transitions {
		if strings.HasSuffix(t, "->"+string(status)) {
			n++
		}
	}
	return n
}

func (f *fakeLeads) ListLeads(_ context.Context, statuses ...domain.State) ([]domain.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	want := make(map[domain.State]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	var out []domain.Lead
	for _, l := range f.leads {
		if len(want) == 0 || want[l.Status] {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Email < out[j].Email
	})
	return out, nil
}

func (f *fakeLeads) GetLead(_ context.Context, email string) (*domain.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.leads[domain.NormalizeEmail(email)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (f *fakeLeads) lookup(email string) (*domain.Lead, error) {
	l, ok := f.leads[domain.NormalizeEmail(email)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return l, nil
}

func (f *fakeLeads) SetStatus(_ context.Context, email string, status domain.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, err := f.lookup(email)
	if err != nil {
		return err
	}
	if status == f.failStatusTo && f.failStatusN > 0 {
		f.failStatusN--
		return errBoom
	}
	f.transitions = append(f.transitions, string(l.Status)+"->"+string(status))
	l.Status = status
	l.UpdatedAt = f.clock.Now()
	return nil
}

func (f *fakeLeads) SetField(_ context.Context, email, field string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, err := f.lookup(email)
	if err != nil {
		return err
	}
	f.fields[l.Email+"."+field] = value
	switch field {
	case domain.FieldPriority:
		p := value.(string)
		l.Priority = &p
	case domain.FieldQualificationScore:
		s := value.(float64)
		l.QualificationScore = &s
	case domain.FieldFollowUpStage:
		l.FollowUpStage = value.(int)
	case domain.FieldAIAnalysis:
		l.AIAnalysis = value.(string)
	}
	return nil
}

func (f *fakeLeads) AppendNote(_ context.Context, email, note string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, err := f.lookup(email)
	if err != nil {
		return err
	}
	if l.Notes != "" {
		l.Notes += "\n"
	}
	l.Notes += note
	return nil
}

func (f *fakeLeads) RecordEmailSent(_ context.Context, email, note string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, err := f.lookup(email)
	if err != nil {
		return err
	}
	now := f.clock.Now()
	l.LastEmailSent = &now
	if l.Notes != "" {
		l.Notes += "\n"
	}
	l.Notes += note
	return nil
}

// fakeChannel records sends and serves a fixed inbox.
type fakeChannel struct {
	mu       sync.Mutex
	sent     []email.OutboundEmail
	failSend bool
	inbound  []email.InboundEmail
	inboxErr error
	read     []string
}

func (c *fakeChannel) Send(_ context.Context, msg email.OutboundEmail) email.SendResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	if c.failSend {
		return email.SendResult{Success: false, Error: "smtp unavailable"}
	}
	return email.SendResult{Success: true, MessageID: "out-" + strconv.Itoa(len(c.sent))}
}

func (c *fakeChannel) RecentInbound(context.Context, float64) ([]email.InboundEmail, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inboxErr != nil {
		return nil, c.inboxErr
	}
	return append([]email.InboundEmail(nil), c.inbound...), nil
}

func (c *fakeChannel) MarkRead(_ context.Context, messageID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.read = append(c.read, messageID)
	return nil
}

func (c *fakeChannel) sendCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

type fakeCalendar struct {
	recent    []apptrepo.Event
	byEmail   map[string]apptrepo.Event
	recentErr error
}

func (c *fakeCalendar) RecentEvents(context.Context, float64) ([]apptrepo.Event, error) {
	if c.recentErr != nil {
		return nil, c.recentErr
	}
	return c.recent, nil
}

func (c *fakeCalendar) FindEventByAttendee(_ context.Context, addr string) (*apptrepo.Event, error) {
	ev, ok := c.byEmail[domain.NormalizeEmail(addr)]
	if !ok {
		return nil, nil
	}
	return &ev, nil
}

// fakeDecider returns canned results per task.
type fakeDecider struct {
	mu            sync.Mutex
	analysis      decision.Result
	reply         decision.Result
	followUp      decision.Result
	qualification decision.Result
	emailErr      error
	replyErr      error
	emailTypes    []string
	calls         map[string]int
}

func newFakeDecider() *fakeDecider {
	score := 72.0
	return &fakeDecider{
		analysis: decision.Analysis{Priority: "high", Score: &score, PersonalizationNotes: "busy PI firm", RecommendedApproach: "direct"},
		reply:    decision.ReplyAction{Action: decision.ActionRespond, Response: &decision.Email{Subject: "Re: hi", Body: "Thanks for writing."}},
		followUp: decision.FollowUpDecision{ShouldFollowUp: true, Reason: "no reply yet"},
		qualification: decision.Qualification{
			Qualified: true, Score: 82, Reasons: []string{"clear intake bottleneck"}, NextSteps: "send scorecard",
		},
		calls: make(map[string]int),
	}
}

func (f *fakeDecider) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeDecider) AnalyzeLead(context.Context, domain.Lead) (decision.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["analysis"]++
	return f.analysis, nil
}

func (f *fakeDecider) GenerateEmail(_ context.Context, req decision.EmailRequest) (decision.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["email"]++
	f.emailTypes = append(f.emailTypes, req.EmailType)
	if f.emailErr != nil {
		return nil, f.emailErr
	}
	return decision.Email{Subject: "Subject " + req.EmailType, Body: "Body for " + req.EmailType}, nil
}

func (f *fakeDecider) HandleReply(context.Context, domain.Lead, string, string) (decision.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["reply"]++
	if f.replyErr != nil {
		return nil, f.replyErr
	}
	return f.reply, nil
}

func (f *fakeDecider) DecideFollowUp(context.Context, decision.FollowUpRequest) (decision.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["follow_up"]++
	return f.followUp, nil
}

func (f *fakeDecider) QualifyLead(context.Context, domain.Lead, string) (decision.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["qualification"]++
	return f.qualification, nil
}

type harness struct {
	clock    *testClock
	leads    *fakeLeads
	channel  *fakeChannel
	calendar *fakeCalendar
	decider  *fakeDecider
	memory   memory.Store
	deps     *Deps
}

func newHarness(t *testing.T, leads ...domain.Lead) *harness {
	t.Helper()
	clock := &testClock{now: testEpoch}
	store, err := memory.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "memory.db"), logger.Discard(), memory.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("open memory store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	h := &harness{
		clock:    clock,
		leads:    newFakeLeads(clock, leads...),
		channel:  &fakeChannel{},
		calendar: &fakeCalendar{byEmail: map[string]apptrepo.Event{}},
		decider:  newFakeDecider(),
		memory:   store,
	}
	h.deps = &Deps{
		Leads:    h.leads,
		Channel:  h.channel,
		Calendar: h.calendar,
		Decider:  h.decider,
		Memory:   store,
		Settings: DefaultSettings(),
		Log:      logger.Discard(),
		Now:      clock.Now,
	}
	return h
}

func (h *harness) actions(t *testing.T, leadEmail, actionType string) []memory.ActionRecord {
	t.Helper()
	recs, err := h.memory.RecentActions(context.Background(), leadEmail, actionType, 100)
	if err != nil {
		t.Fatalf("recent actions: %v", err)
	}
	return recs
}

func (h *harness) messageCount(t *testing.T, leadEmail string) int {
	t.Helper()
	n, err := h.memory.CountMessages(context.Background(), leadEmail)
	if err != nil {
		t.Fatalf("count messages: %v", err)
	}
	return n
}

var errBoom = errors.New("boom")
