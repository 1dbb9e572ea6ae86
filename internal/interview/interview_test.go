package interview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/hireguard/internal/ai"
	"github.com/spigell/hireguard/internal/audio"
	"github.com/spigell/hireguard/internal/live"
)

type stubConn struct {
	events chan live.Event

	mu     sync.Mutex
	closed bool
	text   []string
}

func newStubConn() *stubConn {
	return &stubConn{events: make(chan live.Event, 16)}
}

func (c *stubConn) Events() <-chan live.Event { return c.events }

func (c *stubConn) SendAudio(audio.EncodedChunk) error { return nil }

func (c *stubConn) SendText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text = append(c.text, text)
	return nil
}

func (c *stubConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.events <- live.Event{Kind: live.EventClosed}
		close(c.events)
	}
	return nil
}

type stubModel struct {
	mu sync.Mutex

	scan      *ai.ScanResult
	scanErr   error
	plan      *ai.InterviewPlan
	planErr   error
	report    *ai.EvaluationReport
	reportErr error

	planReq   ai.PlanRequest
	reportReq ai.ReportRequest
	configs   []live.Config
	conns     []*stubConn
}

func (m *stubModel) FastScan(context.Context, ai.ScanRequest) (*ai.ScanResult, error) {
	if m.scanErr != nil {
		return nil, m.scanErr
	}
	return m.scan, nil
}

func (m *stubModel) PlanInterview(ctx context.Context, req ai.PlanRequest) (*ai.InterviewPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.planReq = req
	if m.planErr != nil {
		return nil, m.planErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.plan == nil {
		return &ai.InterviewPlan{Strategy: "Go deep on storage.", FocusAreas: []string{"Kubernetes", "SQL tuning"}, Difficulty: "Hard"}, nil
	}
	return m.plan, nil
}

func (m *stubModel) GenerateFinalReport(_ context.Context, req ai.ReportRequest) (*ai.EvaluationReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reportReq = req
	if m.reportErr != nil {
		return nil, m.reportErr
	}
	return m.report, nil
}

func (m *stubModel) Open(_ context.Context, cfg live.Config) (live.Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn := newStubConn()
	m.configs = append(m.configs, cfg)
	m.conns = append(m.conns, conn)
	return conn, nil
}

func (m *stubModel) lastConn() *stubConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conns[len(m.conns)-1]
}

type stubCapture struct {
	mu    sync.Mutex
	err   error
	stops int
}

func (c *stubCapture) Start(context.Context, audio.FrameSink) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *stubCapture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	return nil
}

type stubPlayer struct{}

func (stubPlayer) Enqueue(audio.EncodedChunk) (time.Duration, error) { return 0, nil }
func (stubPlayer) Interrupt()                                       {}

var testNow = time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC)

func adaScan() *ai.ScanResult {
	return &ai.ScanResult{
		Candidate: ai.CandidateProfile{Name: "Ada", Experience: "7 years", Summary: "Builds APIs."},
		Job:       ai.JobProfile{Role: "Backend Engineer", Requirements: []string{"Go", "SQL"}, Seniority: "Senior"},
	}
}

func newTestInterview(t *testing.T, model *stubModel, capture *stubCapture) *Interview {
	t.Helper()

	iv, err := New(Deps{
		Model:    model,
		Capture:  capture,
		Playback: stubPlayer{},
		Now:      func() time.Time { return testNow },
	}, LiveSettings{Model: "live-model", Voice: "Kore", InputTranscription: true})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return iv
}

func TestAnalyzePopulatesProfilesVerbatim(t *testing.T) {
	t.Parallel()

	scan := &ai.ScanResult{
		Candidate: ai.CandidateProfile{Name: "Ada"},
		Job:       ai.JobProfile{Role: "Backend Engineer"},
	}
	iv := newTestInterview(t, &stubModel{scan: scan}, &stubCapture{})

	if _, err := iv.Analyze(context.Background(), "...resume...", "...JD..."); err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}

	candidate, job := iv.Profiles()
	if candidate.Name != "Ada" || job.Role != "Backend Engineer" {
		t.Fatalf("unexpected profiles %+v %+v", candidate, job)
	}
	if candidate.Skills != nil || job.Requirements != nil || job.Seniority != "" {
		t.Fatalf("profiles were transformed: %+v %+v", candidate, job)
	}
	if iv.Status() != StatusConducting {
		t.Fatalf("unexpected status %s", iv.Status())
	}

	history := iv.History()
	want := ai.Message{Role: ai.RoleSystem, Content: "Session initialized for Ada.", Timestamp: testNow}
	if len(history) != 1 || history[0] != want {
		t.Fatalf("unexpected history %+v", history)
	}
}

func TestAnalyzeFailureReturnsToIdle(t *testing.T) {
	t.Parallel()

	scanErr := errors.New("ai: analysis failed: boom")
	iv := newTestInterview(t, &stubModel{scanErr: scanErr}, &stubCapture{})

	if _, err := iv.Analyze(context.Background(), "r", "j"); !errors.Is(err, scanErr) {
		t.Fatalf("expected scan error, got %v", err)
	}
	if iv.Status() != StatusIdle {
		t.Fatalf("unexpected status %s", iv.Status())
	}
	if err := iv.StartLive(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("interview must not start without profiles, got %v", err)
	}
}

func TestAnalyzePlansInterview(t *testing.T) {
	t.Parallel()

	model := &stubModel{scan: adaScan()}
	iv := newTestInterview(t, model, &stubCapture{})

	if _, err := iv.Analyze(context.Background(), "r", "j"); err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}

	if model.planReq.Candidate.Name != "Ada" || model.planReq.Job.Role != "Backend Engineer" {
		t.Fatalf("plan was not requested for the scanned profiles: %+v", model.planReq)
	}
	plan := iv.Plan()
	if plan.Difficulty != "Hard" || len(plan.FocusAreas) != 2 || plan.FocusAreas[0] != "Kubernetes" {
		t.Fatalf("unexpected plan %+v", plan)
	}
}

func TestAnalyzePlanFailureFallsBackToRequirements(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	model := &stubModel{scan: adaScan(), planErr: fmt.Errorf("%w: quota exhausted", ai.ErrPlanningFailure)}
	iv, err := New(Deps{Model: model, Logger: zap.New(core), Now: func() time.Time { return testNow }}, LiveSettings{})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if _, err := iv.Analyze(context.Background(), "r", "j"); err != nil {
		t.Fatalf("a failed plan must not fail the analysis, got %v", err)
	}
	if iv.Status() != StatusConducting {
		t.Fatalf("unexpected status %s", iv.Status())
	}

	plan := iv.Plan()
	if plan.Strategy != "Standard evaluation" || plan.Difficulty != "Senior" {
		t.Fatalf("unexpected fallback plan %+v", plan)
	}
	if len(plan.FocusAreas) != 2 || plan.FocusAreas[0] != "Go" || plan.FocusAreas[1] != "SQL" {
		t.Fatalf("fallback must focus on the requirements, got %v", plan.FocusAreas)
	}
	if logs.FilterMessageSnippet("planning failed").Len() != 1 {
		t.Fatalf("expected a planning warning, got %+v", logs.All())
	}
}

func TestAnalyzeCancelledDuringPlanning(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	iv := newTestInterview(t, &stubModel{scan: adaScan()}, &stubCapture{})

	if _, err := iv.Analyze(ctx, "r", "j"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if iv.Status() != StatusIdle {
		t.Fatalf("unexpected status %s", iv.Status())
	}
	if plan := iv.Plan(); plan.Strategy != "" {
		t.Fatalf("no plan may be stored, got %+v", plan)
	}
}

func TestLiveSessionLifecycle(t *testing.T) {
	t.Parallel()

	model := &stubModel{scan: adaScan()}
	capture := &stubCapture{}
	iv := newTestInterview(t, model, capture)

	if _, err := iv.Analyze(context.Background(), "r", "j"); err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if err := iv.StartLive(context.Background()); err != nil {
		t.Fatalf("StartLive returned error: %v", err)
	}
	if !iv.LiveActive() {
		t.Fatalf("live session should be active")
	}
	if err := iv.StartLive(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for a second session, got %v", err)
	}

	cfg := model.configs[0]
	if cfg.Model != "live-model" || cfg.Voice != "Kore" || !cfg.OutputTranscription || !cfg.InputTranscription {
		t.Fatalf("unexpected live config %+v", cfg)
	}
	for _, fragment := range []string{
		"CANDIDATE: Ada",
		"BENCHMARK ROLE: Backend Engineer",
		"CORE REQUIREMENTS: Go, SQL",
		"FOCUS AREAS: Kubernetes, SQL tuning",
		"DIFFICULTY: Hard",
		"ASK ONE QUESTION AT A TIME",
	} {
		if !strings.Contains(cfg.SystemInstruction, fragment) {
			t.Fatalf("system instruction is missing %q", fragment)
		}
	}

	conn := model.lastConn()
	conn.events <- live.Event{Kind: live.EventTranscriptDelta, Text: "Welcome, Ada."}
	conn.events <- live.Event{Kind: live.EventTurnComplete}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := iv.StopLive(ctx); err != nil {
		t.Fatalf("StopLive returned error: %v", err)
	}
	if iv.LiveActive() {
		t.Fatalf("live session should be stopped")
	}
	if !strings.HasPrefix(conn.text[0], "Hello Ada. I have reviewed your profile for the Backend Engineer position.") {
		t.Fatalf("unexpected opening prompt %q", conn.text)
	}

	history := iv.History()
	if len(history) != 2 || history[1].Content != "Welcome, Ada." {
		t.Fatalf("unexpected history %+v", history)
	}

	// A new session continues on the same history.
	if err := iv.StartLive(context.Background()); err != nil {
		t.Fatalf("restarting live session returned error: %v", err)
	}
	if err := iv.StopLive(ctx); err != nil {
		t.Fatalf("StopLive returned error: %v", err)
	}
	if len(model.configs) != 2 {
		t.Fatalf("expected two live sessions, got %d", len(model.configs))
	}
}

func TestStartLivePermissionDenied(t *testing.T) {
	t.Parallel()

	model := &stubModel{scan: adaScan()}
	iv := newTestInterview(t, model, &stubCapture{err: audio.ErrPermissionDenied})

	if _, err := iv.Analyze(context.Background(), "r", "j"); err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if err := iv.StartLive(context.Background()); !errors.Is(err, audio.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if iv.LiveActive() {
		t.Fatalf("no session may run without a microphone")
	}
	if iv.Status() != StatusConducting {
		t.Fatalf("unexpected status %s", iv.Status())
	}
}

func TestFinishProducesReport(t *testing.T) {
	t.Parallel()

	report := &ai.EvaluationReport{
		Scores:         ai.Scores{Technical: 8, Communication: 7, ProblemSolving: 8, Confidence: 6},
		Feedback:       "Solid.",
		Recommendation: ai.RecommendationHire,
	}
	model := &stubModel{scan: adaScan(), report: report}
	capture := &stubCapture{}
	iv := newTestInterview(t, model, capture)

	if _, err := iv.Analyze(context.Background(), "r", "j"); err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if err := iv.StartLive(context.Background()); err != nil {
		t.Fatalf("StartLive returned error: %v", err)
	}

	got, err := iv.Finish(context.Background())
	if err != nil {
		t.Fatalf("Finish returned error: %v", err)
	}
	if got != report || iv.Report() != report {
		t.Fatalf("unexpected report %+v", got)
	}
	if iv.Status() != StatusCompleted {
		t.Fatalf("unexpected status %s", iv.Status())
	}
	if iv.LiveActive() {
		t.Fatalf("finishing must close the live session")
	}
	if capture.stops != 1 {
		t.Fatalf("microphone stopped %d times", capture.stops)
	}
	if model.reportReq.Candidate.Name != "Ada" || model.reportReq.Job.Role != "Backend Engineer" {
		t.Fatalf("unexpected report request %+v", model.reportReq)
	}
	if len(model.reportReq.Transcript) != 1 || model.reportReq.Transcript[0].Role != ai.RoleSystem {
		t.Fatalf("unexpected transcript %+v", model.reportReq.Transcript)
	}

	if _, err := iv.Finish(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState after completion, got %v", err)
	}
}

func TestFinishFailureStaysEvaluating(t *testing.T) {
	t.Parallel()

	model := &stubModel{scan: adaScan(), reportErr: ai.ErrEvaluationFailure}
	iv := newTestInterview(t, model, &stubCapture{})

	if _, err := iv.Analyze(context.Background(), "r", "j"); err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}

	if _, err := iv.Finish(context.Background()); !errors.Is(err, ai.ErrEvaluationFailure) {
		t.Fatalf("expected ErrEvaluationFailure, got %v", err)
	}
	if iv.Status() != StatusEvaluating {
		t.Fatalf("unexpected status %s", iv.Status())
	}
	if iv.Report() != nil {
		t.Fatalf("no report may be synthesized")
	}

	model.mu.Lock()
	model.reportErr = nil
	model.report = &ai.EvaluationReport{Recommendation: ai.RecommendationConsider}
	model.mu.Unlock()

	if _, err := iv.Finish(context.Background()); err != nil {
		t.Fatalf("retrying Finish returned error: %v", err)
	}
	if iv.Status() != StatusCompleted {
		t.Fatalf("unexpected status %s", iv.Status())
	}
}

func TestFinishRequiresAnalysis(t *testing.T) {
	t.Parallel()

	iv := newTestInterview(t, &stubModel{}, &stubCapture{})
	if _, err := iv.Finish(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if err := iv.StopLive(context.Background()); err != nil {
		t.Fatalf("StopLive without a session returned error: %v", err)
	}
}

func TestNewRequiresModel(t *testing.T) {
	t.Parallel()

	if _, err := New(Deps{}, LiveSettings{}); err == nil {
		t.Fatalf("expected error without model client")
	}
}
