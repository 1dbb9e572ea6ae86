// Package interview drives one interview from profile extraction through the
// live voice conversation to the final evaluation report.
package interview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/hireguard/internal/ai"
	"github.com/spigell/hireguard/internal/live"
	"github.com/spigell/hireguard/internal/metrics"
)

// ErrInvalidState is returned when an operation is not allowed in the
// current interview status.
var ErrInvalidState = errors.New("interview: invalid state")

type Status string

const (
	StatusIdle       Status = "idle"
	StatusAnalyzing  Status = "analyzing"
	StatusConducting Status = "conducting"
	StatusEvaluating Status = "evaluating"
	StatusCompleted  Status = "completed"
)

// ModelClient is the remote model: one-shot analysis calls plus the live
// conversational channel.
type ModelClient interface {
	ai.Analyzer
	live.Dialer
}

// Deps are the collaborators of an interview.
type Deps struct {
	Model    ModelClient
	Capture  live.Capturer
	Playback live.Player
	Observer live.Observer
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

// LiveSettings configure every live session of the interview.
type LiveSettings struct {
	Model              string
	Voice              string
	InputTranscription bool
}

// Interview holds the state of one interview. All methods are safe for
// concurrent use.
type Interview struct {
	deps     Deps
	settings LiveSettings
	logger   *zap.Logger

	mu        sync.Mutex
	status    Status
	candidate ai.CandidateProfile
	job       ai.JobProfile
	plan      ai.InterviewPlan
	history   *live.History
	session   *live.Session
	report    *ai.EvaluationReport
}

// New creates an idle interview.
func New(deps Deps, settings LiveSettings) (*Interview, error) {
	if deps.Model == nil {
		return nil, errors.New("model client is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	return &Interview{
		deps:     deps,
		settings: settings,
		logger:   deps.Logger,
		status:   StatusIdle,
		history:  live.NewHistory(),
	}, nil
}

func (iv *Interview) Status() Status {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	return iv.status
}

// Profiles returns the extracted profiles. They are zero until Analyze succeeds.
func (iv *Interview) Profiles() (ai.CandidateProfile, ai.JobProfile) {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	return iv.candidate, iv.job
}

// Plan returns the interview plan. It is zero until Analyze succeeds.
func (iv *Interview) Plan() ai.InterviewPlan {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	return iv.plan
}

// History returns a snapshot of the conversation so far.
func (iv *Interview) History() []ai.Message {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	return iv.history.Entries()
}

func (iv *Interview) Report() *ai.EvaluationReport {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	return iv.report
}

// LiveActive reports whether a live session is currently running.
func (iv *Interview) LiveActive() bool {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	return iv.session != nil && iv.session.Active()
}

// Analyze runs the fast scan and plans the interview. On success the
// interview moves to conducting and the history starts with a system entry;
// on failure it returns to idle. A failed plan falls back to the job
// requirements.
func (iv *Interview) Analyze(ctx context.Context, resumeText, jobDescription string) (*ai.ScanResult, error) {
	if err := iv.transition(StatusAnalyzing, StatusIdle); err != nil {
		return nil, err
	}

	result, err := iv.deps.Model.FastScan(ctx, ai.ScanRequest{
		ResumeText:     resumeText,
		JobDescription: jobDescription,
	})

	var plan ai.InterviewPlan
	if err == nil {
		plan, err = iv.planInterview(ctx, result)
	}

	iv.mu.Lock()
	defer iv.mu.Unlock()

	if err != nil {
		iv.status = StatusIdle
		return nil, err
	}

	iv.candidate = result.Candidate
	iv.job = result.Job
	iv.plan = plan
	iv.history = live.NewHistory(ai.Message{
		Role:      ai.RoleSystem,
		Content:   sessionInitialized(result.Candidate),
		Timestamp: iv.deps.Now(),
	})
	iv.status = StatusConducting

	iv.logger.Info("interview ready",
		zap.String("candidate", result.Candidate.Name),
		zap.String("role", result.Job.Role),
		zap.String("difficulty", plan.Difficulty),
	)

	return result, nil
}

// planInterview only fails when ctx is done.
func (iv *Interview) planInterview(ctx context.Context, result *ai.ScanResult) (ai.InterviewPlan, error) {
	plan, err := iv.deps.Model.PlanInterview(ctx, ai.PlanRequest{
		Candidate: result.Candidate,
		Job:       result.Job,
	})
	if err == nil {
		return *plan, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ai.InterviewPlan{}, ctxErr
	}

	iv.logger.Warn("interview planning failed, focusing on job requirements", zap.Error(err))
	return ai.FallbackPlan(result.Job), nil
}

// StartLive opens a new live session on the interview history.
func (iv *Interview) StartLive(ctx context.Context) error {
	iv.mu.Lock()
	if iv.status != StatusConducting {
		status := iv.status
		iv.mu.Unlock()
		return fmt.Errorf("%w: cannot start a live session while %s", ErrInvalidState, status)
	}
	if iv.session != nil && iv.session.Active() {
		iv.mu.Unlock()
		return fmt.Errorf("%w: live session is already running", ErrInvalidState)
	}

	session, err := live.NewSession(live.Options{
		Dialer: iv.deps.Model,
		Config: live.Config{
			Model:               iv.settings.Model,
			Modalities:          []live.Modality{live.ModalityAudio},
			Voice:               iv.settings.Voice,
			SystemInstruction:   SystemInstruction(iv.candidate, iv.job, iv.plan),
			OutputTranscription: true,
			InputTranscription:  iv.settings.InputTranscription,
		},
		Capture:       iv.deps.Capture,
		Playback:      iv.deps.Playback,
		History:       iv.history,
		OpeningPrompt: OpeningPrompt(iv.candidate, iv.job),
		Observer:      iv.deps.Observer,
		Logger:        iv.logger,
		Metrics:       iv.deps.Metrics,
		Now:           iv.deps.Now,
	})
	if err != nil {
		iv.mu.Unlock()
		return err
	}
	iv.session = session
	iv.mu.Unlock()

	return session.Start(ctx)
}

// StopLive closes the running live session and waits until its last events
// have been committed. It does nothing when no session is running.
func (iv *Interview) StopLive(ctx context.Context) error {
	iv.mu.Lock()
	session := iv.session
	iv.mu.Unlock()

	if session == nil {
		return nil
	}
	if err := session.Close(); err != nil {
		return err
	}

	select {
	case <-session.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Finish ends the conversation and requests the evaluation report. A failed
// evaluation leaves the interview in the evaluating state so it can be retried.
func (iv *Interview) Finish(ctx context.Context) (*ai.EvaluationReport, error) {
	iv.mu.Lock()
	if iv.status != StatusConducting && iv.status != StatusEvaluating {
		status := iv.status
		iv.mu.Unlock()
		return nil, fmt.Errorf("%w: cannot finish while %s", ErrInvalidState, status)
	}
	iv.mu.Unlock()

	if err := iv.StopLive(ctx); err != nil {
		return nil, fmt.Errorf("stop live session: %w", err)
	}

	iv.mu.Lock()
	iv.status = StatusEvaluating
	req := ai.ReportRequest{
		Transcript: iv.history.Entries(),
		Candidate:  iv.candidate,
		Job:        iv.job,
	}
	iv.mu.Unlock()

	iv.logger.Info("requesting evaluation", zap.Int("turns", len(req.Transcript)))

	report, err := iv.deps.Model.GenerateFinalReport(ctx, req)
	if err != nil {
		return nil, err
	}

	iv.mu.Lock()
	iv.report = report
	iv.status = StatusCompleted
	iv.mu.Unlock()

	return report, nil
}

func (iv *Interview) transition(to Status, from ...Status) error {
	iv.mu.Lock()
	defer iv.mu.Unlock()

	for _, f := range from {
		if iv.status == f {
			iv.status = to
			return nil
		}
	}
	return fmt.Errorf("%w: cannot move from %s to %s", ErrInvalidState, iv.status, to)
}
