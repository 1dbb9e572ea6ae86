// Package ai defines the structured analysis contract used by the interview
// flow: profile extraction and planning before the interview and scoring
// after it.
package ai

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrExtractionFailure is returned when the fast scan fails or the model
	// output does not match the expected profile schema.
	ErrExtractionFailure = errors.New("ai: analysis failed")
	// ErrEvaluationFailure is returned when the final report cannot be produced.
	ErrEvaluationFailure = errors.New("ai: evaluation failed")
	// ErrPlanningFailure is returned when no interview plan can be produced.
	ErrPlanningFailure = errors.New("ai: planning failed")
)

// Role identifies the author of a conversation entry.
type Role string

const (
	RoleInterviewer Role = "interviewer"
	RoleCandidate   Role = "candidate"
	RoleSystem      Role = "system"
)

// Message is one committed entry of the conversation history.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type CandidateProfile struct {
	Name       string   `json:"name"`
	Skills     []string `json:"skills"`
	Experience string   `json:"experience"`
	Summary    string   `json:"summary"`
}

type JobProfile struct {
	Role         string   `json:"role"`
	Requirements []string `json:"requirements"`
	Seniority    string   `json:"seniority"`
}

type ScanRequest struct {
	ResumeText     string
	JobDescription string
}

// ScanResult holds the profiles exactly as the model returned them.
type ScanResult struct {
	Candidate CandidateProfile `json:"candidate"`
	Job       JobProfile       `json:"job"`
}

type PlanRequest struct {
	Candidate CandidateProfile
	Job       JobProfile
}

// InterviewPlan is the strategy the interviewer follows: the skill gaps to
// dig into and how hard to push.
type InterviewPlan struct {
	Strategy   string   `json:"strategy"`
	FocusAreas []string `json:"focus_areas"`
	Difficulty string   `json:"difficulty"`
}

// FallbackPlan is used when planning fails. It focuses on the job
// requirements at the stated seniority.
func FallbackPlan(job JobProfile) InterviewPlan {
	difficulty := job.Seniority
	if difficulty == "" {
		difficulty = "Standard"
	}
	return InterviewPlan{
		Strategy:   "Standard evaluation",
		FocusAreas: append([]string(nil), job.Requirements...),
		Difficulty: difficulty,
	}
}

type ReportRequest struct {
	Transcript []Message
	Candidate  CandidateProfile
	Job        JobProfile
}

// Scores are rated on a 0 to 10 scale.
type Scores struct {
	Technical      float64 `json:"technical"`
	Communication  float64 `json:"communication"`
	ProblemSolving float64 `json:"problemSolving"`
	Confidence     float64 `json:"confidence"`
}

type Recommendation string

const (
	RecommendationHire     Recommendation = "Hire"
	RecommendationConsider Recommendation = "Consider"
	RecommendationReject   Recommendation = "Reject"
)

// Valid reports whether r is one of the known recommendations.
func (r Recommendation) Valid() bool {
	switch r {
	case RecommendationHire, RecommendationConsider, RecommendationReject:
		return true
	default:
		return false
	}
}

type EvaluationReport struct {
	Scores         Scores         `json:"scores"`
	Feedback       string         `json:"feedback"`
	Recommendation Recommendation `json:"recommendation"`
}

// Analyzer performs the one-shot structured model calls.
type Analyzer interface {
	FastScan(ctx context.Context, req ScanRequest) (*ScanResult, error)
	PlanInterview(ctx context.Context, req PlanRequest) (*InterviewPlan, error)
	GenerateFinalReport(ctx context.Context, req ReportRequest) (*EvaluationReport, error)
}
