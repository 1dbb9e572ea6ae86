package interview

import (
	"fmt"
	"strings"

	_ "embed"

	"github.com/spigell/hireguard/internal/ai"
)

//go:embed instruction.md
var instructionTemplate string

// SystemInstruction renders the interviewer persona for the given profiles
// and plan.
func SystemInstruction(candidate ai.CandidateProfile, job ai.JobProfile, plan ai.InterviewPlan) string {
	return strings.NewReplacer(
		"{{CANDIDATE}}", candidate.Name,
		"{{EXPERIENCE}}", candidate.Experience,
		"{{SUMMARY}}", candidate.Summary,
		"{{ROLE}}", job.Role,
		"{{SENIORITY}}", job.Seniority,
		"{{REQUIREMENTS}}", strings.Join(job.Requirements, ", "),
		"{{STRATEGY}}", plan.Strategy,
		"{{FOCUS_AREAS}}", strings.Join(plan.FocusAreas, ", "),
		"{{DIFFICULTY}}", plan.Difficulty,
	).Replace(instructionTemplate)
}

// OpeningPrompt is the text turn that asks the model to greet the candidate.
func OpeningPrompt(candidate ai.CandidateProfile, job ai.JobProfile) string {
	return fmt.Sprintf(
		"Hello %s. I have reviewed your profile for the %s position. Let's begin the interview. "+
			"Please start by introducing yourself and highlighting your relevant experience.",
		candidate.Name, job.Role,
	)
}

func sessionInitialized(candidate ai.CandidateProfile) string {
	return fmt.Sprintf("Session initialized for %s.", candidate.Name)
}
