package interview

import (
	"strings"
	"testing"

	"github.com/spigell/hireguard/internal/ai"
)

func TestSystemInstruction(t *testing.T) {
	t.Parallel()

	got := SystemInstruction(
		ai.CandidateProfile{Name: "Ada", Experience: "7 years", Summary: "Builds APIs."},
		ai.JobProfile{Role: "Backend Engineer", Requirements: []string{"Go", "SQL"}, Seniority: "Senior"},
		ai.InterviewPlan{Strategy: "Open with API design.", FocusAreas: []string{"Kubernetes", "SQL tuning"}, Difficulty: "Hard"},
	)

	for _, want := range []string{
		"CANDIDATE: Ada",
		"EXPERIENCE: 7 years",
		"SUMMARY: Builds APIs.",
		"BENCHMARK ROLE: Backend Engineer",
		"SENIORITY: Senior",
		"CORE REQUIREMENTS: Go, SQL",
		"STRATEGY: Open with API design.",
		"FOCUS AREAS: Kubernetes, SQL tuning",
		"DIFFICULTY: Hard",
		"WAIT PATIENTLY",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("instruction is missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "{{") {
		t.Fatalf("instruction has unreplaced placeholders:\n%s", got)
	}
}

func TestOpeningPrompt(t *testing.T) {
	t.Parallel()

	got := OpeningPrompt(ai.CandidateProfile{Name: "Ada"}, ai.JobProfile{Role: "Backend Engineer"})
	want := "Hello Ada. I have reviewed your profile for the Backend Engineer position. Let's begin the interview. " +
		"Please start by introducing yourself and highlighting your relevant experience."
	if got != want {
		t.Fatalf("unexpected opening prompt %q", got)
	}
}
