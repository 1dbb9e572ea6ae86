package ai

import "testing"

func TestRecommendationValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   Recommendation
		want bool
	}{
		{RecommendationHire, true},
		{RecommendationConsider, true},
		{RecommendationReject, true},
		{"hire", false},
		{"", false},
		{"Maybe", false},
	}

	for _, tt := range tests {
		if got := tt.in.Valid(); got != tt.want {
			t.Fatalf("Recommendation(%q).Valid() = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFallbackPlan(t *testing.T) {
	t.Parallel()

	job := JobProfile{Role: "Backend Engineer", Requirements: []string{"Go", "SQL"}, Seniority: "Senior"}
	plan := FallbackPlan(job)

	if plan.Strategy != "Standard evaluation" || plan.Difficulty != "Senior" {
		t.Fatalf("unexpected plan %+v", plan)
	}
	if len(plan.FocusAreas) != 2 || plan.FocusAreas[0] != "Go" || plan.FocusAreas[1] != "SQL" {
		t.Fatalf("expected requirements as focus areas, got %v", plan.FocusAreas)
	}

	plan.FocusAreas[0] = "Rust"
	if job.Requirements[0] != "Go" {
		t.Fatalf("fallback plan shares the requirements slice")
	}

	if got := FallbackPlan(JobProfile{}).Difficulty; got != "Standard" {
		t.Fatalf("expected Standard difficulty without seniority, got %q", got)
	}
}
