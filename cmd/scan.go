package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/hireguard/internal/ai"
	"github.com/spigell/hireguard/internal/metrics"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Extract candidate and job profiles without starting an interview",
	Run: func(cmd *cobra.Command, _ []string) {
		scan(cmd)
	},
}

// analysis is the printed result of the pre-interview model calls.
type analysis struct {
	*ai.ScanResult
	Plan *ai.InterviewPlan `json:"plan,omitempty"`
}

func planPtr(plan ai.InterviewPlan) *ai.InterviewPlan {
	return &plan
}

func init() {
	rootCmd.AddCommand(scanCmd)
	addProfileFlags(scanCmd)
	scanCmd.Flags().Bool("plan", false, "Also plan the interview for the extracted profiles")
}

func scan(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log, config := setup()

	resume, job, err := readProfileInputs(cmd)
	if err != nil {
		log.Fatal("reading inputs", zap.Error(err))
	}

	client, err := newModelClient(ctx, config, log, metrics.NewNop())
	if err != nil {
		log.Fatal("building model client", zap.Error(err))
	}

	result, err := client.FastScan(ctx, ai.ScanRequest{ResumeText: resume, JobDescription: job})
	if err != nil {
		log.Fatal("scanning profiles", zap.Error(err))
	}

	out := analysis{ScanResult: result}
	if withPlan, _ := cmd.Flags().GetBool("plan"); withPlan {
		out.Plan, err = client.PlanInterview(ctx, ai.PlanRequest{Candidate: result.Candidate, Job: result.Job})
		if err != nil {
			log.Fatal("planning interview", zap.Error(err))
		}
	}

	if err := printJSON(cmd, out); err != nil {
		log.Fatal("printing profiles", zap.Error(err))
	}
}
