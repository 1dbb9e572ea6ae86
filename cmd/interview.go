package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/hireguard/internal/ai"
	"github.com/spigell/hireguard/internal/audio"
	"github.com/spigell/hireguard/internal/interview"
	"github.com/spigell/hireguard/internal/metrics"
)

const (
	PromptStartLive  = "Start live session"
	PromptStopLive   = "Stop live session"
	PromptTranscript = "Show transcript"
	PromptFinish     = "Finish interview and evaluate"
	PromptQuit       = "Quit without evaluation"

	stopTimeout = 10 * time.Second
)

var errExit = errors.New("exit requested")

var interviewCmd = &cobra.Command{
	Use:   "interview",
	Short: "Analyze the profiles, run a live voice interview and print the evaluation",
	Run: func(cmd *cobra.Command, _ []string) {
		runInterview(cmd)
	},
}

func init() {
	rootCmd.AddCommand(interviewCmd)
	addProfileFlags(interviewCmd)
}

func runInterview(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log, config := setup()

	resume, job, err := readProfileInputs(cmd)
	if err != nil {
		log.Fatal("reading inputs", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	client, err := newModelClient(ctx, config, log, m)
	if err != nil {
		log.Fatal("building model client", zap.Error(err))
	}

	playback, closePlayback, err := newPlayback(config.Audio, log, m)
	if err != nil {
		log.Fatal("opening audio output", zap.Error(err))
	}
	defer closePlayback()

	capture := audio.NewCapture(&audio.FFmpegInput{
		Format: config.Audio.InputFormat,
		Device: config.Audio.InputDevice,
		Logger: log,
	}, audio.CaptureConfig{FrameSize: config.Audio.FrameSize}, log, m)

	iv, err := interview.New(interview.Deps{
		Model:    client,
		Capture:  capture,
		Playback: playback,
		Observer: &consoleObserver{out: cmd.OutOrStdout(), logger: log},
		Logger:   log,
		Metrics:  m,
	}, interview.LiveSettings{
		Model:              config.Live.Model,
		Voice:              config.Live.Voice,
		InputTranscription: config.Live.InputTranscription,
	})
	if err != nil {
		log.Fatal("creating interview", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})

	if config.MetricsAddr != "" {
		server := &http.Server{Addr: config.MetricsAddr, Handler: metricsMux(m), ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			log.Info("serving metrics", zap.String("addr", config.MetricsAddr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				// The interview keeps going without metrics.
				log.Error("metrics server failed", zap.Error(err))
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-gctx.Done():
			case <-done:
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		defer close(done)
		return conduct(gctx, cmd, iv, resume, job, log)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errExit) {
		log.Fatal("interview failed", zap.Error(err))
	}
}

func conduct(ctx context.Context, cmd *cobra.Command, iv *interview.Interview, resume, job string, log *zap.Logger) error {
	log.Info("analyzing resume and job description")

	result, err := iv.Analyze(ctx, resume, job)
	if err != nil {
		return fmt.Errorf("analyze profiles: %w", err)
	}
	if err := printJSON(cmd, analysis{ScanResult: result, Plan: planPtr(iv.Plan())}); err != nil {
		return err
	}

	for {
		items := []string{PromptStartLive, PromptTranscript, PromptFinish, PromptQuit}
		if iv.LiveActive() {
			items = []string{PromptStopLive, PromptTranscript, PromptFinish, PromptQuit}
		}

		menu := promptui.Select{
			Label: fmt.Sprintf("Interview with %s (%s)", result.Candidate.Name, iv.Status()),
			Items: items,
		}

		_, action, err := menu.Run()
		if err != nil {
			if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
				action = PromptQuit
			} else {
				return err
			}
		}

		if err := handleAction(ctx, cmd, action, iv, log); err != nil {
			return err
		}
	}
}

func handleAction(ctx context.Context, cmd *cobra.Command, action string, iv *interview.Interview, log *zap.Logger) error {
	switch action {
	case PromptStartLive:
		if err := iv.StartLive(ctx); err != nil {
			if errors.Is(err, audio.ErrPermissionDenied) {
				log.Error("microphone access was denied", zap.Error(err),
					zap.String("hint", "allow microphone access for ffmpeg or set audio.input-device"))
				return nil
			}
			log.Error("starting live session", zap.Error(err))
			return nil
		}
		log.Info("live session started, speak to answer")
		return nil
	case PromptStopLive:
		return stopLive(ctx, iv)
	case PromptTranscript:
		printTranscript(cmd.OutOrStdout(), iv.History())
		return nil
	case PromptFinish:
		stopCtx, cancel := context.WithTimeout(ctx, stopTimeout)
		defer cancel()

		report, err := iv.Finish(stopCtx)
		if err != nil {
			log.Error("evaluation failed, it can be retried", zap.Error(err))
			return nil
		}
		if err := printJSON(cmd, report); err != nil {
			return err
		}
		log.Info("interview completed", zap.String("recommendation", string(report.Recommendation)))
		return errExit
	case PromptQuit:
		if err := stopLive(ctx, iv); err != nil {
			log.Warn("stopping live session", zap.Error(err))
		}
		log.Info("exiting", zap.String("reason", "quit requested"))
		return errExit
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

func stopLive(ctx context.Context, iv *interview.Interview) error {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	return iv.StopLive(stopCtx)
}

// newPlayback builds the response audio pipeline selected by audio.playback.
func newPlayback(cfg *AudioConfig, log *zap.Logger, m *metrics.Metrics) (*audio.Scheduler, func(), error) {
	var (
		sink    io.Writer = io.Discard
		closeFn           = func() {}
	)

	switch strings.ToLower(strings.TrimSpace(cfg.Playback)) {
	case "", "ffplay":
		player, err := audio.NewFFplaySink(audio.PlaybackSampleRate)
		if err != nil {
			return nil, nil, err
		}
		sink = player
		closeFn = func() { _ = player.Close() }
	case "none":
		log.Warn("response audio playback is disabled")
	default:
		return nil, nil, fmt.Errorf("unsupported audio.playback: %s", cfg.Playback)
	}

	output := audio.NewStreamOutput(sink, nil, log)
	return audio.NewScheduler(output, audio.SchedulerConfig{}, log, m), closeFn, nil
}

func metricsMux(m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}

func printTranscript(out io.Writer, history []ai.Message) {
	for _, msg := range history {
		fmt.Fprintf(out, "[%s] %s: %s\n", msg.Timestamp.Format(time.TimeOnly), strings.ToUpper(string(msg.Role)), msg.Content)
	}
}

// consoleObserver prints committed turns. Partial text goes to the debug log
// so it does not fight with the menu for the terminal.
type consoleObserver struct {
	out    io.Writer
	logger *zap.Logger
}

func (o *consoleObserver) LiveText(role ai.Role, text string) {
	o.logger.Debug("live transcript", zap.String("role", string(role)), zap.String("text", text))
}

func (o *consoleObserver) TurnCommitted(msg ai.Message) {
	fmt.Fprintf(o.out, "%s: %s\n", strings.ToUpper(string(msg.Role)), msg.Content)
}
