package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	_ "embed"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/hireguard/internal/ai"
	"github.com/spigell/hireguard/internal/metrics"
	"github.com/spigell/hireguard/internal/utils"
)

const (
	defaultMaxLogLength = 200

	operationScan   = "fast_scan"
	operationPlan   = "interview_plan"
	operationReport = "final_report"

	maxScore = 10
)

//go:embed scan_prompt.md
var scanPromptTemplate string

//go:embed plan_prompt.md
var planPromptTemplate string

//go:embed report_prompt.md
var reportPromptTemplate string

const (
	scanSystemInstruction   = "You extract structured candidate and job profiles for a technical hiring team. Respond with JSON only."
	planSystemInstruction   = "You are the planning lead of a technical hiring team. Respond with JSON only."
	reportSystemInstruction = "You are a senior technical hiring evaluator. Judge only what the transcript shows. Respond with JSON only."
)

type jsonGenerator interface {
	GenerateJSON(ctx context.Context, system, message string, schema *genai.Schema) (string, error)
	Model() string
}

// Analyst implements ai.Analyzer on top of two Gemini generators: a fast one
// for profile extraction and a stronger one for the final evaluation.
type Analyst struct {
	scan      jsonGenerator
	report    jsonGenerator
	logger    *zap.Logger
	metrics   *metrics.Metrics
	maxLogLen int
}

var _ ai.Analyzer = (*Analyst)(nil)

// NewAnalyst creates an Analyst. report may be the same generator as scan.
func NewAnalyst(scan, report jsonGenerator, logger *zap.Logger, m *metrics.Metrics, maxLogLength int) *Analyst {
	if report == nil {
		report = scan
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}

	return &Analyst{
		scan:      scan,
		report:    report,
		logger:    logger,
		metrics:   m,
		maxLogLen: maxLogLength,
	}
}

// FastScan extracts candidate and job profiles in a single call. The profiles
// are returned exactly as the model produced them.
func (a *Analyst) FastScan(ctx context.Context, req ai.ScanRequest) (result *ai.ScanResult, err error) {
	started := time.Now()
	defer func() { a.metrics.ObserveModelCall(operationScan, started, err) }()

	if strings.TrimSpace(req.ResumeText) == "" {
		return nil, fmt.Errorf("%w: resume text is required", ai.ErrExtractionFailure)
	}
	if strings.TrimSpace(req.JobDescription) == "" {
		return nil, fmt.Errorf("%w: job description is required", ai.ErrExtractionFailure)
	}

	prompt := strings.NewReplacer(
		"{{RESUME}}", req.ResumeText,
		"{{JOB_DESCRIPTION}}", req.JobDescription,
	).Replace(scanPromptTemplate)

	raw, err := a.call(ctx, a.scan, operationScan, scanSystemInstruction, prompt, scanSchema())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ai.ErrExtractionFailure, err)
	}

	result, err = parseScan(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ai.ErrExtractionFailure, err)
	}

	a.logger.Info("profiles extracted",
		zap.String("candidate", result.Candidate.Name),
		zap.String("role", result.Job.Role),
		zap.Int("skills", len(result.Candidate.Skills)),
		zap.Int("requirements", len(result.Job.Requirements)),
	)

	return result, nil
}

// PlanInterview compares the profiles and picks the skill gaps the live
// interviewer should focus on. It runs on the scan generator.
func (a *Analyst) PlanInterview(ctx context.Context, req ai.PlanRequest) (plan *ai.InterviewPlan, err error) {
	started := time.Now()
	defer func() { a.metrics.ObserveModelCall(operationPlan, started, err) }()

	prompt := strings.NewReplacer(
		"{{CANDIDATE}}", req.Candidate.Name,
		"{{EXPERIENCE}}", req.Candidate.Experience,
		"{{SKILLS}}", strings.Join(req.Candidate.Skills, ", "),
		"{{SUMMARY}}", req.Candidate.Summary,
		"{{ROLE}}", req.Job.Role,
		"{{SENIORITY}}", req.Job.Seniority,
		"{{REQUIREMENTS}}", strings.Join(req.Job.Requirements, ", "),
	).Replace(planPromptTemplate)

	raw, err := a.call(ctx, a.scan, operationPlan, planSystemInstruction, prompt, planSchema())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ai.ErrPlanningFailure, err)
	}

	plan, err = parsePlan(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ai.ErrPlanningFailure, err)
	}

	a.logger.Info("interview planned",
		zap.String("difficulty", plan.Difficulty),
		zap.Strings("focus_areas", plan.FocusAreas),
	)

	return plan, nil
}

// GenerateFinalReport scores the interview transcript.
func (a *Analyst) GenerateFinalReport(ctx context.Context, req ai.ReportRequest) (report *ai.EvaluationReport, err error) {
	started := time.Now()
	defer func() { a.metrics.ObserveModelCall(operationReport, started, err) }()

	prompt := strings.NewReplacer(
		"{{ROLE}}", req.Job.Role,
		"{{CANDIDATE}}", req.Candidate.Name,
		"{{SENIORITY}}", req.Job.Seniority,
		"{{REQUIREMENTS}}", strings.Join(req.Job.Requirements, ", "),
		"{{TRANSCRIPT}}", RenderTranscript(req.Transcript),
	).Replace(reportPromptTemplate)

	raw, err := a.call(ctx, a.report, operationReport, reportSystemInstruction, prompt, reportSchema())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ai.ErrEvaluationFailure, err)
	}

	report, err = parseReport(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ai.ErrEvaluationFailure, err)
	}

	a.logger.Info("evaluation report generated",
		zap.String("candidate", req.Candidate.Name),
		zap.String("recommendation", string(report.Recommendation)),
	)

	return report, nil
}

func (a *Analyst) call(ctx context.Context, gen jsonGenerator, operation, system, prompt string, schema *genai.Schema) (string, error) {
	if gen == nil {
		return "", errors.New("generator is not configured")
	}

	a.logger.Debug("gemini generate content request",
		zap.String("operation", operation),
		zap.String("ai_model", gen.Model()),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, a.maxLogLen)),
	)

	raw, err := gen.GenerateJSON(ctx, system, prompt, schema)
	if err != nil {
		return "", err
	}

	a.logger.Debug("gemini generate content response",
		zap.String("operation", operation),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, a.maxLogLen)),
	)

	return raw, nil
}

// RenderTranscript formats history as "ROLE: content" lines.
func RenderTranscript(history []ai.Message) string {
	lines := make([]string, 0, len(history))
	for _, m := range history {
		lines = append(lines, fmt.Sprintf("%s: %s", strings.ToUpper(string(m.Role)), m.Content))
	}
	return strings.Join(lines, "\n")
}

func parseScan(raw string) (*ai.ScanResult, error) {
	data, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}

	for _, key := range []string{"candidate", "job"} {
		if _, ok := data[key].(map[string]any); !ok {
			return nil, fmt.Errorf("response is missing %q object", key)
		}
	}

	var result ai.ScanResult
	if err := decodeInto(data, &result); err != nil {
		return nil, err
	}

	if strings.TrimSpace(result.Candidate.Name) == "" {
		return nil, errors.New("response is missing candidate name")
	}
	if strings.TrimSpace(result.Job.Role) == "" {
		return nil, errors.New("response is missing job role")
	}

	return &result, nil
}

func parsePlan(raw string) (*ai.InterviewPlan, error) {
	data, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}

	var plan ai.InterviewPlan
	if err := decodeInto(data, &plan); err != nil {
		return nil, err
	}

	if strings.TrimSpace(plan.Strategy) == "" {
		return nil, errors.New("response is missing strategy")
	}
	focus := plan.FocusAreas[:0]
	for _, area := range plan.FocusAreas {
		if strings.TrimSpace(area) != "" {
			focus = append(focus, area)
		}
	}
	if len(focus) == 0 {
		return nil, errors.New("response has no focus areas")
	}
	plan.FocusAreas = focus

	return &plan, nil
}

func parseReport(raw string) (*ai.EvaluationReport, error) {
	data, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}

	scores, ok := data["scores"].(map[string]any)
	if !ok {
		return nil, errors.New(`response is missing "scores" object`)
	}
	for _, key := range []string{"technical", "communication", "problemSolving", "confidence"} {
		if _, ok := scores[key]; !ok {
			return nil, fmt.Errorf("response is missing score %q", key)
		}
	}

	var report ai.EvaluationReport
	if err := decodeInto(data, &report); err != nil {
		return nil, err
	}

	for name, value := range map[string]float64{
		"technical":      report.Scores.Technical,
		"communication":  report.Scores.Communication,
		"problemSolving": report.Scores.ProblemSolving,
		"confidence":     report.Scores.Confidence,
	} {
		if value < 0 || value > maxScore {
			return nil, fmt.Errorf("score %q is out of range: %v", name, value)
		}
	}

	if !report.Recommendation.Valid() {
		return nil, fmt.Errorf("unknown recommendation %q", report.Recommendation)
	}

	return &report, nil
}

func decodeObject(raw string) (map[string]any, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("parse gemini response: %w", err)
	}
	if data == nil {
		return nil, errors.New("gemini response is not an object")
	}
	return data, nil
}

// decodeInto maps the loosely typed model output onto out, accepting numbers
// sent as strings and single values where lists are expected.
func decodeInto(data map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("create decoder: %w", err)
	}
	if err := decoder.Decode(data); err != nil {
		return fmt.Errorf("decode gemini response: %w", err)
	}
	return nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

func scanSchema() *genai.Schema {
	stringList := &genai.Schema{Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"candidate": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"name":       {Type: genai.TypeString},
					"skills":     stringList,
					"experience": {Type: genai.TypeString},
					"summary":    {Type: genai.TypeString},
				},
				Required: []string{"name", "skills", "experience", "summary"},
			},
			"job": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"role":         {Type: genai.TypeString},
					"requirements": stringList,
					"seniority":    {Type: genai.TypeString},
				},
				Required: []string{"role", "requirements", "seniority"},
			},
		},
		Required: []string{"candidate", "job"},
	}
}

func planSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"strategy":    {Type: genai.TypeString},
			"focus_areas": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			"difficulty":  {Type: genai.TypeString},
		},
		Required: []string{"strategy", "focus_areas", "difficulty"},
	}
}

func reportSchema() *genai.Schema {
	score := func() *genai.Schema {
		lo, hi := 0.0, float64(maxScore)
		return &genai.Schema{Type: genai.TypeNumber, Minimum: &lo, Maximum: &hi}
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"scores": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"technical":      score(),
					"communication":  score(),
					"problemSolving": score(),
					"confidence":     score(),
				},
				Required: []string{"technical", "communication", "problemSolving", "confidence"},
			},
			"feedback": {Type: genai.TypeString},
			"recommendation": {
				Type: genai.TypeString,
				Enum: []string{
					string(ai.RecommendationHire),
					string(ai.RecommendationConsider),
					string(ai.RecommendationReject),
				},
			},
		},
		Required: []string{"scores", "feedback", "recommendation"},
	}
}
