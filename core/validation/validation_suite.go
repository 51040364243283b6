// Package validation runs the preflight checks behind `batchgen check`:
// settings, credentials, prompt ledger, output directory, disk space and
// endpoint reachability.
package validation

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go_batchgen/core"
	"go_batchgen/ledger"

	"github.com/fatih/color"
)

// ValidationStep represents a single validation step with its status.
type ValidationStep struct {
	Name    string
	Status  StepStatus
	Message string
	Error   error
	Latency time.Duration
}

// StepStatus represents the status of a validation step.
type StepStatus int

const (
	StepPending StepStatus = iota
	StepRunning
	StepPassed
	StepFailed
	StepWarning
	StepSkipped
)

// String returns the string representation of a step status.
func (s StepStatus) String() string {
	switch s {
	case StepPending:
		return "pending"
	case StepRunning:
		return "running"
	case StepPassed:
		return "passed"
	case StepFailed:
		return "failed"
	case StepWarning:
		return "warning"
	case StepSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// SuiteResult represents the complete result of validation suite execution.
type SuiteResult struct {
	Steps       []ValidationStep
	TotalSteps  int
	PassedSteps int
	FailedSteps int
	Warnings    int
	Duration    time.Duration
	Success     bool
}

// Target names everything a batch run will touch.
type Target struct {
	SettingsPath string
	TokenCount   int
	PromptsFile  string
	OutputDir    string

	// Endpoint is probed for reachability; empty skips the probe.
	Endpoint string

	// MinFreeBytes defaults to DefaultMinFreeBytes when zero.
	MinFreeBytes int64
}

// ValidationSuite is an organism composing the file, disk space and
// connectivity molecules into one preflight report with progress output.
type ValidationSuite struct {
	output       io.Writer
	connectivity *ConnectivityChecker
	showProgress bool
	failFast     bool
}

// NewValidationSuite creates a suite writing to stdout.
func NewValidationSuite() *ValidationSuite {
	return &ValidationSuite{
		output:       os.Stdout,
		connectivity: NewConnectivityChecker(nil),
		showProgress: true,
	}
}

// WithOutput sets the output writer for progress messages.
func (s *ValidationSuite) WithOutput(w io.Writer) *ValidationSuite {
	s.output = w
	return s
}

// WithConnectivityChecker replaces the endpoint prober.
func (s *ValidationSuite) WithConnectivityChecker(c *ConnectivityChecker) *ValidationSuite {
	s.connectivity = c
	return s
}

// WithShowProgress enables or disables progress output.
func (s *ValidationSuite) WithShowProgress(show bool) *ValidationSuite {
	s.showProgress = show
	return s
}

// WithFailFast stops validation on first failure if enabled.
func (s *ValidationSuite) WithFailFast(failFast bool) *ValidationSuite {
	s.failFast = failFast
	return s
}

type check struct {
	name string
	fn   func() (StepStatus, string, error)
}

// Validate runs every check in order. The endpoint probe is skipped when an
// earlier check failed.
func (s *ValidationSuite) Validate(ctx context.Context, target Target) SuiteResult {
	startTime := time.Now()

	if s.showProgress {
		s.printHeader("Batch Preflight")
	}

	checks := []check{
		{"Settings File", func() (StepStatus, string, error) { return checkSettings(target) }},
		{"Credential Tokens", func() (StepStatus, string, error) { return checkTokens(target) }},
		{"Prompts File", func() (StepStatus, string, error) { return checkPrompts(target) }},
		{"Output Directory", func() (StepStatus, string, error) { return checkOutputDir(target) }},
		{"Disk Space", func() (StepStatus, string, error) { return checkDisk(target) }},
	}

	steps := make([]ValidationStep, 0, len(checks)+1)
	for _, c := range checks {
		step := s.runStep(c.name, c.fn)
		steps = append(steps, step)
		if s.failFast && step.Status == StepFailed {
			return s.finish(steps, startTime)
		}
	}

	switch {
	case target.Endpoint == "":
		steps = append(steps, s.skipStep("Endpoint Connectivity", "Skipped (offline)"))
	case !hasAllPassed(steps):
		steps = append(steps, s.skipStep("Endpoint Connectivity", "Skipped due to earlier failures"))
	default:
		steps = append(steps, s.runStep("Endpoint Connectivity", func() (StepStatus, string, error) {
			result := s.connectivity.CheckEndpoint(ctx, target.Endpoint)
			msg := result.Message
			if result.Latency > 0 {
				msg = fmt.Sprintf("%s (latency: %v)", msg, result.Latency.Round(time.Millisecond))
			}
			if !result.Reachable {
				return StepFailed, msg, result.Error
			}
			return StepPassed, msg, nil
		}))
	}

	return s.finish(steps, startTime)
}

func checkSettings(t Target) (StepStatus, string, error) {
	if err := CheckFileExists(t.SettingsPath); err != nil {
		// tokens can still be added with `batchgen tokens add`
		return StepWarning, err.Error(), nil
	}
	return StepPassed, t.SettingsPath, nil
}

func checkTokens(t Target) (StepStatus, string, error) {
	if t.TokenCount == 0 {
		return StepFailed, "no tokens configured", core.ErrNoTokens(t.SettingsPath)
	}
	return StepPassed, fmt.Sprintf("%d token(s)", t.TokenCount), nil
}

func checkPrompts(t Target) (StepStatus, string, error) {
	if err := CheckFileExists(t.PromptsFile); err != nil {
		return StepFailed, "unreadable", core.ErrLedgerUnreadable(t.PromptsFile, err)
	}
	n, err := ledger.New(t.PromptsFile).Count()
	if err != nil {
		return StepFailed, "unreadable", core.ErrLedgerUnreadable(t.PromptsFile, err)
	}
	if n == 0 {
		return StepFailed, "no pending prompts", core.ErrNoPrompts(t.PromptsFile)
	}
	return StepPassed, fmt.Sprintf("%d pending prompt(s)", n), nil
}

func checkOutputDir(t Target) (StepStatus, string, error) {
	if err := CheckDirWritable(t.OutputDir); err != nil {
		return StepFailed, "not writable", err
	}
	return StepPassed, t.OutputDir, nil
}

func checkDisk(t Target) (StepStatus, string, error) {
	required := t.MinFreeBytes
	if required <= 0 {
		required = DefaultMinFreeBytes
	}
	info, err := CheckDiskSpace(t.OutputDir, required)
	if err != nil {
		if _, ok := err.(*DiskSpaceError); ok {
			return StepWarning, err.Error(), nil
		}
		return StepFailed, "cannot stat filesystem", err
	}
	return StepPassed, fmt.Sprintf("%s free", info.FreeFormatted()), nil
}

// runStep executes a validation step with timing and progress output.
func (s *ValidationSuite) runStep(name string, fn func() (StepStatus, string, error)) ValidationStep {
	if s.showProgress {
		s.printStepStart(name)
	}

	startTime := time.Now()
	status, message, err := fn()
	step := ValidationStep{
		Name:    name,
		Status:  status,
		Message: message,
		Error:   err,
		Latency: time.Since(startTime),
	}

	if s.showProgress {
		s.printStep(step)
	}
	return step
}

func (s *ValidationSuite) skipStep(name, message string) ValidationStep {
	step := ValidationStep{Name: name, Status: StepSkipped, Message: message}
	if s.showProgress {
		s.printStep(step)
	}
	return step
}

func (s *ValidationSuite) finish(steps []ValidationStep, startTime time.Time) SuiteResult {
	result := buildResult(steps, startTime)
	if s.showProgress {
		s.printSummary(result)
	}
	return result
}

func hasAllPassed(steps []ValidationStep) bool {
	for _, step := range steps {
		if step.Status == StepFailed {
			return false
		}
	}
	return true
}

func buildResult(steps []ValidationStep, startTime time.Time) SuiteResult {
	result := SuiteResult{
		Steps:      steps,
		TotalSteps: len(steps),
		Duration:   time.Since(startTime),
		Success:    true,
	}

	for _, step := range steps {
		switch step.Status {
		case StepPassed:
			result.PassedSteps++
		case StepFailed:
			result.FailedSteps++
			result.Success = false
		case StepWarning:
			result.Warnings++
		}
	}
	return result
}

func (s *ValidationSuite) printHeader(title string) {
	fmt.Fprintln(s.output)
	color.New(color.FgCyan, color.Bold).Fprintf(s.output, "━━━ %s ━━━\n", title)
	fmt.Fprintln(s.output)
}

// printStepStart prints the step name before execution (for real-time feedback).
func (s *ValidationSuite) printStepStart(name string) {
	fmt.Fprintf(s.output, "  ◌ %s...", name)
}

func (s *ValidationSuite) printStep(step ValidationStep) {
	var icon string
	var clr *color.Color

	switch step.Status {
	case StepPassed:
		icon = "✓"
		clr = color.New(color.FgGreen)
	case StepFailed:
		icon = "✗"
		clr = color.New(color.FgRed)
	case StepWarning:
		icon = "!"
		clr = color.New(color.FgYellow)
	case StepSkipped:
		icon = "○"
		clr = color.New(color.FgHiBlack)
	default:
		icon = "?"
		clr = color.New(color.FgWhite)
	}

	// overwrite the "running" line
	fmt.Fprintf(s.output, "\r")
	clr.Fprintf(s.output, "  %s %s", icon, step.Name)

	if step.Message != "" {
		color.New(color.FgHiBlack).Fprintf(s.output, " - %s", step.Message)
	}
	fmt.Fprintln(s.output)

	if step.Status == StepFailed && step.Error != nil {
		color.New(color.FgRed).Fprintf(s.output, "    └─ %s\n", step.Error.Error())
	}
}

func (s *ValidationSuite) printSummary(result SuiteResult) {
	fmt.Fprintln(s.output)

	if result.Success {
		successColor := color.New(color.FgGreen, color.Bold)
		successColor.Fprintf(s.output, "━━━ Preflight Passed ")
		color.New(color.FgHiBlack).Fprintf(s.output, "(%d/%d checks passed in %v)",
			result.PassedSteps, result.TotalSteps, result.Duration.Round(time.Millisecond))
		successColor.Fprintln(s.output, " ━━━")
	} else {
		failColor := color.New(color.FgRed, color.Bold)
		failColor.Fprintf(s.output, "━━━ Preflight Failed ")
		color.New(color.FgHiBlack).Fprintf(s.output, "(%d passed, %d failed)",
			result.PassedSteps, result.FailedSteps)
		failColor.Fprintln(s.output, " ━━━")
	}

	fmt.Fprintln(s.output)
}

// GetFirstError returns the first error from failed steps, or nil if all passed.
func (r SuiteResult) GetFirstError() error {
	for _, step := range r.Steps {
		if step.Error != nil {
			return step.Error
		}
	}
	return nil
}

// Summary returns a human-readable summary string.
func (r SuiteResult) Summary() string {
	var sb strings.Builder
	verdict := "Passed"
	if !r.Success {
		verdict = "Failed"
	}
	fmt.Fprintf(&sb, "Preflight %s: %d/%d checks passed", verdict, r.PassedSteps, r.TotalSteps)
	if r.FailedSteps > 0 {
		fmt.Fprintf(&sb, ", %d failed", r.FailedSteps)
	}
	if r.Warnings > 0 {
		fmt.Fprintf(&sb, ", %d warnings", r.Warnings)
	}
	fmt.Fprintf(&sb, " (took %v)", r.Duration.Round(time.Millisecond))
	return sb.String()
}
