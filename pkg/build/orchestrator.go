// Package build implements the BuildOrchestrator: a staged, cancellable build
// pipeline (install -> lint -> test -> build -> push) with per-stage timeouts,
// a per-build working directory, and incremental-rebuild scope detection.
package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	internalerrors "github.com/broadcomms/chronosops/internal/errors"
	"github.com/broadcomms/chronosops/internal/logging"
	"github.com/broadcomms/chronosops/pkg/contracts"
)

// StepResult is the outcome of one pipeline stage.
type StepResult struct {
	Stage      contracts.BuildStage
	Success    bool
	DurationMs int64
	Output     string
	Error      string
}

// TestSummary is the parsed outcome of a test stage's output.
type TestSummary struct {
	Passed  int
	Failed  int
	Total   int
	Success bool
}

// ImageResult is the outcome of a push stage.
type ImageResult struct {
	Name   string
	Tag    string
	Digest string
}

// Result is what a Build or IncrementalRebuild call returns to its caller.
type Result struct {
	Success          bool
	Stage            contracts.BuildStage
	ImageName        string
	ImageTag         string
	Logs             []string
	TestResults      *TestSummary
	ProcessingTimeMs int64
	Error            string
}

// Runner executes one pipeline stage against a build's working directory. A
// production Runner shells out to the appropriate toolchain command; tests
// supply a stub. filter scopes a reduced, incremental test run (empty runs
// everything).
type Runner interface {
	Install(ctx context.Context, bc *contracts.BuildContext) (StepResult, error)
	Lint(ctx context.Context, bc *contracts.BuildContext) (StepResult, error)
	Test(ctx context.Context, bc *contracts.BuildContext, filter string) (StepResult, error)
	Build(ctx context.Context, bc *contracts.BuildContext) (StepResult, error)
	Push(ctx context.Context, bc *contracts.BuildContext, imageRef string) (StepResult, ImageResult, error)
}

// StageTimeouts bounds each stage's runtime independently.
type StageTimeouts struct {
	Installing time.Duration
	Linting    time.Duration
	Testing    time.Duration
	Building   time.Duration
	Pushing    time.Duration
}

func (t StageTimeouts) forStage(s contracts.BuildStage) time.Duration {
	switch s {
	case contracts.StageInstalling:
		return t.Installing
	case contracts.StageLinting:
		return t.Linting
	case contracts.StageTesting:
		return t.Testing
	case contracts.StageBuilding:
		return t.Building
	case contracts.StagePushing:
		return t.Pushing
	default:
		return 0
	}
}

// DefaultStageTimeouts returns the default per-stage budgets.
func DefaultStageTimeouts() StageTimeouts {
	return StageTimeouts{
		Installing: 5 * time.Minute,
		Linting:    2 * time.Minute,
		Testing:    5 * time.Minute,
		Building:   10 * time.Minute,
		Pushing:    3 * time.Minute,
	}
}

// Config bundles the orchestrator's tunables.
type Config struct {
	// WorkDir is the root directory under which each build gets its own
	// unique {appName}-{shortId} subdirectory.
	WorkDir          string
	SkipLint         bool
	SkipTests        bool
	SkipPush         bool
	RequiredCoverage float64
	Registry         string
	BaseImage        string
	StageTimeouts    StageTimeouts
}

// DefaultConfig returns reasonable defaults for production use.
func DefaultConfig() Config {
	return Config{
		WorkDir:       os.TempDir(),
		StageTimeouts: DefaultStageTimeouts(),
		SkipPush:      true,
	}
}

// Scope names which rebuild strategy an incremental build should use.
type Scope string

const (
	ScopeFull     Scope = "full"
	ScopeBackend  Scope = "backend"
	ScopeFrontend Scope = "frontend"
	ScopeConfig   Scope = "config"
)

// IncrementalOpts customizes a single IncrementalRebuild call.
type IncrementalOpts struct {
	// Scope overrides DetectRebuildScope's own classification of
	// changedFiles when non-empty.
	Scope Scope
	// SkipInstallOnCodeChange, when true, lets this rebuild skip the
	// install stage when the effective scope is backend/frontend (i.e. no
	// dependency-manifest change). Full/config scope always installs.
	SkipInstallOnCodeChange bool
}

// Event is one notification the orchestrator emits while driving a build:
// "stageChange" when bc.Stage advances, "log" for each appended log line,
// "complete" on pipeline success, "error" on pipeline failure.
type Event struct {
	Kind    string
	BuildID string
	AppName string
	Stage   contracts.BuildStage
	Message string
}

// Listener receives build events. Implementations must not block.
type Listener func(Event)

// Orchestrator runs staged builds against a Runner.
type Orchestrator struct {
	cfg    Config
	runner Runner
	logger *logrus.Logger

	mu        sync.Mutex
	cancels   map[string]context.CancelFunc
	listeners []Listener
}

// New constructs an Orchestrator.
func New(cfg Config, runner Runner, logger *logrus.Logger) *Orchestrator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Orchestrator{cfg: cfg, runner: runner, logger: logger, cancels: map[string]context.CancelFunc{}}
}

// Subscribe registers a listener for every future build event.
func (o *Orchestrator) Subscribe(l Listener) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, l)
}

func (o *Orchestrator) emit(e Event) {
	o.mu.Lock()
	listeners := append([]Listener(nil), o.listeners...)
	o.mu.Unlock()
	for _, l := range listeners {
		l(e)
	}
}

// Build runs the full pipeline for a fresh workspace: install, optionally
// lint and test, build, and optionally push.
func (o *Orchestrator) Build(ctx context.Context, appName string, files map[string]string) (*Result, error) {
	started := time.Now().UTC()
	bc := &contracts.BuildContext{
		ID:        uuid.NewString(),
		AppName:   appName,
		Files:     files,
		Stage:     contracts.StageInstalling,
		StartedAt: started,
	}

	workDir, err := o.createWorkDir(appName)
	if err != nil {
		return o.result(bc, started, nil, nil, err), err
	}
	bc.WorkDir = workDir
	defer os.RemoveAll(workDir)

	if err := writeFiles(workDir, files); err != nil {
		err = o.fail(bc, contracts.StageInstalling, err)
		return o.result(bc, started, nil, nil, err), err
	}

	buildCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancels[bc.ID] = cancel
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.cancels, bc.ID)
		o.mu.Unlock()
		cancel()
	}()

	if err := o.runStage(buildCtx, bc, contracts.StageInstalling, func(sctx context.Context) (StepResult, error) {
		return o.runner.Install(sctx, bc)
	}); err != nil {
		return o.result(bc, started, nil, nil, err), err
	}

	if !o.cfg.SkipLint {
		if err := o.runStage(buildCtx, bc, contracts.StageLinting, func(sctx context.Context) (StepResult, error) {
			return o.runner.Lint(sctx, bc)
		}); err != nil {
			return o.result(bc, started, nil, nil, err), err
		}
	}

	var tests *TestSummary
	if !o.cfg.SkipTests {
		summary, err := o.runTestStage(buildCtx, bc, "")
		if err != nil {
			return o.result(bc, started, nil, nil, err), err
		}
		tests = summary
	}

	if err := o.runStage(buildCtx, bc, contracts.StageBuilding, func(sctx context.Context) (StepResult, error) {
		return o.runner.Build(sctx, bc)
	}); err != nil {
		return o.result(bc, started, tests, nil, err), err
	}

	var image *ImageResult
	if !o.cfg.SkipPush {
		img, err := o.runPushStage(buildCtx, bc, appName)
		if err != nil {
			return o.result(bc, started, tests, nil, err), err
		}
		image = img
	}

	bc.Stage = contracts.StageComplete
	o.log(bc, "pipeline complete")
	o.emit(Event{Kind: "complete", BuildID: bc.ID, AppName: bc.AppName, Stage: bc.Stage})
	return o.result(bc, started, tests, image, nil), nil
}

// IncrementalRebuild reruns only the stages DetectRebuildScope (or an
// explicit override in opts) identifies as necessary. Full and config scope
// delegate entirely to Build; backend and frontend scope run a reduced
// pipeline with a scope-specific test filter.
func (o *Orchestrator) IncrementalRebuild(ctx context.Context, appName string, files map[string]string, changedFiles []string, opts IncrementalOpts) (*Result, error) {
	scope := opts.Scope
	if scope == "" {
		scope = DetectRebuildScope(changedFiles)
	}

	if scope == ScopeFull || scope == ScopeConfig {
		return o.Build(ctx, appName, files)
	}

	started := time.Now().UTC()
	bc := &contracts.BuildContext{
		ID:        uuid.NewString(),
		AppName:   appName,
		Files:     files,
		Stage:     contracts.StageInstalling,
		StartedAt: started,
	}

	workDir, err := o.createWorkDir(appName)
	if err != nil {
		return o.result(bc, started, nil, nil, err), err
	}
	bc.WorkDir = workDir
	defer os.RemoveAll(workDir)

	if err := writeFiles(workDir, files); err != nil {
		err = o.fail(bc, contracts.StageInstalling, err)
		return o.result(bc, started, nil, nil, err), err
	}

	buildCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancels[bc.ID] = cancel
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.cancels, bc.ID)
		o.mu.Unlock()
		cancel()
	}()

	if !opts.SkipInstallOnCodeChange {
		if err := o.runStage(buildCtx, bc, contracts.StageInstalling, func(sctx context.Context) (StepResult, error) {
			return o.runner.Install(sctx, bc)
		}); err != nil {
			return o.result(bc, started, nil, nil, err), err
		}
	}

	if !o.cfg.SkipLint {
		if err := o.runStage(buildCtx, bc, contracts.StageLinting, func(sctx context.Context) (StepResult, error) {
			return o.runner.Lint(sctx, bc)
		}); err != nil {
			return o.result(bc, started, nil, nil, err), err
		}
	}

	var tests *TestSummary
	if !o.cfg.SkipTests {
		summary, err := o.runTestStage(buildCtx, bc, string(scope))
		if err != nil {
			return o.result(bc, started, nil, nil, err), err
		}
		tests = summary
	}

	if err := o.runStage(buildCtx, bc, contracts.StageBuilding, func(sctx context.Context) (StepResult, error) {
		return o.runner.Build(sctx, bc)
	}); err != nil {
		return o.result(bc, started, tests, nil, err), err
	}

	bc.Stage = contracts.StageComplete
	o.log(bc, "incremental pipeline complete")
	o.emit(Event{Kind: "complete", BuildID: bc.ID, AppName: bc.AppName, Stage: bc.Stage})
	return o.result(bc, started, tests, nil, nil), nil
}

func (o *Orchestrator) runTestStage(ctx context.Context, bc *contracts.BuildContext, filter string) (*TestSummary, error) {
	var stepResult StepResult
	err := o.runStage(ctx, bc, contracts.StageTesting, func(sctx context.Context) (StepResult, error) {
		res, err := o.runner.Test(sctx, bc, filter)
		stepResult = res
		return res, err
	})
	if err != nil {
		return nil, err
	}
	return ParseTestOutput(stepResult.Output), nil
}

func (o *Orchestrator) runPushStage(ctx context.Context, bc *contracts.BuildContext, appName string) (*ImageResult, error) {
	imageRef := appName + ":latest"
	if o.cfg.Registry != "" {
		imageRef = o.cfg.Registry + "/" + imageRef
	}
	if _, err := name.ParseReference(imageRef); err != nil {
		err = o.fail(bc, contracts.StagePushing, internalerrors.ValidationError("imageRef", err.Error()))
		return nil, err
	}

	var image ImageResult
	err := o.runStage(ctx, bc, contracts.StagePushing, func(sctx context.Context) (StepResult, error) {
		res, img, err := o.runner.Push(sctx, bc, imageRef)
		image = img
		return res, err
	})
	if err != nil {
		return nil, err
	}
	return &image, nil
}

// Cancel stops an in-flight build by ID.
func (o *Orchestrator) Cancel(buildID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	cancel, ok := o.cancels[buildID]
	if !ok {
		return false
	}
	cancel()
	delete(o.cancels, buildID)
	return true
}

func (o *Orchestrator) runStage(ctx context.Context, bc *contracts.BuildContext, stage contracts.BuildStage, fn func(context.Context) (StepResult, error)) error {
	bc.Stage = stage
	o.emit(Event{Kind: "stageChange", BuildID: bc.ID, AppName: bc.AppName, Stage: stage})
	timeout := o.cfg.StageTimeouts.forStage(stage)
	sctx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		sctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := fn(sctx)
	o.log(bc, fmt.Sprintf("stage %s: success=%t duration_ms=%d", stage, result.Success, result.DurationMs))

	if err != nil {
		if sctx.Err() != nil {
			return o.fail(bc, stage, fmt.Errorf("stage %s timed out after %s", stage, timeout))
		}
		return o.fail(bc, stage, err)
	}
	if !result.Success {
		return o.fail(bc, stage, fmt.Errorf("stage %s failed: %s", stage, result.Error))
	}
	return nil
}

func (o *Orchestrator) fail(bc *contracts.BuildContext, stage contracts.BuildStage, err error) error {
	bc.Stage = contracts.StageFailed
	o.logger.WithFields(logging.NewFields().Component("build").Operation("runStage").
		Resource(string(stage), bc.AppName).Error(err).ToLogrus()).Error("stageFailed")
	o.emit(Event{Kind: "error", BuildID: bc.ID, AppName: bc.AppName, Stage: stage, Message: err.Error()})
	return err
}

func (o *Orchestrator) log(bc *contracts.BuildContext, line string) {
	bc.Logs = append(bc.Logs, line)
	o.emit(Event{Kind: "log", BuildID: bc.ID, AppName: bc.AppName, Stage: bc.Stage, Message: line})
}

func (o *Orchestrator) result(bc *contracts.BuildContext, started time.Time, tests *TestSummary, image *ImageResult, err error) *Result {
	r := &Result{
		Stage:            bc.Stage,
		Logs:             bc.Logs,
		TestResults:      tests,
		ProcessingTimeMs: time.Since(started).Milliseconds(),
		Success:          err == nil && bc.Stage == contracts.StageComplete,
	}
	if err != nil {
		r.Error = err.Error()
	}
	if image != nil {
		r.ImageName = image.Name
		r.ImageTag = image.Tag
	}
	return r
}

func (o *Orchestrator) createWorkDir(appName string) (string, error) {
	shortID := uuid.NewString()[:8]
	dir := filepath.Join(o.cfg.WorkDir, appName+"-"+shortID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", internalerrors.FailedTo("create build work dir", err)
	}
	return dir, nil
}

func writeFiles(dir string, files map[string]string) error {
	for relPath, content := range files {
		full := filepath.Join(dir, relPath)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return internalerrors.FailedTo("create build file directory", err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			return internalerrors.FailedTo("write build file", err)
		}
	}
	return nil
}

// configPatterns, case-insensitively matched, force a full rebuild: these
// files affect dependency resolution, tooling config, or the container
// image itself.
var configPatterns = []string{
	"package.json", "tsconfig.json", "vite.config", "vitest.config",
	"tailwind.config", "postcss.config", ".env", "dockerfile",
}

var frontendPatterns = []string{
	"/src/components/", "/src/pages/", "/src/hooks/", "/src/styles/",
	"/src/app.", "/src/main.", ".tsx", ".css", ".scss", "/public/",
}

var backendPatterns = []string{
	"/src/routes/", "/src/controllers/", "/src/services/", "/src/middleware/",
	"/src/db/", "/src/models/", "/src/api/", "/src/server.", "/src/index.",
}

// DetectRebuildScope classifies a set of changed file paths into the
// rebuild strategy IncrementalRebuild should use, applying the rules
// top-down: any config-pattern match forces full; otherwise an all-frontend
// or all-backend changed-file set narrows the scope; anything else is full.
func DetectRebuildScope(changedFiles []string) Scope {
	for _, f := range changedFiles {
		lf := strings.ToLower(f)
		for _, pat := range configPatterns {
			if strings.Contains(lf, pat) {
				return ScopeFull
			}
		}
	}
	if len(changedFiles) > 0 && allMatchAny(changedFiles, frontendPatterns) {
		return ScopeFrontend
	}
	if len(changedFiles) > 0 && allMatchAny(changedFiles, backendPatterns) {
		return ScopeBackend
	}
	return ScopeFull
}

func allMatchAny(files []string, patterns []string) bool {
	for _, f := range files {
		lf := strings.ToLower(f)
		if !strings.HasPrefix(lf, "/") {
			lf = "/" + lf
		}
		matched := false
		for _, p := range patterns {
			if strings.Contains(lf, p) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

var (
	testPassRe = regexp.MustCompile(`(?i)(\d+)\s*pass`)
	testFailRe = regexp.MustCompile(`(?i)(\d+)\s*fail`)
)

// ParseTestOutput extracts pass/fail counts from a test stage's raw output
// with case-insensitive `(\d+)\s*pass` / `(\d+)\s*fail` matching. Returns
// nil if neither matches.
func ParseTestOutput(output string) *TestSummary {
	passMatch := testPassRe.FindStringSubmatch(output)
	failMatch := testFailRe.FindStringSubmatch(output)
	if passMatch == nil && failMatch == nil {
		return nil
	}
	var passed, failed int
	if passMatch != nil {
		passed = atoiSafe(passMatch[1])
	}
	if failMatch != nil {
		failed = atoiSafe(failMatch[1])
	}
	return &TestSummary{
		Passed:  passed,
		Failed:  failed,
		Total:   passed + failed,
		Success: failed == 0,
	}
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
