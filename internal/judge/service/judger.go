package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"hsoj/internal/judge/comparator"
	"hsoj/internal/judge/compiler"
	"hsoj/internal/judge/executor"
	"hsoj/internal/judge/problem"
	"hsoj/internal/judge/result"
	appErr "hsoj/pkg/errors"
	"hsoj/pkg/utils/logger"

	"go.uber.org/zap"
)

// DefaultOutputLimit is substituted for ${output_limit} when the problem sets none.
const DefaultOutputLimit = 64

// Kind tags how a run ended.
type Kind int

const (
	RunCompleted Kind = iota
	RunCompileFailed
	RunErrored
)

func (k Kind) String() string {
	switch k {
	case RunCompleted:
		return "completed"
	case RunCompileFailed:
		return "compile_failed"
	case RunErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Request is one submission to judge.
type Request struct {
	SubmissionID int64
	Problem      problem.Problem
	Language     string
	Code         string
}

// RunResult is the outcome of Judger.Run. Err is set only for RunErrored.
type RunResult struct {
	Kind    Kind
	Outcome result.Outcome
	Err     error
}

// SourceCompiler compiles a submission into <name>.
type SourceCompiler interface {
	Compile(ctx context.Context, language, name, code string) (compiler.Result, error)
}

// JudgerConfig holds the orchestrator settings.
type JudgerConfig struct {
	Workspace string
	RunCmd    string
	Cleanup   bool
	// TestWorkers > 1 judges test cases concurrently.
	TestWorkers int
}

// Judger compiles a submission, runs it against every test case and
// aggregates the verdict.
type Judger struct {
	compiler  SourceCompiler
	runner    executor.Runner
	tests     TestExecutor
	workspace string
	runCmd    string
	cleanup   bool
}

// NewJudger creates a judger.
func NewJudger(cfg JudgerConfig, compilers SourceCompiler, runner executor.Runner) (*Judger, error) {
	if compilers == nil {
		return nil, fmt.Errorf("compiler registry is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if cfg.Workspace == "" {
		return nil, fmt.Errorf("workspace is required")
	}
	if strings.TrimSpace(cfg.RunCmd) == "" {
		return nil, fmt.Errorf("run command is required")
	}
	var tests TestExecutor = SequentialExecutor{}
	if cfg.TestWorkers > 1 {
		tests = PoolExecutor{Workers: cfg.TestWorkers}
	}
	return &Judger{
		compiler:  compilers,
		runner:    runner,
		tests:     tests,
		workspace: cfg.Workspace,
		runCmd:    cfg.RunCmd,
		cleanup:   cfg.Cleanup,
	}, nil
}

// WithTestExecutor replaces the test executor.
func (j *Judger) WithTestExecutor(tests TestExecutor) *Judger {
	if tests != nil {
		j.tests = tests
	}
	return j
}

// Run judges req. Cancellation of ctx does not stop a started run.
func (j *Judger) Run(ctx context.Context, req Request) RunResult {
	ctx = context.WithoutCancel(ctx)
	name := filepath.Join(j.workspace, strconv.FormatInt(req.SubmissionID, 10))
	if j.cleanup {
		defer j.removeArtifacts(ctx, name)
	}

	compiled, err := j.compiler.Compile(ctx, req.Language, name, req.Code)
	if err != nil {
		return j.errored(ctx, req, err)
	}
	if !compiled.OK {
		logger.Info(ctx, "compile failed", zap.Int64("submission_id", req.SubmissionID))
		return RunResult{Kind: RunCompileFailed, Outcome: result.CompileFailed(compiled.Message)}
	}

	cmd := expandRunCommand(j.runCmd, name, req.Problem)
	results, err := j.tests.Execute(ctx, req.Problem.Judge.TestCase, func(ctx context.Context, i int) (result.JudgeResult, error) {
		return j.singleJudge(ctx, req.Problem, cmd, name, i)
	})
	if err != nil {
		return j.errored(ctx, req, err)
	}

	outcome := result.Completed(results)
	logger.Info(ctx, "judge completed",
		zap.Int64("submission_id", req.SubmissionID),
		zap.Stringer("status", outcome.Status),
		zap.Int("score", outcome.Score),
	)
	return RunResult{Kind: RunCompleted, Outcome: outcome}
}

func (j *Judger) errored(ctx context.Context, req Request, err error) RunResult {
	logger.Error(ctx, "judge errored", zap.Int64("submission_id", req.SubmissionID), zap.Error(err))
	return RunResult{Kind: RunErrored, Outcome: result.Errored(err), Err: err}
}

func (j *Judger) singleJudge(ctx context.Context, p problem.Problem, cmd, name string, index int) (result.JudgeResult, error) {
	output := fmt.Sprintf("%s_%d.out", name, index)
	final := strings.NewReplacer(
		"${input}", p.InputPath(index),
		"${output}", output,
	).Replace(cmd)

	logger.Debug(ctx, "running test", zap.Int("test", index), zap.String("command", final))
	res := j.runner.Run(ctx, final)
	if res.ExitCode != 0 {
		return result.JudgeResult{}, appErr.New(appErr.RunnerFailed).
			WithMessagef("judger run error: %s %s", res.Stdout, res.Stderr)
	}
	judged, err := result.ParseRunnerOutput(res.Stdout)
	if err != nil {
		return result.JudgeResult{}, err
	}
	if judged.Status != result.StatusAC {
		return judged, nil
	}

	changes, err := comparator.CompareFiles(p.AnswerPath(index), output)
	if err != nil {
		return result.JudgeResult{}, err
	}
	if len(changes) > 0 {
		judged.Status = result.StatusWA
		first := changes[0]
		logger.Debug(ctx, "output differs",
			zap.Int("test", index),
			zap.Int("answer_line", first.AnswerFrom+1),
			zap.Strings("expected", first.Answer),
			zap.Strings("got", first.Output),
		)
	}
	return judged, nil
}

// expandRunCommand fills the per-submission placeholders of the run template.
// ${input} and ${output} are left for each test.
func expandRunCommand(tmpl, name string, p problem.Problem) string {
	outputLimit := p.OutputLimit
	if outputLimit <= 0 {
		outputLimit = DefaultOutputLimit
	}
	return strings.NewReplacer(
		compiler.NamePlaceholder, name,
		"${time_limit}", strconv.FormatInt(p.TimeLimit, 10),
		"${memory_limit}", strconv.FormatInt(p.MemoryLimit, 10),
		"${output_limit}", strconv.FormatInt(outputLimit, 10),
	).Replace(tmpl)
}

func (j *Judger) removeArtifacts(ctx context.Context, name string) {
	paths := []string{name}
	for _, pattern := range []string{name + ".*", name + "_*.out"} {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		paths = append(paths, matches...)
	}
	for _, path := range paths {
		if err := os.RemoveAll(path); err != nil {
			logger.Warn(ctx, "remove artifact failed", zap.String("path", path), zap.Error(err))
		}
	}
}
