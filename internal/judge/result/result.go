package result

import (
	"encoding/json"
	"strings"

	appErr "hsoj/pkg/errors"
)

// JudgeResult is the record of one executed test case.
type JudgeResult struct {
	Status   Status  `json:"status"`
	Signal   int     `json:"signal"`
	ExitCode int     `json:"exit_code"`
	RealTime float64 `json:"real_time"`
	CPUTime  float64 `json:"cpu_time"`
	Memory   float64 `json:"memory"`
}

// Outcome is the final verdict of a submission.
type Outcome struct {
	Status  Status        `json:"status"`
	Score   int           `json:"score"`
	Results []JudgeResult `json:"results"`
	Error   string        `json:"error,omitempty"`
}

// CompileFailed builds the outcome of a submission that did not compile.
func CompileFailed(message string) Outcome {
	return Outcome{Status: StatusCE, Score: 0, Results: []JudgeResult{}, Error: message}
}

// Errored builds the outcome of a run aborted by an unrecoverable error.
// Results gathered before the error are not kept.
func Errored(err error) Outcome {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Outcome{Status: StatusUE, Score: 0, Results: []JudgeResult{}, Error: msg}
}

// Completed aggregates the results of a fully executed test loop.
func Completed(results []JudgeResult) Outcome {
	if results == nil {
		results = []JudgeResult{}
	}
	status, score := Aggregate(results)
	return Outcome{Status: status, Score: score, Results: results}
}

type runnerPayload struct {
	Result   *int    `json:"result"`
	Signal   int     `json:"signal"`
	ExitCode int     `json:"exit_code"`
	RealTime float64 `json:"real_time"`
	CPUTime  float64 `json:"cpu_time"`
	Memory   float64 `json:"memory"`
}

// ParseRunnerOutput decodes the JSON document the sandbox runner prints on stdout.
// A payload without a result code maps to UE.
func ParseRunnerOutput(stdout string) (JudgeResult, error) {
	if strings.TrimSpace(stdout) == "" {
		return JudgeResult{}, appErr.New(appErr.RunnerFailed).WithMessage("judge result not found")
	}
	var payload runnerPayload
	if err := json.Unmarshal([]byte(stdout), &payload); err != nil {
		return JudgeResult{}, appErr.Wrapf(err, appErr.RunnerFailed, "parse judge result failed: %v", err)
	}
	status := StatusUE
	if payload.Result != nil {
		status = FromRunnerCode(*payload.Result)
	}
	return JudgeResult{
		Status:   status,
		Signal:   payload.Signal,
		ExitCode: payload.ExitCode,
		RealTime: payload.RealTime,
		CPUTime:  payload.CPUTime,
		Memory:   payload.Memory,
	}, nil
}
