package problem

import (
	"fmt"
	"path/filepath"

	appErr "hsoj/pkg/errors"
)

// InfoFileName is the metadata file every problem directory carries.
const InfoFileName = "info.json"

// Problem is the judge-facing view of a problem directory.
type Problem struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Permission  int       `json:"permission,omitempty"`
	Difficulty  int       `json:"difficulty,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	TimeLimit   int64     `json:"time_limit"`             // milliseconds
	MemoryLimit int64     `json:"memory_limit"`           // megabytes
	OutputLimit int64     `json:"output_limit,omitempty"` // megabytes, 0 means runner default
	Judge       JudgeSpec `json:"judge"`

	// Dir is the directory holding the test files. Filled by the catalog.
	Dir string `json:"-"`
}

// JudgeSpec describes the test battery.
type JudgeSpec struct {
	Type     string `json:"type"`
	TestCase int    `json:"testcase"`
	Prefix   string `json:"prefix"`
}

// InputPath returns <dir>/<prefix><i>.in.
func (p Problem) InputPath(i int) string {
	return filepath.Join(p.Dir, fmt.Sprintf("%s%d.in", p.Judge.Prefix, i))
}

// AnswerPath returns <dir>/<prefix><i>.ans.
func (p Problem) AnswerPath(i int) string {
	return filepath.Join(p.Dir, fmt.Sprintf("%s%d.ans", p.Judge.Prefix, i))
}

// Validate checks the fields the judge depends on.
func (p Problem) Validate() error {
	switch {
	case p.Judge.TestCase < 0:
		return appErr.Newf(appErr.ProblemInvalid, "problem %d: negative testcase count", p.ID)
	case p.TimeLimit <= 0:
		return appErr.Newf(appErr.ProblemInvalid, "problem %d: time_limit must be positive", p.ID)
	case p.MemoryLimit <= 0:
		return appErr.Newf(appErr.ProblemInvalid, "problem %d: memory_limit must be positive", p.ID)
	case p.OutputLimit < 0:
		return appErr.Newf(appErr.ProblemInvalid, "problem %d: output_limit must not be negative", p.ID)
	}
	return nil
}
