// Package comparator checks produced output against the expected answer
// line by line, ignoring trailing whitespace.
package comparator

import (
	"os"
	"strings"

	appErr "hsoj/pkg/errors"

	"github.com/pmezard/go-difflib/difflib"
)

const trailingSpace = " \t\r\f\v"

// Change is one differing region between the answer and the output.
// Lines are zero-based and half-open.
type Change struct {
	AnswerFrom, AnswerTo int
	OutputFrom, OutputTo int
	Answer               []string
	Output               []string
}

// Diff returns the regions where the trimmed lines of answer and output differ.
func Diff(answer, output string) []Change {
	a := trimmedLines(answer)
	b := trimmedLines(output)
	var changes []Change
	for _, op := range difflib.NewMatcher(a, b).GetOpCodes() {
		if op.Tag == 'e' {
			continue
		}
		changes = append(changes, Change{
			AnswerFrom: op.I1, AnswerTo: op.I2,
			OutputFrom: op.J1, OutputTo: op.J2,
			Answer: a[op.I1:op.I2],
			Output: b[op.J1:op.J2],
		})
	}
	return changes
}

// Equal reports whether answer and output match after trimming.
func Equal(answer, output string) bool {
	a := trimmedLines(answer)
	b := trimmedLines(output)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// CompareFiles reads both files and returns the differing regions.
func CompareFiles(answerPath, outputPath string) ([]Change, error) {
	answer, err := os.ReadFile(answerPath)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.ComparisonFailed, "read answer file failed: %v", err)
	}
	output, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.ComparisonFailed, "read output file failed: %v", err)
	}
	return Diff(string(answer), string(output)), nil
}

func trimmedLines(text string) []string {
	text = strings.TrimRight(text, trailingSpace+"\n")
	if text == "" {
		return []string{}
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, trailingSpace)
	}
	return lines
}
