// Package result defines judge statuses, per-test results and verdict aggregation.
package result

import "strconv"

// Status is a judge verdict. Larger values are more severe.
type Status int

const (
	StatusAC Status = 0
	StatusWA Status = 1
	// time limit exceeded
	StatusTLE Status = 2
	StatusMLE Status = 3
	StatusOLE Status = 4
	StatusRE  Status = 5
	StatusCE  Status = 6
	// the sandbox itself failed
	StatusJE Status = 7
	StatusUE Status = 8

	// StatusPending marks a stored submission that has not been judged yet.
	// The engine never produces it.
	StatusPending Status = 233
)

var statusNames = map[Status]string{
	StatusAC:      "AC",
	StatusWA:      "WA",
	StatusTLE:     "TLE",
	StatusMLE:     "MLE",
	StatusOLE:     "OLE",
	StatusRE:      "RE",
	StatusCE:      "CE",
	StatusJE:      "JE",
	StatusUE:      "UE",
	StatusPending: "Pending",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "Status(" + strconv.Itoa(int(s)) + ")"
}

// Valid reports whether s is one of the engine's verdicts (AC..UE).
func (s Status) Valid() bool {
	return s >= StatusAC && s <= StatusUE
}

// Worse returns the more severe of a and b.
func Worse(a, b Status) Status {
	if b > a {
		return b
	}
	return a
}

// FromRunnerCode maps the sandbox runner's numeric result code to a Status.
// Signal violations, forbidden syscalls and bad exit codes all collapse to RE.
func FromRunnerCode(code int) Status {
	switch code {
	case 0:
		return StatusAC
	case 1:
		return StatusRE
	case 2:
		return StatusMLE
	case 3:
		return StatusTLE
	case 4:
		return StatusOLE
	case 5:
		return StatusJE
	case 6:
		return StatusRE
	case 7:
		return StatusRE
	default:
		return StatusUE
	}
}
