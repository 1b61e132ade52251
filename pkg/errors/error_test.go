package errors_test

import (
	"fmt"
	"net/http"
	"testing"

	appErr "hsoj/pkg/errors"
)

func TestGetCodeFollowsWrappedChain(t *testing.T) {
	t.Parallel()
	base := appErr.New(appErr.RunnerFailed).WithMessage("judger run error: boom")
	wrapped := fmt.Errorf("test 3: %w", base)

	if got := appErr.GetCode(wrapped); got != appErr.RunnerFailed {
		t.Fatalf("expected RunnerFailed, got %d", got)
	}
	if !appErr.Is(wrapped, appErr.RunnerFailed) {
		t.Fatalf("expected Is to match wrapped code")
	}
	if appErr.Is(wrapped, appErr.ComparisonFailed) {
		t.Fatalf("unexpected match for ComparisonFailed")
	}
	if got := appErr.GetCode(fmt.Errorf("plain")); got != appErr.InternalServerError {
		t.Fatalf("expected InternalServerError for plain error, got %d", got)
	}
	if got := appErr.GetCode(nil); got != appErr.Success {
		t.Fatalf("expected Success for nil, got %d", got)
	}
}

func TestWrapfKeepsMessageAndCause(t *testing.T) {
	t.Parallel()
	cause := fmt.Errorf("no such file")
	err := appErr.Wrapf(cause, appErr.ComparisonFailed, "read answer failed")
	if err.Error() != "read answer failed" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
	if err.Unwrap() != cause {
		t.Fatalf("cause not preserved")
	}
	if appErr.Wrapf(nil, appErr.ComparisonFailed, "x") != nil {
		t.Fatalf("expected nil for nil cause")
	}
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()
	cases := map[appErr.ErrorCode]int{
		appErr.Success:              http.StatusOK,
		appErr.ProblemNotFound:      http.StatusNotFound,
		appErr.SubmissionNotFound:   http.StatusNotFound,
		appErr.LanguageNotSupported: http.StatusBadRequest,
		appErr.ValidationFailed:     http.StatusBadRequest,
		appErr.JudgeQueueFull:       http.StatusTooManyRequests,
		appErr.JudgeSystemError:     http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := code.HTTPStatus(); got != want {
			t.Fatalf("code %d: expected %d, got %d", code, want, got)
		}
	}
}
