package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 12000-12999: Problem catalog errors
// 13000-13999: Submission & Judge errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Database errors (10100-10199)
	DatabaseError     ErrorCode = 10100
	RecordNotFound    ErrorCode = 10101
	TransactionFailed ErrorCode = 10103

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200
	LockFailed ErrorCode = 10203

	// Storage errors (10400-10499)
	StorageError ErrorCode = 10400

	// Validation errors (10300-10399)
	ValidationFailed ErrorCode = 10300
	InvalidFormat    ErrorCode = 10301

	// ========== Problem Catalog Errors (12000-12999) ==========

	ProblemNotFound    ErrorCode = 12000
	ProblemInvalid     ErrorCode = 12001
	DataPackSyncFailed ErrorCode = 12002

	TestCaseNotFound ErrorCode = 12100

	// ========== Submission & Judge Errors (13000-13999) ==========

	// Submission (13000-13099)
	SubmissionNotFound     ErrorCode = 13000
	SubmissionCreateFailed ErrorCode = 13001
	CodeTooLarge           ErrorCode = 13002
	LanguageNotSupported   ErrorCode = 13003

	// Judge (13100-13199)
	JudgeQueueFull   ErrorCode = 13100
	JudgeSystemError ErrorCode = 13101
	CompilationError ErrorCode = 13102
	RunnerFailed     ErrorCode = 13107
	ComparisonFailed ErrorCode = 13108
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	DatabaseError:     "Database operation failed",
	RecordNotFound:    "Record not found in database",
	TransactionFailed: "Database transaction failed",

	CacheError: "Cache operation failed",
	LockFailed: "Failed to acquire lock",

	StorageError: "Object storage operation failed",

	ValidationFailed: "Validation failed",
	InvalidFormat:    "Invalid format",

	ProblemNotFound:    "Problem not found",
	ProblemInvalid:     "Problem data is invalid",
	DataPackSyncFailed: "Failed to sync problem data pack",
	TestCaseNotFound:   "Test case not found",

	SubmissionNotFound:     "Submission not found",
	SubmissionCreateFailed: "Failed to create submission",
	CodeTooLarge:           "Code is too large",
	LanguageNotSupported:   "Programming language not supported",

	JudgeQueueFull:   "Judge queue is full, please try again later",
	JudgeSystemError: "Judge system error",
	CompilationError: "Compilation error",
	RunnerFailed:     "Judger run error",
	ComparisonFailed: "Output comparison failed",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == NotFound, c == ProblemNotFound, c == SubmissionNotFound, c == RecordNotFound:
		return 404
	case c == TooManyRequests, c == JudgeQueueFull:
		return 429
	case c == ServiceUnavailable:
		return 503
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c == InvalidParams, c == LanguageNotSupported, c == CodeTooLarge:
		return 400
	default:
		return 500
	}
}
