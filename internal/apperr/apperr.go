// Package apperr classifies errors into the kinds the API and workers
// need to branch on: how to respond to a client, whether to acknowledge
// a queue message, and whether to retry.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is one of the error taxonomy members from the job-orchestration
// design: how an error should be surfaced and whether it is retryable.
type Kind string

const (
	// KindValidation: request fails schema or cross-field checks. Reported
	// synchronously as 400/404/406. Never enqueued.
	KindValidation Kind = "validation"
	// KindAdmission: Broker or Blackboard temporarily unavailable during
	// admission. Surfaced as 503 after exhausting retries.
	KindAdmission Kind = "admission"
	// KindKernel: deterministic failure inside the inner statistical
	// procedure. Captured in the job description; not retried.
	KindKernel Kind = "kernel"
	// KindInfrastructure: Blackboard/Broker failure during processing.
	// The message is not acknowledged; the Broker redelivers.
	KindInfrastructure Kind = "infrastructure"
	// KindDataSource: external fetch failure in the dataset loader.
	// Retried with bounded backoff before promotion to failed.
	KindDataSource Kind = "data_source"
	// KindPartialReport: one report artifact failed while at least one
	// other succeeded.
	KindPartialReport Kind = "partial_report"
)

// Error wraps an underlying cause with a Kind and an HTTP status when
// relevant to a synchronous response.
type Error struct {
	Kind       Kind
	HTTPStatus int // 0 when not applicable (e.g. infrastructure errors surfaced only internally)
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(kind Kind, status int, msg string, cause error) *Error {
	return &Error{Kind: kind, HTTPStatus: status, Message: msg, Cause: cause}
}

// Validation builds a 400-class error (caller picks the exact status:
// 400 shape error, 404 unknown method, 406 inconsistent specification).
func Validation(status int, format string, args ...any) *Error {
	return newErr(KindValidation, status, fmt.Sprintf(format, args...), nil)
}

// Admission builds a 503 error raised after retry exhaustion during job
// submission.
func Admission(cause error, format string, args ...any) *Error {
	return newErr(KindAdmission, 503, fmt.Sprintf(format, args...), cause)
}

// Kernel builds a deterministic inner-procedure failure.
func Kernel(cause error) *Error {
	msg := "kernel error"
	if cause != nil {
		msg = cause.Error()
	}
	return newErr(KindKernel, 0, msg, cause)
}

// Infrastructure builds a Blackboard/Broker failure encountered mid-job.
func Infrastructure(cause error, format string, args ...any) *Error {
	return newErr(KindInfrastructure, 0, fmt.Sprintf(format, args...), cause)
}

// DataSource builds an external-fetch failure in the dataset loader.
func DataSource(cause error, format string, args ...any) *Error {
	return newErr(KindDataSource, 0, fmt.Sprintf(format, args...), cause)
}

// PartialReport builds a partial-artifact-failure note.
func PartialReport(format string, args ...any) *Error {
	return newErr(KindPartialReport, 0, fmt.Sprintf(format, args...), nil)
}

// As extracts an *Error from err's chain, mirroring errors.As.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind carried by err, or "" if err does not wrap an
// *Error.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return ""
}
