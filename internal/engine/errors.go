package engine

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/aws/smithy-go"
)

// Kind classifies an engine failure for retry and user-messaging decisions.
type Kind string

const (
	KindInvalidInput     Kind = "INVALID_INPUT"     // bad URL/job name/params; never retried
	KindAuthFailure      Kind = "AUTH_FAILURE"      // engine rejected credentials; never retried
	KindNotFound         Kind = "NOT_FOUND"         // terminal for status queries
	KindConflict         Kind = "CONFLICT"          // duplicate job name; surfaced as-is
	KindTransientNetwork Kind = "TRANSIENT_NETWORK" // retried with fixed delay
	KindTimeout          Kind = "TIMEOUT"           // client gave up waiting; distinct from engine FAILED
	KindUnknown          Kind = "UNKNOWN"
)

// Error is the single error type surfaced by the engine client and poller.
type Error struct {
	Kind    Kind
	JobName string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.JobName != "" {
		return fmt.Sprintf("transcription engine error (%s) for job %s: %s", e.Kind, e.JobName, e.Message)
	}
	return fmt.Sprintf("transcription engine error (%s): %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// classify wraps an AWS SDK error with the matching Kind.
func classify(jobName string, err error) *Error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		kind := KindUnknown
		switch apiErr.ErrorCode() {
		case "BadRequestException", "ValidationException":
			kind = KindInvalidInput
		case "NotFoundException":
			kind = KindNotFound
		case "ConflictException":
			kind = KindConflict
		case "AccessDeniedException", "UnauthorizedOperation":
			kind = KindAuthFailure
		case "LimitExceededException", "InternalFailureException", "ServiceUnavailableException":
			kind = KindTransientNetwork
		}
		return &Error{Kind: kind, JobName: jobName, Message: apiErr.ErrorMessage(), Cause: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &Error{Kind: KindTransientNetwork, JobName: jobName, Message: err.Error(), Cause: err}
	}

	return &Error{Kind: KindUnknown, JobName: jobName, Message: err.Error(), Cause: err}
}

// UserMessage maps any pipeline error to copy safe to show an end user. Raw
// engine text is only used as a last-resort fallback.
func UserMessage(err error) string {
	if err == nil {
		return "An unknown error occurred during transcription"
	}

	var engineErr *Error
	if errors.As(err, &engineErr) {
		switch engineErr.Kind {
		case KindTransientNetwork:
			return "Network error. Please check your connection and try again."
		case KindNotFound:
			return "Transcription job not found. It may have been deleted or never created."
		case KindConflict:
			return "A transcription job with this name already exists. Please try again."
		case KindAuthFailure:
			return "Access denied. Please check your permissions."
		case KindInvalidInput:
			return "Invalid request. Please check your video file and try again."
		case KindTimeout:
			return "Transcription is taking longer than expected. The video may still be processing. Please check again later."
		}
	}

	msg := err.Error()
	if strings.Contains(msg, "timeout") {
		return "Transcription is taking longer than expected. The video may still be processing. Please check again later."
	}
	if strings.Contains(msg, "empty") || strings.Contains(msg, "no transcript") {
		return "Transcription completed but no text was found. The video may not contain speech."
	}
	if msg != "" {
		return msg
	}
	return "Failed to process transcription. Please try again."
}
