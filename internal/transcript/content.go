package transcript

import (
	"fmt"
	"net/url"
	"unicode"
	"unicode/utf8"
)

// Content length bounds. The lower bound filters out noise-only results; the
// upper bound guards against a corrupted artifact ballooning a record write.
const (
	MinContentLength = 10
	MaxContentLength = 100000
)

// ContentReason classifies why transcript content was rejected.
type ContentReason string

const (
	ReasonEmpty         ContentReason = "EMPTY"
	ReasonTooShort      ContentReason = "TOO_SHORT"
	ReasonTooLong       ContentReason = "TOO_LONG"
	ReasonNoContent     ContentReason = "NO_CONTENT"
	ReasonEncodingError ContentReason = "ENCODING_ERROR"
)

// ContentError reports transcript text that failed content-level validation.
// This is distinct from FormatError: the artifact was structurally fine, but
// the text itself is unusable.
type ContentError struct {
	Reason  ContentReason
	Message string
}

func (e *ContentError) Error() string {
	return fmt.Sprintf("invalid transcript content (%s): %s", e.Reason, e.Message)
}

// ValidateContent applies content-level checks to extracted transcript text.
func ValidateContent(text string) error {
	if text == "" {
		return &ContentError{Reason: ReasonEmpty, Message: "transcript is empty"}
	}
	if len(text) < MinContentLength {
		return &ContentError{
			Reason:  ReasonTooShort,
			Message: fmt.Sprintf("transcript shorter than %d characters", MinContentLength),
		}
	}
	if len(text) > MaxContentLength {
		return &ContentError{
			Reason:  ReasonTooLong,
			Message: fmt.Sprintf("transcript longer than %d characters", MaxContentLength),
		}
	}
	if !hasLetterOrDigit(text) {
		return &ContentError{Reason: ReasonNoContent, Message: "transcript contains no letters or digits"}
	}
	if !utf8.ValidString(text) {
		return &ContentError{Reason: ReasonEncodingError, Message: "transcript is not valid UTF-8"}
	}
	// Round-trip percent encoding; text that cannot survive it cannot be
	// safely carried through the entity store's URL-encoded transport.
	decoded, err := url.QueryUnescape(url.QueryEscape(text))
	if err != nil || decoded != text {
		return &ContentError{Reason: ReasonEncodingError, Message: "transcript failed encoding round-trip"}
	}
	return nil
}

func hasLetterOrDigit(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
