// Package sns models the notification messages the transcription engine
// publishes on job completion and authenticates them before any payload is
// trusted.
package sns

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Message types as they appear in the Type field and the
// x-amz-sns-message-type header.
const (
	TypeNotification             = "Notification"
	TypeSubscriptionConfirmation = "SubscriptionConfirmation"
	TypeUnsubscribeConfirmation  = "UnsubscribeConfirmation"
)

// Message is the envelope delivered to the webhook endpoint.
type Message struct {
	Type             string `json:"Type"`
	MessageId        string `json:"MessageId"`
	Token            string `json:"Token"`
	TopicArn         string `json:"TopicArn"`
	Subject          string `json:"Subject"`
	Message          string `json:"Message"`
	SubscribeURL     string `json:"SubscribeURL"`
	Timestamp        string `json:"Timestamp"`
	SigningCertURL   string `json:"SigningCertURL"`
	Signature        string `json:"Signature"`
	SignatureVersion string `json:"SignatureVersion"`
}

// Parse decodes an incoming webhook body. Some relays strip envelope fields
// from the body and carry them in x-amz-sns-* headers instead, so empty
// fields are backfilled from headers; body values win.
func Parse(body []byte, header http.Header) (*Message, error) {
	var m Message
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("failed to decode notification body: %w", err)
	}

	fill := func(dst *string, headerName string) {
		if *dst == "" {
			*dst = header.Get(headerName)
		}
	}
	fill(&m.Type, "x-amz-sns-message-type")
	fill(&m.MessageId, "x-amz-sns-message-id")
	fill(&m.TopicArn, "x-amz-sns-topic-arn")
	fill(&m.Timestamp, "x-amz-sns-timestamp")
	fill(&m.SigningCertURL, "x-amz-sns-signing-cert-url")
	fill(&m.Signature, "x-amz-sns-signature")
	fill(&m.SignatureVersion, "x-amz-sns-signature-version")

	return &m, nil
}

// CanonicalString builds the exact byte string the publisher signed. Fields
// are included only when non-empty, sorted alphabetically by name, each
// rendered as Key\nValue\n, and the whole string is terminated by a blank
// line. Confirmation messages sign SubscribeURL and Token in addition to the
// notification fields.
func CanonicalString(m *Message) string {
	fields := map[string]string{
		"Message":   m.Message,
		"MessageId": m.MessageId,
		"Timestamp": m.Timestamp,
		"TopicArn":  m.TopicArn,
		"Type":      m.Type,
	}
	switch m.Type {
	case TypeSubscriptionConfirmation, TypeUnsubscribeConfirmation:
		fields["SubscribeURL"] = m.SubscribeURL
		fields["Token"] = m.Token
	default:
		fields["Subject"] = m.Subject
	}

	keys := make([]string, 0, len(fields))
	for k, v := range fields {
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('\n')
		b.WriteString(fields[k])
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return b.String()
}

// TranscribeNotification is the engine's completion payload, carried
// string-encoded in Message.Message.
type TranscribeNotification struct {
	TranscriptionJobName   string `json:"TranscriptionJobName" validate:"required"`
	TranscriptionJobStatus string `json:"TranscriptionJobStatus" validate:"required,oneof=QUEUED IN_PROGRESS COMPLETED FAILED"`
	Transcript             struct {
		TranscriptFileUri string `json:"TranscriptFileUri"`
	} `json:"Transcript"`
	FailureReason string `json:"FailureReason"`
}

var validate = validator.New()

// ParseTranscribeNotification decodes and validates the inner payload.
func ParseTranscribeNotification(raw string) (*TranscribeNotification, error) {
	var n TranscribeNotification
	if err := json.Unmarshal([]byte(raw), &n); err != nil {
		return nil, fmt.Errorf("failed to decode transcription notification: %w", err)
	}
	if err := validate.Struct(&n); err != nil {
		return nil, fmt.Errorf("invalid transcription notification: %w", err)
	}
	return &n, nil
}
