package server

import (
	"errors"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/reson/transcription-service/internal/engine"
	"github.com/reson/transcription-service/internal/jobname"
	"github.com/reson/transcription-service/internal/sns"
)

// maxWebhookBody bounds the notification body size.
const maxWebhookBody = 1 << 20

// handleWebhook receives completion notifications from the transcription
// engine's notification topic.
//
// Response codes are deliberately asymmetric: failures before the message is
// authenticated (bad signature, malformed payload) reject with a 4xx, while
// failures after authentication (transcript fetch, entity lookup, store
// write) are logged and acknowledged with 200 so the sender does not retry a
// notification we already consumed.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	msg, err := sns.Parse(body, r.Header)
	if err != nil {
		log.Printf("Webhook received unparseable body: %v", err)
		s.errorResponse(w, http.StatusBadRequest, "Invalid message format")
		return
	}

	switch msg.Type {
	case sns.TypeSubscriptionConfirmation:
		s.confirmSubscription(w, r, msg)
	case sns.TypeNotification:
		s.processNotification(w, r, msg)
	default:
		log.Printf("Webhook received unknown message type %q", msg.Type)
		s.errorResponse(w, http.StatusBadRequest, "Unknown message type")
	}
}

// confirmSubscription auto-confirms a topic subscription by fetching the
// provided confirmation URL. Failure is logged and still acknowledged; the
// provider re-sends confirmations on its own schedule.
func (s *Server) confirmSubscription(w http.ResponseWriter, r *http.Request, msg *sns.Message) {
	if msg.SubscribeURL == "" {
		s.errorResponse(w, http.StatusBadRequest, "Missing SubscribeURL")
		return
	}

	log.Printf("Subscription confirmation received for topic %s, auto-confirming", msg.TopicArn)

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, msg.SubscribeURL, nil)
	if err != nil {
		log.Printf("Invalid SubscribeURL %q: %v", msg.SubscribeURL, err)
		s.jsonResponse(w, http.StatusOK, map[string]string{
			"status": "info", "message": "Subscription confirmation attempted but failed",
		})
		return
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		log.Printf("Subscription confirmation fetch failed: %v", err)
		s.jsonResponse(w, http.StatusOK, map[string]string{
			"status": "info", "message": "Subscription confirmation attempted but failed",
		})
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		log.Printf("Subscription confirmation returned HTTP status %d", resp.StatusCode)
		s.jsonResponse(w, http.StatusOK, map[string]string{
			"status": "info", "message": "Subscription confirmation attempted but failed",
		})
		return
	}

	log.Println("Subscription confirmed successfully")
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status": "true", "message": "Subscription confirmed successfully",
	})
}

func (s *Server) processNotification(w http.ResponseWriter, r *http.Request, msg *sns.Message) {
	if err := s.verifier.Verify(r.Context(), msg); err != nil {
		log.Printf("Webhook signature verification failed: %v", err)
		s.errorResponse(w, http.StatusForbidden, "Invalid message signature")
		return
	}

	payload, err := sns.ParseTranscribeNotification(msg.Message)
	if err != nil {
		log.Printf("Webhook payload invalid: %v", err)
		s.errorResponse(w, http.StatusBadRequest, "Invalid message format")
		return
	}
	if !jobname.JobNamePattern.MatchString(payload.TranscriptionJobName) {
		log.Printf("Webhook payload has illegal job name %q", payload.TranscriptionJobName)
		s.errorResponse(w, http.StatusBadRequest, "Invalid job name format")
		return
	}

	log.Printf("Job notification received: %s is %s", payload.TranscriptionJobName, payload.TranscriptionJobStatus)

	switch payload.TranscriptionJobStatus {
	case string(engine.StatusCompleted):
		s.processCompletedJob(r, payload)
	case string(engine.StatusFailed):
		reason := payload.FailureReason
		if reason == "" {
			reason = "Unknown error"
		}
		log.Printf("Transcription job %s failed: %s", payload.TranscriptionJobName, reason)
	}

	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":    "true",
		"message":   "Notification processed",
		"jobName":   payload.TranscriptionJobName,
		"jobStatus": payload.TranscriptionJobStatus,
	})
}

// processCompletedJob is the webhook's persistence path. Every failure in
// here is logged only; the caller always acknowledges.
func (s *Server) processCompletedJob(r *http.Request, payload *sns.TranscribeNotification) {
	outputLocation := payload.Transcript.TranscriptFileUri
	if outputLocation == "" {
		log.Printf("Completed job %s carries no output location", payload.TranscriptionJobName)
		return
	}

	folder, keyBase, err := parseOutputURL(outputLocation, s.cfg.BucketName)
	if err != nil {
		log.Printf("Could not parse output location %q for job %s: %v", outputLocation, payload.TranscriptionJobName, err)
		return
	}

	s.reconcileTranscript(r.Context(), folder, keyBase)
}

// parseOutputURL extracts the folder and key base from a transcript file URL.
// Path-style URLs carry the bucket as the first path segment; it is stripped
// so the folder maps directly onto object keys.
func parseOutputURL(raw, bucket string) (folder, keyBase string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}

	parts := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
	if len(parts) > 0 && parts[0] == bucket {
		parts = parts[1:]
	}
	if len(parts) < 2 {
		return "", "", errors.New("output location has no folder component")
	}
	file := parts[len(parts)-1]
	folder = strings.Join(parts[:len(parts)-1], "/")
	keyBase = strings.TrimSuffix(file, ".json")
	return folder, keyBase, nil
}
