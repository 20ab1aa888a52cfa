// Package persist moves completed transcripts from the object store into the
// entity store. It is shared by the two racing completion paths (status
// poller and webhook); both call the same idempotent operations, and neither
// coordinates with the other beyond that idempotence.
package persist

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/reson/transcription-service/internal/config"
	"github.com/reson/transcription-service/internal/entitystore"
	"github.com/reson/transcription-service/internal/transcript"
)

// ObjectFetcher is the object store slice the adapter needs.
type ObjectFetcher interface {
	PresignDownload(ctx context.Context, folder, key string) (string, error)
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

// EntityClient is the entity store slice the adapter needs.
type EntityClient interface {
	GetQuestion(ctx context.Context, id int64) (*entitystore.Question, error)
	PutQuestion(ctx context.Context, q *entitystore.Question) error
	GetAnswer(ctx context.Context, id int64) (*entitystore.Answer, error)
	PutAnswer(ctx context.Context, a *entitystore.Answer) error
}

// Adapter fetches, validates and persists transcripts.
type Adapter struct {
	objects  ObjectFetcher
	entities EntityClient
	cfg      config.FetchRetry

	// sleep is injectable so tests run without real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an Adapter.
func New(objects ObjectFetcher, entities EntityClient, cfg config.FetchRetry) *Adapter {
	return &Adapter{objects: objects, entities: entities, cfg: cfg, sleep: sleepCtx}
}

// FetchAndExtractTranscript retrieves the transcript JSON the engine deposited
// under folder for the given key base and extracts its text. The object store
// is eventually consistent right after the engine's write, so the first
// attempt waits InitialDelay and failures back off exponentially across up to
// MaxRetries attempts. Returns ("", false) when no usable transcript could be
// retrieved; it never returns an error.
func (a *Adapter) FetchAndExtractTranscript(ctx context.Context, keyBase, folder string) (string, bool) {
	jsonKey := keyBase
	if !strings.HasSuffix(jsonKey, ".json") {
		jsonKey += ".json"
	}

	if err := a.sleep(ctx, a.cfg.InitialDelay); err != nil {
		return "", false
	}

	for attempt := 0; attempt < a.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := a.cfg.InitialDelay * (1 << (attempt - 1))
			if err := a.sleep(ctx, delay); err != nil {
				return "", false
			}
		}

		text, retryable := a.fetchOnce(ctx, jsonKey, folder)
		if text != "" {
			return text, true
		}
		if !retryable {
			return "", false
		}
	}

	log.Printf("[persist] no usable transcript for %s/%s after %d attempts", folder, jsonKey, a.cfg.MaxRetries)
	return "", false
}

// fetchOnce makes one attempt. retryable is false only for conditions another
// attempt cannot fix.
func (a *Adapter) fetchOnce(ctx context.Context, jsonKey, folder string) (text string, retryable bool) {
	url, err := a.objects.PresignDownload(ctx, folder, jsonKey)
	if err != nil {
		log.Printf("[persist] presign failed for %s/%s: %v", folder, jsonKey, err)
		return "", true
	}

	raw, err := a.objects.FetchBytes(ctx, url)
	if err != nil {
		// 404 here is usually eventual consistency; transport failures are
		// equally worth another attempt.
		log.Printf("[persist] transcript fetch failed for %s/%s: %v", folder, jsonKey, err)
		return "", true
	}

	if err := transcript.ValidateFormat(raw); err != nil {
		// A partially written artifact can look malformed; retry.
		log.Printf("[persist] invalid transcript format for %s/%s: %v", folder, jsonKey, err)
		return "", true
	}

	extracted := transcript.Extract(raw)
	if extracted == "" {
		log.Printf("[persist] transcript extracted but empty for %s/%s", folder, jsonKey)
		return "", true
	}
	return extracted, true
}

// SaveTranscript validates text and writes it onto the owning entity via a
// full-record update. It returns false without writing when the text fails
// content validation, the entity cannot be loaded, or the entity is missing
// companion fields required for a full-record write. The missing-fields case
// is a data-integrity condition and must not be retried.
func (a *Adapter) SaveTranscript(ctx context.Context, text string, entityType entitystore.EntityType, entityID int64) bool {
	trimmed := strings.TrimSpace(text)
	if err := transcript.ValidateContent(trimmed); err != nil {
		log.Printf("[persist] rejecting transcript for %s %d: %v", entityType, entityID, err)
		return false
	}

	switch entityType {
	case entitystore.TypeQuestion:
		return a.saveQuestion(ctx, trimmed, entityID)
	case entitystore.TypeAnswer:
		return a.saveAnswer(ctx, trimmed, entityID)
	default:
		log.Printf("[persist] unknown entity type %q", entityType)
		return false
	}
}

func (a *Adapter) saveQuestion(ctx context.Context, text string, id int64) bool {
	q, err := a.entities.GetQuestion(ctx, id)
	if err != nil {
		log.Printf("[persist] failed to load question %d: %v", id, err)
		return false
	}
	if missing := q.RequiredFieldsMissing(); len(missing) > 0 {
		log.Printf("[persist] question %d missing required fields %v; not writing transcript", id, missing)
		return false
	}

	q.QuestionTranscript = text
	if err := a.entities.PutQuestion(ctx, q); err != nil {
		log.Printf("[persist] failed to save transcript for question %d: %v", id, err)
		return false
	}
	log.Printf("[persist] transcript saved for question %d (%d chars)", id, len(text))
	return true
}

func (a *Adapter) saveAnswer(ctx context.Context, text string, id int64) bool {
	ans, err := a.entities.GetAnswer(ctx, id)
	if err != nil {
		log.Printf("[persist] failed to load answer %d: %v", id, err)
		return false
	}
	if missing := ans.RequiredFieldsMissing(); len(missing) > 0 {
		log.Printf("[persist] answer %d missing required fields %v; not writing transcript", id, missing)
		return false
	}

	ans.AnswerTranscript = text
	if err := a.entities.PutAnswer(ctx, ans); err != nil {
		log.Printf("[persist] failed to save transcript for answer %d: %v", id, err)
		return false
	}
	log.Printf("[persist] transcript saved for answer %d (%d chars)", id, len(text))
	return true
}

// GetTranscript returns the entity's transcript, preferring the stored field
// when it holds real text (non-empty and not the pending sentinel), otherwise
// falling back to the object store and opportunistically writing back what it
// found. Write-back failure is logged, not propagated.
func (a *Adapter) GetTranscript(ctx context.Context, keyBase, folder string, entityType entitystore.EntityType, entityID int64) (string, bool) {
	if stored, ok := a.storedTranscript(ctx, entityType, entityID); ok {
		return stored, true
	}

	text, ok := a.FetchAndExtractTranscript(ctx, keyBase, folder)
	if !ok {
		return "", false
	}

	if !a.SaveTranscript(ctx, text, entityType, entityID) {
		log.Printf("[persist] write-back failed for %s %d; returning fetched transcript anyway", entityType, entityID)
	}
	return text, true
}

func (a *Adapter) storedTranscript(ctx context.Context, entityType entitystore.EntityType, entityID int64) (string, bool) {
	var stored string
	switch entityType {
	case entitystore.TypeQuestion:
		q, err := a.entities.GetQuestion(ctx, entityID)
		if err != nil {
			return "", false
		}
		stored = q.QuestionTranscript
	case entitystore.TypeAnswer:
		ans, err := a.entities.GetAnswer(ctx, entityID)
		if err != nil {
			return "", false
		}
		stored = ans.AnswerTranscript
	default:
		return "", false
	}

	stored = strings.TrimSpace(stored)
	if stored == "" || stored == entitystore.TranscriptPending {
		return "", false
	}
	return stored, true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
