package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reson/transcription-service/internal/cleanup"
	"github.com/reson/transcription-service/internal/config"
	"github.com/reson/transcription-service/internal/engine"
	"github.com/reson/transcription-service/internal/entitystore"
	"github.com/reson/transcription-service/internal/jobname"
	"github.com/reson/transcription-service/internal/poller"
	"github.com/reson/transcription-service/internal/sns"
)

type fakeEngine struct {
	mu         sync.Mutex
	started    []engine.StartInput
	deleted    []string
	startErr   error
	statusJob  *engine.Job
	statusErr  error
	deleteErr  error
	actualName string
}

func (f *fakeEngine) Start(_ context.Context, in engine.StartInput) (*engine.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.started = append(f.started, in)
	actual := f.actualName
	if actual == "" {
		actual = in.JobNameHint + "_1712000000000_ab12cd"
	}
	return &engine.Job{
		RequestedJobName: in.JobNameHint,
		ActualJobName:    actual,
		Status:           engine.StatusQueued,
		OutputLocation:   jobname.NormalizePath(in.OutputFolder, actual+".json"),
	}, nil
}

func (f *fakeEngine) Status(_ context.Context, _ string) (*engine.Job, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return f.statusJob, nil
}

func (f *fakeEngine) Delete(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, name)
	return nil
}

type fakePoller struct {
	mu     sync.Mutex
	polled []string
	job    *engine.Job
	err    error
	done   chan struct{}
}

func (f *fakePoller) Poll(_ context.Context, name string, cb poller.Callbacks) (*engine.Job, error) {
	f.mu.Lock()
	f.polled = append(f.polled, name)
	f.mu.Unlock()
	defer func() {
		if f.done != nil {
			close(f.done)
		}
	}()
	if f.err != nil {
		if cb.OnError != nil {
			cb.OnError(f.err)
		}
		return nil, f.err
	}
	if cb.OnComplete != nil {
		cb.OnComplete(f.job)
	}
	return f.job, nil
}

type fakeObjects struct {
	uploadURL   string
	uploadKey   string
	downloadURL string
	deleted     []string
	err         error
}

func (f *fakeObjects) PresignUpload(_ context.Context, folder, contentType string) (string, string, error) {
	if f.err != nil {
		return "", "", f.err
	}
	return f.uploadURL, f.uploadKey, nil
}

func (f *fakeObjects) PresignDownload(_ context.Context, folder, key string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.downloadURL, nil
}

func (f *fakeObjects) Delete(_ context.Context, folder, key string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, folder+"/"+key)
	return nil
}

type fakeEntities struct {
	questions []entitystore.Question
	answers   []entitystore.Answer
}

func (f *fakeEntities) ListQuestionsByJob(_ context.Context, _ string) ([]entitystore.Question, error) {
	return f.questions, nil
}

func (f *fakeEntities) ListAnswersByJob(_ context.Context, _ string) ([]entitystore.Answer, error) {
	return f.answers, nil
}

type savedTranscript struct {
	text       string
	entityType entitystore.EntityType
	entityID   int64
}

type fakePersister struct {
	mu      sync.Mutex
	text    string
	fetchOK bool
	saveOK  bool
	saved   []savedTranscript
	fetched []string
}

func (f *fakePersister) FetchAndExtractTranscript(_ context.Context, keyBase, folder string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, folder+"/"+keyBase)
	return f.text, f.fetchOK
}

func (f *fakePersister) SaveTranscript(_ context.Context, text string, entityType entitystore.EntityType, entityID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, savedTranscript{text: text, entityType: entityType, entityID: entityID})
	return f.saveOK
}

func (f *fakePersister) savedCopy() []savedTranscript {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]savedTranscript(nil), f.saved...)
}

type fakeVerifier struct {
	err error
}

func (f *fakeVerifier) Verify(_ context.Context, _ *sns.Message) error { return f.err }

type fakeSweeper struct {
	result *cleanup.Result
	err    error
	days   int
}

func (f *fakeSweeper) SweepOlderThan(_ context.Context, days int) (*cleanup.Result, error) {
	f.days = days
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func testCfg() *config.Config {
	return &config.Config{
		BucketName:      "reson-assets",
		ServerPort:      8080,
		DefaultLanguage: "en-US",
		CleanupDays:     30,
	}
}

func newTestServer(t *testing.T, cfg *config.Config, deps Deps) *Server {
	t.Helper()
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	s := New(cfg, deps)
	t.Cleanup(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
	})
	return s
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, testCfg(), Deps{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, testCfg(), Deps{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/transcribe", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimitEnforced(t *testing.T) {
	t.Setenv("RATE_LIMIT_ENABLED", "true")
	t.Setenv("RATE_LIMIT_DEFAULT_LIMIT", "600")
	s := New(testCfg(), Deps{Sweeper: &fakeSweeper{result: &cleanup.Result{}}})
	defer s.rateLimiter.Stop()
	handler := s.Handler()

	// Cleanup budget is one burst token per client.
	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/api/transcribe/cleanup", nil))
	require.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/api/transcribe/cleanup", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func waitFor(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for background watcher")
	}
}
