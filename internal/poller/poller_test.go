package poller

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reson/transcription-service/internal/config"
	"github.com/reson/transcription-service/internal/engine"
)

// scriptedClient returns one scripted result per Status call.
type scriptedClient struct {
	results []result
	calls   int
}

type result struct {
	job *engine.Job
	err error
}

func (s *scriptedClient) Status(_ context.Context, name string) (*engine.Job, error) {
	var r result
	if s.calls < len(s.results) {
		r = s.results[s.calls]
	} else {
		r = s.results[len(s.results)-1] // repeat the last entry
	}
	s.calls++
	if r.job != nil && r.job.ActualJobName == "" {
		r.job.ActualJobName = name
	}
	return r.job, r.err
}

func testPollingConfig() config.Polling {
	return config.Polling{
		MaxRetries:           60,
		BackoffBase:          5 * time.Second,
		BackoffMax:           30 * time.Second,
		BackoffMultiplier:    1.2,
		StatusUpdateInterval: 12,
		NetworkMaxRetries:    3,
		NetworkRetryDelay:    5 * time.Second,
	}
}

// newTestPoller wires a poller whose sleeps complete instantly but are recorded.
func newTestPoller(client StatusClient, cfg config.Polling) (*Poller, *[]time.Duration) {
	p := New(client, cfg)
	slept := &[]time.Duration{}
	p.sleep = func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return p, slept
}

func statusResult(s engine.Status) result {
	return result{job: &engine.Job{Status: s}}
}

func TestPoll_CompletesAfterQueuedChecks(t *testing.T) {
	client := &scriptedClient{results: []result{
		statusResult(engine.StatusQueued),
		statusResult(engine.StatusQueued),
		statusResult(engine.StatusQueued),
		statusResult(engine.StatusCompleted),
	}}
	p, _ := newTestPoller(client, testPollingConfig())

	var completions int
	var updates []int
	var errs []error

	job, err := p.Poll(context.Background(), "job_1", Callbacks{
		OnUpdate:   func(_ engine.Status, attempt int) { updates = append(updates, attempt) },
		OnComplete: func(*engine.Job) { completions++ },
		OnError:    func(e error) { errs = append(errs, e) },
	})
	require.NoError(t, err)
	require.NotNil(t, job)

	assert.Equal(t, 1, completions, "OnComplete fires exactly once")
	assert.Equal(t, []int{0}, updates, "interval of 12 not reached, only attempt 0 notifies")
	assert.Empty(t, errs)
	assert.Equal(t, 4, client.calls, "no checks after completion")
}

func TestPoll_TimesOutAfterMaxRetries(t *testing.T) {
	client := &scriptedClient{results: []result{statusResult(engine.StatusInProgress)}}
	p, _ := newTestPoller(client, testPollingConfig())

	var errs []error
	job, err := p.Poll(context.Background(), "job_1", Callbacks{
		OnError: func(e error) { errs = append(errs, e) },
	})
	require.Error(t, err)
	assert.Nil(t, job)

	require.Len(t, errs, 1, "OnError fires exactly once")
	var engineErr *engine.Error
	require.ErrorAs(t, errs[0], &engineErr)
	assert.Equal(t, engine.KindTimeout, engineErr.Kind)
	assert.Equal(t, 60, client.calls, "no 61st check is issued")
}

func TestPoll_EngineFailure(t *testing.T) {
	client := &scriptedClient{results: []result{
		statusResult(engine.StatusInProgress),
		{job: &engine.Job{Status: engine.StatusFailed, FailureReason: "unsupported codec"}},
	}}
	p, _ := newTestPoller(client, testPollingConfig())

	var errs []error
	_, err := p.Poll(context.Background(), "job_1", Callbacks{
		OnError: func(e error) { errs = append(errs, e) },
	})
	require.Error(t, err)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "unsupported codec")
	assert.Equal(t, 2, client.calls)
}

func TestPoll_UnknownStatus(t *testing.T) {
	client := &scriptedClient{results: []result{statusResult(engine.Status("SHRUGGING"))}}
	p, _ := newTestPoller(client, testPollingConfig())

	var errs []error
	_, err := p.Poll(context.Background(), "job_1", Callbacks{
		OnError: func(e error) { errs = append(errs, e) },
	})
	require.Error(t, err)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "unknown transcription status")
}

func TestPoll_BackoffGrowsAndCaps(t *testing.T) {
	cfg := testPollingConfig()
	client := &scriptedClient{results: []result{statusResult(engine.StatusInProgress)}}
	p, slept := newTestPoller(client, cfg)

	_, _ = p.Poll(context.Background(), "job_1", Callbacks{})

	require.NotEmpty(t, *slept)
	assert.Equal(t, 5*time.Second, (*slept)[0])
	assert.Equal(t, 6*time.Second, (*slept)[1]) // 5s * 1.2
	for _, d := range *slept {
		assert.LessOrEqual(t, d, cfg.BackoffMax)
	}
	// With multiplier 1.2 the cap is reached well before the attempt budget.
	assert.Equal(t, cfg.BackoffMax, (*slept)[len(*slept)-1])
}

func TestPoll_TransientNetworkErrorsRetryOnFixedDelay(t *testing.T) {
	transient := &engine.Error{Kind: engine.KindTransientNetwork, Message: "connection reset"}
	client := &scriptedClient{results: []result{
		{err: transient},
		{err: transient},
		statusResult(engine.StatusCompleted),
	}}
	cfg := testPollingConfig()
	p, slept := newTestPoller(client, cfg)

	var completions int
	job, err := p.Poll(context.Background(), "job_1", Callbacks{
		OnComplete: func(*engine.Job) { completions++ },
	})
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 1, completions)
	assert.Equal(t, []time.Duration{cfg.NetworkRetryDelay, cfg.NetworkRetryDelay}, *slept,
		"network retries use the fixed delay, not backoff")
}

func TestPoll_ExhaustedNetworkRetriesSurfaceLastError(t *testing.T) {
	transient := &engine.Error{Kind: engine.KindTransientNetwork, Message: "connection reset"}
	client := &scriptedClient{results: []result{{err: transient}}}
	p, _ := newTestPoller(client, testPollingConfig())

	var errs []error
	_, err := p.Poll(context.Background(), "job_1", Callbacks{
		OnError: func(e error) { errs = append(errs, e) },
	})
	require.Error(t, err)
	require.Len(t, errs, 1)

	var engineErr *engine.Error
	require.ErrorAs(t, errs[0], &engineErr)
	assert.Equal(t, engine.KindTransientNetwork, engineErr.Kind)
	assert.Equal(t, 4, client.calls, "initial check plus three retries")
}

func TestPoll_NonTransientErrorStopsImmediately(t *testing.T) {
	client := &scriptedClient{results: []result{
		{err: &engine.Error{Kind: engine.KindNotFound, Message: "no such job"}},
	}}
	p, _ := newTestPoller(client, testPollingConfig())

	var errs []error
	_, err := p.Poll(context.Background(), "job_1", Callbacks{
		OnError: func(e error) { errs = append(errs, e) },
	})
	require.Error(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, 1, client.calls)
}

func TestPoll_ContextCancellationSkipsOnError(t *testing.T) {
	client := &scriptedClient{results: []result{statusResult(engine.StatusInProgress)}}
	p := New(client, testPollingConfig())

	ctx, cancel := context.WithCancel(context.Background())
	p.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	var errs []error
	_, err := p.Poll(ctx, "job_1", Callbacks{
		OnError: func(e error) { errs = append(errs, e) },
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, errs, "cancellation is the caller's own doing")
}

func TestPoll_StatusUpdateInterval(t *testing.T) {
	cfg := testPollingConfig()
	cfg.MaxRetries = 30
	client := &scriptedClient{results: []result{statusResult(engine.StatusInProgress)}}
	p, _ := newTestPoller(client, cfg)

	var updates []int
	_, _ = p.Poll(context.Background(), "job_1", Callbacks{
		OnUpdate: func(_ engine.Status, attempt int) { updates = append(updates, attempt) },
	})

	assert.Equal(t, []int{0, 12, 24}, updates)
}
