package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		Enabled:       true,
		DefaultLimit:  600,
		DefaultWindow: time.Minute,
		Allowlist:     make(map[string]bool),
		Denylist:      make(map[string]bool),
		EndpointConfigs: []EndpointConfig{
			{Path: "/api/transcribe", Method: "POST", Limit: 30, Window: time.Minute, Burst: 2},
		},
	}
}

func TestAllow_WithinBurst(t *testing.T) {
	l := NewLimiter(testConfig())
	defer l.Stop()

	allowed, info := l.Allow("1.2.3.4", "/api/transcribe", "POST")
	assert.True(t, allowed)
	assert.Equal(t, 30, info.Limit)

	allowed, _ = l.Allow("1.2.3.4", "/api/transcribe", "POST")
	assert.True(t, allowed)
}

func TestAllow_ExceedsBurst(t *testing.T) {
	l := NewLimiter(testConfig())
	defer l.Stop()

	l.Allow("1.2.3.4", "/api/transcribe", "POST")
	l.Allow("1.2.3.4", "/api/transcribe", "POST")
	allowed, info := l.Allow("1.2.3.4", "/api/transcribe", "POST")

	assert.False(t, allowed)
	assert.GreaterOrEqual(t, info.RetryAfter, time.Duration(0))
}

func TestAllow_ClientsAreIndependent(t *testing.T) {
	l := NewLimiter(testConfig())
	defer l.Stop()

	l.Allow("1.2.3.4", "/api/transcribe", "POST")
	l.Allow("1.2.3.4", "/api/transcribe", "POST")

	allowed, _ := l.Allow("5.6.7.8", "/api/transcribe", "POST")
	assert.True(t, allowed, "a different client has its own bucket")
}

func TestAllow_Disabled(t *testing.T) {
	l := NewLimiter(&Config{Enabled: false})
	defer l.Stop()

	for range 100 {
		allowed, _ := l.Allow("1.2.3.4", "/api/transcribe", "POST")
		require.True(t, allowed)
	}
}

func TestAllow_Allowlist(t *testing.T) {
	cfg := testConfig()
	cfg.Allowlist["10.0.0.1"] = true
	l := NewLimiter(cfg)
	defer l.Stop()

	for range 10 {
		allowed, _ := l.Allow("10.0.0.1", "/api/transcribe", "POST")
		require.True(t, allowed)
	}
}

func TestAllow_Denylist(t *testing.T) {
	cfg := testConfig()
	cfg.Denylist["6.6.6.6"] = true
	l := NewLimiter(cfg)
	defer l.Stop()

	allowed, _ := l.Allow("6.6.6.6", "/health", "GET")
	assert.False(t, allowed)
}

func TestMatchEndpoint(t *testing.T) {
	configs := []EndpointConfig{
		{Path: "/api/transcribe", Method: "POST", Limit: 30},
		{Path: "/api/", Method: "GET", Limit: 100},
	}

	exact := MatchEndpoint("/api/transcribe", "POST", configs)
	require.NotNil(t, exact)
	assert.Equal(t, 30, exact.Limit)

	prefix := MatchEndpoint("/api/download", "GET", configs)
	require.NotNil(t, prefix)
	assert.Equal(t, 100, prefix.Limit)

	assert.Nil(t, MatchEndpoint("/other", "GET", configs))
}

func TestMatchEndpoint_HealthUnlimited(t *testing.T) {
	c := MatchEndpoint("/health", "GET", nil)
	require.NotNil(t, c)
	assert.Equal(t, 0, c.Limit)
}

func TestBucketRefills(t *testing.T) {
	// 60 per second so the refill is observable without a long sleep.
	l := NewLimiter(&Config{
		Enabled: true,
		EndpointConfigs: []EndpointConfig{
			{Path: "/x", Method: "GET", Limit: 60, Window: time.Second, Burst: 1},
		},
		Allowlist: make(map[string]bool),
		Denylist:  make(map[string]bool),
	})
	defer l.Stop()

	allowed, _ := l.Allow("c", "/x", "GET")
	require.True(t, allowed)
	allowed, _ = l.Allow("c", "/x", "GET")
	require.False(t, allowed)

	time.Sleep(50 * time.Millisecond)
	allowed, _ = l.Allow("c", "/x", "GET")
	assert.True(t, allowed, "tokens refill over time")
}
