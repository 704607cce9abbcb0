package outbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffGrowsExponentiallyUntilCap(t *testing.T) {
	initial := 5 * time.Second
	max := 300 * time.Second

	assert.Equal(t, 5*time.Second, backoff(0, initial, max))
	assert.Equal(t, 10*time.Second, backoff(1, initial, max))
	assert.Equal(t, 20*time.Second, backoff(2, initial, max))
	assert.Equal(t, 160*time.Second, backoff(5, initial, max))
	assert.Equal(t, max, backoff(10, initial, max))
}

func TestDefaultConfigMatchesReferenceDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.InitialRetryDelay)
	assert.Equal(t, 300*time.Second, cfg.MaxRetryDelay)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
}
