package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/orgball2608/video-distributor/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_RetriesUpToMaxRetries(t *testing.T) {
	cfg := Config{
		MaxRetries:      3,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		Multiplier:      1.0,
	}

	calls := 0
	err := Do(context.Background(), logger.NewNop(), "flaky", func() error {
		calls++
		return errors.New("connection reset")
	}, cfg)

	require.Error(t, err)
	assert.Equal(t, 4, calls)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	calls := 0
	err := Do(context.Background(), logger.NewNop(), "rejected", func() error {
		calls++
		return Permanent(errors.New("bad request"))
	}, DefaultConfig())

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestStrategyConfig_WaitsDoubleFromOneSecond(t *testing.T) {
	cfg := StrategyConfig()
	assert.Equal(t, uint64(3), cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.InitialInterval)
	assert.Equal(t, 4*time.Second, cfg.MaxInterval)
	assert.Equal(t, 2.0, cfg.Multiplier)
}
