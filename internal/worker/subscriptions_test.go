package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeSyncer struct {
	calls  int
	synced int
	failed int
	err    error
}

func (f *fakeSyncer) SyncAll(context.Context) (int, int, error) {
	f.calls++
	return f.synced, f.failed, f.err
}

func TestNewScheduler_InvalidSpec(t *testing.T) {
	_, err := NewScheduler("every so often", &fakeSyncer{}, nil)
	assert.Error(t, err)
}

func TestNewScheduler_ValidSpecs(t *testing.T) {
	for _, spec := range []string{"@every 6h", "0 */6 * * *", "@daily"} {
		s, err := NewScheduler(spec, &fakeSyncer{}, nil)
		require.NoError(t, err, spec)
		assert.Len(t, s.cron.Entries(), 1)
	}
}

func TestSyncSubscriptions_Logs(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	syncer := &fakeSyncer{synced: 3, failed: 1}
	syncSubscriptions(context.Background(), syncer, zap.New(core))

	assert.Equal(t, 1, syncer.calls)
	done := logs.FilterMessage("subscription sync completed").All()
	require.Len(t, done, 1)
	assert.Equal(t, int64(3), done[0].ContextMap()["synced"])
	assert.Equal(t, int64(1), done[0].ContextMap()["failed"])
}

func TestSyncSubscriptions_Error(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	syncSubscriptions(context.Background(), &fakeSyncer{err: errors.New("db down")}, zap.New(core))
	assert.Equal(t, 1, logs.FilterMessage("subscription sync failed").Len())
}

func TestScheduler_RunStopsOnCancel(t *testing.T) {
	s, err := NewScheduler("@every 1h", &fakeSyncer{}, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Run(ctx)
}
