package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCreateUsesDefaults(t *testing.T) {
	ds := smallDataset(t)
	reg := NewRegistry(ds, RegistryConfig{DefaultDate: day("2022-09-01"), DefaultMetric: CumulativeCases})

	sess, err := reg.Create()
	require.NoError(t, err)
	t.Cleanup(sess.Close)

	state := sess.Current()
	assert.Equal(t, ds.DateRange().Max, state.Date)
	assert.Equal(t, CumulativeCases, state.Metric)
	assert.True(t, state.Region.IsNational())
	assert.Equal(t, 1, reg.Len())

	got, ok := reg.Get(sess.ID())
	require.True(t, ok)
	assert.Same(t, sess, got)
}

func TestRegistryGetOrCreate(t *testing.T) {
	reg := NewRegistry(smallDataset(t), RegistryConfig{DefaultMetric: NewCases})

	first, created, err := reg.GetOrCreate("")
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := reg.GetOrCreate(first.ID())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, first, again)

	other, created, err := reg.GetOrCreate("missing")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID(), other.ID())
	assert.Equal(t, 2, reg.Len())
}

func TestRegistrySweepRemovesIdleSessions(t *testing.T) {
	reg := NewRegistry(smallDataset(t), RegistryConfig{DefaultMetric: NewCases, IdleTTL: time.Minute})
	sess, err := reg.Create()
	require.NoError(t, err)

	assert.Zero(t, reg.Sweep(time.Now()))
	assert.Equal(t, 1, reg.Sweep(time.Now().Add(2*time.Minute)))
	assert.Zero(t, reg.Len())

	_, err = sess.Dispatch(context.Background(), ResetClicked())
	require.ErrorIs(t, err, ErrSessionClosed)
}

func TestRegistryRunClosesSessionsOnShutdown(t *testing.T) {
	reg := NewRegistry(smallDataset(t), RegistryConfig{DefaultMetric: NewCases})
	_, err := reg.Create()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reg.Run(ctx, time.Hour)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("registry did not stop")
	}
	assert.Zero(t, reg.Len())
}

func TestRegistryCreateRejectsInvalidMetric(t *testing.T) {
	reg := NewRegistry(smallDataset(t), RegistryConfig{DefaultMetric: MetricKind(42)})
	_, err := reg.Create()
	require.ErrorIs(t, err, ErrUnknownMetric)
}
