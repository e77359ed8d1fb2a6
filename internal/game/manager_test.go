package game

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_TickDrivesRound(t *testing.T) {
	f := newFixture(t, testParams(), "x", "y")
	ctx := context.Background()
	m := NewManager(f.engine, time.Millisecond, time.Nanosecond, true)

	require.NoError(t, m.Tick(ctx))
	g, ok := f.engine.CurrentRound()
	require.True(t, ok)
	assert.Equal(t, PhaseBetting, g.Phase)

	f.bet(t, g.ID, 10, "x", SideRed, 100)
	f.bet(t, g.ID, 10, "y", SideBlue, 900)

	// nothing to do before the nominal close
	require.NoError(t, m.Tick(ctx))
	g, _ = f.engine.CurrentRound()
	assert.Equal(t, PhaseBetting, g.Phase)

	f.heights.Set(g.CloseHeight)
	require.NoError(t, m.Tick(ctx))
	g, _ = f.engine.CurrentRound()
	require.Equal(t, PhaseCalculating, g.Phase)

	// waiting for randomness is not an error
	require.NoError(t, m.Tick(ctx))

	f.oracle.publish(g.CommittedRound, 0)
	require.NoError(t, m.Tick(ctx))
	g, _ = f.engine.Round(1)
	assert.Equal(t, PhaseResolved, g.Phase)

	// the next tick opens a fresh round
	require.NoError(t, m.Tick(ctx))
	next, _ := f.engine.CurrentRound()
	assert.Equal(t, uint64(2), next.ID)
}

func TestManager_RespectsPauseAndAutoStart(t *testing.T) {
	f := newFixture(t, testParams())
	ctx := context.Background()

	manual := NewManager(f.engine, 0, 0, false)
	require.NoError(t, manual.Tick(ctx))
	_, ok := f.engine.CurrentRound()
	assert.False(t, ok, "autoStart off must not open rounds")

	f.engine.Pause()
	auto := NewManager(f.engine, 0, 0, true)
	require.NoError(t, auto.Tick(ctx))
	_, ok = f.engine.CurrentRound()
	assert.False(t, ok, "paused engine must not open rounds")
}

func TestManager_StartStop(t *testing.T) {
	f := newFixture(t, testParams())
	m := NewManager(f.engine, time.Millisecond, 0, true)
	m.Start(context.Background())

	require.Eventually(t, func() bool {
		_, ok := f.engine.CurrentRound()
		return ok
	}, time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		m.Stop()
		m.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop() did not return")
	}
}
