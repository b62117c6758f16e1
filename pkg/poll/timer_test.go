package poll

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimer_RepeatsUntilCanceled(t *testing.T) {
	var runs atomic.Int32
	tm := NewTimer()

	tm.Schedule(10*time.Millisecond, func() { runs.Add(1) })
	assert.True(t, tm.Active())

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 2*time.Millisecond)

	tm.Cancel()
	assert.False(t, tm.Active())
	after := runs.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, runs.Load())
}

func TestTimer_CancelIsIdempotent(t *testing.T) {
	tm := NewTimer()
	assert.NotPanics(t, func() {
		tm.Cancel()
		tm.Cancel()
	})

	tm.Schedule(time.Hour, func() {})
	tm.Cancel()
	tm.Cancel()
	assert.False(t, tm.Active())
}

func TestTimer_ScheduleWhileActiveKeepsSingleLoop(t *testing.T) {
	var first, second atomic.Int32
	tm := NewTimer()
	defer tm.Cancel()

	tm.Schedule(10*time.Millisecond, func() { first.Add(1) })
	tm.Schedule(time.Millisecond, func() { second.Add(1) })

	require.Eventually(t, func() bool { return first.Load() >= 2 }, time.Second, 2*time.Millisecond)
	assert.Zero(t, second.Load())
}

func TestTimer_SlowActionDelaysNextTick(t *testing.T) {
	var running, overlaps atomic.Int32
	var runs atomic.Int32
	tm := NewTimer()

	tm.Schedule(5*time.Millisecond, func() {
		if running.Add(1) > 1 {
			overlaps.Add(1)
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		runs.Add(1)
	})

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 2*time.Millisecond)
	tm.Cancel()
	assert.Zero(t, overlaps.Load())
}

func TestTimer_CancelDuringActionPreventsRearm(t *testing.T) {
	var runs atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	tm := NewTimer()

	tm.Schedule(time.Millisecond, func() {
		if runs.Add(1) == 1 {
			close(started)
			<-release
		}
	})

	<-started
	tm.Cancel()
	close(release)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())
	assert.False(t, tm.Active())
}

func TestTimer_RescheduleAfterCancelDuringAction(t *testing.T) {
	var oldRuns, newRuns atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	tm := NewTimer()
	defer tm.Cancel()

	tm.Schedule(time.Millisecond, func() {
		if oldRuns.Add(1) == 1 {
			close(started)
			<-release
		}
	})

	<-started
	tm.Cancel()
	tm.Schedule(5*time.Millisecond, func() { newRuns.Add(1) })
	close(release)

	require.Eventually(t, func() bool { return newRuns.Load() >= 2 }, time.Second, 2*time.Millisecond)
	assert.Equal(t, int32(1), oldRuns.Load())
}
