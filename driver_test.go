package ethercat

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRunningMaster(t *testing.T) *Master {
	t.Helper()
	cfg, mock := scenarioConfig()
	master := New(mock, Options{})
	require.NoError(t, master.Configure(cfg))
	require.NoError(t, master.Start())
	t.Cleanup(func() { _ = master.Stop() })
	return master
}

func TestCyclicDriverStopsOnConsecutiveFailures(t *testing.T) {
	cfg, mock := scenarioConfig()
	master := New(mock, Options{})
	require.NoError(t, master.Configure(cfg))
	require.NoError(t, master.Start())
	defer master.Stop()

	mock.InjectExchangeFailures(100)

	var mu sync.Mutex
	var reports []CycleReport
	driver := NewCyclicDriver(master, CyclicDriverOptions{
		Period:                 time.Millisecond,
		StopOnError:            true,
		MaxConsecutiveFailures: 3,
		Report: func(r CycleReport) {
			mu.Lock()
			defer mu.Unlock()
			reports = append(reports, r)
		},
	})

	done := make(chan struct{})
	go func() { driver.Run(); close(done) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("driver did not stop on consecutive failures")
	}

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(reports), 3)
	for _, r := range reports[len(reports)-3:] {
		assert.False(t, r.Success)
	}
}

func TestCyclicDriverWakeSequenceDoesNotDrift(t *testing.T) {
	master := newRunningMaster(t)

	const period = 5 * time.Millisecond
	var mu sync.Mutex
	var wakeTimes []time.Time

	driver := NewCyclicDriver(master, CyclicDriverOptions{
		Period: period,
		Report: func(r CycleReport) {
			mu.Lock()
			defer mu.Unlock()
			wakeTimes = append(wakeTimes, time.Now())
		},
	})

	go driver.Run()
	time.Sleep(60 * time.Millisecond)
	driver.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(wakeTimes), 5)

	first := wakeTimes[0]
	for i, wt := range wakeTimes {
		expected := first.Add(time.Duration(i) * period)
		delta := wt.Sub(expected)
		if delta < 0 {
			delta = -delta
		}
		assert.Less(t, delta, 10*time.Millisecond, "wake %d drifted", i)
	}
}

func TestCyclicDriverStopIsIdempotent(t *testing.T) {
	master := newRunningMaster(t)
	driver := NewCyclicDriver(master, CyclicDriverOptions{Period: time.Millisecond})
	go driver.Run()
	time.Sleep(5 * time.Millisecond)
	driver.Stop()
	assert.NotPanics(t, driver.Stop)
}
