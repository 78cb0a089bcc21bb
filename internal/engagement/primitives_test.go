package engagement_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/engagement-telemetry/internal/clock/manual"
	"github.com/JakeFAU/engagement-telemetry/internal/engagement"
)

func TestOneShotTransitionsOnce(t *testing.T) {
	t.Parallel()

	var flag engagement.OneShot
	require.Equal(t, engagement.StatePending, flag.State())
	require.False(t, flag.Settled())

	require.True(t, flag.MarkSent())
	require.False(t, flag.MarkSent())
	require.False(t, flag.MarkSuppressed())
	require.Equal(t, engagement.StateSent, flag.State())
	require.Equal(t, "sent", flag.State().String())
}

func TestOneShotConcurrentWinners(t *testing.T) {
	t.Parallel()

	var (
		flag    engagement.OneShot
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var won bool
			if i%2 == 0 {
				won = flag.MarkSent()
			} else {
				won = flag.MarkSuppressed()
			}
			if won {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	require.Equal(t, 1, winners)
	require.True(t, flag.Settled())
}

func TestSignalDeliversInOrderAndUnsubscribes(t *testing.T) {
	t.Parallel()

	sig := engagement.NewSignal[int]("numbers")
	require.Equal(t, "numbers", sig.Name())

	var got []string
	first := sig.Subscribe(func(v int) { got = append(got, "a") })
	sig.Subscribe(func(v int) { got = append(got, "b") })
	require.Equal(t, 2, sig.Len())

	sig.Publish(1)
	first.Unsubscribe()
	first.Unsubscribe()
	sig.Publish(2)

	require.Equal(t, []string{"a", "b", "b"}, got)
	require.Equal(t, 1, sig.Len())

	sig.Subscribe(nil).Unsubscribe()
	require.Equal(t, 1, sig.Len())
}

func TestPolicyDefaultsAndValidation(t *testing.T) {
	t.Parallel()

	p := engagement.DefaultPolicy()
	require.NoError(t, p.Validate())
	require.Equal(t, 2*time.Second, p.ViewDelay)
	require.Equal(t, []engagement.Milestone{25, 50, 75, 100}, p.Milestones)

	bad := p
	bad.StaleCeilingSeconds = 1
	require.Error(t, bad.Validate())

	bad = p
	bad.Milestones = []engagement.Milestone{0}
	require.Error(t, bad.Validate())

	bad = p
	bad.ViewDelay = -time.Second
	require.Error(t, bad.Validate())
}

func TestDwellTimerRoundsAndClampsAtZero(t *testing.T) {
	t.Parallel()

	start := time.Unix(1_700_000_000, 0)
	clk := manual.New(start)
	dwell := engagement.NewDwellTimer(clk, start)
	require.Equal(t, 0, dwell.ElapsedSeconds())

	clk.Advance(2600 * time.Millisecond)
	require.Equal(t, 3, dwell.ElapsedSeconds())

	future := engagement.NewDwellTimer(clk, start.Add(time.Hour))
	require.Equal(t, 0, future.ElapsedSeconds())
	require.Equal(t, start, dwell.Start())
}
