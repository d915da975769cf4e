package probeio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, s *Synthetic, n int, timeout time.Duration) []RawFlowEvent {
	t.Helper()
	var events []RawFlowEvent
	deadline := time.After(timeout)
	for len(events) < n {
		select {
		case ev := <-s.Events():
			events = append(events, ev)
		case <-deadline:
			t.Fatalf("timed out waiting for %d events, got %d", n, len(events))
		}
	}
	return events
}

func TestSyntheticSpawnsConfiguredFlowCount(t *testing.T) {
	s := NewSynthetic(SyntheticConfig{NumFlows: 3, Tick: time.Hour, Seed: 1})
	defer s.Stop()

	events := drain(t, s, 3, time.Second)
	for _, ev := range events {
		assert.Equal(t, SiteFirstConfirm, ev.Site)
	}
}

func TestSyntheticTicksProduceRefreshPairs(t *testing.T) {
	s := NewSynthetic(SyntheticConfig{NumFlows: 1, Tick: 5 * time.Millisecond, FlowLifetime: time.Hour, Seed: 2})
	defer s.Stop()

	drain(t, s, 1, time.Second) // the initial FirstConfirm

	events := drain(t, s, 2, time.Second)
	require.Len(t, events, 2)
	assert.Equal(t, SiteRefreshEntry, events[0].Site)
	assert.Equal(t, SiteRefreshReturn, events[1].Site)
	assert.Equal(t, events[0].StashID, events[1].StashID)
}

func TestSyntheticStopClosesEventsChannel(t *testing.T) {
	s := NewSynthetic(SyntheticConfig{NumFlows: 1, Tick: time.Hour, Seed: 3})
	drain(t, s, 1, time.Second)

	s.Stop()

	_, ok := <-s.Events()
	assert.False(t, ok)
}

func TestSyntheticRetiresFlowsPastLifetime(t *testing.T) {
	s := NewSynthetic(SyntheticConfig{NumFlows: 1, Tick: 5 * time.Millisecond, FlowLifetime: 10 * time.Millisecond, Seed: 4})
	defer s.Stop()

	drain(t, s, 1, time.Second) // initial spawn

	var sawDestroy, sawRespawn bool
	deadline := time.After(2 * time.Second)
	for !sawDestroy || !sawRespawn {
		select {
		case ev := <-s.Events():
			switch ev.Site {
			case SiteDestroy:
				sawDestroy = true
			case SiteFirstConfirm:
				sawRespawn = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for retire+respawn")
		}
	}
}
