package tracker

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callaudio/call"
)

func TestAddDeleteCount(t *testing.T) {
	tr := New()

	assert.True(t, tr.AddCall("100", call.StateIncoming))
	assert.True(t, tr.AddCall("100", call.StateIncoming), "duplicate add is idempotent")
	assert.Equal(t, 1, tr.GetCallCount(call.StateIncoming))

	assert.True(t, tr.DeleteCall("100", call.StateIncoming))
	assert.False(t, tr.DeleteCall("100", call.StateIncoming), "duplicate delete is a no-op")
	assert.Equal(t, 0, tr.GetCallCount(call.StateIncoming))
}

func TestUntrackedStatesIgnored(t *testing.T) {
	tr := New()
	assert.False(t, tr.AddCall("100", call.StateDisconnected))
	assert.False(t, tr.AddCall("", call.StateActive))
	assert.False(t, tr.HasCalls())
}

func TestWaitingCountsAsIncoming(t *testing.T) {
	tr := New()
	tr.AddCall("200", call.StateWaiting)
	assert.Equal(t, 1, tr.GetCallCount(call.StateIncoming))
	assert.True(t, tr.Contains("200", call.StateIncoming))
}

func TestNumberInAtMostOneSet(t *testing.T) {
	tr := New()
	states := []call.State{call.StateDialing, call.StateAlerting, call.StateIncoming, call.StateActive, call.StateHolding}
	numbers := []string{"1", "2", "3", "4"}
	expected := make(map[call.State]map[string]bool)
	for _, s := range states {
		expected[s] = make(map[string]bool)
	}

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		n := numbers[rng.Intn(len(numbers))]
		s := states[rng.Intn(len(states))]
		if rng.Intn(2) == 0 {
			tr.AddCall(n, s)
			for _, other := range states {
				delete(expected[other], n)
			}
			expected[s][n] = true
		} else {
			tr.DeleteCall(n, s)
			delete(expected[s], n)
		}

		for _, n := range numbers {
			member := 0
			for _, s := range states {
				if tr.Contains(n, s) {
					member++
				}
			}
			require.LessOrEqual(t, member, 1, "number %s in %d sets", n, member)
		}
		for _, s := range states {
			require.Equal(t, len(expected[s]), tr.GetCallCount(s), "count for %s", s)
		}
	}
}

func TestShouldSwitchState(t *testing.T) {
	tr := New()
	assert.False(t, tr.ShouldSwitchState(call.StateActive))

	tr.AddCall("1", call.StateActive)
	tr.AddCall("2", call.StateIncoming)
	tr.AddCall("3", call.StateHolding)
	assert.True(t, tr.ShouldSwitchState(call.StateActive), "single active call regardless of other states")
	assert.False(t, tr.ShouldSwitchState(call.StateIncoming), "active call pre-empts incoming")

	tr.AddCall("4", call.StateActive)
	assert.False(t, tr.ShouldSwitchState(call.StateActive))

	tr.DeleteCall("1", call.StateActive)
	tr.DeleteCall("4", call.StateActive)
	assert.True(t, tr.ShouldSwitchState(call.StateIncoming))
}

func TestGetCurrentActiveCall(t *testing.T) {
	tr := New()
	assert.Empty(t, tr.GetCurrentActiveCall())
	tr.AddCall("555", call.StateActive)
	assert.Equal(t, "555", tr.GetCurrentActiveCall())
}

func TestUpdateNeededPriority(t *testing.T) {
	tr := New()
	_, ok := tr.UpdateNeeded()
	assert.False(t, ok)

	tr.AddCall("a", call.StateAlerting)
	s, ok := tr.UpdateNeeded()
	require.True(t, ok)
	assert.Equal(t, call.StateAlerting, s)

	tr.AddCall("d", call.StateDialing)
	s, _ = tr.UpdateNeeded()
	assert.Equal(t, call.StateDialing, s)

	tr.AddCall("i", call.StateIncoming)
	s, _ = tr.UpdateNeeded()
	assert.Equal(t, call.StateIncoming, s)

	tr.AddCall("h", call.StateHolding)
	s, _ = tr.UpdateNeeded()
	assert.Equal(t, call.StateHolding, s)
}
