package neighbor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openospf/ospfd"
)

func TestTransitionDownHelloToInit(t *testing.T) {
	next, actions := Transition(Down, HelloReceived, nil)
	assert.Equal(t, Init, next)
	assert.Contains(t, actions, ResetInactivityTimer)
}

func TestTransitionActiveHelloResetsTimerWithoutStateChange(t *testing.T) {
	next, actions := Transition(Full, HelloReceived, nil)
	assert.Equal(t, Full, next)
	assert.Equal(t, []Action{ResetInactivityTimer}, actions)
}

func TestTransitionInitTwoWayHelloAdjacencyDesired(t *testing.T) {
	next, actions := Transition(Init, TwoWayHello, func() bool { return true })
	assert.Equal(t, ExStart, next)
	assert.Contains(t, actions, StartDDExchange)
}

func TestTransitionInitTwoWayHelloNoAdjacency(t *testing.T) {
	next, _ := Transition(Init, TwoWayHello, func() bool { return false })
	assert.Equal(t, TwoWay, next)
}

func TestTransitionExStartNegotiationDone(t *testing.T) {
	next, actions := Transition(ExStart, NegotiationDone, nil)
	assert.Equal(t, Exchange, next)
	assert.Contains(t, actions, SnapshotLSDB)
}

func TestTransitionBadDDSequenceRestartsAtExStart(t *testing.T) {
	for _, s := range []State{ExStart, Exchange, Loading, Full} {
		next, actions := Transition(s, BadDDSequence, nil)
		assert.Equal(t, ExStart, next)
		assert.Contains(t, actions, ClearLists)
		assert.Contains(t, actions, RestartDD)
	}
}

func TestTransitionBadDDSequenceIgnoredBelowExStart(t *testing.T) {
	next, actions := Transition(TwoWay, BadDDSequence, nil)
	assert.Equal(t, TwoWay, next)
	assert.Nil(t, actions)
}

func TestTransitionInactivityGoesDownFromAnyActiveState(t *testing.T) {
	for _, s := range []State{Attempt, Init, TwoWay, ExStart, Exchange, Loading, Full} {
		next, actions := Transition(s, Inactivity, nil)
		assert.Equal(t, Down, next)
		assert.Contains(t, actions, ClearLists)
	}
}

func TestTransitionDestroyIncludesDeleteNeighbor(t *testing.T) {
	_, actions := Transition(Full, Destroy, nil)
	assert.Contains(t, actions, DeleteNeighbor)
}

func TestNegotiateMasterIsNumericallyGreaterID(t *testing.T) {
	lower := ospf2.ID{1, 1, 1, 1}
	higher := ospf2.ID{2, 2, 2, 2}

	assert.True(t, Negotiate(higher, lower), "higher Router-ID is master")
	assert.False(t, Negotiate(lower, higher))
}

func TestListsRequestLifecycle(t *testing.T) {
	l := NewLists()
	id := ospf2.LSAID{Type: ospf2.RouterLSA, LinkStateID: ospf2.ID{1, 1, 1, 1}, AdvertisingRouter: ospf2.ID{1, 1, 1, 1}}

	became := l.AddRequest(id)
	assert.True(t, became)
	assert.Len(t, l.Request, 1)

	empty := l.SatisfyRequest(id)
	assert.True(t, empty)
	assert.Empty(t, l.Request)
}

func TestListsRetransmissionWindow(t *testing.T) {
	l := NewLists()
	assert.Equal(t, 1, l.Window())

	l.GrowWindow()
	assert.Equal(t, 2, l.Window())

	for i := 0; i < 10; i++ {
		l.GrowWindow()
	}
	assert.Equal(t, MaxRxmtWindow, l.Window())

	l.Pending = []ospf2.LSAID{{Type: ospf2.RouterLSA}}
	l.TimeoutWindow()
	assert.Equal(t, 1, l.Window())
	assert.Len(t, l.Failed, 1)
	assert.Empty(t, l.Pending)
}

func TestListsClearResetsEverything(t *testing.T) {
	l := NewLists()
	l.DatabaseSummary = []ospf2.LSAHeader{{}}
	l.Request = []ospf2.LSAID{{}}
	l.GrowWindow()

	l.Clear()

	assert.Empty(t, l.DatabaseSummary)
	assert.Empty(t, l.Request)
	assert.Equal(t, 1, l.Window())
}
