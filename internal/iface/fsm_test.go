package iface

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openospf/ospfd"
)

func TestTransitionPhyUpBroadcast(t *testing.T) {
	next, actions := Transition(Down, Broadcast, PhyUp)
	assert.Equal(t, Waiting, next)
	assert.Contains(t, actions, StartHellos)
	assert.Contains(t, actions, StartWaitTimer)
}

func TestTransitionPhyUpPointToPoint(t *testing.T) {
	next, actions := Transition(Down, PointToPointKind, PhyUp)
	assert.Equal(t, PointToPoint, next)
	assert.Equal(t, []Action{StartHellos}, actions)
}

func TestTransitionPhyUpVirtualLinkAlwaysPTP(t *testing.T) {
	next, _ := Transition(Down, VirtualLink, PhyUp)
	assert.Equal(t, PointToPoint, next)
}

func TestTransitionPhyDownResetsFromAnyState(t *testing.T) {
	for _, s := range []State{Waiting, PointToPoint, DROther, Backup, DR} {
		next, actions := Transition(s, Broadcast, PhyDown)
		assert.Equal(t, Down, next)
		assert.Contains(t, actions, DestroyNeighbors)
		assert.Contains(t, actions, ClearDRBDR)
	}
}

func TestTransitionNeighborChangeOnlyInTerminalMultiAccessStates(t *testing.T) {
	next, actions := Transition(DROther, Broadcast, NeighborChange)
	assert.Equal(t, DROther, next)
	assert.Equal(t, []Action{ElectDR}, actions)

	next, actions = Transition(Waiting, Broadcast, NeighborChange)
	assert.Equal(t, Waiting, next)
	assert.Nil(t, actions)
}

func TestElectBackupPrefersSelfDeclaredBackup(t *testing.T) {
	a := ospf2.ID{1, 1, 1, 1}
	b := ospf2.ID{2, 2, 2, 2}
	c := ospf2.ID{3, 3, 3, 3}

	candidates := []Candidate{
		{RouterID: a, Priority: 1},
		{RouterID: b, Priority: 2, DeclaredBackup: b},
		{RouterID: c, Priority: 3},
	}

	result := Elect(candidates, a)
	assert.Equal(t, b, result.Backup, "b declares itself backup and must win despite lower priority than c")
}

func TestElectDRPrefersHighestPriorityThenRouterID(t *testing.T) {
	a := ospf2.ID{1, 1, 1, 1}
	b := ospf2.ID{2, 2, 2, 2}

	candidates := []Candidate{
		{RouterID: a, Priority: 5, DeclaredDR: a},
		{RouterID: b, Priority: 5, DeclaredDR: b},
	}

	result := Elect(candidates, a)
	assert.Equal(t, b, result.DR, "equal priority breaks tie on larger Router-ID")
}

func TestElectFallsBackToBackupWhenNoDRDeclared(t *testing.T) {
	a := ospf2.ID{1, 1, 1, 1}
	b := ospf2.ID{2, 2, 2, 2}

	candidates := []Candidate{
		{RouterID: a, Priority: 1},
		{RouterID: b, Priority: 2, DeclaredBackup: b},
	}

	result := Elect(candidates, a)
	assert.Equal(t, b, result.Backup)
	assert.Equal(t, b, result.DR, "with no DR candidate, DR falls back to Backup")
}

func TestStateAfterElection(t *testing.T) {
	self := ospf2.ID{1, 1, 1, 1}
	other := ospf2.ID{2, 2, 2, 2}

	assert.Equal(t, DR, StateAfterElection(Result{DR: self, Backup: other}, self))
	assert.Equal(t, Backup, StateAfterElection(Result{DR: other, Backup: self}, self))
	assert.Equal(t, DROther, StateAfterElection(Result{DR: other, Backup: other}, self))
}

func TestPriorityZeroNeverElected(t *testing.T) {
	a := ospf2.ID{1, 1, 1, 1}
	b := ospf2.ID{2, 2, 2, 2}

	candidates := []Candidate{
		{RouterID: a, Priority: 0, DeclaredDR: a, DeclaredBackup: a},
		{RouterID: b, Priority: 1, DeclaredDR: b},
	}

	result := Elect(candidates, a)
	assert.Equal(t, b, result.DR)
	assert.NotEqual(t, a, result.Backup)
}
