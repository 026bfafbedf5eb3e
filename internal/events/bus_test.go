package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOnReturnsIncreasingIndices(t *testing.T) {
	b := New(nil)
	i0 := b.On(func(Event) {})
	i1 := b.On(func(Event) {})
	assert.Equal(t, 0, i0)
	assert.Equal(t, 1, i1)
}

func TestEmitDispatchesToAllListenersInOrder(t *testing.T) {
	b := New(nil)
	var order []int
	b.On(func(Event) { order = append(order, 1) })
	b.On(func(Event) { order = append(order, 2) })
	b.On(func(Event) { order = append(order, 3) })

	b.Emit(Event{Kind: SessionCreated, ProjectID: "p1"})

	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestOffStopsFurtherDelivery(t *testing.T) {
	b := New(nil)
	calls := 0
	idx := b.On(func(Event) { calls++ })
	b.Off(idx)

	b.Emit(Event{Kind: SessionCreated, ProjectID: "p1"})

	assert.Equal(t, 0, calls, "expected no listener calls after Off")
}

func TestOffOutOfRangeIsNoOp(t *testing.T) {
	b := New(nil)
	b.On(func(Event) {})
	assert.NotPanics(t, func() {
		b.Off(99)
		b.Off(-1)
	})
}

func TestListenerPanicIsContainedAndSubsequentListenersStillRun(t *testing.T) {
	b := New(nil)
	ran := false
	b.On(func(Event) { panic("boom") })
	b.On(func(Event) { ran = true })

	b.Emit(Event{Kind: MessageAdded, ProjectID: "p1"})

	assert.True(t, ran, "expected the listener after the panicking one to still run")
}

func TestEmitPassesEventFieldsThrough(t *testing.T) {
	b := New(nil)
	var got Event
	b.On(func(ev Event) { got = ev })

	b.Emit(Event{Kind: LoadingChanged, ProjectID: "proj-1", IsLoading: true})

	assert.Equal(t, LoadingChanged, got.Kind)
	assert.Equal(t, "proj-1", got.ProjectID)
	assert.True(t, got.IsLoading)
}
