package hostctx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExitingStartsFalse(t *testing.T) {
	c := New()
	require.False(t, c.Exiting())
}

func TestSetExitingIsSticky(t *testing.T) {
	c := New()
	c.SetExiting()
	require.True(t, c.Exiting())
	c.SetExiting()
	require.True(t, c.Exiting())
}

func TestBindAndUnbindSlot(t *testing.T) {
	c := New()
	_, ok := c.SlotFor(42)
	require.False(t, ok)

	c.BindSlot(42, 3)
	slot, ok := c.SlotFor(42)
	require.True(t, ok)
	require.Equal(t, 3, slot)

	c.UnbindSlot(42)
	_, ok = c.SlotFor(42)
	require.False(t, ok)
}

func TestBindSlotOverwritesPreviousBinding(t *testing.T) {
	c := New()
	c.BindSlot(1, 10)
	c.BindSlot(1, 20)
	slot, ok := c.SlotFor(1)
	require.True(t, ok)
	require.Equal(t, 20, slot)
}
