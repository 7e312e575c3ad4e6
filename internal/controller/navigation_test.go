package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNavigationStack(t *testing.T) {
	nav := NewNavigationStack("a", "b", "c")
	assert.Equal(t, 3, nav.Length())
	assert.Equal(t, "c", nav.Current())

	assert.False(t, nav.GoForward(), "already at the newest entry")
	assert.True(t, nav.GoBack())
	assert.True(t, nav.GoBack())
	assert.Equal(t, "a", nav.Current())
	assert.False(t, nav.GoBack(), "already at the oldest entry")

	assert.True(t, nav.GoToOffset(2))
	assert.Equal(t, "c", nav.Current())
	assert.False(t, nav.GoToOffset(-3), "out of range offsets are ignored")
	assert.False(t, nav.GoToOffset(0))
	assert.Equal(t, 2, nav.Index())
}

func TestNavigationStack_NavigateDropsForwardEntries(t *testing.T) {
	nav := NewNavigationStack("a", "b", "c")
	nav.GoToOffset(-2)
	nav.Navigate("d")

	assert.Equal(t, 2, nav.Length())
	assert.Equal(t, "d", nav.Current())
	assert.False(t, nav.GoForward())
	assert.True(t, nav.GoBack())
	assert.Equal(t, "a", nav.Current())
}

func TestNavigationStack_DefaultsToBlank(t *testing.T) {
	nav := NewNavigationStack()
	assert.Equal(t, 1, nav.Length())
	assert.Equal(t, "about:blank", nav.Current())
}
