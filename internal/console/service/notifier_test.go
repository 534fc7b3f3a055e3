package service

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDrainEmptiesBuffer(t *testing.T) {
	n := NewNotifier(10, zap.NewNop())

	n.Push("info", "campaign started")
	n.Push("alert", "critical breach: DATA_LEAKAGE")

	out := n.Drain()
	require.Len(t, out, 2)
	assert.Equal(t, "info", out[0].Level)
	assert.NotEmpty(t, out[0].ID)

	// Повторный забор — пусто, но не nil
	again := n.Drain()
	assert.NotNil(t, again)
	assert.Empty(t, again)
}

func TestOverflowDropsOldest(t *testing.T) {
	n := NewNotifier(3, zap.NewNop())

	for i := 0; i < 5; i++ {
		n.Push("info", fmt.Sprintf("notice %d", i))
	}

	out := n.Drain()
	require.Len(t, out, 3)
	assert.Equal(t, "notice 2", out[0].Text, "oldest notices are dropped first")
	assert.Equal(t, "notice 4", out[2].Text)
}
