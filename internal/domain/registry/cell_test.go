package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCellAttachRefusedAfterStop(t *testing.T) {
	cell := NewCell("task-1", 8, 50*time.Millisecond)
	cell.Stop()

	conn := NewConnector(context.Background(), "user-1", 8)
	defer conn.Close()

	assert.False(t, cell.Attach(conn), "a stopped cell must refuse new subscribers")
}

func TestCellTryStopRefusedWhileOccupied(t *testing.T) {
	cell := NewCell("task-1", 8, 50*time.Millisecond)
	defer cell.Stop()

	conn := NewConnector(context.Background(), "user-1", 8)
	defer conn.Close()
	require.True(t, cell.Attach(conn))

	assert.False(t, cell.TryStop(), "an occupied cell must not be reclaimed")

	// Still delivering after the refused reclaim.
	require.True(t, cell.Push(testEnvelope(t, "task-1")))
	select {
	case <-conn.Recv():
	case <-time.After(2 * time.Second):
		t.Fatal("cell stopped delivering after refused TryStop")
	}
}

func TestCellTryStopOnEmptyCell(t *testing.T) {
	cell := NewCell("task-1", 8, 50*time.Millisecond)

	conn := NewConnector(context.Background(), "user-1", 8)
	defer conn.Close()
	require.True(t, cell.Attach(conn))
	cell.Detach(conn.GetID())

	assert.True(t, cell.TryStop())
	assert.False(t, cell.TryStop(), "second reclaim is a no-op")
}
