package presence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMich157/whitelisthub/internal/events"
)

func TestTracker_JoinQuit(t *testing.T) {
	tr := NewTracker()
	tr.Join("zed")
	tr.Join("Alex")
	tr.Join("steve")
	tr.Join("Steve")
	assert.Equal(t, []string{"Alex", "Steve", "zed"}, tr.Online())
	assert.Equal(t, 3, tr.Count())

	tr.Quit("ALEX")
	assert.Equal(t, []string{"Steve", "zed"}, tr.Online())

	tr.Quit("nobody")
	tr.Join("")
	assert.Equal(t, 2, tr.Count())

	tr.Reset()
	assert.Empty(t, tr.Online())
}

func TestTracker_Run(t *testing.T) {
	hub := events.NewHub()
	tr := NewTracker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	go func() {
		close(started)
		tr.Run(ctx, hub)
	}()
	<-started

	require.Eventually(t, func() bool {
		hub.EmitJoin("test", "Steve")
		return tr.Count() == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.EmitChat("test", "Steve", "ignored")
	hub.EmitQuit("test", "Steve")
	require.Eventually(t, func() bool { return tr.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}
