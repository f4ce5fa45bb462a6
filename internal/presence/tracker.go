// Package presence keeps the set of players currently online.
package presence

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/TheMich157/whitelisthub/internal/events"
	"github.com/TheMich157/whitelisthub/internal/metrics"
)

// Tracker follows join and quit events. Names are matched case-insensitively
// and reported with the casing of the most recent join.
type Tracker struct {
	mu     sync.RWMutex
	online map[string]string
}

func NewTracker() *Tracker {
	return &Tracker{online: make(map[string]string)}
}

// Run consumes hub events until ctx is done.
func (t *Tracker) Run(ctx context.Context, hub *events.Hub) {
	ch := hub.Subscribe(256, events.EventPlayerJoin, events.EventPlayerQuit)
	defer hub.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-ch:
			p, ok := e.Data.(events.PlayerData)
			if !ok {
				continue
			}
			switch e.Type {
			case events.EventPlayerJoin:
				t.Join(p.Player)
			case events.EventPlayerQuit:
				t.Quit(p.Player)
			}
		}
	}
}

func (t *Tracker) Join(name string) {
	if name == "" {
		return
	}
	t.mu.Lock()
	t.online[strings.ToLower(name)] = name
	n := len(t.online)
	t.mu.Unlock()
	metrics.Get().OnlinePlayers.Set(float64(n))
}

func (t *Tracker) Quit(name string) {
	t.mu.Lock()
	delete(t.online, strings.ToLower(name))
	n := len(t.online)
	t.mu.Unlock()
	metrics.Get().OnlinePlayers.Set(float64(n))
}

// Reset forgets everyone, e.g. when the server restarts.
func (t *Tracker) Reset() {
	t.mu.Lock()
	clear(t.online)
	t.mu.Unlock()
	metrics.Get().OnlinePlayers.Set(0)
}

// Online returns the sorted list of online players.
func (t *Tracker) Online() []string {
	t.mu.RLock()
	out := make([]string, 0, len(t.online))
	for _, name := range t.online {
		out = append(out, name)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i]) < strings.ToLower(out[j]) })
	return out
}

func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.online)
}
