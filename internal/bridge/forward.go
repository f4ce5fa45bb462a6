package bridge

import (
	"context"
	"sort"

	"github.com/TheMich157/whitelisthub/internal/events"
	"github.com/TheMich157/whitelisthub/internal/whitelist"
)

// Forward relays player events from hub until ctx is done.
func (b *Bridge) Forward(ctx context.Context, hub *events.Hub) {
	ch := hub.Subscribe(256, events.PlayerEvents...)
	defer hub.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-ch:
			b.SendEvent(string(e.Type), e.Data)
		}
	}
}

// BuildState assembles a snapshot from the store and the online player list.
func BuildState(ctx context.Context, store whitelist.Store, online []string) (StatePayload, error) {
	st, err := store.List(ctx)
	if err != nil {
		return StatePayload{}, err
	}
	players := append([]string{}, online...)
	sort.Strings(players)
	return StatePayload{
		OnlineCount:    len(players),
		WhitelistCount: st.Count,
		OnlinePlayers:  players,
		Whitelist:      append([]string{}, st.Users...),
	}, nil
}
