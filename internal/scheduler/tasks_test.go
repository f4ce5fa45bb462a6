package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/TheMich157/whitelisthub/internal/bridge"
	"github.com/TheMich157/whitelisthub/internal/whitelist"
)

type fakeSink struct {
	mu     sync.Mutex
	ready  bool
	states []bridge.StatePayload
}

func (f *fakeSink) IsReady() bool { return f.ready }

func (f *fakeSink) SendState(p bridge.StatePayload) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, p)
}

type listStore struct {
	whitelist.Store
	users []string
	err   error
}

func (l *listStore) List(context.Context) (*whitelist.Status, error) {
	if l.err != nil {
		return nil, l.err
	}
	return &whitelist.Status{Count: len(l.users), Users: l.users}, nil
}

func TestStateSnapshotTask(t *testing.T) {
	sink := &fakeSink{}
	store := &listStore{users: []string{"Notch"}}
	task := NewStateSnapshotTask(sink, store, func() []string { return []string{"Steve"} }, 10*time.Second)

	if task.ID != TaskStateSnapshot {
		t.Errorf("Expected ID %s, got %s", TaskStateSnapshot, task.ID)
	}

	// Not ready: nothing sent
	if err := task.Func(context.Background()); err != nil {
		t.Fatalf("task failed: %v", err)
	}
	if len(sink.states) != 0 {
		t.Fatal("snapshot sent while sink not ready")
	}

	sink.ready = true
	if err := task.Func(context.Background()); err != nil {
		t.Fatalf("task failed: %v", err)
	}
	if len(sink.states) != 1 {
		t.Fatalf("Expected 1 snapshot, got %d", len(sink.states))
	}
	got := sink.states[0]
	if got.OnlineCount != 1 || got.WhitelistCount != 1 || got.Whitelist[0] != "Notch" {
		t.Errorf("unexpected snapshot %+v", got)
	}

	store.err = errors.New("disk gone")
	if err := task.Func(context.Background()); err == nil {
		t.Error("Expected list error to surface")
	}
}

type fakePruner struct {
	n   int64
	err error
}

func (f *fakePruner) Prune(context.Context) (int64, error) { return f.n, f.err }

func TestAuditPruneTask(t *testing.T) {
	task := NewAuditPruneTask(&fakePruner{n: 3}, Daily(3, 0), nil)
	if !task.RunOnStart {
		t.Error("audit prune should run on start")
	}
	if err := task.Func(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	task = NewAuditPruneTask(&fakePruner{err: errors.New("locked")}, Daily(3, 0), nil)
	if err := task.Func(context.Background()); err == nil {
		t.Error("Expected prune error")
	}
}

func TestCertRenewTask(t *testing.T) {
	calls := 0
	task := NewCertRenewTask(func(context.Context) error {
		calls++
		return nil
	}, 12*time.Hour)
	if task.ID != TaskCertRenew || task.RunOnStart {
		t.Errorf("unexpected task %+v", task)
	}
	if err := task.Func(context.Background()); err != nil || calls != 1 {
		t.Errorf("Func() = %v, calls = %d", err, calls)
	}
}
