package ws

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/arklim/social-platform-messenger/internal/core/domain"
)

type stubPeer struct{}

func (stubPeer) SendPayload(context.Context, any) error { return nil }

func TestRegistryPutGetRemove(t *testing.T) {
	registry := NewRegistry()

	session := registry.Put("c1", stubPeer{})
	if session == nil || session.ID != "c1" {
		t.Fatal("put did not return the session")
	}
	if registry.Get("c1") != session {
		t.Fatal("get did not return the registered session")
	}
	if registry.Len() != 1 {
		t.Fatalf("expected one session, got %d", registry.Len())
	}

	registry.Remove("c1")
	if registry.Get("c1") != nil {
		t.Fatal("session survived removal")
	}
	registry.Remove("c1")
}

func TestRegistryBindUserLastWriteWins(t *testing.T) {
	registry := NewRegistry()
	registry.Put("old", stubPeer{})
	registry.Put("new", stubPeer{})

	if !registry.BindUser("old", 7) {
		t.Fatal("first bind failed")
	}
	// Rebinding the same pair is a no-op.
	if !registry.BindUser("old", 7) {
		t.Fatal("idempotent rebind failed")
	}
	if registry.ResolveUser(7).ID != "old" {
		t.Fatal("user not bound to the first connection")
	}

	// A login from a second device steals the binding.
	if !registry.BindUser("new", 7) {
		t.Fatal("second bind failed")
	}
	if registry.ResolveUser(7).ID != "new" {
		t.Fatal("last write did not win")
	}
	if registry.UserOf("old") != 0 {
		t.Fatal("superseded session still claims the user")
	}

	// Closing the superseded connection must not evict the newer binding.
	registry.Remove("old")
	if resolved := registry.ResolveUser(7); resolved == nil || resolved.ID != "new" {
		t.Fatal("removing the old connection dropped the new binding")
	}

	registry.Remove("new")
	if registry.ResolveUser(7) != nil {
		t.Fatal("user index survived its connection")
	}
}

func TestRegistryBindUnknownConnection(t *testing.T) {
	registry := NewRegistry()
	if registry.BindUser("ghost", 7) {
		t.Fatal("bound a user to a connection that does not exist")
	}
	if registry.UserOf("ghost") != 0 {
		t.Fatal("resolved a user on a connection that does not exist")
	}
	if registry.SetPending("ghost", nil) {
		t.Fatal("set a challenge on a connection that does not exist")
	}
}

func TestRegistryPendingReplaceAndTake(t *testing.T) {
	registry := NewRegistry()
	registry.Put("c1", stubPeer{})

	first := &domain.PendingVerification{AccountID: 1, Code: 11111111}
	second := &domain.PendingVerification{AccountID: 1, Code: 22222222}

	registry.SetPending("c1", first)
	registry.SetPending("c1", second)

	if got := registry.Pending("c1"); got == nil || got.Code != second.Code {
		t.Fatal("new challenge did not replace the prior one")
	}

	if got := registry.TakePending("c1"); got == nil || got.Code != second.Code {
		t.Fatal("take returned the wrong challenge")
	}
	if registry.Pending("c1") != nil {
		t.Fatal("challenge survived take")
	}
	if registry.TakePending("c1") != nil {
		t.Fatal("second take returned a challenge")
	}
}

// A login stealing the binding from another device writes the superseded
// session's state while that connection's read loop keeps consulting it.
// Both paths must synchronize through the registry; run with -race.
func TestRegistryBindStealDuringReads(t *testing.T) {
	registry := NewRegistry()
	registry.Put("c1", stubPeer{})
	registry.Put("c2", stubPeer{})

	stop := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			_ = registry.UserOf("c1")
			_ = registry.ResolveUser(42)
		}
	}()

	for i := 0; i < 200; i++ {
		registry.BindUser("c2", 42)
		registry.BindUser("c1", 42)
	}
	close(stop)
	wg.Wait()

	if registry.UserOf("c1") != 42 {
		t.Fatal("final bind did not stick")
	}
	if registry.UserOf("c2") != 0 {
		t.Fatal("superseded session still claims the user")
	}
}

func TestRegistryConcurrentBind(t *testing.T) {
	registry := NewRegistry()
	const workers = 16

	ids := make([]string, workers)
	for i := range ids {
		ids[i] = string(rune('a' + i))
		registry.Put(ids[i], stubPeer{})
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			registry.BindUser(id, 7)
		}(id)
	}
	wg.Wait()

	winner := registry.ResolveUser(7)
	if winner == nil {
		t.Fatal("no session won the bind race")
	}

	// Exactly one session may claim the user afterwards.
	claims := 0
	for _, id := range ids {
		if registry.UserOf(id) != 0 {
			claims++
		}
	}
	if claims != 1 {
		t.Fatalf("expected exactly one authenticated session, got %d", claims)
	}

	// Closing the winner within bounded time releases the index.
	done := make(chan struct{})
	go func() {
		registry.Remove(winner.ID)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("remove did not complete")
	}
	if registry.ResolveUser(7) != nil {
		t.Fatal("user index survived the winner's removal")
	}
}
