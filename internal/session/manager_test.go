package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestManagerCreateGetEnd(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create("cyan")
	if s.ID == "" {
		t.Fatalf("session ID should not be empty")
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Username != "cyan" || got.Status != StatusActive {
		t.Fatalf("unexpected session state: %+v", got)
	}

	ended, err := m.End(s.ID)
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if ended.Status != StatusEnded {
		t.Fatalf("ended status = %q, want %q", ended.Status, StatusEnded)
	}
	if _, err := m.Get(s.ID); err != ErrNotFound {
		t.Fatalf("Get() after End error = %v, want ErrNotFound", err)
	}
	if _, err := m.Touch(s.ID); err != ErrNotFound {
		t.Fatalf("Touch() after End error = %v, want ErrNotFound", err)
	}
}

func TestManagerEndUserEndsAllBrowsers(t *testing.T) {
	m := NewManager(time.Minute)
	a := m.Create("cyan")
	b := m.Create("cyan")
	other := m.Create("guest")

	if n := m.EndUser("cyan"); n != 2 {
		t.Fatalf("EndUser() = %d, want 2", n)
	}
	for _, id := range []string{a.ID, b.ID} {
		if _, err := m.Get(id); err != ErrNotFound {
			t.Fatalf("Get(%s) error = %v, want ErrNotFound", id, err)
		}
	}
	if _, err := m.Get(other.ID); err != nil {
		t.Fatalf("other user's session ended: %v", err)
	}
	if got := m.ActiveCount(); got != 1 {
		t.Fatalf("ActiveCount() = %d, want 1", got)
	}
}

func TestManagerJanitorExpiresInactive(t *testing.T) {
	m := NewManager(30 * time.Millisecond)
	s := m.Create("cyan")
	var expired atomic.Int32
	m.SetExpireHook(func(*Session) { expired.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, 10*time.Millisecond)

	time.Sleep(90 * time.Millisecond)
	if _, err := m.Get(s.ID); err != ErrNotFound {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
	if expired.Load() != 1 {
		t.Fatalf("expire hook calls = %d, want 1", expired.Load())
	}
}
