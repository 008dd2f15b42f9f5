package main

import (
	"net"
	"testing"
)

func newLeaseFixture(t *testing.T) (*ScreenCoordinator, *Participant, *Participant) {
	t.Helper()
	reg := NewRegistry()
	a, err := reg.Register(quietConn(t), "alice")
	if err != nil {
		t.Fatalf("register alice: %v", err)
	}
	b, err := reg.Register(quietConn(t), "bob")
	if err != nil {
		t.Fatalf("register bob: %v", err)
	}
	return NewScreenCoordinator(reg), a, b
}

func TestLeaseFirstComeFirstServed(t *testing.T) {
	sc, a, b := newLeaseFixture(t)

	granted, holder := sc.Acquire(a.ID, nil)
	if !granted || holder != a.ID {
		t.Fatalf("alice acquire = (%v, %d), want granted", granted, holder)
	}

	granted, holder = sc.Acquire(b.ID, nil)
	if granted {
		t.Fatal("bob must be denied while alice holds the lease")
	}
	if holder != a.ID {
		t.Fatalf("denied reply names holder %d, want %d", holder, a.ID)
	}
}

func TestLeaseReacquireIdempotent(t *testing.T) {
	sc, a, _ := newLeaseFixture(t)

	sc.Acquire(a.ID, nil)
	granted, _ := sc.Acquire(a.ID, nil)
	if !granted {
		t.Fatal("re-acquire by the holder must be granted")
	}
}

func TestLeaseReleaseOnlyByHolder(t *testing.T) {
	sc, a, b := newLeaseFixture(t)
	sc.Acquire(a.ID, nil)

	if sc.Release(b.ID) {
		t.Fatal("non-holder release must be a no-op")
	}
	if _, held := sc.Holder(); !held {
		t.Fatal("lease should still be held")
	}

	if !sc.Release(a.ID) {
		t.Fatal("holder release must succeed")
	}
	if _, held := sc.Holder(); held {
		t.Fatal("lease should be free")
	}

	// Freed lease goes to the next requester.
	granted, _ := sc.Acquire(b.ID, nil)
	if !granted {
		t.Fatal("bob must get the freed lease")
	}
}

func TestLeaseDeniesUnknownParticipant(t *testing.T) {
	sc, _, _ := newLeaseFixture(t)
	granted, _ := sc.Acquire(42, nil)
	if granted {
		t.Fatal("a non-live ID must never hold the lease")
	}
}

func TestLeaseClearsFrameOnRelease(t *testing.T) {
	sc, a, _ := newLeaseFixture(t)
	sc.Acquire(a.ID, nil)
	sc.setFrame(a.ID, []byte{1, 2, 3})
	if sc.Frame() == nil {
		t.Fatal("frame should be buffered while lease is held")
	}

	sc.Release(a.ID)
	if sc.Frame() != nil {
		t.Fatal("frame must be cleared when the lease becomes free")
	}
}

func TestLeaseIgnoresFrameFromNonHolder(t *testing.T) {
	sc, a, b := newLeaseFixture(t)
	sc.Acquire(a.ID, nil)
	sc.setFrame(b.ID, []byte{9})
	if sc.Frame() != nil {
		t.Fatal("non-holder frames must not be buffered")
	}
}

func TestLeaseStaleStreamDoesNotReleaseReconnect(t *testing.T) {
	sc, a, _ := newLeaseFixture(t)

	oldStream, p1 := net.Pipe()
	newStream, p2 := net.Pipe()
	defer oldStream.Close()
	defer newStream.Close()
	defer p1.Close()
	defer p2.Close()

	sc.Acquire(a.ID, oldStream)
	// Presenter reconnects: the new stream adopts the lease.
	granted, _ := sc.Acquire(a.ID, newStream)
	if !granted {
		t.Fatal("reconnect by the holder must be granted")
	}

	// The old stream's teardown must not release the new grant.
	if sc.releaseConn(a.ID, oldStream) {
		t.Fatal("stale stream released the reconnected lease")
	}
	if _, held := sc.Holder(); !held {
		t.Fatal("lease should survive the stale stream's close")
	}

	if !sc.releaseConn(a.ID, newStream) {
		t.Fatal("active stream close must release")
	}
}
