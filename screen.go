package main

import (
	"bytes"
	"encoding/binary"
	"io"
	"log/slog"
	"net"
	"sync"
)

// ScreenCoordinator owns the single-slot presenter lease and the latest
// screen frame. The lease is first-come-first-served and never preempted.
//
// Lock discipline: the mutex guards only the lease and frame. PRESENTER
// notices are always broadcast after the mutex is released — holding it
// across writes to arbitrarily many control streams would be a deadlock
// risk.
type ScreenCoordinator struct {
	reg *Registry

	mu        sync.Mutex
	holder    uint32
	hasHolder bool
	ctrl      net.Conn // active screen-control stream, nil for control-channel grants
	frame     []byte   // latest screen payload from the holder
}

func NewScreenCoordinator(reg *Registry) *ScreenCoordinator {
	return &ScreenCoordinator{reg: reg}
}

// Acquire attempts to take the lease for id over the given control stream
// (nil when the request arrived on the participant's main control session).
// A re-acquire by the current holder is idempotent and adopts the new
// stream, so a client can resume presenting after a brief disconnect.
// Returns whether the lease was granted and the current holder.
func (s *ScreenCoordinator) Acquire(id uint32, conn net.Conn) (bool, uint32) {
	if _, ok := s.reg.Lookup(id); !ok {
		// The lease must always name a live participant.
		s.mu.Lock()
		holder := s.holder
		s.mu.Unlock()
		return false, holder
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasHolder && s.holder != id {
		return false, s.holder
	}
	s.holder = id
	s.hasHolder = true
	if conn != nil {
		s.ctrl = conn
	}
	return true, id
}

// Release frees the lease if id holds it, clearing the buffered frame.
// Returns whether a release happened.
func (s *ScreenCoordinator) Release(id uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasHolder || s.holder != id {
		return false
	}
	s.hasHolder = false
	s.ctrl = nil
	s.frame = nil
	return true
}

// releaseConn frees the lease on stream teardown, but only if conn is still
// the lease's active stream. A stale stream left over from a presenter
// reconnect must not release the new grant.
func (s *ScreenCoordinator) releaseConn(id uint32, conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasHolder || s.holder != id || (s.ctrl != nil && s.ctrl != conn) {
		return false
	}
	s.hasHolder = false
	s.ctrl = nil
	s.frame = nil
	return true
}

// Holder returns the current leaseholder, if any.
func (s *ScreenCoordinator) Holder() (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holder, s.hasHolder
}

// setFrame stores the latest screen payload if id still holds the lease.
func (s *ScreenCoordinator) setFrame(id uint32, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasHolder && s.holder == id {
		s.frame = payload
	}
}

// Frame returns a copy of the latest screen payload, or nil.
func (s *ScreenCoordinator) Frame() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		return nil
	}
	return bytes.Clone(s.frame)
}

// HandleControl serves one screen-control stream: a 4-byte little-endian
// participant ID, answered with GRANTED or DENIED. After GRANTED the stream
// stays open; any received bytes containing "STOP" release the lease, as
// does closing the stream.
func (s *ScreenCoordinator) HandleControl(conn net.Conn) {
	defer conn.Close()

	var idBuf [4]byte
	if _, err := io.ReadFull(conn, idBuf[:]); err != nil {
		return
	}
	id := binary.LittleEndian.Uint32(idBuf[:])

	granted, _ := s.Acquire(id, conn)
	if !granted {
		conn.Write([]byte("DENIED"))
		return
	}
	if _, err := conn.Write([]byte("GRANTED")); err != nil {
		if s.releaseConn(id, conn) {
			s.reg.BroadcastLine(presenterNoneNotice)
		}
		return
	}
	slog.Info("presenter lease granted", "id", id)
	s.reg.BroadcastLine(buildPresenterNotice(id))

	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		if n > 0 && bytes.Contains(buf[:n], []byte("STOP")) {
			if s.releaseConn(id, conn) {
				slog.Info("presenter stopped", "id", id)
				s.reg.BroadcastLine(presenterNoneNotice)
			}
			return
		}
		if err != nil {
			if s.releaseConn(id, conn) {
				slog.Info("presenter stream closed", "id", id)
				s.reg.BroadcastLine(presenterNoneNotice)
			}
			return
		}
	}
}

// runScreenData is the screen datagram worker: it learns sender addresses,
// drops frames from anyone but the leaseholder, and fans leaseholder frames
// out to every participant with a known screen address — the presenter
// included, so their preview rides the same path. A zero-payload datagram is
// an address-registration beacon and is never forwarded.
func (h *Hub) runScreenData(conn *net.UDPConn) {
	buf := make([]byte, MaxDatagram)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if h.closing.Load() {
				return
			}
			slog.Warn("screen recv", "err", err)
			return
		}
		if n < 4 {
			continue
		}
		id := binary.LittleEndian.Uint32(buf[:4])
		h.reg.SetAddr(id, AddrScreen, addr)

		holder, ok := h.screen.Holder()
		if !ok || holder != id {
			continue
		}
		if n == 4 {
			continue // beacon: address learned, nothing to forward
		}
		pkt := bytes.Clone(buf[:n])
		h.screen.setFrame(id, pkt[4:])

		targets := h.reg.mediaTargets(AddrScreen, noExclude)
		for _, t := range targets {
			if _, err := conn.WriteToUDP(pkt, t.addr); err != nil {
				slog.Debug("screen send dropped", "to", t.id, "err", err)
			}
		}
		h.countForward("screen", len(targets), n)
	}
}
