package main

import (
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"
)

// ErrHubFull is returned by Register when MaxUsers participants are joined.
var ErrHubFull = errors.New("hub is full")

// AddrKind names one of a participant's learned datagram address slots.
type AddrKind int

const (
	AddrVideo AddrKind = iota
	AddrAudio
	AddrScreen
)

// Participant is a joined end user: a live control stream plus the peer
// addresses learned from the first packet on each media endpoint.
type Participant struct {
	ID       uint32
	Username string
	JoinedAt time.Time

	conn net.Conn   // control stream
	wmu  sync.Mutex // serializes writes so notices stay in issue order

	// Address slots, guarded by the registry mutex. Each is nil until the
	// corresponding endpoint sees a packet bearing this participant's ID.
	video  *net.UDPAddr
	audio  *net.UDPAddr
	screen *net.UDPAddr
}

// SendLine writes one newline-terminated notice to the control stream. On a
// write error the stream is closed, which makes the session's reader worker
// exit and deregister the participant; the error never propagates to other
// sessions.
func (p *Participant) SendLine(line string) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	if _, err := p.conn.Write([]byte(line + "\n")); err != nil {
		p.conn.Close()
		return err
	}
	return nil
}

// Close closes the control stream.
func (p *Participant) Close() {
	p.conn.Close()
}

// Registry holds all joined participants. It owns ID assignment and the
// join-ordered roster. The mutex is leaf-level: no network write ever
// happens while it is held.
type Registry struct {
	mu           sync.RWMutex
	participants map[uint32]*Participant
	order        []uint32 // join order, for roster encoding
	nextID       uint32
}

func NewRegistry() *Registry {
	return &Registry{
		participants: make(map[uint32]*Participant),
	}
}

// Register assigns the next participant ID and inserts the record, all under
// one critical section. IDs start at 0 and are unique for the process
// lifetime. Returns ErrHubFull at MaxUsers.
func (r *Registry) Register(conn net.Conn, username string) (*Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.participants) >= MaxUsers {
		return nil, ErrHubFull
	}
	p := &Participant{
		ID:       r.nextID,
		Username: username,
		JoinedAt: time.Now(),
		conn:     conn,
	}
	r.nextID++
	r.participants[p.ID] = p
	r.order = append(r.order, p.ID)

	participantsGauge.Set(float64(len(r.participants)))
	slog.Info("participant joined", "id", p.ID, "username", username, "total", len(r.participants))
	return p, nil
}

// Deregister removes the participant. Idempotent; returns the removed record
// or nil if the ID was not present.
func (r *Registry) Deregister(id uint32) *Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[id]
	if !ok {
		return nil
	}
	delete(r.participants, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	participantsGauge.Set(float64(len(r.participants)))
	slog.Info("participant left", "id", id, "username", p.Username, "total", len(r.participants))
	return p
}

// Lookup returns the participant with the given ID.
func (r *Registry) Lookup(id uint32) (*Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[id]
	return p, ok
}

// Count returns the current number of joined participants.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}

// Snapshot returns the roster in join order.
func (r *Registry) Snapshot() []RosterEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]RosterEntry, 0, len(r.order))
	for _, id := range r.order {
		if p, ok := r.participants[id]; ok {
			out = append(out, RosterEntry{ID: p.ID, Username: p.Username})
		}
	}
	return out
}

// SetAddr records a learned datagram source address in the participant's
// slot for the given endpoint. Overwrites on every call, so a restarted
// client's new source port takes effect immediately. Unknown IDs are
// ignored.
func (r *Registry) SetAddr(id uint32, kind AddrKind, addr *net.UDPAddr) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[id]
	if !ok {
		return
	}
	switch kind {
	case AddrVideo:
		p.video = addr
	case AddrAudio:
		p.audio = addr
	case AddrScreen:
		p.screen = addr
	}
}

// Addr returns the participant's learned address for the given endpoint, or
// nil when not yet learned.
func (r *Registry) Addr(id uint32, kind AddrKind) *net.UDPAddr {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.participants[id]
	if !ok {
		return nil
	}
	switch kind {
	case AddrVideo:
		return p.video
	case AddrAudio:
		return p.audio
	case AddrScreen:
		return p.screen
	}
	return nil
}

// mediaTarget pairs a participant ID with its learned address for fan-out.
type mediaTarget struct {
	id   uint32
	addr *net.UDPAddr
}

// mediaTargets snapshots every participant whose slot for the given endpoint
// is populated, excluding excludeID. Pass excludeID beyond the ID range
// (e.g. ^uint32(0) before any join) to exclude nobody.
func (r *Registry) mediaTargets(kind AddrKind, excludeID uint32) []mediaTarget {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]mediaTarget, 0, len(r.participants))
	for id, p := range r.participants {
		if id == excludeID {
			continue
		}
		var addr *net.UDPAddr
		switch kind {
		case AddrVideo:
			addr = p.video
		case AddrAudio:
			addr = p.audio
		case AddrScreen:
			addr = p.screen
		}
		if addr != nil {
			out = append(out, mediaTarget{id: id, addr: addr})
		}
	}
	return out
}

// Sessions returns a snapshot of all participants, safe to iterate after the
// lock is released.
func (r *Registry) Sessions() []*Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, p)
	}
	return out
}

// BroadcastLine sends one notice to every live session. The registry lock is
// released before any write; per-session failures close only that session.
func (r *Registry) BroadcastLine(line string) {
	for _, p := range r.Sessions() {
		if err := p.SendLine(line); err != nil {
			slog.Debug("notice dropped", "id", p.ID, "err", err)
		}
	}
}

// BroadcastRoster issues a USERS notice reflecting the registry state at
// this instant. Must be called after the triggering change has committed.
func (r *Registry) BroadcastRoster() {
	r.BroadcastLine(buildUsersNotice(r.Snapshot()))
}

// CloseAll closes every control stream, forcing session workers to drain and
// exit. Used during shutdown.
func (r *Registry) CloseAll() {
	for _, p := range r.Sessions() {
		p.Close()
	}
}
