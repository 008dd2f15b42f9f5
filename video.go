package main

import (
	"bytes"
	"encoding/binary"
	"log/slog"
	"net"
	"sync"
)

// noExclude is passed to mediaTargets when no participant should be skipped.
// Never a real ID: the counter would have to wrap first.
const noExclude = ^uint32(0)

// VideoBuffer keeps the most recent opaque frame per participant. Fan-out is
// stateless per packet; the buffer only feeds diagnostics. Entries are
// removed on departure.
type VideoBuffer struct {
	mu     sync.Mutex
	frames map[uint32][]byte
}

func NewVideoBuffer() *VideoBuffer {
	return &VideoBuffer{frames: make(map[uint32][]byte)}
}

func (b *VideoBuffer) Put(id uint32, frame []byte) {
	b.mu.Lock()
	b.frames[id] = frame
	b.mu.Unlock()
}

// Latest returns a copy of the most recent frame for id, or nil.
func (b *VideoBuffer) Latest(id uint32) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if f, ok := b.frames[id]; ok {
		return bytes.Clone(f)
	}
	return nil
}

func (b *VideoBuffer) Remove(id uint32) {
	b.mu.Lock()
	delete(b.frames, id)
	b.mu.Unlock()
}

// runVideo is the video datagram worker. Each packet is a 4-byte
// little-endian participant ID followed by an opaque frame. The source
// address is recorded in the sender's video slot (overwriting, so client
// restarts take effect), the frame is buffered, and the packet is forwarded
// verbatim to every other participant with a known video address. No
// ordering, no dedup, no ACK; send errors are swallowed.
func (h *Hub) runVideo(conn *net.UDPConn) {
	buf := make([]byte, MaxDatagram)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if h.closing.Load() {
				return
			}
			slog.Warn("video recv", "err", err)
			return
		}
		if n < 4 {
			continue
		}
		id := binary.LittleEndian.Uint32(buf[:4])
		h.reg.SetAddr(id, AddrVideo, addr)

		pkt := bytes.Clone(buf[:n])
		h.video.Put(id, pkt[4:])

		targets := h.reg.mediaTargets(AddrVideo, id)
		for _, t := range targets {
			if _, err := conn.WriteToUDP(pkt, t.addr); err != nil {
				slog.Debug("video send dropped", "to", t.id, "err", err)
			}
		}
		h.countForward("video", len(targets), n)
	}
}
