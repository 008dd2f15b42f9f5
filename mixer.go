package main

import (
	"context"
	"encoding/binary"
	"log/slog"
	"net"
	"sync"
	"time"
)

// audioChunk is the latest PCM from one participant plus its receive time.
type audioChunk struct {
	pcm []int16
	at  time.Time
}

// AudioBuffer holds the single most recent audio chunk per participant. The
// mixer never queues: only the latest chunk is ever consulted, and chunks
// past StaleChunkAge are evicted before every mix.
type AudioBuffer struct {
	mu     sync.Mutex
	chunks map[uint32]audioChunk
}

func NewAudioBuffer() *AudioBuffer {
	return &AudioBuffer{chunks: make(map[uint32]audioChunk)}
}

func (b *AudioBuffer) Put(id uint32, pcm []int16, at time.Time) {
	b.mu.Lock()
	b.chunks[id] = audioChunk{pcm: pcm, at: at}
	b.mu.Unlock()
}

func (b *AudioBuffer) Remove(id uint32) {
	b.mu.Lock()
	delete(b.chunks, id)
	b.mu.Unlock()
}

// EvictStale drops chunks received before cutoff.
func (b *AudioBuffer) EvictStale(cutoff time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, c := range b.chunks {
		if c.at.Before(cutoff) {
			delete(b.chunks, id)
		}
	}
}

// Snapshot returns the current chunks keyed by sender.
func (b *AudioBuffer) Snapshot() map[uint32][]int16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[uint32][]int16, len(b.chunks))
	for id, c := range b.chunks {
		out[id] = c.pcm
	}
	return out
}

// decodePCM16 interprets b as 16-bit signed little-endian mono samples. An
// odd trailing byte is discarded.
func decodePCM16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
	}
	return out
}

// encodePCM16 is the inverse of decodePCM16.
func encodePCM16(samples []int16) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

// mixChunks produces the element-wise arithmetic mean of the sources,
// truncated to the shortest source and clipped to the int16 range. UDP loss
// and reordering mean per-sender chunks can differ in length within a tick;
// truncating to the minimum preserves phase. Returns nil when sources is
// empty.
func mixChunks(sources [][]int16) []int16 {
	if len(sources) == 0 {
		return nil
	}
	minLen := len(sources[0])
	for _, s := range sources[1:] {
		if len(s) < minLen {
			minLen = len(s)
		}
	}
	out := make([]int16, minLen)
	n := float64(len(sources))
	for i := 0; i < minLen; i++ {
		var sum float64
		for _, s := range sources {
			sum += float64(s[i])
		}
		mean := sum / n
		switch {
		case mean > 32767:
			out[i] = 32767
		case mean < -32768:
			out[i] = -32768
		default:
			out[i] = int16(mean)
		}
	}
	return out
}

// runAudioRecv is the audio datagram worker. Each packet is a 4-byte
// little-endian participant ID followed by raw PCM. It records the sender's
// audio slot and buffers the chunk; mixing happens on the mix ticker, not on
// the receive path.
func (h *Hub) runAudioRecv(conn *net.UDPConn) {
	buf := make([]byte, MaxDatagram)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if h.closing.Load() {
				return
			}
			slog.Warn("audio recv", "err", err)
			return
		}
		if n < 4 {
			continue
		}
		id := binary.LittleEndian.Uint32(buf[:4])
		h.reg.SetAddr(id, AddrAudio, addr)
		h.audio.Put(id, decodePCM16(buf[4:n]), time.Now())
	}
}

// runMixLoop emits per-listener mixes every MixInterval until ctx is
// canceled.
func (h *Hub) runMixLoop(ctx context.Context, conn *net.UDPConn) {
	ticker := time.NewTicker(MixInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.mixTick(conn, time.Now())
		}
	}
}

// mixTick performs one mix cycle: evict stale chunks, then for every
// listener with a known audio address send the mean of all OTHER
// participants' fresh chunks. A listener's own contribution is never in its
// mix. The output carries no ID envelope, just raw PCM.
func (h *Hub) mixTick(conn *net.UDPConn, now time.Time) {
	h.audio.EvictStale(now.Add(-StaleChunkAge))
	chunks := h.audio.Snapshot()
	if len(chunks) == 0 {
		return
	}
	mixTicks.Inc()

	for _, listener := range h.reg.mediaTargets(AddrAudio, noExclude) {
		sources := make([][]int16, 0, len(chunks))
		for senderID, pcm := range chunks {
			if senderID == listener.id || len(pcm) == 0 {
				continue
			}
			sources = append(sources, pcm)
		}
		mixed := mixChunks(sources)
		if mixed == nil {
			continue
		}
		if _, err := conn.WriteToUDP(encodePCM16(mixed), listener.addr); err != nil {
			slog.Debug("mix send dropped", "to", listener.id, "err", err)
		}
	}
}
