package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"huddle/hub/store"
)

// Hub is the conferencing switchboard: six endpoints over shared in-memory
// state. Each guarded structure has its own leaf-level lock; no worker ever
// holds two, and no lock is held across a network write.
type Hub struct {
	cfg    Config
	reg    *Registry
	store  *store.Store
	screen *ScreenCoordinator
	video  *VideoBuffer
	audio  *AudioBuffer

	closing atomic.Bool

	// Traffic counters since the last Stats call.
	statDatagrams atomic.Uint64
	statBytes     atomic.Uint64
}

func NewHub(cfg Config, st *store.Store) *Hub {
	h := &Hub{
		cfg:   cfg,
		reg:   NewRegistry(),
		store: st,
		video: NewVideoBuffer(),
		audio: NewAudioBuffer(),
	}
	h.screen = NewScreenCoordinator(h.reg)
	return h
}

// countForward accumulates fan-out counters: n datagrams of size bytes each.
func (h *Hub) countForward(endpoint string, n, size int) {
	if n == 0 {
		return
	}
	datagramsForwarded.WithLabelValues(endpoint).Add(float64(n))
	bytesForwarded.WithLabelValues(endpoint).Add(float64(n * size))
	h.statDatagrams.Add(uint64(n))
	h.statBytes.Add(uint64(n * size))
}

// Stats returns accumulated datagram/byte counts since the last call and
// resets them.
func (h *Hub) Stats() (datagrams, bytes uint64) {
	return h.statDatagrams.Swap(0), h.statBytes.Swap(0)
}

// Run binds all endpoints, spawns the workers, and blocks until ctx is
// canceled. A bind failure tears down whatever was already bound and is the
// only error surfaced globally.
func (h *Hub) Run(ctx context.Context) error {
	var closers []func() error
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	listenTCP := func(port int) (*net.TCPListener, error) {
		ln, err := net.Listen("tcp", h.cfg.addr(port))
		if err != nil {
			return nil, fmt.Errorf("bind tcp %s: %w", h.cfg.addr(port), err)
		}
		closers = append(closers, ln.Close)
		return ln.(*net.TCPListener), nil
	}
	listenUDP := func(port int) (*net.UDPConn, error) {
		addr, err := net.ResolveUDPAddr("udp", h.cfg.addr(port))
		if err != nil {
			return nil, err
		}
		conn, err := net.ListenUDP("udp", addr)
		if err != nil {
			return nil, fmt.Errorf("bind udp %s: %w", h.cfg.addr(port), err)
		}
		closers = append(closers, conn.Close)
		return conn, nil
	}

	controlLn, err := listenTCP(h.cfg.ControlPort)
	if err != nil {
		return err
	}
	videoConn, err := listenUDP(h.cfg.VideoPort)
	if err != nil {
		closeAll()
		return err
	}
	audioConn, err := listenUDP(h.cfg.AudioPort)
	if err != nil {
		closeAll()
		return err
	}
	screenLn, err := listenTCP(h.cfg.ScreenControlPort)
	if err != nil {
		closeAll()
		return err
	}
	screenConn, err := listenUDP(h.cfg.ScreenDataPort)
	if err != nil {
		closeAll()
		return err
	}
	fileLn, err := listenTCP(h.cfg.FilePort)
	if err != nil {
		closeAll()
		return err
	}

	slog.Info("hub listening",
		"control", controlLn.Addr(),
		"video", videoConn.LocalAddr(),
		"audio", audioConn.LocalAddr(),
		"screen_control", screenLn.Addr(),
		"screen_data", screenConn.LocalAddr(),
		"file", fileLn.Addr())

	var wg sync.WaitGroup
	worker := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	worker(func() { h.acceptLoop(controlLn, h.handleControl) })
	worker(func() { h.acceptLoop(screenLn, h.screen.HandleControl) })
	worker(func() { h.acceptLoop(fileLn, h.handleFile) })
	worker(func() { h.runVideo(videoConn) })
	worker(func() { h.runAudioRecv(audioConn) })
	worker(func() { h.runMixLoop(ctx, audioConn) })
	worker(func() { h.runScreenData(screenConn) })
	worker(func() { RunStatsLogger(ctx, h, statsInterval) })

	<-ctx.Done()
	slog.Info("hub shutting down")
	h.closing.Store(true)
	// Closing the control streams forces session workers to drain and exit;
	// closing the sockets unblocks acceptors and datagram readers.
	h.reg.CloseAll()
	closeAll()
	wg.Wait()
	slog.Info("hub stopped")
	return nil
}

// acceptLoop accepts stream connections until shutdown, one worker per
// connection. Short accept deadlines keep the loop responsive to the
// closing flag even if the listener close races.
func (h *Hub) acceptLoop(ln *net.TCPListener, handler func(net.Conn)) {
	for {
		if h.closing.Load() {
			return
		}
		ln.SetDeadline(time.Now().Add(acceptDeadline))
		conn, err := ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if !h.closing.Load() {
				slog.Warn("accept", "addr", ln.Addr(), "err", err)
			}
			return
		}
		go handler(conn)
	}
}
