package main

import "time"

// Operational limits — named constants for values that would otherwise be
// scattered across multiple source files.
const (
	// MaxUsers is the maximum number of concurrently joined participants.
	MaxUsers = 10

	// MaxFileSize is the maximum declared size for a single upload (100 MiB).
	MaxFileSize = 100 << 20

	// MaxNameLength is the maximum UTF-8 byte length for a username.
	MaxNameLength = 50

	// MaxDatagram is the largest UDP payload the media endpoints will read.
	// Bounded by the IPv4 UDP maximum.
	MaxDatagram = 65507

	// SampleRate is the negotiated audio sample rate in Hz.
	SampleRate = 44100

	// ChunkSamples is the number of 16-bit mono samples per audio chunk.
	ChunkSamples = 1024

	// MixInterval is the audio mix cadence: one chunk's worth of wall time
	// (~23 ms at 1024/44100).
	MixInterval = time.Duration(ChunkSamples) * time.Second / SampleRate

	// StaleChunkAge is how old a buffered audio chunk may grow before it is
	// evicted and stops contributing to mixes.
	StaleChunkAge = 500 * time.Millisecond

	// acceptDeadline is the accept timeout on stream listeners, so acceptor
	// workers observe shutdown promptly.
	acceptDeadline = 2 * time.Second

	// statsInterval is how often the periodic stats logger reports
	// datagram/byte counters.
	statsInterval = 30 * time.Second
)
