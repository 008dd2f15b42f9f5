package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestMixChunksMean(t *testing.T) {
	out := mixChunks([][]int16{
		{100, -100, 0, 30},
		{300, -300, 0, 60},
	})
	assert.Equal(t, []int16{200, -200, 0, 45}, out)
}

func TestMixChunksSingleSourcePassthrough(t *testing.T) {
	out := mixChunks([][]int16{{1, 2, 3}})
	assert.Equal(t, []int16{1, 2, 3}, out)
}

func TestMixChunksTruncatesToMinimum(t *testing.T) {
	out := mixChunks([][]int16{
		{10, 10, 10, 10},
		{20, 20},
	})
	assert.Equal(t, []int16{15, 15}, out)
}

func TestMixChunksEmpty(t *testing.T) {
	assert.Nil(t, mixChunks(nil))
	assert.Nil(t, mixChunks([][]int16{}))
}

func TestMixChunksClips(t *testing.T) {
	// The mean of N equal values is the value itself, so clipping only
	// matters at the extremes.
	out := mixChunks([][]int16{{32767, -32768}, {32767, -32768}})
	assert.Equal(t, []int16{32767, -32768}, out)
}

func TestMixChunksProperties(t *testing.T) {
	gen := rapid.SliceOfN(rapid.Int16(), 1, 256)
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 6).Draw(t, "sources")
		sources := make([][]int16, n)
		minLen := -1
		for i := range sources {
			sources[i] = gen.Draw(t, "pcm")
			if minLen < 0 || len(sources[i]) < minLen {
				minLen = len(sources[i])
			}
		}
		out := mixChunks(sources)
		if len(out) != minLen {
			t.Fatalf("output length %d, want min source length %d", len(out), minLen)
		}
		// The mean of int16 values always lies inside the int16 range, and
		// the mix must never leave it.
		for i, s := range out {
			lo, hi := sources[0][i], sources[0][i]
			for _, src := range sources[1:] {
				if src[i] < lo {
					lo = src[i]
				}
				if src[i] > hi {
					hi = src[i]
				}
			}
			if s < lo || s > hi {
				t.Fatalf("sample %d: mix %d outside source range [%d, %d]", i, s, lo, hi)
			}
		}
	})
}

func TestPCM16RoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 1234}
	assert.Equal(t, samples, decodePCM16(encodePCM16(samples)))
}

func TestDecodePCM16DropsOddByte(t *testing.T) {
	out := decodePCM16([]byte{0x01, 0x00, 0xFF})
	assert.Equal(t, []int16{1}, out)
}

func TestDecodePCM16LittleEndian(t *testing.T) {
	out := decodePCM16([]byte{0x34, 0x12})
	assert.Equal(t, []int16{0x1234}, out)
}

func TestAudioBufferEviction(t *testing.T) {
	buf := NewAudioBuffer()
	now := time.Now()

	buf.Put(0, []int16{1}, now.Add(-StaleChunkAge-time.Millisecond))
	buf.Put(1, []int16{2}, now)

	buf.EvictStale(now.Add(-StaleChunkAge))
	chunks := buf.Snapshot()

	_, stale := chunks[0]
	_, fresh := chunks[1]
	require.False(t, stale, "stale chunk must be evicted")
	require.True(t, fresh, "fresh chunk must survive")
}

func TestAudioBufferLatestWins(t *testing.T) {
	buf := NewAudioBuffer()
	buf.Put(0, []int16{1}, time.Now())
	buf.Put(0, []int16{2}, time.Now())
	assert.Equal(t, []int16{2}, buf.Snapshot()[0])
}

func TestMixIntervalCadence(t *testing.T) {
	// ~23.2 ms at 1024 samples / 44100 Hz.
	assert.InDelta(t, 23.2, float64(MixInterval.Microseconds())/1000, 0.1)
}
