// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package framing

import (
	"bytes"
	"errors"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/Thermoquad/parhelion/pkg/ccsds"
)

func mustASCII(t *testing.T) *ASCII {
	t.Helper()
	a, err := NewASCII(DefaultASCIIConfig())
	if err != nil {
		t.Fatalf("NewASCII failed: %v", err)
	}
	return a
}

func mustPacket(t *testing.T, apid uint16, payload []byte) []byte {
	t.Helper()
	p, err := ccsds.Encode(ccsds.NewHeader(ccsds.TM, apid, 0, false), payload)
	if err != nil {
		t.Fatalf("ccsds.Encode failed: %v", err)
	}
	return p
}

// ============================================================
// Fixed Frame Tests
// ============================================================

func TestFixed_PartialFeeds(t *testing.T) {
	f, err := NewFixed(4, 0x00)
	if err != nil {
		t.Fatalf("NewFixed failed: %v", err)
	}

	frames, _ := f.Feed([]byte{1, 2, 3})
	if len(frames) != 0 {
		t.Fatalf("expected no frames from 3 bytes, got %d", len(frames))
	}
	if f.Buffered() != 3 {
		t.Errorf("Buffered = %d, want 3", f.Buffered())
	}

	frames, _ = f.Feed([]byte{4, 5, 6, 7, 8, 9})
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if !bytes.Equal(frames[0], []byte{1, 2, 3, 4}) || !bytes.Equal(frames[1], []byte{5, 6, 7, 8}) {
		t.Errorf("unexpected frames: % X", frames)
	}
	if f.Buffered() != 1 {
		t.Errorf("Buffered = %d, want 1", f.Buffered())
	}

	f.Reset()
	if f.Buffered() != 0 {
		t.Error("Reset did not clear buffer")
	}
}

func TestFixed_Frame(t *testing.T) {
	f, _ := NewFixed(6, 0xAA)

	frame, err := f.Frame([]byte{1, 2})
	if err != nil {
		t.Fatalf("Frame failed: %v", err)
	}
	if !bytes.Equal(frame, []byte{1, 2, 0xAA, 0xAA, 0xAA, 0xAA}) {
		t.Errorf("unexpected padding: % X", frame)
	}

	if _, err := f.Frame(make([]byte, 7)); !errors.Is(err, ErrFraming) {
		t.Errorf("expected ErrFraming for oversized packet, got %v", err)
	}
}

func TestFixed_InvalidSize(t *testing.T) {
	if _, err := NewFixed(0, 0); err == nil {
		t.Error("expected error for zero frame size")
	}
}

func TestFixed_CarriesPaddedPacket(t *testing.T) {
	f, _ := NewFixed(32, 0x00)
	packet := mustPacket(t, 0x10, []byte{9, 8, 7})

	frame, _ := f.Frame(packet)
	frames, _ := f.Feed(frame)
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if got := ccsds.TrimPadding(frames[0]); !bytes.Equal(got, packet) {
		t.Errorf("recovered % X, want % X", got, packet)
	}
}

// ============================================================
// ASCII Frame Tests
// ============================================================

func TestASCII_EscapesMarkers(t *testing.T) {
	a := mustASCII(t)
	payload := []byte{0x01, DefaultStart, DefaultStop, DefaultEscape, 0x42}

	frame, err := a.Frame(payload)
	if err != nil {
		t.Fatalf("Frame failed: %v", err)
	}
	expected := []byte{
		DefaultStart,
		0x01,
		DefaultEscape, DefaultStart ^ DefaultEscXor,
		DefaultEscape, DefaultStop ^ DefaultEscXor,
		DefaultEscape, DefaultEscape ^ DefaultEscXor,
		0x42,
		DefaultStop,
	}
	if !bytes.Equal(frame, expected) {
		t.Fatalf("frame mismatch:\n got % X\nwant % X", frame, expected)
	}

	frames, err := a.Feed(frame)
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if len(frames) != 1 || !bytes.Equal(frames[0], payload) {
		t.Errorf("expected original payload, got % X", frames)
	}
}

func TestASCII_ByteAtATime(t *testing.T) {
	a := mustASCII(t)
	payload := []byte{DefaultEscape, DefaultEscape, 0x00, DefaultStop}
	frame, _ := a.Frame(payload)

	var frames [][]byte
	for i, b := range frame {
		out, err := a.Feed([]byte{b})
		if err != nil {
			t.Fatalf("byte %d: %v", i, err)
		}
		frames = append(frames, out...)
		if i == 1 && a.State() != InEscape {
			t.Errorf("after escape byte expected InEscape, got %v", a.State())
		}
	}
	if len(frames) != 1 || !bytes.Equal(frames[0], payload) {
		t.Errorf("expected original payload, got % X", frames)
	}
	if a.State() != AwaitingStart {
		t.Errorf("expected AwaitingStart after stop, got %v", a.State())
	}
}

func TestASCII_MultipleFramesAndNoise(t *testing.T) {
	a := mustASCII(t)
	f1, _ := a.Frame([]byte{1, 2})
	f2, _ := a.Frame([]byte{3})

	stream := append([]byte{0xFF, 0x00}, f1...)
	stream = append(stream, 0x55)
	stream = append(stream, f2...)

	frames, err := a.Feed(stream)
	if err != nil {
		t.Fatalf("noise outside frames should be ignored, got %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
}

func TestASCII_StartInsideFrame(t *testing.T) {
	a := mustASCII(t)
	stream := []byte{DefaultStart, 0xAA, 0xBB, DefaultStart, 0xCC, DefaultStop}

	frames, err := a.Feed(stream)
	if !errors.Is(err, ErrFraming) {
		t.Errorf("expected ErrFraming, got %v", err)
	}
	if len(frames) != 1 || !bytes.Equal(frames[0], []byte{0xCC}) {
		t.Errorf("expected only the second frame, got % X", frames)
	}
}

func TestASCII_InvalidEscape(t *testing.T) {
	a := mustASCII(t)
	frames, err := a.Feed([]byte{DefaultStart, 0x01, DefaultEscape, 0x01, 0x02, DefaultStop})
	if !errors.Is(err, ErrFraming) {
		t.Errorf("expected ErrFraming, got %v", err)
	}
	if len(frames) != 0 {
		t.Errorf("expected corrupted frame to be dropped, got % X", frames)
	}

	// Parser recovers for the next frame
	frames, err = a.Feed([]byte{DefaultStart, 0x07, DefaultStop})
	if err != nil || len(frames) != 1 {
		t.Errorf("expected recovery, got %d frames err=%v", len(frames), err)
	}
}

func TestASCII_EscapeAtEndOfStream(t *testing.T) {
	a := mustASCII(t)
	if _, err := a.Feed([]byte{DefaultStart, 0x01, DefaultEscape}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.State() != InEscape {
		t.Fatalf("expected InEscape, got %v", a.State())
	}
	if err := a.Flush(); !errors.Is(err, ErrFraming) {
		t.Errorf("expected ErrFraming, got %v", err)
	}
	if a.State() != AwaitingStart {
		t.Errorf("Flush should reset state, got %v", a.State())
	}
	if err := a.Flush(); err != nil {
		t.Errorf("Flush while idle should succeed, got %v", err)
	}
}

func TestASCII_MaxFrameSize(t *testing.T) {
	cfg := DefaultASCIIConfig()
	cfg.MaxFrameSize = 4
	a, err := NewASCII(cfg)
	if err != nil {
		t.Fatalf("NewASCII failed: %v", err)
	}

	frames, err := a.Feed([]byte{DefaultStart, 1, 2, 3, 4, 5, 6, DefaultStop})
	if !errors.Is(err, ErrFraming) {
		t.Errorf("expected ErrFraming, got %v", err)
	}
	if len(frames) != 0 {
		t.Errorf("oversized frame must not be yielded")
	}
	if a.State() != AwaitingStart {
		t.Errorf("expected AwaitingStart, got %v", a.State())
	}

	frames, err = a.Feed([]byte{DefaultStart, 1, 2, 3, 4, DefaultStop})
	if err != nil || len(frames) != 1 {
		t.Errorf("frame at the limit should pass, got %d frames err=%v", len(frames), err)
	}

	if _, err := a.Frame(make([]byte, 5)); !errors.Is(err, ErrFraming) {
		t.Errorf("expected ErrFraming from Frame, got %v", err)
	}
}

func TestASCIIConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  ASCIIConfig
	}{
		{"duplicate markers", ASCIIConfig{Start: 1, Stop: 1, Escape: 2, EscXor: 0x40, MaxFrameSize: 10}},
		{"zero xor", ASCIIConfig{Start: 1, Stop: 2, Escape: 3, EscXor: 0, MaxFrameSize: 10}},
		{"escaped collides", ASCIIConfig{Start: 0x01, Stop: 0x41, Escape: 0x10, EscXor: 0x40, MaxFrameSize: 10}},
		{"no size", ASCIIConfig{Start: 1, Stop: 2, Escape: 3, EscXor: 0x40}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

// ============================================================
// Space Packet Splitter Tests
// ============================================================

func TestSpacePacket_Split(t *testing.T) {
	s := NewSpacePacket(0)
	p1 := mustPacket(t, 1, []byte{1, 2, 3})
	p2 := mustPacket(t, 2, bytes.Repeat([]byte{0x77}, 40))
	stream := append(append([]byte{}, p1...), p2...)

	frames, err := FeedAll(s, stream[:5], stream[5:20], stream[20:])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 2 || !bytes.Equal(frames[0], p1) || !bytes.Equal(frames[1], p2) {
		t.Errorf("unexpected frames: % X", frames)
	}
	if s.Buffered() != 0 {
		t.Errorf("Buffered = %d, want 0", s.Buffered())
	}
}

func TestSpacePacket_SkipsGarbage(t *testing.T) {
	s := NewSpacePacket(0)
	packet := mustPacket(t, 5, []byte{0xAB})
	stream := append([]byte{0xFF, 0xE0}, packet...)

	frames, err := s.Feed(stream)
	if !errors.Is(err, ErrFraming) {
		t.Errorf("expected ErrFraming for skipped bytes, got %v", err)
	}
	if len(frames) != 1 || !bytes.Equal(frames[0], packet) {
		t.Errorf("expected packet after garbage, got % X", frames)
	}
}

func TestSpacePacket_MaxLength(t *testing.T) {
	s := NewSpacePacket(16)
	big := mustPacket(t, 5, make([]byte, 20))
	if _, err := s.Frame(big); !errors.Is(err, ErrFraming) {
		t.Errorf("expected ErrFraming, got %v", err)
	}
	if _, err := s.Frame(big[:10]); !errors.Is(err, ErrFraming) {
		t.Errorf("expected ErrFraming for truncated packet, got %v", err)
	}
}

// ============================================================
// Fuzz Tests
// ============================================================

func fuzzRng(t *testing.T) (*rand.Rand, int) {
	seed := time.Now().UnixNano()
	if env := os.Getenv("FUZZ_SEED"); env != "" {
		if v, err := strconv.ParseInt(env, 10, 64); err == nil {
			seed = v
		}
	}
	rounds := 1000
	if env := os.Getenv("FUZZ_ROUNDS"); env != "" {
		if v, err := strconv.Atoi(env); err == nil && v > 0 {
			rounds = v
		}
	}
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed)), rounds
}

func TestFuzz_ASCIIRoundTrip(t *testing.T) {
	rng, rounds := fuzzRng(t)
	a := mustASCII(t)
	alphabet := []byte{DefaultStart, DefaultStop, DefaultEscape, DefaultStart ^ DefaultEscXor, 0x00, 0xFF}

	for i := 0; i < rounds; i++ {
		payload := make([]byte, 1+rng.Intn(64))
		for j := range payload {
			if rng.Intn(2) == 0 {
				payload[j] = alphabet[rng.Intn(len(alphabet))]
			} else {
				payload[j] = byte(rng.Intn(256))
			}
		}
		frame, err := a.Frame(payload)
		if err != nil {
			t.Fatalf("round %d: Frame failed: %v", i, err)
		}

		var got [][]byte
		for len(frame) > 0 {
			n := 1 + rng.Intn(len(frame))
			out, err := a.Feed(frame[:n])
			if err != nil {
				t.Fatalf("round %d: Feed failed: %v", i, err)
			}
			got = append(got, out...)
			frame = frame[n:]
		}
		if len(got) != 1 || !bytes.Equal(got[0], payload) {
			t.Fatalf("round %d: expected % X, got % X", i, payload, got)
		}
	}
}

func TestFuzz_RandomStreams(t *testing.T) {
	rng, rounds := fuzzRng(t)
	a := mustASCII(t)
	s := NewSpacePacket(0)
	f, _ := NewFixed(17, 0)

	for i := 0; i < rounds; i++ {
		data := make([]byte, rng.Intn(256))
		rng.Read(data)
		// Must not panic; errors are expected
		_, _ = a.Feed(data)
		_, _ = s.Feed(data)
		_, _ = f.Feed(data)
	}
	_ = a.Flush()
}
