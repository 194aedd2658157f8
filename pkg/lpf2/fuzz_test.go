// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lpf2

import (
	"errors"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// ============================================================
// Decoder Fuzz Tests
// ============================================================

// TestFuzzDecode_RandomBytes feeds random bytes to the decoder
// and verifies it doesn't crash or panic
func TestFuzzDecode_RandomBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		data := make([]byte, rng.Intn(MaxFrameSize+8))
		rng.Read(data)

		msg, err := Decode(data)
		if err != nil && msg != nil {
			t.Errorf("Round %d: got both message and error", i)
		}
		if err != nil && !errors.Is(err, ErrMalformedMessage) {
			t.Errorf("Round %d: unexpected error kind: %v", i, err)
		}
	}
}

// TestFuzzDecode_KnownTypes builds frames with a valid header and a known
// upstream type tag, followed by a random body
func TestFuzzDecode_KnownTypes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		kind := upstreamKinds[rng.Intn(len(upstreamKinds))]
		body := make([]byte, rng.Intn(MaxFrameSize-HeaderSize))
		rng.Read(body)
		data := frame(kind.msgType, body...)

		msg, err := Decode(data)
		if err != nil {
			if !errors.Is(err, ErrMalformedMessage) {
				t.Errorf("Round %d: unexpected error kind: %v", i, err)
			}
			continue
		}
		if msg.Type() != kind.msgType {
			t.Errorf("Round %d: type mismatch: expected 0x%02X, got 0x%02X", i, kind.msgType, msg.Type())
		}

		// Formatting any decoded message must not panic
		_ = FormatMessage(msg)
	}
}

// TestFuzzEncode_PortOutput encodes random output commands and checks
// the length byte against the frame size
func TestFuzzEncode_PortOutput(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		params := make([]byte, rng.Intn(MaxFrameSize))
		rng.Read(params)
		msg := &PortOutput{
			Port:       Port(rng.Intn(256)),
			Buffered:   rng.Intn(2) == 1,
			Feedback:   rng.Intn(2) == 1,
			Subcommand: uint8(rng.Intn(256)),
			Params:     params,
		}

		data, err := Encode(msg)
		if HeaderSize+3+len(params) > MaxFrameSize {
			if !errors.Is(err, ErrFrameTooLong) {
				t.Errorf("Round %d: expected ErrFrameTooLong, got %v", i, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("Round %d: unexpected error: %v", i, err)
			continue
		}
		if int(data[0]) != len(data) {
			t.Errorf("Round %d: length byte %d, frame %d bytes", i, data[0], len(data))
		}
	}
}
