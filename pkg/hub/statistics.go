// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hub

import (
	"fmt"
	"sync"
	"time"
)

// Statistics tracks frame counts and error rates of one hub
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames      uint64
	DecodedFrames    uint64
	MalformedFrames  uint64
	Replies          uint64
	CommandErrors    uint64
	ReplyTimeouts    uint64
	SensorValues     uint64
	DroppedValues    uint64
	OrphanValues     uint64
	Attaches         uint64
	Detaches         uint64
	FramesSent       uint64
	CallbackFailures uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// stats is the hub's counter set, shared by both execution contexts
type stats struct {
	mu sync.Mutex
	s  Statistics
}

func newStats() *stats {
	now := time.Now()
	return &stats{s: Statistics{StartTime: now, LastUpdateTime: now}}
}

// update applies fn to the counters under the lock
func (st *stats) update(fn func(s *Statistics)) {
	st.mu.Lock()
	fn(&st.s)
	st.s.LastUpdateTime = time.Now()
	st.mu.Unlock()
}

// snapshot returns a copy with rates calculated
func (st *stats) snapshot() Statistics {
	st.mu.Lock()
	s := st.s
	st.mu.Unlock()
	s.CalculateRates()
	return s
}

func (st *stats) reset() {
	st.mu.Lock()
	now := time.Now()
	st.s = Statistics{StartTime: now, LastUpdateTime: now}
	st.mu.Unlock()
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		errorCount := s.MalformedFrames + s.CommandErrors + s.ReplyTimeouts + s.OrphanValues
		s.ErrorRate = float64(errorCount) / elapsed
	}
}

// String returns a formatted statistics summary
func (s Statistics) String() string {
	var decodedPercent, malformedPercent float64
	if s.TotalFrames > 0 {
		decodedPercent = float64(s.DecodedFrames) * 100.0 / float64(s.TotalFrames)
		malformedPercent = float64(s.MalformedFrames) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Frames Received: %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Decoded Frames:  %8d (%.1f%%)\n", s.DecodedFrames, decodedPercent)

	if s.MalformedFrames > 0 {
		result += fmt.Sprintf("Malformed:       %8d (%.1f%%)\n", s.MalformedFrames, malformedPercent)
	}
	result += fmt.Sprintf("Frames Sent:     %8d\n", s.FramesSent)
	result += fmt.Sprintf("Replies:         %8d\n", s.Replies)
	if s.CommandErrors > 0 {
		result += fmt.Sprintf("Command Errors:  %8d\n", s.CommandErrors)
	}
	if s.ReplyTimeouts > 0 {
		result += fmt.Sprintf("Reply Timeouts:  %8d\n", s.ReplyTimeouts)
	}
	result += fmt.Sprintf("Sensor Values:   %8d\n", s.SensorValues)
	if s.DroppedValues > 0 {
		result += fmt.Sprintf("  Dropped (full):   %5d\n", s.DroppedValues)
	}
	if s.OrphanValues > 0 {
		result += fmt.Sprintf("  No Peripheral:    %5d\n", s.OrphanValues)
	}
	if s.CallbackFailures > 0 {
		result += fmt.Sprintf("  Callback Panics:  %5d\n", s.CallbackFailures)
	}
	result += fmt.Sprintf("Attach/Detach:   %4d/%-4d\n", s.Attaches, s.Detaches)

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}
