package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDurationMinutes(t *testing.T) {
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		duration time.Duration
		want     int
	}{
		{name: "whole hour", duration: time.Hour, want: 60},
		{name: "one second short rounds up", duration: 59*time.Minute + 59*time.Second, want: 60},
		{name: "half minute rounds up", duration: 45*time.Minute + 30*time.Second, want: 46},
		{name: "under half minute rounds down", duration: 45*time.Minute + 29*time.Second, want: 45},
		{name: "empty", duration: 0, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := ClassSession{StartAt: start, EndAt: start.Add(tt.duration)}
			assert.Equal(t, tt.want, s.DurationMinutes())
		})
	}
}
