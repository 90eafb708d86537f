package config

import (
	"strings"
	"testing"
	"time"

	"github.com/Paintersrp/forkrun/internal/runtime"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*File)
		wantErr string
	}{
		{name: "defaults"},
		{
			name:    "unsupported version",
			mutate:  func(f *File) { f.Version = "2" },
			wantErr: "version",
		},
		{
			name:    "zero workers",
			mutate:  func(f *File) { f.Workers.Count = 0 },
			wantErr: "workers.count",
		},
		{
			name:    "worker priority out of range",
			mutate:  func(f *File) { f.Workers.Priority = 21 },
			wantErr: "workers.priority",
		},
		{
			name:    "runtime priority out of range",
			mutate:  func(f *File) { f.Runtime = runtime.Config{Priority: map[int]int{3: -21}} },
			wantErr: "runtime.priority.3",
		},
		{
			name:    "negative ordinal",
			mutate:  func(f *File) { f.Runtime = runtime.Config{Priority: map[int]int{-1: 0}} },
			wantErr: "runtime.priority",
		},
		{
			name:    "empty executable",
			mutate:  func(f *File) { f.Workers.Command = []string{""} },
			wantErr: "workers.command[0]",
		},
		{
			name:    "negative stop timeout",
			mutate:  func(f *File) { f.Workers.StopTimeout = Duration{Duration: -time.Second} },
			wantErr: "workers.stopTimeout",
		},
		{
			name:    "negative listen interval",
			mutate:  func(f *File) { f.Listen.Interval = Duration{Duration: -time.Second} },
			wantErr: "listen.interval",
		},
		{
			name:    "metrics address without port",
			mutate:  func(f *File) { f.Metrics.Listen = "localhost" },
			wantErr: "metrics.listen",
		},
		{
			name:    "metrics port out of range",
			mutate:  func(f *File) { f.Metrics.Listen = ":70000" },
			wantErr: "invalid port",
		},
		{
			name:   "metrics address",
			mutate: func(f *File) { f.Metrics.Listen = ":9464" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Default()
			if tt.mutate != nil {
				tt.mutate(f)
			}
			err := f.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
