// utils_test.go: CLI parsing and formatting helpers
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"testing"
	"time"

	"github.com/agilira/aether"
)

func TestParseDataRequests(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []aether.DataRq
	}{
		{
			name:  "single with period",
			input: "1@100ms",
			want:  []aether.DataRq{{ID: 1, Period: 100 * time.Millisecond}},
		},
		{
			name:  "bare id is on-demand",
			input: "3",
			want:  []aether.DataRq{{ID: 3, Period: 0}},
		},
		{
			name:  "explicit zero is on-demand",
			input: "3@0",
			want:  []aether.DataRq{{ID: 3, Period: 0}},
		},
		{
			name:  "multiple with spaces",
			input: "1@100ms, 2@1s",
			want: []aether.DataRq{
				{ID: 1, Period: 100 * time.Millisecond},
				{ID: 2, Period: time.Second},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDataRequests(tt.input)
			if err != nil {
				t.Fatalf("parseDataRequests(%q) failed: %v", tt.input, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d requests, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("request %d: got %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestParseDataRequestsRejectsBadInput(t *testing.T) {
	for _, input := range []string{"", "abc", "1@fast", "@100ms", "1@"} {
		if _, err := parseDataRequests(input); err == nil {
			t.Errorf("parseDataRequests(%q) should fail", input)
		}
	}
}

func TestFormatPeriods(t *testing.T) {
	if got := formatPeriods(nil); got != "any" {
		t.Errorf("empty list should render as any, got %q", got)
	}
	got := formatPeriods([]time.Duration{10 * time.Millisecond, time.Second})
	if got != "10ms,1s" {
		t.Errorf("unexpected rendering: %q", got)
	}
}
