package main

import (
	"testing"
	"time"

	"github.com/conveyorhq/conveyor/internal/status"
)

func TestParseReviewChange(t *testing.T) {
	tests := []struct {
		raw     string
		wantSet status.ReviewStatus
		isKeep  bool
		isClear bool
		wantErr bool
	}{
		{raw: "keep", isKeep: true},
		{raw: "", isKeep: true},
		{raw: "clear", isClear: true},
		{raw: "Approved", wantSet: status.ReviewApproved},
		{raw: "Waiting for Review", wantSet: status.ReviewWaitingForReview},
		{raw: "bogus", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			change, err := parseReviewChange(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseReviewChange(%q) error = %v", tt.raw, err)
			}
			if tt.wantErr {
				return
			}
			if change.IsKeep() != tt.isKeep || change.IsClear() != tt.isClear {
				t.Errorf("parseReviewChange(%q) = keep=%v clear=%v", tt.raw, change.IsKeep(), change.IsClear())
			}
			if v, ok := change.Value(); ok && v != tt.wantSet {
				t.Errorf("parseReviewChange(%q) set %q, want %q", tt.raw, v, tt.wantSet)
			}
		})
	}
}

func TestParseTimestampRFC3339(t *testing.T) {
	ts, err := parseTimestamp("2026-08-20T12:00:00Z")
	if err != nil {
		t.Fatalf("parseTimestamp() error = %v", err)
	}
	want := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	if !ts.Equal(want) {
		t.Errorf("parseTimestamp() = %v, want %v", ts, want)
	}
}

func TestParseTimestampNaturalLanguage(t *testing.T) {
	before := time.Now()
	ts, err := parseTimestamp("5 minutes ago")
	if err != nil {
		t.Fatalf("parseTimestamp() error = %v", err)
	}
	age := before.Sub(ts)
	if age < 4*time.Minute || age > 6*time.Minute {
		t.Errorf("parseTimestamp(\"5 minutes ago\") = %v (%v old)", ts, age)
	}
}

func TestParseTimestampGarbage(t *testing.T) {
	if _, err := parseTimestamp("not a time at all zzz"); err == nil {
		t.Fatal("parseTimestamp() accepted garbage")
	}
}
