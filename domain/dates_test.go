package domain

import (
	"testing"
	"time"
)

func millis(y int, m time.Month, d int) int64 {
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local).UnixMilli()
}

func TestDueHuman(t *testing.T) {
	now := millis(2024, time.June, 15)
	cases := []struct {
		name string
		due  *int64
		want string
	}{
		{"no due date", nil, "Sem prazo"},
		{"today", ptr(millis(2024, time.June, 15)), "Hoje"},
		{"tomorrow", ptr(millis(2024, time.June, 16)), "Amanhã"},
		{"yesterday", ptr(millis(2024, time.June, 14)), "Ontem"},
		{"in three days", ptr(millis(2024, time.June, 18)), "Em 3 dias"},
		{"five days late", ptr(millis(2024, time.June, 10)), "Atrasado (5d)"},
	}
	for _, tc := range cases {
		if got := DueHuman(tc.due, now); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestDueClass(t *testing.T) {
	now := millis(2024, time.June, 15)
	if got := DueClass(nil, now); got != "none" {
		t.Fatalf("expected none, got %q", got)
	}
	if got := DueClass(ptr(millis(2024, time.June, 15)), now); got != "today" {
		t.Fatalf("expected today, got %q", got)
	}
	if got := DueClass(ptr(millis(2024, time.June, 20)), now); got != "future" {
		t.Fatalf("expected future, got %q", got)
	}
	if got := DueClass(ptr(millis(2024, time.June, 1)), now); got != "overdue" {
		t.Fatalf("expected overdue, got %q", got)
	}
}

func TestDueHumanMidDayTimestamps(t *testing.T) {
	// Labels compare local days, not raw instants.
	now := millis(2024, time.June, 15) + 23*60*60*1000
	due := millis(2024, time.June, 16) + 60*1000
	if got := DueHuman(&due, now); got != "Amanhã" {
		t.Fatalf("expected Amanhã, got %q", got)
	}
}

func TestISODateRoundTrip(t *testing.T) {
	ts, err := ParseISODate("2024-06-15")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ts != DayStart(ts) {
		t.Fatalf("parsed date is not a day start: %d", ts)
	}
	if got := FormatISODate(ts); got != "2024-06-15" {
		t.Fatalf("round trip mismatch: %q", got)
	}
	if _, err := ParseISODate("15/06/2024"); err == nil {
		t.Fatalf("expected error for non-ISO input")
	}
}

func TestFormatDateTime(t *testing.T) {
	ts := time.Date(2024, time.June, 15, 9, 5, 0, 0, time.Local).UnixMilli()
	if got := FormatDateTime(ts); got != "15/06/2024 09:05" {
		t.Fatalf("unexpected format %q", got)
	}
}

func ptr(v int64) *int64 { return &v }
