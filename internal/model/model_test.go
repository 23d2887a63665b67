package model

import "testing"

func TestParseServiceType(t *testing.T) {
	tests := []struct {
		in   string
		want ServiceType
		ok   bool
	}{
		{"LOANS", ServiceLoans, true},
		{" loans ", ServiceLoans, true},
		{"card-problems", ServiceCardProblems, true},
		{"Card Problems", ServiceCardProblems, true},
		{"other", ServiceOther, true},
		{"", "", false},
		{"mortgage", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseServiceType(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseServiceType(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFinishStatus(t *testing.T) {
	tests := []struct {
		from SessionStatus
		want SessionStatus
		ok   bool
	}{
		{StatusInProgress, StatusCompleted, true},
		{StatusPending, StatusCanceled, true},
		{StatusCompleted, StatusCompleted, false},
		{StatusCanceled, StatusCanceled, false},
	}
	for _, tt := range tests {
		got, ok := tt.from.FinishStatus()
		if got != tt.want || ok != tt.ok {
			t.Errorf("%s.FinishStatus() = (%s, %v), want (%s, %v)", tt.from, got, ok, tt.want, tt.ok)
		}
	}
}

func TestStatusCountsTotal(t *testing.T) {
	c := StatusCounts{Pending: 1, InProgress: 2, Completed: 3, Canceled: 4}
	if c.Total() != 10 {
		t.Fatalf("Total() = %d, want 10", c.Total())
	}
}
