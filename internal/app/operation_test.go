package app

import (
	"errors"
	"testing"
	"time"
)

func TestNewOperation(t *testing.T) {
	now := time.Date(2024, 6, 15, 14, 30, 45, 0, time.UTC)
	op := NewOperation("scan", now)

	if op.ID != "20240615T143045Z" {
		t.Errorf("ID = %q, want %q", op.ID, "20240615T143045Z")
	}
	if op.Name != "scan" {
		t.Errorf("Name = %q, want %q", op.Name, "scan")
	}
	if op.Status != "success" {
		t.Errorf("Status = %q, want %q", op.Status, "success")
	}
	if got := op.Elapsed(now.Add(1500 * time.Millisecond)); got != 1500*time.Millisecond {
		t.Errorf("Elapsed() = %v, want 1.5s", got)
	}
}

func TestOperation_Fail(t *testing.T) {
	tests := []struct {
		name string
		errs []error
		want string
	}{
		{name: "no errors", errs: []error{nil, nil}, want: "success"},
		{name: "one error", errs: []error{errors.New("boom")}, want: "error"},
		{name: "error is sticky", errs: []error{errors.New("boom"), nil}, want: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := NewOperation("import", time.Now())
			for _, err := range tt.errs {
				op.Fail(err)
			}
			if op.Status != tt.want {
				t.Errorf("Status = %q, want %q", op.Status, tt.want)
			}
		})
	}
}
