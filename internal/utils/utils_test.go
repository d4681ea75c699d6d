package utils

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestContentHash(t *testing.T) {
	a := ContentHash([]byte("annotated frame"))
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}

	// Verify Determinism
	if b := ContentHash([]byte("annotated frame")); a != b {
		t.Errorf("Hash is not deterministic. Got %s, then %s", a, b)
	}

	// Verify Sensitivity (Change content -> Change hash)
	if c := ContentHash([]byte("annotated frame!")); a == c {
		t.Error("Hash did not change after content modification")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0.00s"},
		{1500 * time.Millisecond, "1.50s"},
		{125 * time.Second, "2m 5.00s"},
		{3661 * time.Second, "1h 1m 1.00s"},
	}

	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %v, want %v", tt.d, got, tt.want)
		}
	}
}

func TestShowErrorIncludesWorkerLogs(t *testing.T) {
	var buf bytes.Buffer
	old := ErrorWriter
	ErrorWriter = &buf
	defer func() { ErrorWriter = old }()

	cmd := NewSafeCommand("python3", "-u", "worker.py")
	cmd.Stderr.WriteString("ModuleNotFoundError: face_recognition")

	ShowError("Worker startup failed", errors.New("exit status 1"), cmd)

	out := buf.String()
	for _, want := range []string{"Worker startup failed", "exit status 1", "ModuleNotFoundError"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
