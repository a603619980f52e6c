package deps

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	stub := filepath.Join(binDir, "present-tool")
	if err := os.WriteFile(stub, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	t.Setenv("PATH", binDir)

	results := CheckBinaries([]Requirement{
		{Name: "present", Command: "present-tool"},
		{Name: "absent", Command: "absent-tool", Optional: true},
		{Name: "unset", Command: ""},
	})

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !results[0].Available {
		t.Fatalf("present tool should be available: %+v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("absent tool should report detail: %+v", results[1])
	}
	if results[2].Detail != "command not configured" {
		t.Fatalf("unset command detail = %q", results[2].Detail)
	}
}
