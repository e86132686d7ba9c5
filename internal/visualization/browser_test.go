package visualization

import (
	"path/filepath"
	"testing"
)

func TestBrowserCommand(t *testing.T) {
	tests := []struct {
		goos    string
		program string
		wantErr bool
	}{
		{goos: "linux", program: "xdg-open"},
		{goos: "darwin", program: "open"},
		{goos: "windows", program: "cmd"},
		{goos: "plan9", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			cmd, err := browserCommand(tt.goos, "http://localhost:1")
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error for unsupported platform")
				}
				return
			}
			if err != nil {
				t.Fatalf("browserCommand: %v", err)
			}
			if got := filepath.Base(cmd.Args[0]); got != tt.program {
				t.Errorf("program = %q, want %q", got, tt.program)
			}
			if last := cmd.Args[len(cmd.Args)-1]; last != "http://localhost:1" {
				t.Errorf("last arg = %q, want the url", last)
			}
		})
	}
}
