package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func makeInfos(ages ...time.Duration) []Info {
	now := time.Now()
	out := make([]Info, len(ages))
	for i, age := range ages {
		out[i] = Info{Path: filepath.Join("ck", string(rune('a'+i))), CreatedAt: now.Add(-age)}
	}
	return out
}

func TestCountPolicy(t *testing.T) {
	infos := makeInfos(time.Hour, 2*time.Hour, 3*time.Hour)
	tests := []struct {
		max  int
		want int
	}{
		{5, 3},
		{3, 3},
		{2, 2},
		{0, 0},
	}
	for _, tt := range tests {
		got := (&CountPolicy{MaxCount: tt.max}).Apply(infos)
		if len(got) != tt.want {
			t.Errorf("CountPolicy{%d}.Apply() kept %d, want %d", tt.max, len(got), tt.want)
		}
	}
}

func TestAgePolicy(t *testing.T) {
	infos := makeInfos(time.Hour, 25*time.Hour, 72*time.Hour)
	got := (&AgePolicy{MaxAge: 24 * time.Hour}).Apply(infos)
	if len(got) != 1 || got[0].Path != infos[0].Path {
		t.Errorf("AgePolicy.Apply() = %v, want only the newest", got)
	}
}

func TestCompositePolicy(t *testing.T) {
	infos := makeInfos(time.Hour, 25*time.Hour, 72*time.Hour)
	p := &CompositePolicy{Policies: []Policy{
		&CountPolicy{MaxCount: 1},
		&AgePolicy{MaxAge: 48 * time.Hour},
	}}
	got := p.Apply(infos)
	if len(got) != 2 {
		t.Fatalf("CompositePolicy.Apply() kept %d, want 2", len(got))
	}
	if got[0].Path != infos[0].Path || got[1].Path != infos[1].Path {
		t.Errorf("CompositePolicy.Apply() = %v, want the two newest in order", got)
	}
}

func TestListAndPrune(t *testing.T) {
	dir := t.TempDir()

	var paths []string
	for i := 0; i < 4; i++ {
		st := Capture(fakeSource{}, [16]byte{byte(i + 1)}, "")
		path := GeneratePath(dir, st.RunID, time.Date(2026, 1, 1, 0, 0, i, 0, time.UTC))
		if err := Write(path, st); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		paths = append(paths, path)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	list, err := List(dir)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 4 {
		t.Fatalf("List() returned %d, want 4", len(list))
	}
	if list[0].Path != paths[3] {
		t.Errorf("List()[0] = %s, want newest %s", list[0].Path, paths[3])
	}

	deleted, err := Prune(dir, &CountPolicy{MaxCount: 2})
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if len(deleted) != 2 {
		t.Fatalf("Prune() deleted %d, want 2", len(deleted))
	}
	for _, p := range paths[:2] {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s should have been pruned", filepath.Base(p))
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); err != nil {
		t.Errorf("unrelated file was touched: %v", err)
	}
}

func TestList_MissingDir(t *testing.T) {
	list, err := List(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 0 {
		t.Errorf("List() = %v, want empty", list)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"720h", 720 * time.Hour, false},
		{"30d", 30 * 24 * time.Hour, false},
		{"2w", 14 * 24 * time.Hour, false},
		{"", 0, true},
		{"x", 0, true},
		{"5y", 0, true},
		{"abd", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDuration(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseDuration(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
