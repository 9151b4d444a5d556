package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	if _, ok, err := fs.Get(ctx, "weather:current"); err != nil || ok {
		t.Fatalf("Get(empty) = ok %v err %v, want miss", ok, err)
	}

	want := []byte(`{"temp":10}`)
	if err := fs.Set(ctx, "weather:current", want); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, ok, err := fs.Get(ctx, "weather:current")
	if err != nil || !ok {
		t.Fatalf("Get() = ok %v err %v, want hit", ok, err)
	}
	if string(got) != string(want) {
		t.Errorf("Get() = %s, want %s", got, want)
	}

	if err := fs.Delete(ctx, "weather:current"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := fs.Get(ctx, "weather:current"); ok {
		t.Error("Get() ok = true after delete")
	}
	// Deleting a missing key is not an error.
	if err := fs.Delete(ctx, "weather:current"); err != nil {
		t.Errorf("Delete(missing) error = %v", err)
	}
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	fs1, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := fs1.Set(ctx, "locations:saved", []byte(`[]`)); err != nil {
		t.Fatal(err)
	}

	fs2, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := fs2.Get(ctx, "locations:saved"); !ok {
		t.Error("entry did not survive store reopen")
	}
}

func TestFileStore_NoTempFilesLeftBehind(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if err := fs.Set(ctx, "weather:current", []byte(`{}`)); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp.") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"weather:current", "weather_current"},
		{"api/v1?x=1&y=2", "api_v1_x_1_y_2"},
	}
	for _, tt := range tests {
		if got := sanitizeKey(tt.in); got != tt.want {
			t.Errorf("sanitizeKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	long := strings.Repeat("k", 300)
	got := sanitizeKey(long)
	if !strings.HasPrefix(got, "hash_") || len(got) > 64 {
		t.Errorf("sanitizeKey(long) = %q, want md5-hashed form", got)
	}
	if filepath.Base(got) != got {
		t.Errorf("sanitizeKey(long) = %q contains path separators", got)
	}
}
