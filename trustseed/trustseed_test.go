package trustseed

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/tolelom/tmlight/types"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trust.seed")
	want := TrustOptions{
		Height:         100,
		Hash:           types.HashBytes([]byte("trusted-header")),
		TrustingPeriod: 14 * 24 * time.Hour,
	}
	if err := Save(path, "correct horse", want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path, "correct horse")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != want {
		t.Errorf("round-trip mismatch: got %+v want %+v", got, want)
	}
}

func TestLoadWrongPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trust.seed")
	if err := Save(path, "right", TrustOptions{Height: 1, TrustingPeriod: time.Hour}); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path, "wrong"); err == nil {
		t.Error("expected an error loading with the wrong password")
	}
}
