package settings

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, path
}

func TestRoundTrip(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, KeyThemeBackground); err != nil || ok {
		t.Fatalf("absent key: ok=%v err=%v", ok, err)
	}

	if err := store.Set(ctx, KeyThemeBackground, "#2f2f2f"); err != nil {
		t.Fatal(err)
	}
	got, ok, err := store.Get(ctx, KeyThemeBackground)
	if err != nil || !ok || got != "#2f2f2f" {
		t.Fatalf("got (%q, %v, %v)", got, ok, err)
	}

	// Overwrite replaces.
	if err := store.Set(ctx, KeyThemeBackground, "#101010"); err != nil {
		t.Fatal(err)
	}
	got, _, _ = store.Get(ctx, KeyThemeBackground)
	if got != "#101010" {
		t.Fatalf("after overwrite got %q", got)
	}
}

func TestDelete(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, KeyExportDir, "/tmp/out"); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, KeyExportDir); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := store.Get(ctx, KeyExportDir); ok {
		t.Fatal("key should be gone after delete")
	}

	// Deleting an absent key is fine.
	if err := store.Delete(ctx, KeyExportDir); err != nil {
		t.Fatal(err)
	}
}

func TestBoolHelpers(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	if err := store.SetBool(ctx, KeyExportEnabled, true); err != nil {
		t.Fatal(err)
	}
	v, ok, err := store.GetBool(ctx, KeyExportEnabled)
	if err != nil || !ok || !v {
		t.Fatalf("got (%v, %v, %v)", v, ok, err)
	}

	if err := store.Set(ctx, KeyExportEnabled, "maybe"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := store.GetBool(ctx, KeyExportEnabled); err == nil {
		t.Fatal("expected error for non-boolean value")
	}
}

func TestValuesSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.db")
	ctx := context.Background()

	store, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Set(ctx, KeySourceMode, "poll"); err != nil {
		t.Fatal(err)
	}
	store.Close()

	store, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	got, ok, err := store.Get(ctx, KeySourceMode)
	if err != nil || !ok || got != "poll" {
		t.Fatalf("after reopen got (%q, %v, %v)", got, ok, err)
	}
}
