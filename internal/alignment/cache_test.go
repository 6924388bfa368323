package alignment_test

import (
	"os"
	"path/filepath"
	"testing"

	"soundloom/internal/alignment"
	"soundloom/internal/library"
)

func sampleWords() []library.WordTimestamp {
	return []library.WordTimestamp{
		{Word: "the", Start: 0.0, End: 0.2},
		{Word: "door", Start: 0.25, End: 0.6},
		{Word: "opened", Start: 0.65, End: 1.1},
	}
}

func TestCacheRoundTrip(t *testing.T) {
	cache := alignment.NewCache(t.TempDir(), nil)

	if _, ok := cache.Lookup("abc123", "small", "en"); ok {
		t.Fatal("expected miss before store")
	}

	if err := cache.Store("abc123", "small", "en", sampleWords()); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	words, ok := cache.Lookup("abc123", "small", "en")
	if !ok {
		t.Fatal("expected hit after store")
	}
	if len(words) != 3 || words[1].Word != "door" || words[1].Start != 0.25 {
		t.Fatalf("unexpected cached words: %#v", words)
	}
}

func TestCacheMissesOnModelOrLanguageChange(t *testing.T) {
	cache := alignment.NewCache(t.TempDir(), nil)

	if err := cache.Store("abc123", "small", "en", sampleWords()); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	if _, ok := cache.Lookup("abc123", "large-v2", "en"); ok {
		t.Fatal("expected miss for different model")
	}
	if _, ok := cache.Lookup("abc123", "small", "fr"); ok {
		t.Fatal("expected miss for different language")
	}
}

func TestCacheDisabledByEmptyDir(t *testing.T) {
	cache := alignment.NewCache("", nil)

	if err := cache.Store("abc123", "small", "en", sampleWords()); err != nil {
		t.Fatalf("Store on disabled cache should no-op, got %v", err)
	}
	if _, ok := cache.Lookup("abc123", "small", "en"); ok {
		t.Fatal("expected miss from disabled cache")
	}
}

func TestCacheToleratesCorruptEntry(t *testing.T) {
	dir := t.TempDir()
	cache := alignment.NewCache(dir, nil)

	if err := os.WriteFile(filepath.Join(dir, "abc123.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, ok := cache.Lookup("abc123", "small", "en"); ok {
		t.Fatal("expected miss for corrupt entry")
	}

	// A fresh store replaces the corrupt file.
	if err := cache.Store("abc123", "small", "en", sampleWords()); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if _, ok := cache.Lookup("abc123", "small", "en"); !ok {
		t.Fatal("expected hit after overwriting corrupt entry")
	}
}
