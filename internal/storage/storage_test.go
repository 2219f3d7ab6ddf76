package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
)

func TestNewKey(t *testing.T) {
	t.Parallel()

	if k := NewKey(".JPG"); !regexp.MustCompile(`^\d+-\d{9}\.jpg$`).MatchString(k) {
		t.Fatalf("unexpected key %q", k)
	}
	if k := NewAvatarKey("u1", ".png"); !regexp.MustCompile(`^avatars/u1_\d+_\d{6}\.png$`).MatchString(k) {
		t.Fatalf("unexpected avatar key %q", k)
	}
}

func TestLocalPutDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	root := t.TempDir()
	store, err := NewLocal(root)
	if err != nil {
		t.Fatalf("NewLocal returned error: %v", err)
	}

	if err := store.Put(ctx, "avatars/a.png", "image/png", []byte("x")); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "avatars", "a.png")); err != nil {
		t.Fatalf("expected file on disk: %v", err)
	}
	if err := store.Delete(ctx, "avatars/a.png"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if err := store.Delete(ctx, "avatars/a.png"); err != nil {
		t.Fatalf("second Delete should be a no-op, got %v", err)
	}
}

func TestLocalRejectsTraversal(t *testing.T) {
	t.Parallel()

	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal returned error: %v", err)
	}
	for _, key := range []string{"../secret", "/etc/passwd", "", "a/../../b"} {
		if err := store.Put(context.Background(), key, "", nil); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("key %q: expected ErrInvalidKey, got %v", key, err)
		}
	}
}

func TestDeleteAll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMemory()
	_ = m.Put(ctx, "a.png", "", []byte("a"))
	_ = m.Put(ctx, "b.png", "", []byte("b"))

	if err := DeleteAll(ctx, m, "a.png", "", "b.png"); err != nil {
		t.Fatalf("DeleteAll returned error: %v", err)
	}
	if len(m.Keys()) != 0 {
		t.Fatalf("expected empty store, got %v", m.Keys())
	}
}
