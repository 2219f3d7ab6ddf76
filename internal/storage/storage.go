// Package storage keeps uploaded files keyed by generated names.
package storage

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"path"
	"strings"
	"time"
)

// ErrInvalidKey is returned for keys that escape the store root.
var ErrInvalidKey = errors.New("invalid blob key")

// BlobStore persists opaque file contents.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// NewKey builds a collision-resistant name of the form <unix-ms>-<9 digits><ext>.
func NewKey(ext string) string {
	return fmt.Sprintf("%d-%s%s", time.Now().UnixMilli(), randomDigits(9), strings.ToLower(ext))
}

// NewAvatarKey builds avatars/<uid>_<unix-ms>_<6 digits><ext>.
func NewAvatarKey(uid, ext string) string {
	return fmt.Sprintf("avatars/%s_%d_%s%s", uid, time.Now().UnixMilli(), randomDigits(6), strings.ToLower(ext))
}

// DeleteAll removes every key, ignoring failures. It returns the first error seen.
func DeleteAll(ctx context.Context, store BlobStore, keys ...string) error {
	var first error
	for _, k := range keys {
		if k == "" {
			continue
		}
		if err := store.Delete(ctx, k); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func cleanKey(key string) (string, error) {
	cleaned := path.Clean("/" + key)[1:]
	if cleaned == "" || cleaned != key {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}

func randomDigits(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			b.WriteByte('0')
			continue
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String()
}
