package services

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"strings"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/example/bazaardial/internal/apperr"
	"github.com/example/bazaardial/internal/utils"
)

func TestProfileUpdate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture()
	u := f.verifiedUser(t, "abc123", "9000000001")
	f.verifiedUser(t, "taken_name", "9000000002")

	email := " New@Example.com "
	got, err := f.profile.Update(ctx, u.ID, ProfileUpdate{Username: "Renamed", Email: &email})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if got.Username != "renamed" || got.Email != "new@example.com" {
		t.Fatalf("unexpected profile %q %q", got.Username, got.Email)
	}

	tests := []struct {
		name string
		in   ProfileUpdate
		kind error
	}{
		{name: "empty username", in: ProfileUpdate{Username: "  "}, kind: apperr.ErrValidation},
		{name: "bad username", in: ProfileUpdate{Username: "a!"}, kind: apperr.ErrValidation},
		{name: "taken username", in: ProfileUpdate{Username: "Taken_Name"}, kind: apperr.ErrConflict},
	}
	for _, tc := range tests {
		if _, err := f.profile.Update(ctx, u.ID, tc.in); !errors.Is(err, tc.kind) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.kind, err)
		}
	}
}

func TestChangePassword(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture()
	u := f.verifiedUser(t, "abc123", "9000000001")
	hash, _ := utils.HashPassword("Abcdef12")
	u.PasswordHash = hash
	if err := f.store.Users().Save(ctx, u); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := f.profile.ChangePassword(ctx, u.ID, "wrong", "Newpass123"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error for wrong current password, got %v", err)
	}
	if err := f.profile.ChangePassword(ctx, u.ID, "Abcdef12", "Abcdef12"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error for unchanged password, got %v", err)
	}
	if err := f.profile.ChangePassword(ctx, u.ID, "Abcdef12", "Newpass123"); err != nil {
		t.Fatalf("ChangePassword returned error: %v", err)
	}

	stored, _ := f.store.Users().FindByID(ctx, u.ID)
	if !utils.CheckPassword(stored.PasswordHash, "Newpass123") {
		t.Fatalf("new password not stored")
	}
}

func TestAvatarLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture()
	u := f.verifiedUser(t, "abc123", "9000000001")

	var src bytes.Buffer
	if err := imaging.Encode(&src, imaging.New(1000, 600, color.White), imaging.PNG); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := f.profile.SetAvatar(ctx, u.ID, src.Bytes(), ".png")
	if err != nil {
		t.Fatalf("SetAvatar returned error: %v", err)
	}
	if !strings.HasPrefix(got.Avatar, "avatars/"+u.ID+"_") || !strings.HasSuffix(got.Avatar, ".jpg") {
		t.Fatalf("unexpected avatar key %q", got.Avatar)
	}
	data, ok := f.blobs.Get(got.Avatar)
	if !ok {
		t.Fatalf("avatar blob not stored")
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != AvatarSize || b.Dy() > AvatarSize {
		t.Fatalf("expected downscaled avatar, got %dx%d", b.Dx(), b.Dy())
	}

	first := got.Avatar
	got, err = f.profile.SetAvatar(ctx, u.ID, []byte("small"), ".webp")
	if err != nil {
		t.Fatalf("SetAvatar returned error: %v", err)
	}
	if f.blobs.Has(first) {
		t.Fatalf("previous avatar not removed")
	}
	if !strings.HasSuffix(got.Avatar, ".webp") {
		t.Fatalf("undecodable avatar should keep its extension, got %q", got.Avatar)
	}

	if err := f.profile.DeleteAvatar(ctx, u.ID); err != nil {
		t.Fatalf("DeleteAvatar returned error: %v", err)
	}
	if len(f.blobs.Keys()) != 0 {
		t.Fatalf("expected no blobs, got %v", f.blobs.Keys())
	}
	if err := f.profile.DeleteAvatar(ctx, u.ID); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error without avatar, got %v", err)
	}
}

func TestStatsIncludesListing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture()
	u := f.verifiedUser(t, "abc123", "9000000001")

	stats, err := f.profile.Stats(ctx, u.ID)
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if stats.Business != nil || !stats.IsVerified {
		t.Fatalf("unexpected stats %+v", stats)
	}

	f.upload(t, "aadhar.png")
	if _, err := f.listing.Create(ctx, u.ID, validListing(), ListingFiles{Aadhar: "aadhar.png"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	stats, err = f.profile.Stats(ctx, u.ID)
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if stats.Role != "owner" || stats.Business == nil || stats.Business.Name != "Sharma Plumbing" {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
