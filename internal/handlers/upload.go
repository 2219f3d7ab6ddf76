package handlers

import (
	"context"
	"io"
	"mime/multipart"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/example/bazaardial/internal/apperr"
	"github.com/example/bazaardial/internal/models"
	"github.com/example/bazaardial/internal/services"
	"github.com/example/bazaardial/internal/storage"
)

// MaxUploadSize caps a single uploaded file.
const MaxUploadSize = 5 * 1024 * 1024

var (
	listingImageTypes = regexp.MustCompile(`jpeg|jpg|png|gif|avif|webp`)
	avatarImageTypes  = regexp.MustCompile(`jpeg|jpg|png|gif|webp`)
)

// uploadField describes one multipart file field.
type uploadField struct {
	name     string
	maxCount int
}

var listingUploadFields = []uploadField{
	{name: "logo", maxCount: 1},
	{name: "banner", maxCount: 1},
	{name: "aadhar", maxCount: 1},
	{name: "gallery", maxCount: models.MaxGalleryImages},
}

// Uploader validates multipart files and writes them to the blob store.
type Uploader struct {
	blobs storage.BlobStore
}

func NewUploader(blobs storage.BlobStore) *Uploader {
	return &Uploader{blobs: blobs}
}

func isMultipart(c *fiber.Ctx) bool {
	return strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm)
}

func checkImage(fh *multipart.FileHeader, allowed *regexp.Regexp) error {
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !allowed.MatchString(ext) || !allowed.MatchString(fh.Header.Get(fiber.HeaderContentType)) {
		return apperr.Validation("Only image files are allowed")
	}
	if fh.Size > MaxUploadSize {
		return apperr.Validation("File too large. Maximum size is 5MB.")
	}
	return nil
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, MaxUploadSize+1))
}

// ListingForm parses a listing request. Multipart bodies have their files
// written to the blob store; the caller owns the returned keys.
func (u *Uploader) ListingForm(c *fiber.Ctx) (map[string]string, services.ListingFiles, error) {
	var files services.ListingFiles
	if !isMultipart(c) {
		fields := map[string]string{}
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&fields); err != nil {
				return nil, files, invalidBody()
			}
		}
		return fields, files, nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return nil, files, invalidBody()
	}
	fields := make(map[string]string, len(form.Value))
	for k, v := range form.Value {
		if len(v) > 0 {
			fields[k] = v[0]
		}
	}

	for _, f := range listingUploadFields {
		headers := form.File[f.name]
		if len(headers) > f.maxCount {
			if f.name == "gallery" {
				return nil, files, apperr.Validation("Max 12 images", "gallery")
			}
			return nil, files, apperr.Validation("Unexpected file field "+f.name, f.name)
		}
		for _, fh := range headers {
			if err := checkImage(fh, listingImageTypes); err != nil {
				return nil, files, err
			}
		}
	}

	ctx := c.UserContext()
	var written []string
	store := func(fh *multipart.FileHeader) (string, error) {
		data, err := readFile(fh)
		if err != nil {
			return "", err
		}
		key := storage.NewKey(filepath.Ext(fh.Filename))
		if err := u.blobs.Put(ctx, key, fh.Header.Get(fiber.HeaderContentType), data); err != nil {
			return "", err
		}
		written = append(written, key)
		return key, nil
	}
	fail := func(err error) (map[string]string, services.ListingFiles, error) {
		_ = storage.DeleteAll(context.WithoutCancel(ctx), u.blobs, written...)
		return nil, services.ListingFiles{}, apperr.Server("Failed to store upload.", err)
	}

	single := map[string]*string{"logo": &files.Logo, "banner": &files.Banner, "aadhar": &files.Aadhar}
	for name, dst := range single {
		if headers := form.File[name]; len(headers) == 1 {
			key, err := store(headers[0])
			if err != nil {
				return fail(err)
			}
			*dst = key
		}
	}
	for _, fh := range form.File["gallery"] {
		key, err := store(fh)
		if err != nil {
			return fail(err)
		}
		files.Gallery = append(files.Gallery, key)
	}
	return fields, files, nil
}

// Avatar reads the single avatar file of a multipart request.
func (u *Uploader) Avatar(c *fiber.Ctx) ([]byte, string, error) {
	fh, err := c.FormFile("avatar")
	if err != nil {
		return nil, "", apperr.Validation("No image file provided.", "avatar")
	}
	if err := checkImage(fh, avatarImageTypes); err != nil {
		return nil, "", err
	}
	data, err := readFile(fh)
	if err != nil {
		return nil, "", apperr.Server("Failed to upload avatar.", err)
	}
	return data, strings.ToLower(filepath.Ext(fh.Filename)), nil
}
