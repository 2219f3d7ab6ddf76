package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"

	"github.com/example/bazaardial/internal/listingform"
)

var _ listingform.Submitter = (*Client)(nil)

// Listing is the subset of the listing view the client relies on.
type Listing struct {
	ID           string   `json:"_id"`
	OwnerID      string   `json:"ownerId"`
	BusinessName string   `json:"businessName"`
	Category     string   `json:"category"`
	PrimaryPhone string   `json:"primaryPhone"`
	WhatsappURL  string   `json:"whatsappUrl,omitempty"`
	OpeningHour  string   `json:"openingHour"`
	ClosingHour  string   `json:"closingHour"`
	AadharURL    string   `json:"aadharUrl,omitempty"`
	GalleryURLs  []string `json:"galleryUrls"`
}

// CreateListing posts a new listing. The returned owner token is also stored.
func (c *Client) CreateListing(ctx context.Context, s listingform.Submission) (string, error) {
	body, contentType, err := encodeSubmission(s)
	if err != nil {
		return "", err
	}
	resp, err := c.Do(ctx, http.MethodPost, "/business", contentType, body)
	if err != nil {
		return "", err
	}
	var out struct {
		AccessToken string `json:"accessToken"`
	}
	if err := resp.Decode(&out); err != nil {
		return "", fmt.Errorf("decode create response: %w", err)
	}
	if out.AccessToken != "" {
		c.SetToken(out.AccessToken)
	}
	return out.AccessToken, nil
}

// UpdateListing sends a partial update. The server does not mint a token for
// updates, so the returned token is empty.
func (c *Client) UpdateListing(ctx context.Context, id string, s listingform.Submission) (string, error) {
	body, contentType, err := encodeSubmission(s)
	if err != nil {
		return "", err
	}
	_, err = c.Do(ctx, http.MethodPut, "/business/"+url.PathEscape(id), contentType, body)
	return "", err
}

// DeleteListing removes the caller's listing and stores the demoted token.
func (c *Client) DeleteListing(ctx context.Context, id string) error {
	resp, err := c.Do(ctx, http.MethodDelete, "/business/"+url.PathEscape(id), "", nil)
	if err != nil {
		return err
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := resp.Decode(&out); err != nil {
		return fmt.Errorf("decode delete response: %w", err)
	}
	if out.Token != "" {
		c.SetToken(out.Token)
	}
	return nil
}

// MyListing fetches the caller's listing.
func (c *Client) MyListing(ctx context.Context) (*Listing, error) {
	resp, err := c.Do(ctx, http.MethodGet, "/business/me", "", nil)
	if err != nil {
		return nil, err
	}
	var out Listing
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// encodeSubmission buffers the multipart body so the request can be replayed
// after a token refresh.
func encodeSubmission(s listingform.Submission) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(s.Fields))
	for k := range s.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, s.Fields[k]); err != nil {
			return nil, "", err
		}
	}

	attach := func(field string, f *listingform.File) error {
		if f == nil {
			return nil
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, f.Name))
		contentType := f.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		if err != nil {
			return err
		}
		_, err = part.Write(f.Data)
		return err
	}
	for field, f := range map[string]*listingform.File{
		listingform.FieldLogo:   s.Logo,
		listingform.FieldBanner: s.Banner,
		listingform.FieldAadhar: s.Aadhar,
	} {
		if err := attach(field, f); err != nil {
			return nil, "", err
		}
	}
	for _, f := range s.Gallery {
		if err := attach(listingform.FieldGallery, f); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
