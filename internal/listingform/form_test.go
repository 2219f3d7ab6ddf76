package listingform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/example/bazaardial/internal/models"
)

type fakeSubmitter struct {
	created []Submission
	updated map[string]Submission
	token   string
	err     error
}

func (s *fakeSubmitter) CreateListing(_ context.Context, sub Submission) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.created = append(s.created, sub)
	return s.token, nil
}

func (s *fakeSubmitter) UpdateListing(_ context.Context, id string, sub Submission) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if s.updated == nil {
		s.updated = map[string]Submission{}
	}
	s.updated[id] = sub
	return s.token, nil
}

type statusError struct {
	status int
	msg    string
}

func (e *statusError) Error() string         { return "request failed" }
func (e *statusError) StatusCode() int       { return e.status }
func (e *statusError) ServerMessage() string { return e.msg }

func png(name string, size int) *File {
	return &File{Name: name, ContentType: "image/png", Data: bytes.Repeat([]byte{1}, size)}
}

func fillGeneral(f *Form) {
	f.Set("businessName", "Sharma Plumbing")
	f.Set("category", "Plumber")
	f.Set("primaryPhone", "98765 43210")
	f.Set("experience", "2-5 years")
	f.Set("shortDesc", "Leak repair")
	f.Set("fullDesc", "Residential and commercial plumbing")
}

func fillRest(f *Form) {
	f.Set("whatsappUrl", "98765-43210")
	f.Set("street", "12 MG Road")
	f.Set("zipCode", "452 001")
	f.Set(OpeningHourH, "09")
	f.Set(OpeningHourM, "30")
	f.Set(ClosingHourH, "06")
	f.Set(ClosingHourM, "00")
}

func TestHourConversion(t *testing.T) {
	tests := []struct {
		h, m, a string
		want    string
	}{
		{"09", "30", "AM", "09:30"},
		{"12", "00", "AM", "00:00"},
		{"12", "05", "PM", "12:05"},
		{"06", "00", "PM", "18:00"},
		{"", "30", "AM", ""},
	}
	for _, tc := range tests {
		if got := To24h(tc.h, tc.m, tc.a); got != tc.want {
			t.Fatalf("To24h(%s,%s,%s) = %q, want %q", tc.h, tc.m, tc.a, got, tc.want)
		}
		if tc.want == "" {
			continue
		}
		h, m, a := From24h(tc.want)
		if h != tc.h || m != tc.m || a != tc.a {
			t.Fatalf("From24h(%s) = %s %s %s", tc.want, h, m, a)
		}
	}
	if h, m, a := From24h(""); h != "" || m != "" || a != "AM" {
		t.Fatalf("From24h(\"\") = %q %q %q", h, m, a)
	}
}

func TestSanitationAndFieldErrors(t *testing.T) {
	f := New(NewMemoryStorage(), zap.NewNop())

	f.Set("primaryPhone", "(987) 654-3210")
	if got := f.Value("primaryPhone"); got != "9876543210" {
		t.Fatalf("expected digits only, got %q", got)
	}
	f.Set("gstin", "22aaaaa0000a1z5")
	if got := f.Value("gstin"); got != "22AAAAA0000A1Z5" {
		t.Fatalf("expected uppercase gstin, got %q", got)
	}

	tests := []struct {
		field, value, want string
	}{
		{"secondaryPhone", "12345", "Enter 10-digit phone"},
		{"whatsappUrl", "12345", "Enter 10-digit number"},
		{"whatsappUrl", "", "Required"},
		{"locality", "Nowhere", "Pick locality"},
		{"locality", "Palasia", ""},
		{"zipCode", "4520", "PIN must be 6 digits"},
		{"gstin", "22AAAAA0000A1Z", "Invalid GSTIN"},
		{"websiteUrl", "example.com", "Invalid URL"},
		{"websiteUrl", "https://example.com", ""},
		{"landmark", "", ""},
	}
	for _, tc := range tests {
		f.Set(tc.field, tc.value)
		if got := f.Errors()[tc.field]; got != tc.want {
			t.Fatalf("%s=%q: expected %q, got %q", tc.field, tc.value, tc.want, got)
		}
	}
}

func TestNextBlocksOnCurrentStep(t *testing.T) {
	f := New(NewMemoryStorage(), zap.NewNop())

	if f.Next() {
		t.Fatalf("expected empty step 1 to block")
	}
	if f.Errors()["businessName"] != "Required" {
		t.Fatalf("expected Required on businessName, got %v", f.Errors())
	}

	fillGeneral(f)
	if !f.Next() || f.Step() != StepImages {
		t.Fatalf("expected to reach step 2, at %d with %v", f.Step(), f.Errors())
	}

	if f.Next() {
		t.Fatalf("expected missing aadhar to block step 2")
	}
	f.Attach(FieldAadhar, png("id.png", 6*1024*1024))
	if msg := f.Errors()[FieldAadhar]; !strings.HasPrefix(msg, "File size must be under 5MB (current: 6 MB)") {
		t.Fatalf("unexpected size error %q", msg)
	}
	if f.File(FieldAadhar) != nil {
		t.Fatalf("oversized file must not be kept")
	}
	f.Attach(FieldAadhar, png("id.png", 1024))
	if !f.Next() || f.Step() != StepSocial {
		t.Fatalf("expected to reach step 3, at %d with %v", f.Step(), f.Errors())
	}

	f.Prev()
	if f.Step() != StepImages {
		t.Fatalf("expected Prev to return to step 2")
	}
}

func TestGallery(t *testing.T) {
	f := New(NewMemoryStorage(), zap.NewNop())

	f.AddGallery(png("a.png", 10), png("huge.png", MaxFileSize+1))
	if len(f.Gallery()) != 0 {
		t.Fatalf("expected batch with an oversized image to be rejected")
	}
	if msg := f.Errors()[FieldGallery]; !strings.Contains(msg, `"huge.png" is too large`) {
		t.Fatalf("unexpected gallery error %q", msg)
	}

	for i := 0; i < models.MaxGalleryImages; i++ {
		f.AddGallery(png(fmt.Sprintf("g%d.png", i), 10))
	}
	if n, msg := len(f.Gallery()), f.Errors()[FieldGallery]; n != models.MaxGalleryImages || msg != "" {
		t.Fatalf("expected 12 accepted images, got %d (%q)", n, msg)
	}

	f.AddGallery(png("thirteenth.png", 10))
	if msg := f.Errors()[FieldGallery]; msg != "Max 12 images" {
		t.Fatalf("expected Max 12 images for the 13th image, got %q", msg)
	}
	gallery := f.Gallery()
	if len(gallery) != models.MaxGalleryImages || gallery[len(gallery)-1].File.Name != "g11.png" {
		t.Fatalf("expected the 13th image to be refused, gallery has %d", len(gallery))
	}

	f.RemoveGallery(0)
	if n := len(f.Gallery()); n != 11 {
		t.Fatalf("expected 11 after remove, got %d", n)
	}
	if msg := f.Errors()[FieldGallery]; msg != "" {
		t.Fatalf("expected gallery error cleared after remove, got %q", msg)
	}

	g := New(NewMemoryStorage(), zap.NewNop())
	batch := make([]*File, 0, 14)
	for i := 0; i < 14; i++ {
		batch = append(batch, png(fmt.Sprintf("b%d.png", i), 10))
	}
	g.AddGallery(batch...)
	if n, msg := len(g.Gallery()), g.Errors()[FieldGallery]; n != models.MaxGalleryImages || msg != "Max 12 images" {
		t.Fatalf("expected oversized batch cut to 12 with an error, got %d (%q)", n, msg)
	}

	items := make([]GalleryItem, 13)
	if got := validateGallery(items); got != "Max 12 images" {
		t.Fatalf("expected Max 12 images, got %q", got)
	}
}

func TestSubmitCreate(t *testing.T) {
	store := NewMemoryStorage()
	f := New(store, zap.NewNop())
	sub := &fakeSubmitter{token: "new-access"}

	if _, err := f.Submit(context.Background(), sub); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid on empty form, got %v", err)
	}
	if f.Alert() != AlertFixErrors {
		t.Fatalf("unexpected alert %q", f.Alert())
	}

	fillGeneral(f)
	fillRest(f)
	f.Attach(FieldAadhar, png("id.png", 10))
	f.AddGallery(png("g1.png", 10))

	token, err := f.Submit(context.Background(), sub)
	if err != nil {
		t.Fatalf("Submit returned error: %v (%v)", err, f.Errors())
	}
	if token != "new-access" || f.Alert() != AlertCreated {
		t.Fatalf("unexpected result %q %q", token, f.Alert())
	}
	if len(sub.created) != 1 {
		t.Fatalf("expected one create call")
	}
	s := sub.created[0]
	if s.Fields["openingHour"] != "09:30" || s.Fields["closingHour"] != "18:00" {
		t.Fatalf("unexpected hours %q %q", s.Fields["openingHour"], s.Fields["closingHour"])
	}
	if _, ok := s.Fields[OpeningHourH]; ok {
		t.Fatalf("picker fields must not be submitted")
	}
	if s.Fields["city"] != "Indore" || s.Fields["zipCode"] != "452001" {
		t.Fatalf("unexpected fields %v", s.Fields)
	}
	if s.Aadhar == nil || len(s.Gallery) != 1 {
		t.Fatalf("expected aadhar and one gallery file")
	}
	if _, err := store.Load(StorageKey); !errors.Is(err, ErrNoDraft) {
		t.Fatalf("expected draft cleared after submit, got %v", err)
	}
}

func TestSubmitFailureKeepsDraft(t *testing.T) {
	store := NewMemoryStorage()
	f := New(store, zap.NewNop())
	fillGeneral(f)
	fillRest(f)
	f.Attach(FieldAadhar, png("id.png", 10))

	tests := []struct {
		err  error
		want string
	}{
		{&statusError{status: 409, msg: "Business with this phone already exists"}, "Business with this phone already exists"},
		{&statusError{status: 409}, alertPhoneConflict},
		{&statusError{status: 401}, alertUnauthorized},
		{&statusError{status: 502}, "Server error: 502"},
		{context.DeadlineExceeded, alertNetwork},
	}
	for _, tc := range tests {
		if _, err := f.Submit(context.Background(), &fakeSubmitter{err: tc.err}); err == nil {
			t.Fatalf("expected error")
		}
		if f.Alert() != tc.want {
			t.Fatalf("expected alert %q, got %q", tc.want, f.Alert())
		}
	}
	if _, err := store.Load(StorageKey); err != nil {
		t.Fatalf("expected draft kept on failure, got %v", err)
	}
}

func TestDraftRestore(t *testing.T) {
	store := NewMemoryStorage()
	f := New(store, zap.NewNop())
	fillGeneral(f)
	f.Attach(FieldLogo, png("logo.png", 10))
	f.Next()

	raw, err := store.Load(StorageKey)
	if err != nil {
		t.Fatalf("expected persisted draft: %v", err)
	}
	var d draft
	if err := json.Unmarshal(raw, &d); err != nil {
		t.Fatalf("draft is not JSON: %v", err)
	}
	if _, ok := d.Data[FieldLogo]; ok {
		t.Fatalf("raw files must not be persisted")
	}

	restored := New(store, zap.NewNop())
	if restored.Step() != StepImages || restored.Value("businessName") != "Sharma Plumbing" {
		t.Fatalf("draft not restored: step %d name %q", restored.Step(), restored.Value("businessName"))
	}
	if restored.File(FieldLogo) != nil {
		t.Fatalf("files must not survive a restore")
	}
}

func TestFileStorage(t *testing.T) {
	store := FileStorage{Dir: t.TempDir()}
	if _, err := store.Load(StorageKey); !errors.Is(err, ErrNoDraft) {
		t.Fatalf("expected ErrNoDraft, got %v", err)
	}
	if err := store.Save(StorageKey, []byte(`{"step":2}`)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := store.Load(StorageKey)
	if err != nil || string(got) != `{"step":2}` {
		t.Fatalf("Load = %q, %v", got, err)
	}
	if err := store.Remove(StorageKey); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := store.Remove(StorageKey); err != nil {
		t.Fatalf("second Remove should be a no-op, got %v", err)
	}
}

func TestEditMode(t *testing.T) {
	store := NewMemoryStorage()
	_ = store.Save(StorageKey, []byte(`{"data":{"businessName":"Draft"},"step":4}`))

	biz := &models.Business{
		BaseModel:    models.BaseModel{ID: "b1"},
		BusinessName: "Sharma Plumbing",
		Category:     "Plumber",
		PrimaryPhone: "9876543210",
		Experience:   "2-5 years",
		ShortDesc:    "Leak repair",
		FullDesc:     "Residential and commercial plumbing",
		WhatsappURL:  "https://wa.me/919876543210",
		Street:       "12 MG Road",
		City:         "Indore",
		State:        "Madhya Pradesh",
		ZipCode:      "452001",
		OpeningHour:  "14:30",
		ClosingHour:  "00:15",
		GalleryURLs:  []string{"1.png", "2.png"},
	}
	f := NewEdit(store, biz, zap.NewNop())

	if !f.EditMode() || f.Step() != StepGeneral || f.Value("businessName") != "Sharma Plumbing" {
		t.Fatalf("edit form must ignore the draft and prefill from the listing")
	}
	if f.Value(OpeningHourH) != "02" || f.Value(OpeningHourA) != "PM" || f.Value(ClosingHourH) != "12" || f.Value(ClosingHourA) != "AM" {
		t.Fatalf("unexpected pickers %s %s %s %s", f.Value(OpeningHourH), f.Value(OpeningHourA), f.Value(ClosingHourH), f.Value(ClosingHourA))
	}
	if f.Value("whatsappUrl") != "9876543210" {
		t.Fatalf("expected wa.me link shown as digits, got %q", f.Value("whatsappUrl"))
	}
	if len(f.Gallery()) != 2 {
		t.Fatalf("expected stored gallery prefilled")
	}

	f.Next()
	if !f.Next() {
		t.Fatalf("aadhar must not be required in edit mode: %v", f.Errors())
	}

	sub := &fakeSubmitter{token: "t"}
	if _, err := f.Submit(context.Background(), sub); err != nil {
		t.Fatalf("Submit: %v (%v)", err, f.Errors())
	}
	s, ok := sub.updated["b1"]
	if !ok || s.Fields["openingHour"] != "14:30" || s.Fields["closingHour"] != "00:15" {
		t.Fatalf("unexpected update payload %+v", s)
	}
	if len(s.Gallery) != 0 {
		t.Fatalf("stored gallery URLs must not be re-uploaded")
	}
	if f.Alert() != AlertUpdated {
		t.Fatalf("unexpected alert %q", f.Alert())
	}
}
