package listingform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/example/bazaardial/internal/models"
	"github.com/example/bazaardial/internal/validate"
)

// Alerts shown above the form.
const (
	AlertFixErrors     = "Please fix all validation errors before submitting"
	AlertCreated       = "Business successfully added!"
	AlertUpdated       = "Business updated successfully!"
	alertGeneric       = "Something went wrong"
	alertBadRequest    = "Invalid data submitted. Please check all required fields."
	alertUnauthorized  = "Authentication failed. Please login again."
	alertPhoneConflict = "Business with this phone number already exists."
	alertNetwork       = "Network error. Please check your connection and try again."
)

// ErrInvalid is returned by Submit when local validation fails. Errors and
// Alert describe what to fix.
var ErrInvalid = errors.New("listingform: invalid form")

// ErrBusy is returned by Submit while a previous submission is in flight.
var ErrBusy = errors.New("listingform: submission in progress")

// File is a picked file that has not been uploaded yet.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

func (f *File) Size() int64 { return int64(len(f.Data)) }

// GalleryItem is either a stored image URL (edit mode) or a new File.
type GalleryItem struct {
	URL  string
	File *File
}

// Submission is the payload handed to a Submitter.
type Submission struct {
	Fields  map[string]string
	Logo    *File
	Banner  *File
	Aadhar  *File
	Gallery []*File
}

// Submitter sends the listing to the server and returns the access token the
// server minted, if any.
type Submitter interface {
	CreateListing(ctx context.Context, s Submission) (string, error)
	UpdateListing(ctx context.Context, id string, s Submission) (string, error)
}

// ResponseError is implemented by submitter errors that carry an HTTP response.
type ResponseError interface {
	error
	StatusCode() int
	ServerMessage() string
}

// Form is the wizard state. It is not safe for concurrent use.
type Form struct {
	id      string
	fields  map[string]string
	files   map[string]*File
	gallery []GalleryItem
	step    int
	errs    map[string]string
	alert   string
	busy    bool

	store Storage
	log   *zap.Logger
}

type draft struct {
	Data map[string]any `json:"data"`
	Step int            `json:"step"`
}

// New starts a create-mode form, restoring a saved draft when one exists.
func New(store Storage, log *zap.Logger) *Form {
	f := newForm(store, log)
	raw, err := store.Load(StorageKey)
	if err != nil {
		if !errors.Is(err, ErrNoDraft) {
			log.Warn("failed to load listing draft", zap.Error(err))
		}
		return f
	}
	var d draft
	if err := json.Unmarshal(raw, &d); err != nil {
		log.Warn("discarding unreadable listing draft", zap.Error(err))
		return f
	}
	for k, v := range d.Data {
		switch val := v.(type) {
		case string:
			f.fields[k] = val
		case []any:
			if k != FieldGallery {
				continue
			}
			for _, item := range val {
				if url, ok := item.(string); ok && url != "" {
					f.gallery = append(f.gallery, GalleryItem{URL: url})
				}
			}
		}
	}
	if d.Step >= 1 && d.Step <= TotalSteps {
		f.step = d.Step
	}
	return f
}

// NewEdit starts an edit-mode form pre-filled from an existing listing.
func NewEdit(store Storage, biz *models.Business, log *zap.Logger) *Form {
	f := newForm(store, log)
	f.id = biz.ID
	for k, v := range map[string]string{
		"businessName":       biz.BusinessName,
		"category":           biz.Category,
		"primaryPhone":       biz.PrimaryPhone,
		"secondaryPhone":     biz.SecondaryPhone,
		"experience":         biz.Experience,
		"shortDesc":          biz.ShortDesc,
		"fullDesc":           biz.FullDesc,
		"websiteUrl":         biz.WebsiteURL,
		"facebookUrl":        biz.FacebookURL,
		"whatsappUrl":        whatsappDigits(biz.WhatsappURL),
		"instagramUrl":       biz.InstagramURL,
		"linkedinUrl":        biz.LinkedinURL,
		"youtubeUrl":         biz.YoutubeURL,
		"xUrl":               biz.XURL,
		"street":             biz.Street,
		"landmark":           biz.Landmark,
		"locality":           biz.Locality,
		"city":               biz.City,
		"state":              biz.State,
		"zipCode":            biz.ZipCode,
		"registrationNumber": biz.RegistrationNumber,
		"gstin":              biz.GSTIN,
	} {
		if v != "" {
			f.fields[k] = v
		}
	}
	f.fields[OpeningHourH], f.fields[OpeningHourM], f.fields[OpeningHourA] = From24h(biz.OpeningHour)
	f.fields[ClosingHourH], f.fields[ClosingHourM], f.fields[ClosingHourA] = From24h(biz.ClosingHour)
	for _, url := range biz.GalleryURLs {
		f.gallery = append(f.gallery, GalleryItem{URL: url})
	}
	return f
}

func newForm(store Storage, log *zap.Logger) *Form {
	if log == nil {
		log = zap.NewNop()
	}
	f := &Form{
		fields: make(map[string]string, len(defaults)),
		files:  make(map[string]*File, 3),
		step:   StepGeneral,
		errs:   make(map[string]string),
		store:  store,
		log:    log,
	}
	for k, v := range defaults {
		f.fields[k] = v
	}
	return f
}

// A stored wa.me link is shown as its 10-digit number.
func whatsappDigits(link string) string {
	digits := validate.DigitsOnly(link)
	if strings.HasPrefix(link, "https://wa.me/") && len(digits) >= 10 {
		return digits[len(digits)-10:]
	}
	return link
}

func (f *Form) EditMode() bool { return f.id != "" }
func (f *Form) Step() int      { return f.step }
func (f *Form) Alert() string  { return f.alert }
func (f *Form) Busy() bool     { return f.busy }

// Value returns the current text value of field.
func (f *Form) Value(field string) string { return f.fields[field] }

// File returns the picked logo, banner or aadhar file.
func (f *Form) File(field string) *File { return f.files[field] }

// Gallery returns the gallery in display order.
func (f *Form) Gallery() []GalleryItem { return slices.Clone(f.gallery) }

// Errors returns the non-empty field errors.
func (f *Form) Errors() map[string]string {
	out := make(map[string]string, len(f.errs))
	for k, v := range f.errs {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

func (f *Form) required() map[int][]string {
	if f.EditMode() {
		return requiredEdit
	}
	return requiredCreate
}

func (f *Form) isRequired(field string) bool {
	for _, fields := range f.required() {
		if slices.Contains(fields, field) {
			return true
		}
	}
	return false
}

// Set sanitizes and stores a text field, then validates it.
func (f *Form) Set(field, value string) {
	f.alert = ""
	switch {
	case digitFields[field]:
		value = validate.DigitsOnly(value)
	case field == "gstin":
		value = strings.ToUpper(value)
	}
	f.fields[field] = value
	f.persist()
	f.errs[field] = f.validateField(field, value)
}

func (f *Form) validateField(field, value string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		if f.isRequired(field) {
			return "Required"
		}
		return ""
	}
	switch {
	case field == "primaryPhone" || field == "secondaryPhone":
		if !validate.Phone10(v) {
			return "Enter 10-digit phone"
		}
	case field == "whatsappUrl":
		if !validate.Phone10(v) {
			return "Enter 10-digit number"
		}
	case field == "locality":
		if !slices.Contains(Localities, v) {
			return "Pick locality"
		}
	case field == "zipCode":
		if !validate.ZipCode(v) {
			return "PIN must be 6 digits"
		}
	case field == "gstin":
		if !validate.GSTIN(v) {
			return "Invalid GSTIN"
		}
	case urlFields[field]:
		if !validate.URL(v) {
			return "Invalid URL"
		}
	}
	return ""
}

// Attach picks the logo, banner or aadhar file. Oversized files are rejected
// and leave the previous pick in place.
func (f *Form) Attach(field string, file *File) {
	f.alert = ""
	if file != nil && file.Size() > MaxFileSize {
		f.errs[field] = fmt.Sprintf("File size must be under 5MB (current: %s)", formatFileSize(file.Size()))
		return
	}
	f.files[field] = file
	f.errs[field] = ""
	f.persist()
}

// AddGallery appends images up to MaxGalleryImages. Images past the cap are
// refused with "Max 12 images"; one oversized file rejects the whole batch.
func (f *Form) AddGallery(files ...*File) {
	f.alert = ""
	for _, file := range files {
		if file.Size() > MaxFileSize {
			f.errs[FieldGallery] = oversizedImage(file)
			return
		}
	}
	f.errs[FieldGallery] = ""
	for _, file := range files {
		if len(f.gallery) >= models.MaxGalleryImages {
			f.errs[FieldGallery] = maxImagesMsg
			break
		}
		f.gallery = append(f.gallery, GalleryItem{File: file})
	}
	f.persist()
}

// RemoveGallery drops the item at index i.
func (f *Form) RemoveGallery(i int) {
	if i < 0 || i >= len(f.gallery) {
		return
	}
	f.gallery = slices.Delete(f.gallery, i, i+1)
	f.errs[FieldGallery] = validateGallery(f.gallery)
	f.persist()
}

const maxImagesMsg = "Max 12 images"

func validateGallery(items []GalleryItem) string {
	if len(items) > models.MaxGalleryImages {
		return maxImagesMsg
	}
	for _, item := range items {
		if item.File != nil && item.File.Size() > MaxFileSize {
			return oversizedImage(item.File)
		}
	}
	return ""
}

func oversizedImage(file *File) string {
	return fmt.Sprintf("Image %q is too large (%s). Max size is 5MB.", file.Name, formatFileSize(file.Size()))
}

// validate checks one field of any kind and records its error.
func (f *Form) validate(field string) bool {
	var msg string
	switch field {
	case FieldLogo, FieldBanner, FieldAadhar:
		file := f.files[field]
		switch {
		case file == nil && f.isRequired(field):
			msg = "Required"
		case file != nil && file.Size() > MaxFileSize:
			msg = fmt.Sprintf("File size must be under 5MB (current: %s)", formatFileSize(file.Size()))
		}
	case FieldGallery:
		msg = validateGallery(f.gallery)
	default:
		msg = f.validateField(field, f.fields[field])
	}
	f.errs[field] = msg
	return msg == ""
}

// Next advances when every field of the current step validates.
func (f *Form) Next() bool {
	ok := true
	for _, field := range stepFields[f.step] {
		if !f.validate(field) {
			ok = false
		}
	}
	if !ok {
		return false
	}
	if f.step < TotalSteps {
		f.step++
	}
	f.persist()
	return true
}

// Prev goes back one step.
func (f *Form) Prev() {
	if f.step > StepGeneral {
		f.step--
	}
	f.persist()
}

func (f *Form) validateAll() bool {
	ok := true
	for step := StepGeneral; step <= TotalSteps; step++ {
		for _, field := range stepFields[step] {
			if !f.validate(field) {
				ok = false
			}
		}
	}
	if To24h(f.fields[OpeningHourH], f.fields[OpeningHourM], f.fields[OpeningHourA]) == "" {
		f.errs[OpeningHourH] = "Opening time is required"
		ok = false
	}
	if To24h(f.fields[ClosingHourH], f.fields[ClosingHourM], f.fields[ClosingHourA]) == "" {
		f.errs[ClosingHourH] = "Closing time is required"
		ok = false
	}
	if !f.EditMode() && f.files[FieldAadhar] == nil {
		f.errs[FieldAadhar] = "Aadhaar/ID proof is required"
		ok = false
	}
	return ok
}

func (f *Form) missing() []string {
	var out []string
	for _, field := range submitRequired {
		if strings.TrimSpace(f.fields[field]) == "" {
			out = append(out, field)
		}
	}
	return out
}

// Submission builds the payload: non-empty text fields with the pickers folded
// into 24-hour times, plus newly picked files only.
func (f *Form) Submission() Submission {
	s := Submission{
		Fields: make(map[string]string, len(f.fields)),
		Logo:   f.files[FieldLogo],
		Banner: f.files[FieldBanner],
		Aadhar: f.files[FieldAadhar],
	}
	for k, v := range f.fields {
		if v == "" || slices.Contains(pickerFields, k) {
			continue
		}
		s.Fields[k] = v
	}
	s.Fields["openingHour"] = To24h(f.fields[OpeningHourH], f.fields[OpeningHourM], f.fields[OpeningHourA])
	s.Fields["closingHour"] = To24h(f.fields[ClosingHourH], f.fields[ClosingHourM], f.fields[ClosingHourA])
	for _, item := range f.gallery {
		if item.File != nil {
			s.Gallery = append(s.Gallery, item.File)
		}
	}
	return s
}

// Submit validates every step and sends the listing. On success the draft is
// cleared and the returned token should replace the session's access token.
func (f *Form) Submit(ctx context.Context, sub Submitter) (string, error) {
	if f.busy {
		return "", ErrBusy
	}
	if !f.validateAll() {
		f.alert = AlertFixErrors
		return "", ErrInvalid
	}
	if missing := f.missing(); len(missing) > 0 {
		f.alert = "Missing required fields: " + strings.Join(missing, ", ")
		return "", ErrInvalid
	}

	f.busy = true
	defer func() { f.busy = false }()

	s := f.Submission()
	var (
		token string
		err   error
	)
	if f.EditMode() {
		token, err = sub.UpdateListing(ctx, f.id, s)
	} else {
		token, err = sub.CreateListing(ctx, s)
	}
	if err != nil {
		f.alert = alertFor(err)
		f.log.Warn("listing submit failed", zap.Bool("edit", f.EditMode()), zap.Error(err))
		return "", err
	}

	if f.EditMode() {
		f.alert = AlertUpdated
	} else {
		f.alert = AlertCreated
	}
	if err := f.store.Remove(StorageKey); err != nil {
		f.log.Warn("failed to clear listing draft", zap.Error(err))
	}
	return token, nil
}

func alertFor(err error) string {
	var re ResponseError
	if !errors.As(err, &re) {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return alertNetwork
		}
		if msg := err.Error(); msg != "" {
			return msg
		}
		return alertGeneric
	}
	if msg := re.ServerMessage(); msg != "" {
		return msg
	}
	switch re.StatusCode() {
	case 400:
		return alertBadRequest
	case 401:
		return alertUnauthorized
	case 409:
		return alertPhoneConflict
	default:
		return "Server error: " + strconv.Itoa(re.StatusCode())
	}
}

func (f *Form) persist() {
	data := make(map[string]any, len(f.fields)+1)
	for k, v := range f.fields {
		data[k] = v
	}
	urls := []string{}
	for _, item := range f.gallery {
		if item.URL != "" {
			urls = append(urls, item.URL)
		}
	}
	data[FieldGallery] = urls

	raw, err := json.Marshal(draft{Data: data, Step: f.step})
	if err != nil {
		f.log.Debug("failed to encode listing draft", zap.Error(err))
		return
	}
	if err := f.store.Save(StorageKey, raw); err != nil {
		f.log.Debug("failed to persist listing draft", zap.Error(err))
	}
}

func formatFileSize(n int64) string {
	if n == 0 {
		return "0 Bytes"
	}
	units := []string{"Bytes", "KB", "MB", "GB"}
	i := int(math.Floor(math.Log(float64(n)) / math.Log(1024)))
	if i >= len(units) {
		i = len(units) - 1
	}
	v := math.Round(float64(n)/math.Pow(1024, float64(i))*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + units[i]
}
