package services

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/example/bazaardial/internal/apperr"
	"github.com/example/bazaardial/internal/models"
	"github.com/example/bazaardial/internal/repository"
	"github.com/example/bazaardial/internal/storage"
	"github.com/example/bazaardial/internal/utils"
	"github.com/example/bazaardial/internal/validate"
)

// RequiredListingFields must be present and non-empty on create.
var RequiredListingFields = []string{
	"businessName", "category", "primaryPhone", "experience", "shortDesc", "fullDesc",
	"street", "city", "state", "zipCode", "openingHour", "closingHour", "whatsappUrl",
}

var listingURLFields = []string{
	"websiteUrl", "facebookUrl", "instagramUrl", "linkedinUrl", "youtubeUrl", "xUrl",
}

// listingRules check present, non-empty fields.
var listingRules = func() []validate.Rule {
	rules := []validate.Rule{
		{Field: "category", Tag: "omitempty,category"},
		{Field: "experience", Tag: "omitempty,experience"},
		{Field: "primaryPhone", Tag: "omitempty,len=10,number"},
		{Field: "secondaryPhone", Tag: "omitempty,len=10,number"},
		{Field: "openingHour", Tag: "omitempty,hhmm"},
		{Field: "closingHour", Tag: "omitempty,hhmm"},
	}
	for _, k := range listingURLFields {
		rules = append(rules, validate.Rule{Field: k, Tag: "omitempty,httpurl"})
	}
	return append(rules,
		validate.Rule{Field: "zipCode", Tag: "omitempty,len=6,number"},
		validate.Rule{Field: "gstin", Tag: "omitempty,gstin"},
	)
}()

var listingMessages = map[string]string{
	"category":       "Invalid category or experience",
	"experience":     "Invalid category or experience",
	"primaryPhone":   "Primary phone must be 10 digits",
	"secondaryPhone": "Secondary phone must be 10 digits",
	"openingHour":    "Time must be in HH:mm format",
	"closingHour":    "Time must be in HH:mm format",
	"websiteUrl":     "Invalid URL",
	"facebookUrl":    "Invalid URL",
	"instagramUrl":   "Invalid URL",
	"linkedinUrl":    "Invalid URL",
	"youtubeUrl":     "Invalid URL",
	"xUrl":           "Invalid URL",
	"zipCode":        "PIN must be 6 digits",
	"gstin":          "Invalid GSTIN",
}

// listingSetters is the set of client-writable listing fields.
var listingSetters = map[string]func(*models.Business, string){
	"businessName":       func(b *models.Business, v string) { b.BusinessName = v },
	"category":           func(b *models.Business, v string) { b.Category = v },
	"primaryPhone":       func(b *models.Business, v string) { b.PrimaryPhone = v },
	"secondaryPhone":     func(b *models.Business, v string) { b.SecondaryPhone = v },
	"experience":         func(b *models.Business, v string) { b.Experience = v },
	"shortDesc":          func(b *models.Business, v string) { b.ShortDesc = v },
	"fullDesc":           func(b *models.Business, v string) { b.FullDesc = v },
	"websiteUrl":         func(b *models.Business, v string) { b.WebsiteURL = v },
	"facebookUrl":        func(b *models.Business, v string) { b.FacebookURL = v },
	"whatsappUrl":        func(b *models.Business, v string) { b.WhatsappURL = v },
	"instagramUrl":       func(b *models.Business, v string) { b.InstagramURL = v },
	"linkedinUrl":        func(b *models.Business, v string) { b.LinkedinURL = v },
	"youtubeUrl":         func(b *models.Business, v string) { b.YoutubeURL = v },
	"xUrl":               func(b *models.Business, v string) { b.XURL = v },
	"street":             func(b *models.Business, v string) { b.Street = v },
	"landmark":           func(b *models.Business, v string) { b.Landmark = v },
	"locality":           func(b *models.Business, v string) { b.Locality = v },
	"city":               func(b *models.Business, v string) { b.City = v },
	"state":              func(b *models.Business, v string) { b.State = v },
	"zipCode":            func(b *models.Business, v string) { b.ZipCode = v },
	"openingHour":        func(b *models.Business, v string) { b.OpeningHour = v },
	"closingHour":        func(b *models.Business, v string) { b.ClosingHour = v },
	"registrationNumber": func(b *models.Business, v string) { b.RegistrationNumber = v },
	"gstin":              func(b *models.Business, v string) { b.GSTIN = v },
}

// ListingFiles are blob keys already written by the upload intake.
type ListingFiles struct {
	Logo    string
	Banner  string
	Aadhar  string
	Gallery []string
}

// Keys lists every non-empty key.
func (f ListingFiles) Keys() []string {
	keys := make([]string, 0, 3+len(f.Gallery))
	for _, k := range append([]string{f.Logo, f.Banner, f.Aadhar}, f.Gallery...) {
		if k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// CreatedListing is the outcome of a successful create.
type CreatedListing struct {
	Business *models.Business
	Tokens   utils.TokenPair
}

// ListingService runs the one-listing-per-owner lifecycle.
type ListingService struct {
	users      repository.UserStore
	businesses repository.BusinessStore
	blobs      storage.BlobStore
	tokens     *utils.TokenIssuer
	log        *zap.Logger
}

func NewListingService(store repository.Store, blobs storage.BlobStore, tokens *utils.TokenIssuer, log *zap.Logger) *ListingService {
	return &ListingService{
		users:      store.Users(),
		businesses: store.Businesses(),
		blobs:      blobs,
		tokens:     tokens,
		log:        log,
	}
}

// Create validates fields, persists the listing and promotes the user to owner.
// Uploaded blobs are removed on any failure.
func (s *ListingService) Create(ctx context.Context, uid string, fields map[string]string, files ListingFiles) (res *CreatedListing, err error) {
	defer func() {
		if err != nil {
			s.discard(ctx, files.Keys()...)
		}
	}()

	user, err := s.users.FindByID(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Unauthorized("Invalid or expired token")
		}
		return nil, apperr.Server("Failed to load user.", err)
	}
	if !user.Verified() {
		return nil, apperr.NotVerified("Account not verified.")
	}

	if _, err := s.businesses.FindByOwner(ctx, uid); err == nil {
		return nil, apperr.Conflict("Only one business allowed per user")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Server("Failed to load business.", err)
	}

	fields = cleanFields(fields)
	missing := validate.Names(validate.Fields(fields, requiredRules(fields, false)))
	if files.Aadhar == "" {
		missing = append(missing, "aadhar")
	}
	if len(missing) > 0 {
		return nil, apperr.Validation("Missing: "+strings.Join(missing, ", "), missing...)
	}

	if !validate.Phone10(fields["whatsappUrl"]) {
		return nil, apperr.Validation("WhatsApp number must be 10 digits", "whatsappUrl")
	}
	if err := validateListing(fields); err != nil {
		return nil, err
	}
	fields["whatsappUrl"] = whatsappLink(fields["whatsappUrl"])

	if taken, err := s.businesses.PhoneTaken(ctx, fields["primaryPhone"], ""); err != nil {
		return nil, apperr.Server("Failed to check phone.", err)
	} else if taken {
		return nil, apperr.Conflict("Business with this phone already exists")
	}

	biz := &models.Business{OwnerID: uid}
	applyFields(biz, fields)
	biz.LogoURL = files.Logo
	biz.BannerURL = files.Banner
	biz.AadharURL = files.Aadhar
	biz.GalleryURLs = append([]string{}, files.Gallery...)

	if err := s.businesses.Create(ctx, biz); err != nil {
		return nil, listingWriteError(err)
	}

	user.Promote(biz.ID)
	if err := s.users.Save(ctx, user); err != nil {
		if delErr := s.businesses.DeleteByOwner(ctx, uid); delErr != nil {
			s.log.Error("rollback of orphaned business failed", zap.String("business_id", biz.ID), zap.Error(delErr))
		}
		return nil, apperr.Server("Failed to promote user.", err)
	}
	s.log.Info("user promoted to owner", zap.String("user_id", uid), zap.String("business_id", biz.ID))

	pair, err := s.tokens.SignPair(SubjectFor(user))
	if err != nil {
		return nil, apperr.Server("Failed to sign tokens.", err)
	}
	return &CreatedListing{Business: biz, Tokens: pair}, nil
}

// Update applies the present whitelisted fields and re-uploaded files to the caller's listing.
func (s *ListingService) Update(ctx context.Context, uid, id string, fields map[string]string, files ListingFiles) (biz *models.Business, err error) {
	defer func() {
		if err != nil {
			s.discard(ctx, files.Keys()...)
		}
	}()

	biz, err = s.businesses.FindByID(ctx, id)
	if err != nil || biz.OwnerID != uid {
		if err == nil || errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("Business not found")
		}
		return nil, apperr.Server("Failed to load business.", err)
	}

	fields = cleanFields(fields)
	for k := range fields {
		if _, ok := listingSetters[k]; !ok {
			delete(fields, k)
		}
	}

	cleared := validate.Names(validate.Fields(fields, requiredRules(fields, true)))
	if len(cleared) > 0 {
		return nil, apperr.Validation("Missing: "+strings.Join(cleared, ", "), cleared...)
	}

	if err := validateListing(fields); err != nil {
		return nil, err
	}
	if v, ok := fields["whatsappUrl"]; ok {
		switch {
		case validate.Phone10(v):
			fields["whatsappUrl"] = whatsappLink(v)
		case !validate.URL(v):
			return nil, apperr.Validation("WhatsApp must be a 10-digit number or a URL", "whatsappUrl")
		}
	}

	if phone, ok := fields["primaryPhone"]; ok {
		if taken, err := s.businesses.PhoneTaken(ctx, phone, biz.ID); err != nil {
			return nil, apperr.Server("Failed to check phone.", err)
		} else if taken {
			return nil, apperr.Conflict("Business with this phone already exists")
		}
	}

	applyFields(biz, fields)

	var superseded []string
	replace := func(dst *string, key string) {
		if key == "" {
			return
		}
		if *dst != "" {
			superseded = append(superseded, *dst)
		}
		*dst = key
	}
	replace(&biz.LogoURL, files.Logo)
	replace(&biz.BannerURL, files.Banner)
	replace(&biz.AadharURL, files.Aadhar)
	if len(files.Gallery) > 0 {
		superseded = append(superseded, biz.GalleryURLs...)
		biz.GalleryURLs = append([]string{}, files.Gallery...)
	}

	if err := s.businesses.Save(ctx, biz); err != nil {
		return nil, listingWriteError(err)
	}
	s.discard(ctx, superseded...)
	return biz, nil
}

// Delete removes the caller's listing with its blobs and demotes the user.
// It returns a fresh access token reflecting the user role.
func (s *ListingService) Delete(ctx context.Context, uid, id string) (string, error) {
	biz, err := s.businesses.FindByOwner(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", apperr.NotFound("Business not found")
		}
		return "", apperr.Server("Failed to load business.", err)
	}
	if id != "" && biz.ID != id {
		return "", apperr.NotFound("Business not found")
	}

	if err := s.businesses.DeleteByOwner(ctx, uid); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return "", apperr.Server("Failed to delete business.", err)
	}
	s.discard(ctx, biz.Assets()...)

	user, err := s.users.FindByID(ctx, uid)
	if err != nil {
		return "", apperr.Server("Failed to load user.", err)
	}
	user.Demote()
	if err := s.users.Save(ctx, user); err != nil {
		return "", apperr.Server("Failed to demote user.", err)
	}
	s.log.Info("owner demoted to user", zap.String("user_id", uid), zap.String("business_id", biz.ID))

	token, err := s.tokens.SignAccess(SubjectFor(user))
	if err != nil {
		return "", apperr.Server("Failed to sign token.", err)
	}
	return token, nil
}

// Mine returns the caller's listing.
func (s *ListingService) Mine(ctx context.Context, uid string) (*models.Business, error) {
	biz, err := s.businesses.FindByOwner(ctx, uid)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("Not found")
	}
	if err != nil {
		return nil, apperr.Server("Failed to load business.", err)
	}
	return biz, nil
}

// Get returns a public listing by id.
func (s *ListingService) Get(ctx context.Context, id string) (*models.Business, error) {
	biz, err := s.businesses.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("Business not found")
	}
	if err != nil {
		return nil, apperr.Server("Failed to load business.", err)
	}
	return biz, nil
}

// List searches public listings, newest first.
func (s *ListingService) List(ctx context.Context, f repository.ListFilter) ([]models.Business, error) {
	f.Query = strings.TrimSpace(f.Query)
	items, err := s.businesses.List(ctx, f)
	if err != nil {
		return nil, apperr.Server("Failed to fetch businesses", err)
	}
	return items, nil
}

func (s *ListingService) discard(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := storage.DeleteAll(context.WithoutCancel(ctx), s.blobs, keys...); err != nil {
		s.log.Warn("blob cleanup failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

// SubjectFor builds token claims from the stored role and listing link.
func SubjectFor(u *models.User) utils.Subject {
	return utils.Subject{UID: u.ID, Role: string(u.Role), BusinessID: u.BusinessID}
}

func cleanFields(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = strings.TrimSpace(v)
	}
	if v, ok := out["gstin"]; ok {
		out["gstin"] = strings.ToUpper(v)
	}
	return out
}

func applyFields(b *models.Business, fields map[string]string) {
	for k, v := range fields {
		if set, ok := listingSetters[k]; ok {
			set(b, v)
		}
	}
}

// requiredRules lists the required fields to check. With presentOnly set, absent
// fields are skipped so a partial update only fails on cleared values.
func requiredRules(fields map[string]string, presentOnly bool) []validate.Rule {
	rules := make([]validate.Rule, 0, len(RequiredListingFields))
	for _, k := range RequiredListingFields {
		if _, ok := fields[k]; presentOnly && !ok {
			continue
		}
		rules = append(rules, validate.Rule{Field: k, Tag: "required"})
	}
	return rules
}

// validateListing checks the present, non-empty fields and names every offending one.
func validateListing(f map[string]string) error {
	return invalid(validate.Fields(f, listingRules), listingMessages)
}

func whatsappLink(digits string) string {
	return "https://wa.me/91" + digits
}

func listingWriteError(err error) error {
	switch repository.DuplicateField(err) {
	case repository.FieldOwner:
		return apperr.Conflict("Only one business allowed per user")
	case repository.FieldPrimaryPhone:
		return apperr.Conflict("Business with this phone already exists")
	case "":
		return apperr.Server("Failed to save business.", err)
	default:
		return apperr.Conflict("Business already exists")
	}
}
