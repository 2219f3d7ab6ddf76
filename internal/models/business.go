package models

import "github.com/lib/pq"

// MaxGalleryImages caps the gallery of a single listing.
const MaxGalleryImages = 12

// Categories is the closed list of business categories.
var Categories = []string{
	"Civil Contractor",
	"Waterproofing Applicator",
	"Plumber",
	"Carpenter",
	"Painter",
	"Borewell Drilling",
	"Electrician",
	"Solar Panel Installer",
	"Real Estate",
	"Construction Material Suppliers",
	"Cleaning Worker",
	"Furniture Contractor",
}

// ExperienceLevels is the closed list of experience buckets.
var ExperienceLevels = []string{
	"0-1 year",
	"1-2 years",
	"2-5 years",
	"5-10 years",
	"10+ years",
}

// Business is a directory listing. Each owner has at most one.
type Business struct {
	BaseModel `bson:",inline"`
	OwnerID        string `gorm:"type:varchar(36);uniqueIndex:idx_businesses_owner" bson:"ownerId" json:"ownerId"`
	BusinessName   string `gorm:"index" bson:"businessName" json:"businessName"`
	Category       string `gorm:"index" bson:"category" json:"category"`
	PrimaryPhone   string `gorm:"size:10;uniqueIndex:idx_businesses_primary_phone" bson:"primaryPhone" json:"primaryPhone"`
	SecondaryPhone string `gorm:"size:10" bson:"secondaryPhone,omitempty" json:"secondaryPhone,omitempty"`
	Experience     string `bson:"experience" json:"experience"`
	ShortDesc      string `bson:"shortDesc" json:"shortDesc"`
	FullDesc       string `bson:"fullDesc" json:"fullDesc"`

	LogoURL     string         `bson:"logoUrl,omitempty" json:"logoUrl,omitempty"`
	BannerURL   string         `bson:"bannerUrl,omitempty" json:"bannerUrl,omitempty"`
	AadharURL   string         `bson:"aadharUrl,omitempty" json:"aadharUrl,omitempty"`
	GalleryURLs pq.StringArray `gorm:"type:text[]" bson:"galleryUrls" json:"galleryUrls"`

	WebsiteURL   string `bson:"websiteUrl,omitempty" json:"websiteUrl,omitempty"`
	FacebookURL  string `bson:"facebookUrl,omitempty" json:"facebookUrl,omitempty"`
	WhatsappURL  string `bson:"whatsappUrl,omitempty" json:"whatsappUrl,omitempty"`
	InstagramURL string `bson:"instagramUrl,omitempty" json:"instagramUrl,omitempty"`
	LinkedinURL  string `bson:"linkedinUrl,omitempty" json:"linkedinUrl,omitempty"`
	YoutubeURL   string `bson:"youtubeUrl,omitempty" json:"youtubeUrl,omitempty"`
	XURL         string `bson:"xUrl,omitempty" json:"xUrl,omitempty"`

	Street   string `bson:"street" json:"street"`
	Landmark string `bson:"landmark,omitempty" json:"landmark,omitempty"`
	Locality string `bson:"locality,omitempty" json:"locality,omitempty"`
	City     string `bson:"city" json:"city"`
	State    string `bson:"state" json:"state"`
	ZipCode  string `bson:"zipCode" json:"zipCode"`

	OpeningHour string `bson:"openingHour" json:"openingHour"`
	ClosingHour string `bson:"closingHour" json:"closingHour"`

	RegistrationNumber string `bson:"registrationNumber,omitempty" json:"registrationNumber,omitempty"`
	GSTIN              string `bson:"gstin,omitempty" json:"gstin,omitempty"`
}

// Assets lists every blob key referenced by the listing.
func (b *Business) Assets() []string {
	keys := make([]string, 0, 3+len(b.GalleryURLs))
	for _, k := range []string{b.LogoURL, b.BannerURL, b.AadharURL} {
		if k != "" {
			keys = append(keys, k)
		}
	}
	for _, k := range b.GalleryURLs {
		if k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// ValidCategory reports whether c is in Categories.
func ValidCategory(c string) bool { return contains(Categories, c) }

// ValidExperience reports whether e is in ExperienceLevels.
func ValidExperience(e string) bool { return contains(ExperienceLevels, e) }

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
