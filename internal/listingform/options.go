// Package listingform drives the five-step add/edit listing wizard: field
// sanitation and validation, step navigation, draft persistence and submission.
package listingform

import "github.com/example/bazaardial/internal/models"

// TotalSteps is the number of wizard steps.
const TotalSteps = 5

// Wizard steps.
const (
	StepGeneral = iota + 1
	StepImages
	StepSocial
	StepAddress
	StepTiming
)

// StorageKey names the persisted draft.
const StorageKey = "addBusinessFormData"

// MaxFileSize caps every attached file.
const MaxFileSize = 5 * 1024 * 1024

// Localities is the fixed list offered by the locality picker.
var Localities = []string{
	"Rau",
	"Silicon City",
	"Rajendra Nagar",
	"Choithram mandi",
	"Bhawarkua Square",
	"Navlakha Square",
	"Geeta Bhawan",
	"Palasia",
	"LIG Square",
	"Vijay Nagar",
	"Dewas Naka",
	"Mangaliya",
	"Mhow Naka",
	"Chandan Nagar",
	"Hawa Bangla",
	"Bada ganpati",
	"Mari Mata",
	"Kalani Nagar",
	"Gandhi Nagar",
	"Chota Bangarda",
	"Near Aurobindo",
	"MR 10",
	"Tejaji Nagar",
	"Musakhedi",
	"Bangali Square",
	"Khajrana Square",
}

// Categories and ExperienceLevels mirror the server's closed lists.
var (
	Categories       = models.Categories
	ExperienceLevels = models.ExperienceLevels
)

// Time picker fields. They never leave the form; Submit folds them into
// openingHour and closingHour.
const (
	OpeningHourH = "openingHourH"
	OpeningHourM = "openingHourM"
	OpeningHourA = "openingHourA"
	ClosingHourH = "closingHourH"
	ClosingHourM = "closingHourM"
	ClosingHourA = "closingHourA"
)

// File fields.
const (
	FieldLogo    = "logo"
	FieldBanner  = "banner"
	FieldAadhar  = "aadhar"
	FieldGallery = "gallery"
)

var stepFields = map[int][]string{
	StepGeneral: {"businessName", "category", "primaryPhone", "secondaryPhone", "experience", "shortDesc", "fullDesc"},
	StepImages:  {FieldLogo, FieldBanner, FieldAadhar, FieldGallery},
	StepSocial:  {"websiteUrl", "facebookUrl", "whatsappUrl", "instagramUrl", "linkedinUrl", "youtubeUrl", "xUrl"},
	StepAddress: {"street", "landmark", "locality", "city", "state", "zipCode"},
	StepTiming:  {"registrationNumber", "gstin", OpeningHourH, OpeningHourM, OpeningHourA, ClosingHourH, ClosingHourM, ClosingHourA},
}

var pickerFields = []string{OpeningHourH, OpeningHourM, OpeningHourA, ClosingHourH, ClosingHourM, ClosingHourA}

var requiredCreate = map[int][]string{
	StepGeneral: {"businessName", "category", "primaryPhone", "experience", "shortDesc", "fullDesc"},
	StepImages:  {FieldAadhar},
	StepSocial:  {"whatsappUrl"},
	StepAddress: {"street", "city", "state", "zipCode"},
	StepTiming:  pickerFields,
}

// Edit mode keeps the stored ID proof, so step 2 has nothing required.
var requiredEdit = map[int][]string{
	StepGeneral: requiredCreate[StepGeneral],
	StepImages:  {},
	StepSocial:  requiredCreate[StepSocial],
	StepAddress: requiredCreate[StepAddress],
	StepTiming:  pickerFields,
}

// submitRequired is checked once more on Submit, independent of step.
var submitRequired = []string{
	"businessName", "category", "primaryPhone", "experience",
	"shortDesc", "fullDesc", "street", "city", "state", "zipCode",
	"whatsappUrl",
}

var defaults = map[string]string{
	"city":       "Indore",
	"state":      "Madhya Pradesh",
	OpeningHourA: "AM",
	ClosingHourA: "PM",
}

var urlFields = map[string]bool{
	"websiteUrl": true, "facebookUrl": true, "instagramUrl": true,
	"linkedinUrl": true, "youtubeUrl": true, "xUrl": true,
}

var digitFields = map[string]bool{
	"primaryPhone": true, "secondaryPhone": true, "whatsappUrl": true, "zipCode": true,
}
