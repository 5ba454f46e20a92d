package submission

import (
	"reliefdesk/models"
)

// Draft defaults applied when a form opens and after a successful submission.
const (
	DefaultEmergencyType = "Medical need"
	DefaultWaterLevel    = "ankle"
	DefaultPriority      = "High"
	DefaultDescription   = "No additional details provided."
)

// Draft is the in-progress help request of one form session. Numeric fields
// hold raw user input and are coerced only when the payload is built.
type Draft struct {
	FullName               string
	PhoneNumber            string
	AltPhoneNumber         string
	Location               string
	District               string
	Landmark               string
	EmergencyType          string
	NumberOfPeopleToRescue string
	NumberOfPeople         string
	IsMedicalNeeded        bool
	WaterLevel             string
	SafeHours              string
	Needs                  models.NeedFlags
	Description            string
	PriorityLevel          string
	LocationURL            string

	// IsVerified may be set by a client but is never transmitted as true.
	IsVerified bool

	Images ImageSet

	// resolvedLink is the geolocation-derived map link, if any.
	resolvedLink string
}

// NewDraft returns a draft with the form defaults.
func NewDraft() *Draft {
	d := &Draft{}
	d.Reset()
	return d
}

// Reset restores the default shape and clears images and the resolved link.
func (d *Draft) Reset() {
	*d = Draft{
		EmergencyType:   DefaultEmergencyType,
		IsMedicalNeeded: true,
		WaterLevel:      DefaultWaterLevel,
		PriorityLevel:   DefaultPriority,
	}
}

// ResolvedLink returns the link set by the last successful geolocation lookup.
func (d *Draft) ResolvedLink() string {
	return d.resolvedLink
}

// SetResolvedLink records a geolocation-derived link and back-fills the
// visible location URL field with it.
func (d *Draft) SetResolvedLink(link string) {
	d.resolvedLink = link
	d.LocationURL = link
}

// MapLink applies the link precedence: resolved geolocation first, then the
// manually entered URL.
func (d *Draft) MapLink() string {
	if d.resolvedLink != "" {
		return d.resolvedLink
	}
	return d.LocationURL
}
