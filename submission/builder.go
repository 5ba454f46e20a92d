// Package submission validates help-request drafts and encodes them for the backend.
package submission

import (
	"math"
	"strconv"
	"strings"

	"reliefdesk/models"
)

// Build validates the draft and produces the transport payload. Validation
// stops at the first failure. The draft is not modified.
func Build(d *Draft) (*Payload, error) {
	if err := Validate(d); err != nil {
		return nil, err
	}

	rescue := coerceCount(d.NumberOfPeopleToRescue)
	people := rescue
	if strings.TrimSpace(d.NumberOfPeople) != "" {
		people = coerceCount(d.NumberOfPeople)
	}

	description := d.Description
	if strings.TrimSpace(description) == "" {
		description = DefaultDescription
	}

	p := &Payload{}
	p.add("full_name", strings.TrimSpace(d.FullName))
	p.add("phone_number", strings.TrimSpace(d.PhoneNumber))
	p.addOptional("alt_phone_number", d.AltPhoneNumber)
	p.add("location", strings.TrimSpace(d.Location))
	p.addOptional("land_mark", d.Landmark)
	p.add("location_url", strings.TrimSpace(d.MapLink()))
	p.addOptional("district", d.District)
	p.add("emergency_type", d.EmergencyType)
	p.add("priority_level", d.PriorityLevel)
	p.add("number_of_peoples_to_rescue", strconv.FormatInt(rescue, 10))
	p.add("number_of_peoples", strconv.FormatInt(people, 10))
	p.add("is_medical_needed", strconv.FormatBool(d.IsMedicalNeeded))
	p.addOptional("water_level", d.WaterLevel)
	p.add("safe_hours", models.FormatNumber(coerceHours(d.SafeHours)))
	p.add("need_foods", strconv.FormatBool(d.Needs.Food))
	p.add("need_water", strconv.FormatBool(d.Needs.Water))
	p.add("need_transport", strconv.FormatBool(d.Needs.Transport))
	p.add("need_medic", strconv.FormatBool(d.Needs.Medic))
	p.add("need_power", strconv.FormatBool(d.Needs.Power))
	p.add("need_clothes", strconv.FormatBool(d.Needs.Clothes))
	p.add("description", description)
	// Only the administrative path may verify a request.
	p.add("is_verified", strconv.FormatBool(false))
	p.Images = d.Images.Images()

	return p, nil
}

// Validate checks the required fields in order and returns the first failure.
func Validate(d *Draft) error {
	switch {
	case strings.TrimSpace(d.FullName) == "":
		return MissingField("name")
	case strings.TrimSpace(d.PhoneNumber) == "":
		return MissingField("phone")
	case strings.TrimSpace(d.Location) == "":
		return MissingField("location")
	case d.Images.Len() == 0:
		return ErrMissingImages
	case strings.TrimSpace(d.MapLink()) == "":
		return ErrMissingLocationLink
	}
	return nil
}

// coerceCount parses user input as a non-negative integer. Empty or
// unparsable input is zero; fractions are truncated.
func coerceCount(raw string) int64 {
	v, ok := parseFloat(raw)
	if !ok || v <= 0 {
		return 0
	}
	if v >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}

// coerceHours parses the safe-hours estimate, defaulting to zero.
func coerceHours(raw string) float64 {
	v, ok := parseFloat(raw)
	if !ok || v < 0 {
		return 0
	}
	return v
}

func parseFloat(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
