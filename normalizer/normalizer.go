// Package normalizer maps backend help-request records into display records.
package normalizer

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"reliefdesk/maplink"
	"reliefdesk/models"
)

// Fallback values used when a backend field is absent.
const (
	NoNeeds          = "N/A"
	NoPriority       = "N/A"
	MissingSituation = "n/a"
)

var ErrMalformedList = errors.New("posts body is not valid JSON")

// needLabels fixes the order of labels in the needs summary.
var needLabels = []struct {
	label string
	flag  func(models.NeedFlags) bool
}{
	{"Food", func(f models.NeedFlags) bool { return f.Food }},
	{"Water", func(f models.NeedFlags) bool { return f.Water }},
	{"Transport", func(f models.NeedFlags) bool { return f.Transport }},
	{"Medic", func(f models.NeedFlags) bool { return f.Medic }},
	{"Power", func(f models.NeedFlags) bool { return f.Power }},
	{"Clothes", func(f models.NeedFlags) bool { return f.Clothes }},
}

// Normalize converts one backend record. It never fails and does not modify p.
func Normalize(p models.Post) models.DisplayRecord {
	flags := models.NeedFlags{
		Food:      bool(p.NeedFoods),
		Water:     bool(p.NeedWater),
		Transport: bool(p.NeedTransport),
		Medic:     bool(p.NeedMedic),
		Power:     bool(p.NeedPower),
		Clothes:   bool(p.NeedClothes),
	}

	r := models.DisplayRecord{
		ID:              p.ID.Or(""),
		Name:            p.FullName.Or(""),
		PhoneNumbers:    phoneNumbers(p),
		Location:        p.Location.Or(""),
		Landmark:        p.LandMark.Or(""),
		District:        p.District.Or(""),
		PeopleCount:     PeopleCount(p),
		Situation:       Situation(p),
		EmergencyType:   p.EmergencyType.Or(""),
		WaterLevel:      p.WaterLevel.Or(""),
		SafeHours:       p.SafeHours,
		NeedsSummary:    NeedsSummary(flags),
		Priority:        p.PriorityLevel.Or(NoPriority),
		MapLink:         p.LocationURL.Or(""),
		Description:     p.Description.Or(""),
		IsMedicalNeeded: bool(p.IsMedicalNeeded),
		IsVerified:      bool(p.IsVerified),
		CreatedAt:       p.CreatedAt.Or(""),
		NeedsFlags:      flags,
		Images:          imageURLs(p.Images),
	}
	if c, ok := maplink.Parse(r.MapLink); ok {
		r.Coordinates = &c
	}
	return r
}

// NeedsSummary joins the labels of the set flags, or returns "N/A".
func NeedsSummary(f models.NeedFlags) string {
	var labels []string
	for _, n := range needLabels {
		if n.flag(f) {
			labels = append(labels, n.label)
		}
	}
	if len(labels) == 0 {
		return NoNeeds
	}
	return strings.Join(labels, ", ")
}

// Situation composes emergency type, water level and safe hours.
func Situation(p models.Post) string {
	safeHours := MissingSituation
	if p.SafeHours.Valid {
		safeHours = models.FormatNumber(p.SafeHours.Value)
	}
	return p.EmergencyType.Or(MissingSituation) +
		" · Water: " + p.WaterLevel.Or(MissingSituation) +
		" · Safe hours: " + safeHours
}

// PeopleCount prefers number_of_peoples, then number_of_peoples_to_rescue,
// then zero. A zero primary count falls through to the secondary one.
func PeopleCount(p models.Post) int64 {
	if n := p.NumberOfPeoples.NonNegative(); n > 0 {
		return n
	}
	return p.NumberOfPeoplesToRescue.NonNegative()
}

func phoneNumbers(p models.Post) []string {
	phones := make([]string, 0, 2)
	for _, t := range []models.Text{p.PhoneNumber, p.AltPhoneNumber} {
		if t.Valid && t.Value != "" {
			phones = append(phones, t.Value)
		}
	}
	return phones
}

func imageURLs(refs models.ImageRefs) []string {
	urls := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref.URL != "" {
			urls = append(urls, ref.URL)
		}
	}
	return urls
}

// NormalizeAll converts records keeping their order.
func NormalizeAll(posts []models.Post) []models.DisplayRecord {
	out := make([]models.DisplayRecord, 0, len(posts))
	for _, p := range posts {
		out = append(out, Normalize(p))
	}
	return out
}

// FilterVerified keeps verified records in their original relative order.
func FilterVerified(records []models.DisplayRecord) []models.DisplayRecord {
	out := make([]models.DisplayRecord, 0, len(records))
	for _, r := range records {
		if r.IsVerified {
			out = append(out, r)
		}
	}
	return out
}

// Display runs the full display pipeline: normalize, then keep verified.
func Display(posts []models.Post) []models.DisplayRecord {
	return FilterVerified(NormalizeAll(posts))
}

// DecodePosts decodes a list envelope. A body that is valid JSON but not an
// array yields an empty list. Entries that are not objects decode to empty
// records, which are never verified.
func DecodePosts(body []byte) ([]models.Post, error) {
	trimmed := bytes.TrimSpace(body)
	if !json.Valid(trimmed) {
		return nil, ErrMalformedList
	}
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return []models.Post{}, nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, err
	}
	posts := make([]models.Post, len(raw))
	for i, entry := range raw {
		var p models.Post
		if err := json.Unmarshal(entry, &p); err != nil {
			p = models.Post{}
		}
		posts[i] = p
	}
	return posts, nil
}
