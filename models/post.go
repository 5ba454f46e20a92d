package models

import (
	"bytes"
	"encoding/json"
)

// Post is a help request as returned by GET /api/posts.
// Every field is optional; see the lenient scalar types.
type Post struct {
	ID                      Text      `json:"id"`
	FullName                Text      `json:"full_name"`
	PhoneNumber             Text      `json:"phone_number"`
	AltPhoneNumber          Text      `json:"alt_phone_number"`
	Location                Text      `json:"location"`
	LandMark                Text      `json:"land_mark"`
	District                Text      `json:"district"`
	NumberOfPeoples         Count     `json:"number_of_peoples"`
	NumberOfPeoplesToRescue Count     `json:"number_of_peoples_to_rescue"`
	EmergencyType           Text      `json:"emergency_type"`
	WaterLevel              Text      `json:"water_level"`
	SafeHours               Number    `json:"safe_hours"`
	NeedFoods               Flag      `json:"need_foods"`
	NeedWater               Flag      `json:"need_water"`
	NeedTransport           Flag      `json:"need_transport"`
	NeedMedic               Flag      `json:"need_medic"`
	NeedPower               Flag      `json:"need_power"`
	NeedClothes             Flag      `json:"need_clothes"`
	PriorityLevel           Text      `json:"priority_level"`
	Description             Text      `json:"description"`
	IsMedicalNeeded         Flag      `json:"is_medical_needed"`
	IsVerified              Flag      `json:"is_verified"`
	CreatedAt               Text      `json:"created_at"`
	Images                  ImageRefs `json:"images"`
	LocationURL             Text      `json:"location_url"`
}

// ImageRef is one entry of a post's image list. The backend sends objects
// carrying image_url; bare URL strings are accepted too.
type ImageRef struct {
	URL string
}

func (r *ImageRef) UnmarshalJSON(data []byte) error {
	*r = ImageRef{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			r.URL = s
		}
	case '{':
		var obj struct {
			ImageURL Text `json:"image_url"`
			URL      Text `json:"url"`
		}
		if err := json.Unmarshal(data, &obj); err == nil {
			r.URL = obj.ImageURL.Or(obj.URL.Value)
		}
	}
	return nil
}

func (r ImageRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ImageURL string `json:"image_url"`
	}{r.URL})
}

// ImageRefs decodes to an empty list when the field is not an array.
type ImageRefs []ImageRef

func (rs *ImageRefs) UnmarshalJSON(data []byte) error {
	*rs = nil
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '[' {
		return nil
	}
	var items []ImageRef
	if err := json.Unmarshal(data, &items); err != nil {
		return nil
	}
	*rs = items
	return nil
}

// NeedFlags holds the six independent need indicators.
type NeedFlags struct {
	Food      bool `json:"food"`
	Water     bool `json:"water"`
	Transport bool `json:"transport"`
	Medic     bool `json:"medic"`
	Power     bool `json:"power"`
	Clothes   bool `json:"clothes"`
}

// Coordinates is a WGS84 point in degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// DisplayRecord is the canonical, UI-ready shape of a help request.
type DisplayRecord struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	PhoneNumbers    []string     `json:"phone_numbers"`
	Location        string       `json:"location"`
	Landmark        string       `json:"landmark"`
	District        string       `json:"district"`
	PeopleCount     int64        `json:"people_count"`
	Situation       string       `json:"situation"`
	EmergencyType   string       `json:"emergency_type"`
	WaterLevel      string       `json:"water_level"`
	SafeHours       Number       `json:"safe_hours"`
	NeedsSummary    string       `json:"needs"`
	Priority        string       `json:"priority"`
	MapLink         string       `json:"map_link"`
	Coordinates     *Coordinates `json:"coordinates,omitempty"`
	Description     string       `json:"description"`
	IsMedicalNeeded bool         `json:"is_medical_needed"`
	IsVerified      bool         `json:"is_verified"`
	CreatedAt       string       `json:"created_at"`
	NeedsFlags      NeedFlags    `json:"needs_flags"`
	Images          []string     `json:"images"`
}
