package normalizer

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reliefdesk/models"
)

func decodePost(t *testing.T, body string) models.Post {
	t.Helper()
	var p models.Post
	require.NoError(t, json.Unmarshal([]byte(body), &p))
	return p
}

func TestNormalizeEmptyRecord(t *testing.T) {
	r := Normalize(models.Post{})

	assert.Equal(t, "N/A", r.NeedsSummary)
	assert.Equal(t, "N/A", r.Priority)
	assert.Equal(t, "n/a · Water: n/a · Safe hours: n/a", r.Situation)
	assert.Equal(t, int64(0), r.PeopleCount)
	assert.NotNil(t, r.PhoneNumbers)
	assert.Empty(t, r.PhoneNumbers)
	assert.NotNil(t, r.Images)
	assert.Empty(t, r.Images)
	assert.Equal(t, models.NeedFlags{}, r.NeedsFlags)
	assert.False(t, r.IsVerified)
	assert.Nil(t, r.Coordinates)
}

func TestNormalizeFullRecord(t *testing.T) {
	p := decodePost(t, `{
		"id": 42,
		"full_name": "Nimal Perera",
		"phone_number": 771234567,
		"alt_phone_number": "+94770000000",
		"location": "12 Temple Rd",
		"land_mark": "Near school",
		"district": "Gampaha",
		"number_of_peoples": null,
		"number_of_peoples_to_rescue": 4,
		"emergency_type": "Trapped by flood",
		"water_level": "waist",
		"safe_hours": 2.5,
		"need_foods": true,
		"need_medic": 1,
		"priority_level": "High",
		"description": "Elderly couple on the roof",
		"is_medical_needed": true,
		"is_verified": true,
		"created_at": "2025-11-29T10:00:00Z",
		"images": [{"image_url": "https://cdn.example/a.jpg"}, {"image_url": null}, "https://cdn.example/b.jpg"],
		"location_url": "https://www.google.com/maps?q=7.084000,79.993000"
	}`)

	r := Normalize(p)

	assert.Equal(t, "42", r.ID)
	assert.Equal(t, "Nimal Perera", r.Name)
	assert.Equal(t, []string{"771234567", "+94770000000"}, r.PhoneNumbers)
	assert.Equal(t, "Near school", r.Landmark)
	assert.Equal(t, int64(4), r.PeopleCount)
	assert.Equal(t, "Trapped by flood · Water: waist · Safe hours: 2.5", r.Situation)
	assert.Equal(t, "Food, Medic", r.NeedsSummary)
	assert.Equal(t, models.NeedFlags{Food: true, Medic: true}, r.NeedsFlags)
	assert.Equal(t, "High", r.Priority)
	assert.True(t, r.IsMedicalNeeded)
	assert.True(t, r.IsVerified)
	assert.Equal(t, []string{"https://cdn.example/a.jpg", "https://cdn.example/b.jpg"}, r.Images)
	require.NotNil(t, r.Coordinates)
	assert.InDelta(t, 7.084, r.Coordinates.Latitude, 1e-9)
	assert.InDelta(t, 79.993, r.Coordinates.Longitude, 1e-9)
}

func TestNeedsSummaryOrder(t *testing.T) {
	testCases := []struct {
		name     string
		flags    models.NeedFlags
		expected string
	}{
		{name: "None", flags: models.NeedFlags{}, expected: "N/A"},
		{name: "Medic and food", flags: models.NeedFlags{Medic: true, Food: true}, expected: "Food, Medic"},
		{name: "Clothes and water", flags: models.NeedFlags{Clothes: true, Water: true}, expected: "Water, Clothes"},
		{
			name:     "All",
			flags:    models.NeedFlags{Food: true, Water: true, Transport: true, Medic: true, Power: true, Clothes: true},
			expected: "Food, Water, Transport, Medic, Power, Clothes",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, NeedsSummary(tc.flags))
		})
	}
}

func TestPeopleCountPrecedence(t *testing.T) {
	testCases := []struct {
		name     string
		body     string
		expected int64
	}{
		{name: "Primary wins", body: `{"number_of_peoples": 3, "number_of_peoples_to_rescue": 7}`, expected: 3},
		{name: "Fallback when primary absent", body: `{"number_of_peoples_to_rescue": 7}`, expected: 7},
		{name: "Fallback when primary zero", body: `{"number_of_peoples": 0, "number_of_peoples_to_rescue": 7}`, expected: 7},
		{name: "Numeric string", body: `{"number_of_peoples": "5"}`, expected: 5},
		{name: "Both absent", body: `{}`, expected: 0},
		{name: "Negative clamps", body: `{"number_of_peoples": -2}`, expected: 0},
		{name: "Garbage", body: `{"number_of_peoples": "many"}`, expected: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, PeopleCount(decodePost(t, tc.body)))
		})
	}
}

func TestSituationSafeHoursZero(t *testing.T) {
	p := decodePost(t, `{"emergency_type": "Medical need", "safe_hours": 0}`)
	assert.Equal(t, "Medical need · Water: n/a · Safe hours: 0", Situation(p))
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	p := decodePost(t, `{"full_name": "A", "images": [{"image_url": "u1"}], "need_water": true}`)
	before := p
	beforeImages := append(models.ImageRefs(nil), p.Images...)

	first := Normalize(p)
	second := Normalize(p)

	assert.True(t, reflect.DeepEqual(before, p))
	assert.Equal(t, beforeImages, p.Images)
	assert.Equal(t, first, second)
}

func TestDisplayKeepsVerifiedInOrder(t *testing.T) {
	posts, err := DecodePosts([]byte(`[
		{"id": "1", "is_verified": true},
		{"id": "2", "is_verified": false},
		{"id": "3"},
		{"id": "4", "is_verified": true},
		{"id": "5", "is_verified": null}
	]`))
	require.NoError(t, err)
	require.Len(t, posts, 5)

	shown := Display(posts)

	require.Len(t, shown, 2)
	assert.Equal(t, "1", shown[0].ID)
	assert.Equal(t, "4", shown[1].ID)
}

func TestDecodePosts(t *testing.T) {
	testCases := []struct {
		name     string
		body     string
		count    int
		errorExp bool
	}{
		{name: "Array", body: `[{"id": 1}, {"id": 2}]`, count: 2},
		{name: "Object envelope", body: `{"detail": "nope"}`, count: 0},
		{name: "Null", body: `null`, count: 0},
		{name: "Mixed entries", body: `[{"id": 1}, 7, "x", null]`, count: 4},
		{name: "Not JSON", body: `<html>`, errorExp: true},
		{name: "Empty body", body: ``, errorExp: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			posts, err := DecodePosts([]byte(tc.body))
			if tc.errorExp {
				assert.ErrorIs(t, err, ErrMalformedList)
				return
			}
			require.NoError(t, err)
			assert.Len(t, posts, tc.count)
			assert.Empty(t, Display(posts))
		})
	}
}
