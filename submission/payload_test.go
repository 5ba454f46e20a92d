package submission

import (
	"context"
	"io"
	"mime"
	"mime/multipart"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadEncode(t *testing.T) {
	d := NewDraft()
	d.FullName = "Ruwan"
	d.PhoneNumber = "0771112223"
	d.Location = "Kaduwela"
	d.Needs.Power = true
	d.Images.Add(
		Image{Filename: "one.jpg", ContentType: "image/jpeg", Data: []byte("first")},
		Image{Filename: "two.png", ContentType: "image/png", Data: []byte("second")},
	)
	_, err := Resolve(context.Background(), ReportedPosition{Latitude: 6.9271, Longitude: 79.8612}, d, 0)
	require.NoError(t, err)

	p, err := Build(d)
	require.NoError(t, err)

	body, contentType, err := p.Body()
	require.NoError(t, err)

	mediaType, params, err := mime.ParseMediaType(contentType)
	require.NoError(t, err)
	assert.Equal(t, "multipart/form-data", mediaType)

	reader := multipart.NewReader(body, params["boundary"])
	fields := map[string]string{}
	var imageNames []string
	var imageData []string
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(part)
		require.NoError(t, err)
		if part.FileName() != "" {
			assert.Equal(t, ImagesField, part.FormName())
			imageNames = append(imageNames, part.FileName())
			imageData = append(imageData, string(data))
			continue
		}
		_, dup := fields[part.FormName()]
		assert.False(t, dup, part.FormName())
		fields[part.FormName()] = string(data)
	}

	assert.Equal(t, []string{"one.jpg", "two.png"}, imageNames)
	assert.Equal(t, []string{"first", "second"}, imageData)
	assert.Equal(t, "https://www.google.com/maps?q=6.927100,79.861200", fields["location_url"])
	assert.Equal(t, "true", fields["need_power"])
	assert.Equal(t, "false", fields["need_foods"])
	assert.Equal(t, "false", fields["is_verified"])
	assert.Equal(t, "true", fields["is_medical_needed"])

	for _, name := range []string{
		"full_name", "phone_number", "location", "location_url", "emergency_type", "priority_level",
		"number_of_peoples_to_rescue", "number_of_peoples", "is_medical_needed", "water_level", "safe_hours",
		"need_foods", "need_water", "need_transport", "need_medic", "need_power", "need_clothes",
		"description", "is_verified",
	} {
		_, ok := fields[name]
		assert.True(t, ok, name)
	}
}

func TestImageHeaderDefaults(t *testing.T) {
	h := imageHeader(1, Image{})
	assert.Equal(t, `form-data; name="images"; filename="image-2.jpg"`, h.Get("Content-Disposition"))
	assert.Equal(t, "application/octet-stream", h.Get("Content-Type"))
}
