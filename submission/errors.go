package submission

import (
	"errors"
	"fmt"
)

// ValidationKind classifies a rejected draft.
type ValidationKind int

const (
	KindMissingField ValidationKind = iota + 1
	KindMissingImages
	KindMissingLocationLink
)

func (k ValidationKind) String() string {
	switch k {
	case KindMissingField:
		return "missing_field"
	case KindMissingImages:
		return "missing_images"
	case KindMissingLocationLink:
		return "missing_location_link"
	default:
		return "unknown"
	}
}

// ValidationError is a local, pre-submission failure. It is never sent to the backend.
type ValidationError struct {
	Kind  ValidationKind
	Field string
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case KindMissingField:
		return fmt.Sprintf("missing required field: %s", e.Field)
	case KindMissingImages:
		return "please add at least one photo"
	case KindMissingLocationLink:
		return "please provide a GPS link (use map or paste a map URL)"
	default:
		return "invalid request"
	}
}

// Is matches on kind and field, so errors.Is(err, MissingField("phone")) works.
func (e *ValidationError) Is(target error) bool {
	var t *ValidationError
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind && e.Field == t.Field
}

// MissingField reports an empty required field.
func MissingField(name string) *ValidationError {
	return &ValidationError{Kind: KindMissingField, Field: name}
}

var (
	ErrMissingImages       = &ValidationError{Kind: KindMissingImages}
	ErrMissingLocationLink = &ValidationError{Kind: KindMissingLocationLink}
)

// GeolocationReason explains why a location lookup failed.
type GeolocationReason int

const (
	GeoUnsupported GeolocationReason = iota + 1
	GeoDenied
	GeoTimeout
	GeoUnavailable
	GeoInvalid
)

func (r GeolocationReason) String() string {
	switch r {
	case GeoUnsupported:
		return "unsupported"
	case GeoDenied:
		return "denied"
	case GeoTimeout:
		return "timeout"
	case GeoUnavailable:
		return "unavailable"
	case GeoInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// GeolocationError is surfaced to the user next to the map button. Manual
// URL entry stays available.
type GeolocationError struct {
	Reason GeolocationReason
	Err    error
}

func (e *GeolocationError) Error() string {
	switch e.Reason {
	case GeoUnsupported:
		return "Geolocation not supported on this device."
	case GeoTimeout:
		return "Location request timed out. Try again or paste a map URL."
	case GeoInvalid:
		return "Device reported an invalid position. Please paste a map URL."
	default:
		return "Unable to fetch location. Please allow location access."
	}
}

func (e *GeolocationError) Unwrap() error {
	return e.Err
}
