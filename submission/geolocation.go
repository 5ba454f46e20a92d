package submission

import (
	"context"
	"errors"
	"time"

	"reliefdesk/maplink"
)

// DefaultGeolocationTimeout bounds a device location request.
const DefaultGeolocationTimeout = 8 * time.Second

var (
	ErrLocationUnsupported = errors.New("location capability not available")
	ErrPermissionDenied    = errors.New("location permission denied")
)

// Position is a device fix in degrees.
type Position struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64
}

// LocateOptions are passed through to the device.
type LocateOptions struct {
	HighAccuracy bool
	Timeout      time.Duration
}

// Locator provides the device position. Implementations should honour ctx,
// but Resolve does not rely on it.
type Locator interface {
	Locate(ctx context.Context, opts LocateOptions) (Position, error)
}

// ReportedPosition is a Locator for a position already reported by the
// client device, e.g. in a request body.
type ReportedPosition Position

func (p ReportedPosition) Locate(ctx context.Context, _ LocateOptions) (Position, error) {
	if err := ctx.Err(); err != nil {
		return Position{}, err
	}
	return Position(p), nil
}

type locateResult struct {
	pos Position
	err error
}

// Resolve asks the locator for a high-accuracy fix and, on success, stores
// the derived map link on the draft (both the resolved link and the visible
// URL field). It always returns within timeout; a zero timeout uses
// DefaultGeolocationTimeout. Failures are *GeolocationError and leave the
// draft unchanged.
func Resolve(ctx context.Context, loc Locator, d *Draft, timeout time.Duration) (string, error) {
	if loc == nil {
		return "", &GeolocationError{Reason: GeoUnsupported, Err: ErrLocationUnsupported}
	}
	if timeout <= 0 {
		timeout = DefaultGeolocationTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make(chan locateResult, 1)
	go func() {
		pos, err := loc.Locate(ctx, LocateOptions{HighAccuracy: true, Timeout: timeout})
		results <- locateResult{pos: pos, err: err}
	}()

	var res locateResult
	select {
	case res = <-results:
	case <-ctx.Done():
		res = locateResult{err: ctx.Err()}
	}

	if res.err != nil {
		return "", classify(res.err)
	}

	link, err := maplink.Format(res.pos.Latitude, res.pos.Longitude)
	if err != nil {
		return "", &GeolocationError{Reason: GeoInvalid, Err: err}
	}
	d.SetResolvedLink(link)
	return link, nil
}

func classify(err error) *GeolocationError {
	var geoErr *GeolocationError
	switch {
	case errors.As(err, &geoErr):
		return geoErr
	case errors.Is(err, context.DeadlineExceeded):
		return &GeolocationError{Reason: GeoTimeout, Err: err}
	case errors.Is(err, ErrPermissionDenied):
		return &GeolocationError{Reason: GeoDenied, Err: err}
	case errors.Is(err, ErrLocationUnsupported):
		return &GeolocationError{Reason: GeoUnsupported, Err: err}
	default:
		return &GeolocationError{Reason: GeoUnavailable, Err: err}
	}
}
