package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"

	"reliefdesk/metrics"
	"reliefdesk/submission"
	"reliefdesk/upstream"
)

var ErrSubmissionInFlight = errors.New("a submission is already in progress")

// Form is one user's submission session. The draft is owned by the form;
// Edit serializes access to it.
type Form struct {
	controller *Controller
	geoTimeout time.Duration

	mu         sync.Mutex
	draft      *submission.Draft
	geoErr     error
	submitting atomic.Bool
}

// Edit runs fn with exclusive access to the draft.
func (f *Form) Edit(fn func(d *submission.Draft)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f.draft)
}

// AttachImages adds images, dropping the oldest beyond the cap.
func (f *Form) AttachImages(images ...submission.Image) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, img := range images {
		f.draft.Images.Add(img)
	}
	return f.draft.Images.Len()
}

// UseLocation resolves the device position into the draft's map link. The
// failure is also kept for display until the next attempt.
func (f *Form) UseLocation(ctx context.Context, loc submission.Locator) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	link, err := submission.Resolve(ctx, loc, f.draft, f.geoTimeout)
	f.geoErr = err
	if err != nil {
		var geoErr *submission.GeolocationError
		if errors.As(err, &geoErr) {
			metrics.GeolocationFailuresTotal.WithLabelValues(geoErr.Reason.String()).Inc()
		}
		log.WithError(err).Debug("Location lookup failed")
	}
	return link, err
}

// GeolocationError returns the failure of the last location lookup, if any.
func (f *Form) GeolocationError() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.geoErr
}

// Submit validates the draft and sends it. Only one submission per form may be
// in flight. On success the draft is reset and the controller invalidated; on
// any failure the draft is kept for retry.
func (f *Form) Submit(ctx context.Context) (string, error) {
	if !f.submitting.CompareAndSwap(false, true) {
		return "", ErrSubmissionInFlight
	}
	defer f.submitting.Store(false)

	f.mu.Lock()
	payload, err := submission.Build(f.draft)
	f.mu.Unlock()
	if err != nil {
		var verr *submission.ValidationError
		if errors.As(err, &verr) {
			metrics.ValidationFailuresTotal.WithLabelValues(verr.Kind.String(), verr.Field).Inc()
		}
		return "", err
	}

	requestID := uuid.NewString()
	if err := f.controller.backend.SubmitPost(ctx, requestID, payload); err != nil {
		var rej *upstream.RejectionError
		if errors.As(err, &rej) {
			metrics.SubmissionsTotal.WithLabelValues("rejected").Inc()
		} else {
			metrics.SubmissionsTotal.WithLabelValues("error").Inc()
		}
		return requestID, err
	}
	metrics.SubmissionsTotal.WithLabelValues("accepted").Inc()

	f.mu.Lock()
	f.draft.Reset()
	f.geoErr = nil
	f.mu.Unlock()

	f.controller.Invalidate(requestID)
	return requestID, nil
}

// Submitting reports whether a submission is in flight.
func (f *Form) Submitting() bool {
	return f.submitting.Load()
}

// Close discards the draft.
func (f *Form) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.draft.Reset()
	f.geoErr = nil
}
