package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"reliefdesk/media"
	"reliefdesk/models"
	"reliefdesk/session"
	"reliefdesk/submission"
	"reliefdesk/upstream"
)

// FormIDHeader names the client form a submission comes from. While one
// submission with a given form ID is in flight, others with the same ID get 409.
const FormIDHeader = "X-Form-ID"

// inFlightForms tracks the form IDs with a submission in progress.
type inFlightForms struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newInFlightForms() *inFlightForms {
	return &inFlightForms{keys: make(map[string]struct{})}
}

// claim marks key as in flight. It returns false if it already was.
func (r *inFlightForms) claim(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.keys[key]; ok {
		return false
	}
	r.keys[key] = struct{}{}
	return true
}

func (r *inFlightForms) release(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.keys, key)
}

func (r *inFlightForms) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}

// SubmitRequest accepts a multipart help request, validates it and forwards
// it to the backend.
func (h *Handlers) SubmitRequest(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxUploadBytes)
	if err := c.Request.ParseMultipartForm(h.opts.MaxUploadBytes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid multipart form"})
		return
	}
	defer c.Request.MultipartForm.RemoveAll()

	images, err := readImages(c.Request.MultipartForm)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	images, err = media.PrepareAll(images, h.opts.MaxImageDimension)
	if err != nil {
		log.WithError(err).Error("Failed to prepare images")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to process images"})
		return
	}

	pos, hasPos, err := reportedPosition(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if key := c.GetHeader(FormIDHeader); key != "" {
		if !h.inFlight.claim(key) {
			c.JSON(http.StatusConflict, gin.H{"error": session.ErrSubmissionInFlight.Error()})
			return
		}
		defer h.inFlight.release(key)
	}

	// The draft belongs to this request alone.
	form := h.controller.OpenForm()
	defer form.Close()

	form.Edit(func(d *submission.Draft) { fillDraft(d, c) })
	form.AttachImages(images...)

	if hasPos {
		if _, err := form.UseLocation(c.Request.Context(), pos); err != nil {
			var manual string
			form.Edit(func(d *submission.Draft) { manual = strings.TrimSpace(d.MapLink()) })
			if manual == "" {
				var geoErr *submission.GeolocationError
				reason := ""
				if errors.As(err, &geoErr) {
					reason = geoErr.Reason.String()
				}
				c.JSON(http.StatusUnprocessableEntity, gin.H{
					"error":  err.Error(),
					"kind":   "geolocation",
					"reason": reason,
				})
				return
			}
		}
	}

	requestID, err := form.Submit(c.Request.Context())
	if err != nil {
		writeSubmitError(c, requestID, err)
		return
	}

	c.JSON(http.StatusCreated, models.SubmitResponse{
		Message:   "Request submitted",
		RequestID: requestID,
	})
}

func writeSubmitError(c *gin.Context, requestID string, err error) {
	var (
		verr *submission.ValidationError
		rej  *upstream.RejectionError
		terr *upstream.TransportError
	)
	switch {
	case errors.Is(err, session.ErrSubmissionInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": verr.Error(),
			"kind":  verr.Kind.String(),
			"field": verr.Field,
		})
	case errors.As(err, &rej):
		c.JSON(http.StatusBadGateway, gin.H{"error": rej.Message, "request_id": requestID})
	case errors.As(err, &terr):
		log.WithError(err).WithField("request_id", requestID).Error("Submission transport failure")
		c.JSON(http.StatusBadGateway, gin.H{"error": upstream.GenericRejection, "request_id": requestID})
	default:
		log.WithError(err).WithField("request_id", requestID).Error("Submission failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": upstream.GenericRejection})
	}
}

// fillDraft maps the transport field names onto a fresh draft. Fields with a
// form default keep it when omitted.
func fillDraft(d *submission.Draft, c *gin.Context) {
	d.Reset()
	d.FullName = c.PostForm("full_name")
	d.PhoneNumber = c.PostForm("phone_number")
	d.AltPhoneNumber = c.PostForm("alt_phone_number")
	d.Location = c.PostForm("location")
	d.District = c.PostForm("district")
	d.Landmark = c.PostForm("land_mark")
	d.NumberOfPeopleToRescue = c.PostForm("number_of_peoples_to_rescue")
	d.NumberOfPeople = c.PostForm("number_of_peoples")
	d.SafeHours = c.PostForm("safe_hours")
	d.Description = c.PostForm("description")
	d.LocationURL = c.PostForm("location_url")

	if v, ok := c.GetPostForm("emergency_type"); ok && strings.TrimSpace(v) != "" {
		d.EmergencyType = v
	}
	if v, ok := c.GetPostForm("water_level"); ok {
		d.WaterLevel = v
	}
	if v, ok := c.GetPostForm("priority_level"); ok && strings.TrimSpace(v) != "" {
		d.PriorityLevel = v
	}
	if v, ok := c.GetPostForm("is_medical_needed"); ok {
		d.IsMedicalNeeded = formBool(v)
	}
	d.IsVerified = formBool(c.PostForm("is_verified"))

	d.Needs = models.NeedFlags{
		Food:      formBool(c.PostForm("need_foods")),
		Water:     formBool(c.PostForm("need_water")),
		Transport: formBool(c.PostForm("need_transport")),
		Medic:     formBool(c.PostForm("need_medic")),
		Power:     formBool(c.PostForm("need_power")),
		Clothes:   formBool(c.PostForm("need_clothes")),
	}
}

func formBool(v string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && b
}

func readImages(form *multipart.Form) ([]submission.Image, error) {
	if form == nil {
		return nil, nil
	}
	headers := form.File[submission.ImagesField]
	images := make([]submission.Image, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open image %q", fh.Filename)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read image %q", fh.Filename)
		}
		images = append(images, submission.Image{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return images, nil
}

// reportedPosition reads the optional lat/lng device fix. Both or neither must be present.
func reportedPosition(c *gin.Context) (submission.ReportedPosition, bool, error) {
	latRaw := strings.TrimSpace(c.PostForm("lat"))
	lngRaw := strings.TrimSpace(c.PostForm("lng"))
	if latRaw == "" && lngRaw == "" {
		return submission.ReportedPosition{}, false, nil
	}
	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return submission.ReportedPosition{}, false, errors.New("lat must be a number")
	}
	lng, err := strconv.ParseFloat(lngRaw, 64)
	if err != nil {
		return submission.ReportedPosition{}, false, errors.New("lng must be a number")
	}
	return submission.ReportedPosition{Latitude: lat, Longitude: lng}, true, nil
}
