package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jknair0/beforeeach"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reliefdesk/models"
	"reliefdesk/session"
	"reliefdesk/submission"
	"reliefdesk/upstream"
	ws "reliefdesk/websocket"
)

type stubBackend struct {
	mu        sync.Mutex
	posts     []models.Post
	postsErr  error
	stats     models.StatsSource
	submitErr error
	submitted []*submission.Payload
	fetches   int

	// entered receives once per SubmitPost call; gate, when set, holds it until closed.
	entered chan struct{}
	gate    chan struct{}
}

func (s *stubBackend) FetchPosts(context.Context) ([]models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	return s.posts, s.postsErr
}

func (s *stubBackend) FetchStats(context.Context) (models.StatsSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats, nil
}

func (s *stubBackend) SubmitPost(_ context.Context, _ string, p *submission.Payload) error {
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitted = append(s.submitted, p)
	return s.submitErr
}

var (
	backend    *stubBackend
	controller *session.Controller
	hub        *ws.Hub
	router     *gin.Engine
)

func setUp() {
	gin.SetMode(gin.TestMode)
	backend = &stubBackend{
		posts: []models.Post{
			{
				ID:          models.Text{Value: "11", Valid: true},
				FullName:    models.Text{Value: "Sunil", Valid: true},
				LocationURL: models.Text{Value: "https://www.google.com/maps?q=6.900000,79.850000", Valid: true},
				IsVerified:  true,
			},
			{ID: models.Text{Value: "12", Valid: true}},
		},
		stats: models.StatsSource{TotalPosts: models.Count{Value: 2, Valid: true}},
	}
	controller = session.NewController(backend, session.Options{})
	hub = ws.NewHub()
	router = gin.New()
	NewHandlers(controller, hub, Options{}).Register(router)
}

func tearDown() {
	hub.Stop()
	backend = nil
	controller = nil
	router = nil
}

var it = beforeeach.Create(setUp, tearDown)

func serve(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

type multipartFields map[string]string

func multipartRequest(t *testing.T, fields multipartFields, images int) *http.Request {
	t.Helper()
	names := make([]string, images)
	for i := range names {
		names[i] = "photo.jpg"
	}
	return multipartRequestWith(t, fields, names...)
}

// multipartRequestWith attaches one image per filename; each image's bytes are its filename.
func multipartRequestWith(t *testing.T, fields multipartFields, filenames ...string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, name := range filenames {
		fw, err := mw.CreateFormFile(submission.ImagesField, name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(name))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/requests", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func validFields() multipartFields {
	return multipartFields{
		"full_name":    "Ruwan",
		"phone_number": "0712345678",
		"location":     "Ja-Ela",
		"location_url": "https://maps.example.com/place",
		"need_water":   "true",
		"is_verified":  "true",
	}
}

func TestGetRequests(t *testing.T) {
	it(func() {
		require.NoError(t, controller.Refresh(context.Background()))

		w := serve(httptest.NewRequest(http.MethodGet, "/api/requests", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var resp models.RequestsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Count)
		require.Len(t, resp.Requests, 1)
		assert.Equal(t, "11", resp.Requests[0].ID)
		assert.Empty(t, resp.Notice)
	})
}

func TestGetRequestsNotice(t *testing.T) {
	it(func() {
		backend.postsErr = &upstream.TransportError{Endpoint: upstream.EndPointPosts, StatusCode: http.StatusServiceUnavailable}
		_ = controller.Refresh(context.Background())

		w := serve(httptest.NewRequest(http.MethodGet, "/api/requests", nil))
		var resp models.RequestsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 0, resp.Count)
		assert.Equal(t, "Failed to load posts (503)", resp.Notice)
	})
}

func TestRefreshRequests(t *testing.T) {
	it(func() {
		w := serve(httptest.NewRequest(http.MethodPost, "/api/requests/refresh", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var resp models.RequestsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Count)
		assert.Equal(t, uint64(1), resp.Generation)
	})
}

func TestRefreshRequestsFetchesOnce(t *testing.T) {
	it(func() {
		ctx, cancel := context.WithCancel(context.Background())
		stopped := make(chan struct{})
		go func() {
			controller.Run(ctx)
			close(stopped)
		}()
		defer func() {
			cancel()
			<-stopped
		}()

		fetchCount := func() int {
			backend.mu.Lock()
			defer backend.mu.Unlock()
			return backend.fetches
		}
		require.Eventually(t, func() bool { return fetchCount() == 1 }, time.Second, time.Millisecond)

		w := serve(httptest.NewRequest(http.MethodPost, "/api/requests/refresh", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 2, fetchCount())

		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, 2, fetchCount())
	})
}

func TestGetStats(t *testing.T) {
	it(func() {
		require.NoError(t, controller.Refresh(context.Background()))

		w := serve(httptest.NewRequest(http.MethodGet, "/api/stats", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var rec models.StatsRecord
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
		assert.Equal(t, models.StatsRecord{Total: 2}, rec)
	})
}

func TestGetRequestsGeoJSON(t *testing.T) {
	it(func() {
		require.NoError(t, controller.Refresh(context.Background()))

		w := serve(httptest.NewRequest(http.MethodGet, "/api/requests/geojson", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var fc struct {
			Type     string `json:"type"`
			Features []struct {
				Geometry struct {
					Coordinates []float64 `json:"coordinates"`
				} `json:"geometry"`
				Properties map[string]interface{} `json:"properties"`
			} `json:"features"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fc))
		assert.Equal(t, "FeatureCollection", fc.Type)
		require.Len(t, fc.Features, 1)
		assert.Equal(t, []float64{79.85, 6.9}, fc.Features[0].Geometry.Coordinates)
		assert.Equal(t, "Sunil", fc.Features[0].Properties["name"])
	})
}

func TestResolveLocation(t *testing.T) {
	testCases := []struct {
		name     string
		body     string
		status   int
		expected string
	}{
		{name: "Valid", body: `{"lat": 6.9271, "lng": 79.8612}`, status: http.StatusOK, expected: "https://www.google.com/maps?q=6.927100,79.861200"},
		{name: "Missing lng", body: `{"lat": 6.9}`, status: http.StatusBadRequest},
		{name: "Out of range", body: `{"lat": 95, "lng": 10}`, status: http.StatusUnprocessableEntity},
		{name: "Not JSON", body: `lat=1`, status: http.StatusBadRequest},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			it(func() {
				req := httptest.NewRequest(http.MethodPost, "/api/location", bytes.NewBufferString(tc.body))
				req.Header.Set("Content-Type", "application/json")
				w := serve(req)
				require.Equal(t, tc.status, w.Code)
				if tc.expected != "" {
					var resp models.LocationResponse
					require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
					assert.Equal(t, tc.expected, resp.LocationURL)
				}
			})
		})
	}
}

func TestSubmitRequestAccepted(t *testing.T) {
	it(func() {
		var events []session.Event
		controller.Subscribe(func(e session.Event) { events = append(events, e) })

		w := serve(multipartRequest(t, validFields(), 2))
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		var resp models.SubmitResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.RequestID)

		require.Len(t, backend.submitted, 1)
		p := backend.submitted[0]
		verified, _ := p.Get("is_verified")
		assert.Equal(t, "false", verified)
		water, _ := p.Get("need_water")
		assert.Equal(t, "true", water)
		emergency, _ := p.Get("emergency_type")
		assert.Equal(t, submission.DefaultEmergencyType, emergency)
		assert.Len(t, p.Images, 2)

		require.Len(t, events, 1)
		assert.Equal(t, resp.RequestID, events[0].RequestID)
	})
}

func TestSubmitRequestUsesDevicePosition(t *testing.T) {
	it(func() {
		fields := validFields()
		delete(fields, "location_url")
		fields["lat"] = "7.0"
		fields["lng"] = "79.9"

		w := serve(multipartRequest(t, fields, 1))
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		link, _ := backend.submitted[0].Get("location_url")
		assert.Equal(t, "https://www.google.com/maps?q=7.000000,79.900000", link)
	})
}

func TestSubmitRequestValidation(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(f multipartFields)
		images int
		kind   string
		field  string
	}{
		{name: "Missing name", mutate: func(f multipartFields) { delete(f, "full_name") }, images: 1, kind: "missing_field", field: "name"},
		{name: "Missing phone", mutate: func(f multipartFields) { f["phone_number"] = " " }, images: 1, kind: "missing_field", field: "phone"},
		{name: "No images", mutate: func(multipartFields) {}, images: 0, kind: "missing_images"},
		{name: "No link", mutate: func(f multipartFields) { delete(f, "location_url") }, images: 1, kind: "missing_location_link"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			it(func() {
				fields := validFields()
				tc.mutate(fields)

				w := serve(multipartRequest(t, fields, tc.images))
				require.Equal(t, http.StatusUnprocessableEntity, w.Code)

				var body map[string]string
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, tc.kind, body["kind"])
				assert.Equal(t, tc.field, body["field"])
				assert.NotEmpty(t, body["error"])
				assert.Empty(t, backend.submitted)
			})
		})
	}
}

func TestSubmitRequestRejected(t *testing.T) {
	it(func() {
		backend.submitErr = &upstream.RejectionError{StatusCode: http.StatusBadRequest, Message: "field required"}

		w := serve(multipartRequest(t, validFields(), 1))
		require.Equal(t, http.StatusBadGateway, w.Code)

		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "field required", body["error"])
		assert.Equal(t, uint64(0), controller.Generation())
	})
}

func TestSubmitRequestBadInput(t *testing.T) {
	it(func() {
		fields := validFields()
		fields["lat"] = "north"
		fields["lng"] = "1"
		w := serve(multipartRequest(t, fields, 1))
		assert.Equal(t, http.StatusBadRequest, w.Code)

		req := httptest.NewRequest(http.MethodPost, "/api/requests", bytes.NewBufferString("{}"))
		req.Header.Set("Content-Type", "application/json")
		w = serve(req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHealthCheck(t *testing.T) {
	it(func() {
		controller.Invalidate("")

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)
		NewHandlers(controller, hub, Options{}).HealthCheck(c)

		require.Equal(t, http.StatusOK, w.Code)
		var resp models.HealthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "healthy", resp.Status)
		assert.Equal(t, serviceName, resp.Service)
		assert.Equal(t, uint64(1), resp.Generation)
	})
}

func TestInFlightForms(t *testing.T) {
	r := newInFlightForms()
	assert.True(t, r.claim("form-1"))
	assert.False(t, r.claim("form-1"))
	assert.True(t, r.claim("form-2"))
	assert.Equal(t, 2, r.len())

	r.release("form-1")
	assert.True(t, r.claim("form-1"))
	r.release("form-1")
	r.release("form-2")
	r.release("form-2")
	assert.Equal(t, 0, r.len())
}

func payloadByName(t *testing.T, payloads []*submission.Payload, name string) *submission.Payload {
	t.Helper()
	for _, p := range payloads {
		if v, _ := p.Get("full_name"); v == name {
			return p
		}
	}
	t.Fatalf("no payload for %q", name)
	return nil
}

func TestSubmitRequestConcurrentForms(t *testing.T) {
	it(func() {
		backend.entered = make(chan struct{}, 2)
		backend.gate = make(chan struct{})

		submit := func(name, formID, image string) <-chan *httptest.ResponseRecorder {
			fields := validFields()
			fields["full_name"] = name
			req := multipartRequestWith(t, fields, image)
			if formID != "" {
				req.Header.Set(FormIDHeader, formID)
			}
			done := make(chan *httptest.ResponseRecorder, 1)
			go func() { done <- serve(req) }()
			return done
		}

		// Same client address for all three; only the form ID tells them apart.
		alice := submit("Alice", "form-a", "alice.jpg")
		<-backend.entered
		carol := submit("Carol", "", "carol.jpg")
		<-backend.entered

		bob := <-submit("Bob", "form-a", "bob.jpg")
		require.Equal(t, http.StatusConflict, bob.Code)
		assert.Contains(t, bob.Body.String(), session.ErrSubmissionInFlight.Error())

		close(backend.gate)
		require.Equal(t, http.StatusCreated, (<-alice).Code)
		require.Equal(t, http.StatusCreated, (<-carol).Code)

		backend.mu.Lock()
		submitted := backend.submitted
		backend.mu.Unlock()
		require.Len(t, submitted, 2)

		for name, image := range map[string]string{"Alice": "alice.jpg", "Carol": "carol.jpg"} {
			p := payloadByName(t, submitted, name)
			require.Len(t, p.Images, 1)
			assert.Equal(t, image, p.Images[0].Filename)
			assert.Equal(t, []byte(image), p.Images[0].Data)
		}

		backend.entered, backend.gate = nil, nil
		next := validFields()
		next["full_name"] = "Alice"
		req := multipartRequestWith(t, next, "again.jpg")
		req.Header.Set(FormIDHeader, "form-a")
		assert.Equal(t, http.StatusCreated, serve(req).Code)
	})
}
