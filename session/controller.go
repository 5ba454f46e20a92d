// Package session owns the shared display state (verified request list,
// stats, loading and notice) and the per-user submission forms that feed it.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/apex/log"

	"reliefdesk/metrics"
	"reliefdesk/models"
	"reliefdesk/normalizer"
	"reliefdesk/stats"
	"reliefdesk/submission"
	"reliefdesk/upstream"
)

// EventPostsChanged is emitted every time the generation is bumped.
const EventPostsChanged = "posts_changed"

// Backend is the remote store of help requests.
type Backend interface {
	FetchPosts(ctx context.Context) ([]models.Post, error)
	FetchStats(ctx context.Context) (models.StatsSource, error)
	SubmitPost(ctx context.Context, requestID string, p *submission.Payload) error
}

// Event tells observers that the request list has to be re-fetched.
type Event struct {
	Type       string
	Generation uint64
	RequestID  string
	Timestamp  time.Time
}

// Observer receives generation events. It is called synchronously and must not block.
type Observer func(Event)

// Snapshot is a consistent copy of the display state.
type Snapshot struct {
	Records    []models.DisplayRecord
	Stats      models.StatsRecord
	Notice     string
	Loading    bool
	Generation uint64
}

// Options tune a Controller.
type Options struct {
	// RefreshInterval re-fetches periodically when positive.
	RefreshInterval time.Duration
	// GeolocationTimeout bounds location lookups of forms opened from this controller.
	GeolocationTimeout time.Duration
}

type observerEntry struct {
	id int
	fn Observer
}

// Controller holds the list and stats shown to every viewer. All state is
// guarded by mu and handed out as copies.
type Controller struct {
	backend Backend
	opts    Options

	mu         sync.RWMutex
	records    []models.DisplayRecord
	tracker    stats.Tracker
	notice     string
	generation uint64

	// Latest issued sequence per fetch kind; only the latest response is applied.
	postsSeq     uint64
	statsSeq     uint64
	postsLoading bool

	obsMu     sync.Mutex
	observers []observerEntry
	nextObsID int

	changed chan struct{}
}

// NewController creates a controller. Nothing is fetched until Refresh or Run.
func NewController(backend Backend, opts Options) *Controller {
	if opts.GeolocationTimeout <= 0 {
		opts.GeolocationTimeout = submission.DefaultGeolocationTimeout
	}
	return &Controller{
		backend: backend,
		opts:    opts,
		changed: make(chan struct{}, 1),
	}
}

// Snapshot returns a copy of the current display state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	records := make([]models.DisplayRecord, len(c.records))
	copy(records, c.records)
	return Snapshot{
		Records:    records,
		Stats:      c.tracker.Current(),
		Notice:     c.notice,
		Loading:    c.postsLoading,
		Generation: c.generation,
	}
}

// Stats returns the last good stats record.
func (c *Controller) Stats() models.StatsRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tracker.Current()
}

// Generation returns the current data generation.
func (c *Controller) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// Subscribe registers an observer and returns a function that removes it.
func (c *Controller) Subscribe(fn Observer) func() {
	c.obsMu.Lock()
	id := c.nextObsID
	c.nextObsID++
	c.observers = append(c.observers, observerEntry{id: id, fn: fn})
	c.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.obsMu.Lock()
			defer c.obsMu.Unlock()
			for i, o := range c.observers {
				if o.id == id {
					c.observers = append(c.observers[:i], c.observers[i+1:]...)
					return
				}
			}
		})
	}
}

// Invalidate bumps the generation, notifies observers and wakes Run.
func (c *Controller) Invalidate(requestID string) uint64 {
	gen := c.MarkChanged(requestID)
	select {
	case c.changed <- struct{}{}:
	default:
	}
	return gen
}

// MarkChanged bumps the generation and notifies observers without waking Run.
// Callers that have just refreshed use it in place of Invalidate.
func (c *Controller) MarkChanged(requestID string) uint64 {
	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	metrics.Generation.Set(float64(gen))

	event := Event{
		Type:       EventPostsChanged,
		Generation: gen,
		RequestID:  requestID,
		Timestamp:  time.Now().UTC(),
	}

	c.obsMu.Lock()
	observers := make([]Observer, 0, len(c.observers))
	for _, o := range c.observers {
		observers = append(observers, o.fn)
	}
	c.obsMu.Unlock()

	for _, fn := range observers {
		fn(event)
	}
	return gen
}

// Refresh fetches the list and the stats concurrently. The returned error is
// the list failure, if any; stats failures are only logged.
func (c *Controller) Refresh(ctx context.Context) error {
	var (
		wg      sync.WaitGroup
		postErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		postErr = c.RefreshPosts(ctx)
	}()
	go func() {
		defer wg.Done()
		_ = c.RefreshStats(ctx)
	}()
	wg.Wait()
	return postErr
}

// RefreshPosts re-fetches the list. On failure the list is cleared and the
// notice is set. A response is dropped if a newer fetch was issued meanwhile.
func (c *Controller) RefreshPosts(ctx context.Context) error {
	c.mu.Lock()
	c.postsSeq++
	seq := c.postsSeq
	c.postsLoading = true
	c.mu.Unlock()

	posts, err := c.backend.FetchPosts(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.postsSeq {
		metrics.StaleResponsesTotal.WithLabelValues(upstream.EndPointPosts).Inc()
		return err
	}
	c.postsLoading = false

	if err != nil {
		metrics.FetchTotal.WithLabelValues(upstream.EndPointPosts, "error").Inc()
		c.records = nil
		c.notice = LoadNotice(err)
		metrics.VisibleRequests.Set(0)
		log.WithError(err).Warn("Failed to load help requests")
		return err
	}

	metrics.FetchTotal.WithLabelValues(upstream.EndPointPosts, "ok").Inc()
	c.records = normalizer.Display(posts)
	c.notice = ""
	metrics.VisibleRequests.Set(float64(len(c.records)))
	log.WithFields(log.Fields{
		"received": len(posts),
		"verified": len(c.records),
	}).Debug("Help requests refreshed")
	return nil
}

// RefreshStats re-fetches the counters. On failure the previous record stays.
func (c *Controller) RefreshStats(ctx context.Context) error {
	c.mu.Lock()
	c.statsSeq++
	seq := c.statsSeq
	c.mu.Unlock()

	src, err := c.backend.FetchStats(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.statsSeq {
		metrics.StaleResponsesTotal.WithLabelValues(upstream.EndPointStats).Inc()
		return err
	}

	c.tracker.Apply(src, err)
	if err != nil {
		metrics.FetchTotal.WithLabelValues(upstream.EndPointStats, "error").Inc()
		log.WithError(err).Debug("Failed to load stats, keeping previous counters")
		return err
	}
	metrics.FetchTotal.WithLabelValues(upstream.EndPointStats, "ok").Inc()
	return nil
}

// Run performs an initial refresh, then refreshes on every generation change
// and on the configured interval until ctx is done.
func (c *Controller) Run(ctx context.Context) {
	_ = c.Refresh(ctx)

	var tick <-chan time.Time
	if c.opts.RefreshInterval > 0 {
		ticker := time.NewTicker(c.opts.RefreshInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.changed:
			_ = c.Refresh(ctx)
		case <-tick:
			_ = c.Refresh(ctx)
		}
	}
}

// OpenForm starts a new submission session with a default draft.
func (c *Controller) OpenForm() *Form {
	return &Form{
		controller: c,
		draft:      submission.NewDraft(),
		geoTimeout: c.opts.GeolocationTimeout,
	}
}

// LoadNotice is the user-facing text shown in place of the list after a failed fetch.
func LoadNotice(err error) string {
	var terr *upstream.TransportError
	if errors.As(err, &terr) && terr.StatusCode != 0 {
		return fmt.Sprintf("Failed to load posts (%d)", terr.StatusCode)
	}
	return "Failed to load posts."
}
