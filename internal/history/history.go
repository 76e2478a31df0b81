// Package history keeps the in-memory list of visited pages and mirrors it to
// a durable store.
//
// The in-memory list is authoritative for display. When saving is enabled
// every record in memory also has a durable row; when it is disabled,
// RecordVisit leaves no trace at all. Durable failures are logged and
// returned, never fatal.
package history

import (
	"context"
	stderrors "errors"
	"image"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	errs "github.com/vidyasagar/surfshell/internal/errors"
	"github.com/vidyasagar/surfshell/internal/logging"
	"github.com/vidyasagar/surfshell/internal/storage"
)

// Durable is the persistence collaborator. ID is the unique key.
type Durable interface {
	FetchAll(ctx context.Context) ([]storage.Visit, error)
	Insert(ctx context.Context, v storage.Visit) error
	Delete(ctx context.Context, id string) error
}

// VisitRecord is one completed top-level navigation.
type VisitRecord struct {
	ID        string
	URL       string
	Title     string
	Host      string
	Favicon   image.Image // attached lazily, never persisted
	VisitedAt time.Time
}

// ChangeKind identifies what happened to the list.
type ChangeKind int

const (
	Added ChangeKind = iota
	Removed
	Cleared
	Loaded
	FaviconAttached
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Cleared:
		return "cleared"
	case Loaded:
		return "loaded"
	case FaviconAttached:
		return "favicon"
	default:
		return "unknown"
	}
}

// Change is published to subscribers after the in-memory list changes.
type Change struct {
	Kind   ChangeKind
	Record VisitRecord // zero for Cleared and Loaded
}

// Store owns the ordered visit list.
type Store struct {
	durable Durable
	log     *zap.Logger
	now     func() time.Time

	mu        sync.Mutex
	records   []VisitRecord
	saving    bool
	listeners map[int]func(Change)
	nextSub   int
}

// Option customizes a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.log = logging.OrNop(l) }
}

// WithSaving sets the initial state of the history-saving gate.
func WithSaving(enabled bool) Option {
	return func(s *Store) { s.saving = enabled }
}

// WithClock replaces time.Now for visit timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty Store. Saving is enabled unless WithSaving
// says otherwise; call LoadHistory to pull in durable records.
func NewStore(d Durable, opts ...Option) *Store {
	s := &Store{
		durable:   d,
		log:       zap.NewNop(),
		now:       time.Now,
		saving:    true,
		listeners: make(map[int]func(Change)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetSaving flips the history-saving gate. It only affects future
// RecordVisit calls: existing records are neither deleted nor persisted.
func (s *Store) SetSaving(enabled bool) {
	s.mu.Lock()
	s.saving = enabled
	s.mu.Unlock()
}

// Saving reports whether RecordVisit currently records anything.
func (s *Store) Saving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saving
}

// RecordVisit appends a visit and persists it. It does nothing while saving
// is disabled. The record is kept in memory even if the durable insert
// fails; that failure is logged and returned.
func (s *Store) RecordVisit(ctx context.Context, url, title, host, id string) error {
	s.mu.Lock()
	if !s.saving {
		s.mu.Unlock()
		return nil
	}
	rec := VisitRecord{ID: id, URL: url, Title: title, Host: host, VisitedAt: s.now()}
	s.records = append(s.records, rec)
	s.mu.Unlock()

	s.publish(Change{Kind: Added, Record: rec})

	if err := s.durable.Insert(ctx, toVisit(rec)); err != nil {
		s.log.Warn("persisting visit failed", zap.String("id", id), zap.String("url", url), zap.Error(err))
		return storageFailure("record visit", err)
	}
	return nil
}

// LoadHistory replaces the in-memory list with every durable record,
// regardless of the saving gate. Records added while the fetch was in
// flight are kept after the durable ones. On failure the list is left
// empty.
func (s *Store) LoadHistory(ctx context.Context) error {
	s.mu.Lock()
	before := make(map[string]bool, len(s.records))
	for _, r := range s.records {
		before[r.ID] = true
	}
	s.mu.Unlock()

	visits, err := s.durable.FetchAll(ctx)

	s.mu.Lock()
	if err != nil {
		s.records = nil
	} else {
		records := make([]VisitRecord, 0, len(visits))
		seen := make(map[string]bool, len(visits))
		for _, v := range visits {
			records = append(records, fromVisit(v))
			seen[v.ID] = true
		}
		for _, r := range s.records {
			if !before[r.ID] && !seen[r.ID] {
				records = append(records, r)
			}
		}
		s.records = records
	}
	n := len(s.records)
	s.mu.Unlock()

	s.publish(Change{Kind: Loaded})

	if err != nil {
		s.log.Error("loading history failed; starting empty", zap.Error(err))
		return storageFailure("load history", err)
	}
	s.log.Debug("history loaded", zap.Int("records", n))
	return nil
}

// Delete removes the record with the given id from memory and durable
// storage. Unknown ids are ignored, so Delete is idempotent.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	var removed *VisitRecord
	for i, r := range s.records {
		if r.ID == id {
			rec := r
			removed = &rec
			s.records = append(s.records[:i:i], s.records[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	if removed != nil {
		s.publish(Change{Kind: Removed, Record: *removed})
	}

	if err := s.durable.Delete(ctx, id); err != nil {
		s.log.Warn("deleting visit failed", zap.String("id", id), zap.Error(err))
		return storageFailure("delete visit", err)
	}
	return nil
}

// Clear empties the in-memory list unconditionally and then tries to
// delete every durable row, both those mirrored in memory and any residue
// only the durable store knows about. All delete errors are returned
// together; a later LoadHistory reconciles whatever survived.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.records))
	seen := make(map[string]struct{}, len(s.records))
	for _, r := range s.records {
		ids = append(ids, r.ID)
		seen[r.ID] = struct{}{}
	}
	s.records = nil
	s.mu.Unlock()

	s.publish(Change{Kind: Cleared})

	var failures []error
	if visits, err := s.durable.FetchAll(ctx); err != nil {
		failures = append(failures, err)
	} else {
		for _, v := range visits {
			if _, ok := seen[v.ID]; !ok {
				ids = append(ids, v.ID)
				seen[v.ID] = struct{}{}
			}
		}
	}

	for _, id := range ids {
		if err := s.durable.Delete(ctx, id); err != nil {
			failures = append(failures, err)
		}
	}

	if len(failures) > 0 {
		err := stderrors.Join(failures...)
		s.log.Warn("clearing history left durable rows behind", zap.Int("failures", len(failures)), zap.Error(err))
		return storageFailure("clear history", err)
	}
	return nil
}

// AttachFavicon sets img on every record for host. Favicons are display
// state only and are not persisted.
func (s *Store) AttachFavicon(host string, img image.Image) {
	if img == nil {
		return
	}
	var changed []VisitRecord
	s.mu.Lock()
	for i := range s.records {
		if strings.EqualFold(s.records[i].Host, host) {
			s.records[i].Favicon = img
			changed = append(changed, s.records[i])
		}
	}
	s.mu.Unlock()

	for _, rec := range changed {
		s.publish(Change{Kind: FaviconAttached, Record: rec})
	}
}

// List returns a copy of the records in insertion order.
func (s *Store) List() []VisitRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]VisitRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Recent returns a copy of the records, newest first.
func (s *Store) Recent() []VisitRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]VisitRecord, len(s.records))
	for i, r := range s.records {
		out[len(s.records)-1-i] = r
	}
	return out
}

// Search returns records whose title or URL contains query
// (case-insensitive), newest first.
func (s *Store) Search(query string) []VisitRecord {
	q := strings.ToLower(strings.TrimSpace(query))
	var results []VisitRecord
	for _, r := range s.Recent() {
		if q == "" || strings.Contains(strings.ToLower(r.Title), q) || strings.Contains(strings.ToLower(r.URL), q) {
			results = append(results, r)
		}
	}
	return results
}

// Get returns the record with the given id.
func (s *Store) Get(id string) (VisitRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.ID == id {
			return r, true
		}
	}
	return VisitRecord{}, false
}

// Len returns the number of records in memory.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Subscribe registers fn for change notifications. Listeners run on the
// goroutine that made the change, after the list has been updated and
// outside the store's lock. The returned func unsubscribes.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) publish(c Change) {
	s.mu.Lock()
	fns := make([]func(Change), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

func storageFailure(op string, err error) error {
	if errs.Is(err, errs.ErrStorageFailure) {
		return err
	}
	return errs.NewStorageFailure(op, err)
}

func toVisit(r VisitRecord) storage.Visit {
	return storage.Visit{ID: r.ID, URL: r.URL, Title: r.Title, Host: r.Host, VisitedAt: r.VisitedAt}
}

func fromVisit(v storage.Visit) VisitRecord {
	return VisitRecord{ID: v.ID, URL: v.URL, Title: v.Title, Host: v.Host, VisitedAt: v.VisitedAt}
}
