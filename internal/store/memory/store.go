// Package memory provides an in-memory Store implementation for
// development and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/watchpoint/pagewatch/internal/capture"
)

// ErrPageNotFound is returned when no page matches the requested ID.
var ErrPageNotFound = errors.New("page not found")

// Store keeps pages, records, and artifact sets in process memory.
type Store struct {
	mu        sync.RWMutex
	pages     map[string]capture.MonitoredPage
	byTuple   map[string]string
	records   map[string][]capture.CaptureRecord
	artifacts map[string]capture.ArtifactSet
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		pages:     make(map[string]capture.MonitoredPage),
		byTuple:   make(map[string]string),
		records:   make(map[string][]capture.CaptureRecord),
		artifacts: make(map[string]capture.ArtifactSet),
	}
}

func tupleKey(siteID, url string, viewport capture.ViewportClass) string {
	return fmt.Sprintf("%s|%s|%s", siteID, url, viewport)
}

// UpsertPage creates the page on first submission of its (site, URL,
// viewport) tuple, or bumps the version and resets the status to pending on
// re-submission of an existing tuple.
func (s *Store) UpsertPage(_ context.Context, page capture.MonitoredPage) (capture.MonitoredPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := tupleKey(page.SiteID, page.URL, page.Viewport)
	if existingID, ok := s.byTuple[key]; ok {
		existing := s.pages[existingID]
		existing.Version++
		existing.Status = capture.PageStatusPending
		s.pages[existingID] = existing
		return existing, nil
	}

	if page.ID == "" {
		return capture.MonitoredPage{}, errors.New("page id is required")
	}
	page.Status = capture.PageStatusPending
	page.Version = 1
	s.pages[page.ID] = page
	s.byTuple[key] = page.ID
	return page, nil
}

// GetPage fetches a page by ID.
func (s *Store) GetPage(_ context.Context, pageID string) (capture.MonitoredPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	page, ok := s.pages[pageID]
	if !ok {
		return capture.MonitoredPage{}, ErrPageNotFound
	}
	return page, nil
}

// UpdatePageStatus writes the status field as a single atomic update.
func (s *Store) UpdatePageStatus(_ context.Context, pageID string, status capture.PageStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	page, ok := s.pages[pageID]
	if !ok {
		return ErrPageNotFound
	}
	page.Status = status
	s.pages[pageID] = page
	return nil
}

// UpdatePageMetadata writes the post-capture metadata as a single atomic
// update, leaving the status field untouched.
func (s *Store) UpdatePageMetadata(_ context.Context, pageID string, meta capture.PageMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	page, ok := s.pages[pageID]
	if !ok {
		return ErrPageNotFound
	}
	page.CachedText = meta.CachedText
	page.Tags = meta.Tags
	page.PIIDetected = meta.PIIDetected
	page.LastSeen = meta.LastSeen
	s.pages[pageID] = page
	return nil
}

// LatestRecord returns the most recent capture record for the page by
// creation time, or nil when the page has no history yet.
func (s *Store) LatestRecord(_ context.Context, pageID string) (*capture.CaptureRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.records[pageID]
	if len(records) == 0 {
		return nil, nil
	}
	latest := records[len(records)-1]
	return &latest, nil
}

// ListRecords returns the page's capture history ordered by creation time.
func (s *Store) ListRecords(_ context.Context, pageID string) ([]capture.CaptureRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.records[pageID]
	out := make([]capture.CaptureRecord, len(records))
	copy(out, records)
	return out, nil
}

// SaveCapture persists the record and its artifact set together.
func (s *Store) SaveCapture(_ context.Context, record capture.CaptureRecord, artifacts capture.ArtifactSet) error {
	if record.ID == "" {
		return errors.New("record id is required")
	}
	if artifacts.RecordID != record.ID {
		return errors.New("artifact set does not belong to record")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	records := append(s.records[record.PageID], record)
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	s.records[record.PageID] = records
	s.artifacts[record.ID] = artifacts
	return nil
}

// GetArtifacts returns the artifact set for a record.
func (s *Store) GetArtifacts(_ context.Context, recordID string) (capture.ArtifactSet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	artifacts, ok := s.artifacts[recordID]
	return artifacts, ok
}
