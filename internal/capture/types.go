// Package capture defines the core types, collaborator contracts, and the
// orchestrator for the page capture pipeline.
package capture

import (
	"time"
)

// PageStatus represents the lifecycle state of a monitored page.
type PageStatus string

// Page status values persisted in the store. A page is re-capturable
// indefinitely: captured and failed both reset to pending on re-submission.
const (
	PageStatusPending    PageStatus = "pending"
	PageStatusProcessing PageStatus = "processing"
	PageStatusCaptured   PageStatus = "captured"
	PageStatusFailed     PageStatus = "failed"
)

// ViewportClass selects the fixed render dimensions for a capture.
type ViewportClass string

// Supported viewport classes.
const (
	ViewportDesktop ViewportClass = "desktop"
	ViewportMobile  ViewportClass = "mobile"
)

// Dimensions returns the fixed pixel width and height for the class.
// Unknown classes render as desktop.
func (v ViewportClass) Dimensions() (width, height int) {
	switch v {
	case ViewportMobile:
		return 375, 812
	default:
		return 1280, 800
	}
}

// MonitoredPage is one (site, URL, viewport class) tuple under tracking.
// The tuple is unique in the store: re-submitting the same target updates
// the existing record instead of duplicating it.
type MonitoredPage struct {
	ID          string        `json:"id"`
	SiteID      string        `json:"site_id"`
	URL         string        `json:"url"`
	Viewport    ViewportClass `json:"viewport"`
	Status      PageStatus    `json:"status"`
	Version     int           `json:"version"`
	LastSeen    time.Time     `json:"last_seen"`
	CachedText  string        `json:"cached_text,omitempty"`
	Tags        []string      `json:"tags,omitempty"`
	PIIDetected bool          `json:"pii_detected"`
}

// Fingerprint is the hash triple identifying one capture's content, plus the
// pixel dimensions of the rendition the perceptual hash was computed from.
type Fingerprint struct {
	ContentHash string
	DOMHash     string
	Perceptual  uint64
	Width       int
	Height      int
}

// CaptureRecord is one immutable snapshot event for a monitored page.
// Records for a page are totally ordered by CreatedAt; DiffScore and Changed
// are relative to the immediately preceding record (baseline if none).
type CaptureRecord struct {
	ID           string    `json:"id"`
	PageID       string    `json:"page_id"`
	CreatedAt    time.Time `json:"created_at"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	ContentHash  string    `json:"content_hash"`
	DOMHash      string    `json:"dom_hash"`
	Perceptual   uint64    `json:"perceptual_hash"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	DiffScore    float64   `json:"diff_score"`
	Changed      bool      `json:"changed"`
}

// ArtifactSet holds the stored rendition URIs for one capture record.
// Hashes here must agree with the owning record's.
type ArtifactSet struct {
	RecordID     string `json:"record_id"`
	PageID       string `json:"page_id"`
	LosslessURI  string `json:"lossless_uri"`
	WebURI       string `json:"web_uri"`
	ThumbnailURI string `json:"thumbnail_uri"`
	ContentHash  string `json:"content_hash"`
	Perceptual   uint64 `json:"perceptual_hash"`
}

// CaptureJob is the orchestrator's transient unit of work. It is never
// persisted and exists only for the duration of processing.
type CaptureJob struct {
	ID          string        `json:"id"`
	SiteID      string        `json:"site_id"`
	PageID      string        `json:"page_id"`
	URL         string        `json:"url"`
	Viewport    ViewportClass `json:"viewport"`
	Width       int           `json:"width"`
	Height      int           `json:"height"`
	ExtractText bool          `json:"extract_text"`
	Priority    int           `json:"priority"`
}

// RenderResult is what one browser navigation yields: raw screenshot bytes,
// the serialized DOM, and best-effort transport cache validators.
type RenderResult struct {
	Screenshot   []byte
	DOM          string
	ETag         string
	LastModified string
}

// Validators are transport cache validators captured ahead of a render.
// Either field may be empty; remote servers are free to omit both.
type Validators struct {
	ETag         string
	LastModified string
}

// DiffResult is the change verdict for one capture relative to the prior one.
type DiffResult struct {
	// Score is the normalized visual distance to the prior capture, in [0,1].
	Score float64
	// Changed is true when Score exceeds the detector threshold.
	Changed bool
	// Fallback is true when pixel dimensions differed between renditions and
	// the verdict rests on DOM hash comparison alone.
	Fallback bool
}

// PageMetadata is the post-capture mutation applied to a monitored page as a
// single atomic write, distinct from status transitions.
type PageMetadata struct {
	CachedText  string
	Tags        []string
	PIIDetected bool
	LastSeen    time.Time
}
