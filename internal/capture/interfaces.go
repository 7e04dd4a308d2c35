package capture

import (
	"context"
	"time"
)

// Browser opens render sessions against a live browsing context. Open blocks
// until a session slot is free, making the implementation the concurrency gate
// for simultaneous renders.
type Browser interface {
	Open(ctx context.Context, width, height int) (Session, error)
}

// Session is one live automated browsing context. Close must be safe to call
// exactly once per session and must release the underlying slot.
type Session interface {
	// Navigate loads the URL and waits for the document to be ready.
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	// DismissInterstitials clicks through cookie/consent prompts. Best-effort:
	// the returned error is advisory and never aborts a capture.
	DismissInterstitials(ctx context.Context) error
	// TriggerLazyLoad scrolls to the bottom and back to force lazy content.
	// Best-effort, same as DismissInterstitials.
	TriggerLazyLoad(ctx context.Context) error
	// Capture settles for the configured quiescence period, then returns the
	// screenshot, serialized DOM, and any transport cache validators observed
	// on the document response.
	Capture(ctx context.Context) (RenderResult, error)
	Close() error
}

// ImageCodec derives encoded renditions from raw screenshot bytes.
type ImageCodec interface {
	Encode(raw []byte, format string, quality int) ([]byte, error)
	Resize(raw []byte, width, height int, fit string) ([]byte, error)
}

// TextRecognizer extracts plain text from image bytes. Calls may take seconds
// and must be bounded by the caller's context.
type TextRecognizer interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// BlobStore writes artifact bytes and returns a public URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Store persists pages, capture records, and artifact sets. Status and
// metadata updates are atomic single-record writes; SaveCapture makes the
// record and artifact set visible together or not at all.
type Store interface {
	UpsertPage(ctx context.Context, page MonitoredPage) (MonitoredPage, error)
	GetPage(ctx context.Context, pageID string) (MonitoredPage, error)
	UpdatePageStatus(ctx context.Context, pageID string, status PageStatus) error
	UpdatePageMetadata(ctx context.Context, pageID string, meta PageMetadata) error
	LatestRecord(ctx context.Context, pageID string) (*CaptureRecord, error)
	ListRecords(ctx context.Context, pageID string) ([]CaptureRecord, error)
	SaveCapture(ctx context.Context, record CaptureRecord, artifacts ArtifactSet) error
}

// ValidatorProbe performs a cheap plain-HTTP fetch of the target ahead of a
// render session, collecting transport cache validators. Best-effort.
type ValidatorProbe interface {
	Probe(ctx context.Context, url string) (Validators, error)
}

// Fingerprinter computes the hash triple for one capture. Pure, no I/O.
type Fingerprinter interface {
	Compute(screenshot []byte, dom string) Fingerprint
}

// ChangeDetector scores a new fingerprint against the most recent persisted
// record for the page (nil for a first capture).
type ChangeDetector interface {
	Detect(fp Fingerprint, prior *CaptureRecord) DiffResult
}

// PIIScanner reports whether extracted text contains sensitive patterns.
type PIIScanner interface {
	Scan(text string) bool
}

// TagClassifier assigns category labels from the URL and extracted text.
type TagClassifier interface {
	Classify(url, text string) []string
}

// Redactor is the hook for blurring or masking artifacts that carry PII. The
// pipeline only detects and flags; redaction implementations plug in here.
type Redactor interface {
	Redact(ctx context.Context, image []byte) ([]byte, error)
}

// Queue provides enqueue/dequeue semantics for capture jobs.
type Queue interface {
	Enqueue(ctx context.Context, job CaptureJob) error
	Dequeue(ctx context.Context) (CaptureJob, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record and job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
