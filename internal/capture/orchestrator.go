package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/watchpoint/pagewatch/internal/metrics"
)

// OrchestratorConfig controls per-stage behavior of the pipeline.
type OrchestratorConfig struct {
	RenderTimeout  time.Duration
	ExtractTimeout time.Duration
	UploadTimeout  time.Duration
	JPEGQuality    int
	ThumbWidth     int
	ThumbHeight    int
	BlobPrefix     string
}

func (c OrchestratorConfig) withDefaults() OrchestratorConfig {
	if c.RenderTimeout <= 0 {
		c.RenderTimeout = 30 * time.Second
	}
	if c.ExtractTimeout <= 0 {
		c.ExtractTimeout = 60 * time.Second
	}
	if c.UploadTimeout <= 0 {
		c.UploadTimeout = 30 * time.Second
	}
	if c.JPEGQuality <= 0 {
		c.JPEGQuality = 80
	}
	if c.ThumbWidth <= 0 {
		c.ThumbWidth = 320
	}
	if c.ThumbHeight <= 0 {
		c.ThumbHeight = 320
	}
	return c
}

// Orchestrator runs the capture pipeline for one job at a time: render,
// fingerprint, encode, extract, classify, upload, detect change, persist. It
// owns the page status lifecycle and is the only component with side effects
// beyond pure computation.
type Orchestrator struct {
	browser      Browser
	probe        ValidatorProbe
	codec        ImageCodec
	ocr          TextRecognizer
	blobs        BlobStore
	store        Store
	fingerprints Fingerprinter
	detector     ChangeDetector
	pii          PIIScanner
	tagger       TagClassifier
	redactor     Redactor
	clock        Clock
	ids          IDGenerator
	cfg          OrchestratorConfig
	logger       *zap.Logger
}

// NewOrchestrator wires the pipeline. The probe, ocr, and redactor
// collaborators are optional; everything else is required.
func NewOrchestrator(
	browser Browser,
	probe ValidatorProbe,
	imageCodec ImageCodec,
	ocr TextRecognizer,
	blobs BlobStore,
	store Store,
	fingerprints Fingerprinter,
	detector ChangeDetector,
	piiScanner PIIScanner,
	tagger TagClassifier,
	redactor Redactor,
	clock Clock,
	ids IDGenerator,
	cfg OrchestratorConfig,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		browser:      browser,
		probe:        probe,
		codec:        imageCodec,
		ocr:          ocr,
		blobs:        blobs,
		store:        store,
		fingerprints: fingerprints,
		detector:     detector,
		pii:          piiScanner,
		tagger:       tagger,
		redactor:     redactor,
		clock:        clock,
		ids:          ids,
		cfg:          cfg.withDefaults(),
		logger:       logger,
	}
}

// Process runs the full pipeline for one job. On any stage failure the page
// transitions to failed, remaining stages are skipped, and the error is
// returned with job context; the page is never left in processing.
func (o *Orchestrator) Process(ctx context.Context, job CaptureJob) error {
	if err := o.store.UpdatePageStatus(ctx, job.PageID, PageStatusProcessing); err != nil {
		return stageErr(job, StagePersist, fmt.Errorf("%w: mark processing: %w", ErrPersistenceFailure, err))
	}

	err := o.run(ctx, job)
	if err == nil {
		return nil
	}

	o.logger.Error("capture failed",
		zap.String("job_id", job.ID),
		zap.String("page_id", job.PageID),
		zap.String("url", job.URL),
		zap.Error(err),
	)
	// The failed transition must land even when the job context is already
	// canceled, otherwise the page is stuck in processing.
	statusCtx := context.WithoutCancel(ctx)
	if stErr := o.store.UpdatePageStatus(statusCtx, job.PageID, PageStatusFailed); stErr != nil {
		o.logger.Error("mark page failed",
			zap.String("page_id", job.PageID),
			zap.Error(stErr),
		)
	}
	return err
}

func (o *Orchestrator) run(ctx context.Context, job CaptureJob) error {
	validators := o.probeValidators(ctx, job)

	result, err := o.render(ctx, job)
	if err != nil {
		return err
	}
	if result.ETag == "" {
		result.ETag = validators.ETag
	}
	if result.LastModified == "" {
		result.LastModified = validators.LastModified
	}

	fp := o.fingerprints.Compute(result.Screenshot, result.DOM)

	recordID, err := o.ids.NewID()
	if err != nil {
		return stageErr(job, StagePersist, fmt.Errorf("new record id: %w", err))
	}

	renditions, err := o.encode(job, result.Screenshot)
	if err != nil {
		return err
	}

	text, err := o.extractText(ctx, job, renditions.lossless)
	if err != nil {
		return err
	}

	tags := o.tagger.Classify(job.URL, text)
	piiFound := o.pii.Scan(text)

	if piiFound && o.redactor != nil {
		redacted, redactErr := o.redactor.Redact(ctx, renditions.web)
		if redactErr != nil {
			return stageErr(job, StageEncode, fmt.Errorf("%w: redact: %w", ErrEncodingFailure, redactErr))
		}
		renditions.web = redacted
	}

	artifacts, err := o.upload(ctx, job, recordID, fp, renditions)
	if err != nil {
		return err
	}

	prior, err := o.store.LatestRecord(ctx, job.PageID)
	if err != nil {
		return stageErr(job, StagePersist, fmt.Errorf("%w: latest record: %w", ErrPersistenceFailure, err))
	}
	verdict := o.detector.Detect(fp, prior)
	if verdict.Changed {
		metrics.PageChanged()
	}

	now := o.clock.Now()
	record := CaptureRecord{
		ID:           recordID,
		PageID:       job.PageID,
		CreatedAt:    now,
		ETag:         result.ETag,
		LastModified: result.LastModified,
		ContentHash:  fp.ContentHash,
		DOMHash:      fp.DOMHash,
		Perceptual:   fp.Perceptual,
		Width:        fp.Width,
		Height:       fp.Height,
		DiffScore:    verdict.Score,
		Changed:      verdict.Changed,
	}
	if err := o.store.SaveCapture(ctx, record, artifacts); err != nil {
		return stageErr(job, StagePersist, fmt.Errorf("%w: save capture: %w", ErrPersistenceFailure, err))
	}

	meta := PageMetadata{
		CachedText:  text,
		Tags:        tags,
		PIIDetected: piiFound,
		LastSeen:    now,
	}
	if err := o.store.UpdatePageMetadata(ctx, job.PageID, meta); err != nil {
		return stageErr(job, StagePersist, fmt.Errorf("%w: update metadata: %w", ErrPersistenceFailure, err))
	}
	if err := o.store.UpdatePageStatus(ctx, job.PageID, PageStatusCaptured); err != nil {
		return stageErr(job, StagePersist, fmt.Errorf("%w: mark captured: %w", ErrPersistenceFailure, err))
	}

	o.logger.Info("capture complete",
		zap.String("job_id", job.ID),
		zap.String("page_id", job.PageID),
		zap.String("url", job.URL),
		zap.Float64("diff_score", verdict.Score),
		zap.Bool("changed", verdict.Changed),
		zap.Bool("fallback", verdict.Fallback),
	)
	return nil
}

// probeValidators grabs transport cache validators with a cheap plain fetch
// before a render session is spent. Best-effort: failures are logged and the
// validators simply stay empty.
func (o *Orchestrator) probeValidators(ctx context.Context, job CaptureJob) Validators {
	if o.probe == nil {
		return Validators{}
	}
	validators, err := o.probe.Probe(ctx, job.URL)
	if err != nil {
		o.logger.Debug("validator probe failed",
			zap.String("job_id", job.ID),
			zap.String("url", job.URL),
			zap.Error(err),
		)
		return Validators{}
	}
	return validators
}

func (o *Orchestrator) render(ctx context.Context, job CaptureJob) (RenderResult, error) {
	width, height := job.Width, job.Height
	if width <= 0 || height <= 0 {
		width, height = job.Viewport.Dimensions()
	}

	session, err := o.browser.Open(ctx, width, height)
	if err != nil {
		return RenderResult{}, stageErr(job, StageRender, fmt.Errorf("%w: open session: %w", ErrRenderFailure, err))
	}
	// Exactly one release per session, on every exit path.
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			o.logger.Warn("close render session",
				zap.String("job_id", job.ID),
				zap.Error(closeErr),
			)
		}
	}()

	if err := session.Navigate(ctx, job.URL, o.cfg.RenderTimeout); err != nil {
		if ctx.Err() != nil || isDeadline(err) {
			return RenderResult{}, stageErr(job, StageRender, fmt.Errorf("%w: navigate %s: %w", ErrRenderTimeout, job.URL, err))
		}
		return RenderResult{}, stageErr(job, StageRender, fmt.Errorf("%w: navigate %s: %w", ErrRenderFailure, job.URL, err))
	}

	// Best-effort steps: outcomes are observed and discarded, never fatal.
	if dismissErr := session.DismissInterstitials(ctx); dismissErr != nil {
		o.logger.Debug("dismiss interstitials",
			zap.String("job_id", job.ID),
			zap.Error(dismissErr),
		)
	}
	if lazyErr := session.TriggerLazyLoad(ctx); lazyErr != nil {
		o.logger.Debug("trigger lazy load",
			zap.String("job_id", job.ID),
			zap.Error(lazyErr),
		)
	}

	result, err := session.Capture(ctx)
	if err != nil {
		return RenderResult{}, stageErr(job, StageRender, fmt.Errorf("%w: capture: %w", ErrRenderFailure, err))
	}
	return result, nil
}

type renditionSet struct {
	lossless []byte
	web      []byte
	thumb    []byte
}

func (o *Orchestrator) encode(job CaptureJob, screenshot []byte) (renditionSet, error) {
	lossless, err := o.codec.Encode(screenshot, "png", 0)
	if err != nil {
		return renditionSet{}, stageErr(job, StageEncode, fmt.Errorf("%w: lossless: %w", ErrEncodingFailure, err))
	}
	web, err := o.codec.Encode(screenshot, "jpeg", o.cfg.JPEGQuality)
	if err != nil {
		return renditionSet{}, stageErr(job, StageEncode, fmt.Errorf("%w: web: %w", ErrEncodingFailure, err))
	}
	thumb, err := o.codec.Resize(screenshot, o.cfg.ThumbWidth, o.cfg.ThumbHeight, "contain")
	if err != nil {
		return renditionSet{}, stageErr(job, StageEncode, fmt.Errorf("%w: thumbnail: %w", ErrEncodingFailure, err))
	}
	return renditionSet{lossless: lossless, web: web, thumb: thumb}, nil
}

// extractText runs text recognition over the lossless rendition, the same
// bytes that get persisted, so the PII flag always matches the stored
// artifact. Skipped entirely when the job did not request extraction.
func (o *Orchestrator) extractText(ctx context.Context, job CaptureJob, lossless []byte) (string, error) {
	if !job.ExtractText || o.ocr == nil {
		return "", nil
	}
	extractCtx, cancel := context.WithTimeout(ctx, o.cfg.ExtractTimeout)
	defer cancel()
	text, err := o.ocr.Recognize(extractCtx, lossless)
	if err != nil {
		return "", stageErr(job, StageExtract, fmt.Errorf("recognize text: %w", err))
	}
	return text, nil
}

func (o *Orchestrator) upload(
	ctx context.Context,
	job CaptureJob,
	recordID string,
	fp Fingerprint,
	renditions renditionSet,
) (ArtifactSet, error) {
	uploadCtx, cancel := context.WithTimeout(ctx, o.cfg.UploadTimeout)
	defer cancel()

	put := func(suffix, contentType string, data []byte) (string, error) {
		path := o.blobPath(job.PageID, recordID, suffix)
		uri, err := o.blobs.PutObject(uploadCtx, path, contentType, data)
		if err != nil {
			return "", stageErr(job, StageUpload, fmt.Errorf("%w: put %s: %w", ErrUploadFailure, path, err))
		}
		return uri, nil
	}

	losslessURI, err := put("full.png", "image/png", renditions.lossless)
	if err != nil {
		return ArtifactSet{}, err
	}
	webURI, err := put("web.jpg", "image/jpeg", renditions.web)
	if err != nil {
		return ArtifactSet{}, err
	}
	thumbURI, err := put("thumb.png", "image/png", renditions.thumb)
	if err != nil {
		return ArtifactSet{}, err
	}

	return ArtifactSet{
		RecordID:     recordID,
		PageID:       job.PageID,
		LosslessURI:  losslessURI,
		WebURI:       webURI,
		ThumbnailURI: thumbURI,
		ContentHash:  fp.ContentHash,
		Perceptual:   fp.Perceptual,
	}, nil
}

func (o *Orchestrator) blobPath(pageID, recordID, suffix string) string {
	if o.cfg.BlobPrefix == "" {
		return fmt.Sprintf("%s/%s/%s", pageID, recordID, suffix)
	}
	return fmt.Sprintf("%s/%s/%s/%s", o.cfg.BlobPrefix, pageID, recordID, suffix)
}

func isDeadline(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
