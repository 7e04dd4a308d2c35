// Package chromedp implements the browser automation collaborator using
// headless Chrome via chromedp.
package chromedp

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/watchpoint/pagewatch/internal/capture"
	"github.com/watchpoint/pagewatch/internal/metrics"
)

// Config controls the shared browser and its sessions.
type Config struct {
	// MaxSessions bounds concurrent render sessions; each one is a live
	// browser tab and therefore a heavyweight resource.
	MaxSessions int
	UserAgent   string
	// SettleDelay is the quiescence period before the screenshot is taken.
	SettleDelay time.Duration
	// DomainQPS rate-limits navigations per host. Zero disables limiting.
	DomainQPS float64
}

// Browser owns one Chrome allocator and gates session acquisition.
type Browser struct {
	cfg            Config
	allocator      context.Context
	allocCancel    context.CancelFunc
	sem            chan struct{}
	domainLimiters sync.Map
	logger         *zap.Logger
}

// New starts a Chrome allocator and returns the session gate around it.
func New(cfg Config, logger *zap.Logger) (*Browser, error) {
	if cfg.MaxSessions <= 0 {
		return nil, fmt.Errorf("max sessions must be > 0")
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Browser{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		sem:         make(chan struct{}, cfg.MaxSessions),
		logger:      logger,
	}, nil
}

// Close cancels the allocator context, terminating Chrome.
func (b *Browser) Close() {
	b.allocCancel()
}

// Open blocks until a session slot is free, then creates a tab emulating the
// requested viewport. The returned session must be closed exactly once.
func (b *Browser) Open(ctx context.Context, width, height int) (capture.Session, error) {
	select {
	case b.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire render session: %w", ctx.Err())
	}

	tabCtx, tabCancel := chromedp.NewContext(b.allocator)

	meta := &responseMeta{headers: map[string]string{}}
	chromedp.ListenTarget(tabCtx, meta.captureEvent)

	if err := chromedp.Run(tabCtx,
		network.Enable(),
		emulation.SetDeviceMetricsOverride(int64(width), int64(height), 1, width < height),
	); err != nil {
		tabCancel()
		<-b.sem
		return nil, fmt.Errorf("prepare session: %w", err)
	}

	metrics.RenderSessionOpened()
	s := &session{
		browser:   b,
		tabCtx:    tabCtx,
		tabCancel: tabCancel,
		meta:      meta,
	}
	return s, nil
}

func (b *Browser) waitDomainBudget(ctx context.Context, rawURL string) error {
	if b.cfg.DomainQPS <= 0 {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	host := strings.ToLower(parsed.Host)
	val, _ := b.domainLimiters.LoadOrStore(host, rate.NewLimiter(rate.Limit(b.cfg.DomainQPS), 1))
	limiter, ok := val.(*rate.Limiter)
	if !ok {
		return fmt.Errorf("unexpected limiter type %T", val)
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait limiter: %w", err)
	}
	return nil
}

type responseMeta struct {
	mu           sync.Mutex
	captured     bool
	etag         string
	lastModified string
	headers      map[string]string
}

func (m *responseMeta) captureEvent(ev interface{}) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.captured {
		return
	}
	m.captured = true
	for k, v := range resp.Response.Headers {
		m.headers[strings.ToLower(k)] = fmt.Sprint(v)
	}
	m.etag = m.headers["etag"]
	m.lastModified = m.headers["last-modified"]
}

func (m *responseMeta) validators() (etag, lastModified string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.etag, m.lastModified
}

type session struct {
	browser   *Browser
	tabCtx    context.Context
	tabCancel context.CancelFunc
	meta      *responseMeta
	closeOnce sync.Once
}

// Navigate loads the URL under the per-host rate budget and a hard deadline.
func (s *session) Navigate(ctx context.Context, rawURL string, timeout time.Duration) error {
	if err := s.browser.waitDomainBudget(ctx, rawURL); err != nil {
		return fmt.Errorf("navigation rate limit: %w", err)
	}

	taskCtx, cancel := context.WithTimeout(s.tabCtx, timeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	if err := chromedp.Run(taskCtx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		if taskCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("navigate %s: %w", rawURL, context.DeadlineExceeded)
		}
		return fmt.Errorf("navigate %s: %w", rawURL, err)
	}
	return nil
}

// consentScript clicks common cookie/consent accept buttons in order. A
// missing selector is not an error.
var consentScript = `
(() => {
  const selectors = [
    '#onetrust-accept-btn-handler',
    'button[id*="accept"]',
    'button[class*="accept"]',
    'button[aria-label*="accept" i]',
    '[data-testid*="cookie"] button',
  ];
  let clicked = 0;
  for (const sel of selectors) {
    const el = document.querySelector(sel);
    if (el) { el.click(); clicked++; }
  }
  return clicked;
})()`

// DismissInterstitials clicks through consent prompts. Best-effort.
func (s *session) DismissInterstitials(ctx context.Context) error {
	taskCtx, cancel := context.WithTimeout(s.tabCtx, 5*time.Second)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	var clicked int
	if err := chromedp.Run(taskCtx, chromedp.Evaluate(consentScript, &clicked)); err != nil {
		return fmt.Errorf("dismiss interstitials: %w", err)
	}
	return nil
}

// TriggerLazyLoad scrolls to the bottom and back to the top so lazy content
// loads before capture. Best-effort.
func (s *session) TriggerLazyLoad(ctx context.Context) error {
	taskCtx, cancel := context.WithTimeout(s.tabCtx, 10*time.Second)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	tasks := chromedp.Tasks{
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.Evaluate(`window.scrollTo(0, 0)`, nil),
	}
	if err := chromedp.Run(taskCtx, tasks); err != nil {
		return fmt.Errorf("trigger lazy load: %w", err)
	}
	return nil
}

// Capture settles, then grabs a full-page screenshot and the serialized DOM.
func (s *session) Capture(ctx context.Context) (capture.RenderResult, error) {
	taskCtx, cancel := context.WithTimeout(s.tabCtx, 30*time.Second)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	var screenshot []byte
	var dom string
	tasks := chromedp.Tasks{
		chromedp.Sleep(s.browser.cfg.SettleDelay),
		chromedp.ActionFunc(func(c context.Context) error {
			buf, err := page.CaptureScreenshot().WithCaptureBeyondViewport(true).Do(c)
			if err != nil {
				return fmt.Errorf("capture screenshot: %w", err)
			}
			screenshot = buf
			return nil
		}),
		chromedp.OuterHTML("html", &dom, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, tasks); err != nil {
		return capture.RenderResult{}, fmt.Errorf("capture page: %w", err)
	}

	etag, lastModified := s.meta.validators()
	return capture.RenderResult{
		Screenshot:   screenshot,
		DOM:          dom,
		ETag:         etag,
		LastModified: lastModified,
	}, nil
}

// Close tears down the tab and releases the session slot. Safe to call more
// than once; the slot is released exactly once.
func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.tabCancel()
		<-s.browser.sem
		metrics.RenderSessionClosed()
	})
	return nil
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
