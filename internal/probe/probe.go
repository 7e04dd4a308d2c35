// Package probe implements the validator probe using gocolly: a cheap plain
// HTTP fetch that collects transport cache validators before a render session
// is spent on the target.
package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/watchpoint/pagewatch/internal/capture"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Probe implements capture.ValidatorProbe with a Colly collector.
type Probe struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Probe.
func New(cfg Config) *Probe {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	return &Probe{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Probe fetches the URL once and returns any ETag / Last-Modified validators
// from the response. Either or both may be empty.
func (p *Probe) Probe(ctx context.Context, url string) (capture.Validators, error) {
	var (
		validators capture.Validators
		fetchErr   error
	)

	collector := p.baseCollector.Clone()
	if p.cfg.UserAgent != "" {
		collector.UserAgent = p.cfg.UserAgent
	}
	collector.SetRequestTimeout(p.cfg.Timeout)

	collector.OnResponse(func(resp *colly.Response) {
		validators.ETag = resp.Headers.Get("ETag")
		validators.LastModified = resp.Headers.Get("Last-Modified")
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return capture.Validators{}, fmt.Errorf("probe canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return capture.Validators{}, fmt.Errorf("probe visit %s: %w", url, err)
		}
	}

	if fetchErr != nil {
		return capture.Validators{}, fmt.Errorf("probe fetch %s: %w", url, fetchErr)
	}
	return validators, nil
}
