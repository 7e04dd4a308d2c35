package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/watchpoint/pagewatch/internal/capture"
	"github.com/watchpoint/pagewatch/internal/dispatcher"
	queuemem "github.com/watchpoint/pagewatch/internal/queue/memory"
	storememory "github.com/watchpoint/pagewatch/internal/store/memory"
)

type seqIDs struct{ n int }

func (g *seqIDs) NewID() (string, error) {
	g.n++
	return fmt.Sprintf("id-%d", g.n), nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func newTestServer(t *testing.T) (*Server, *storememory.Store, *queuemem.Queue) {
	t.Helper()
	store := storememory.NewStore()
	queue := queuemem.NewQueue(8)
	dsp := dispatcher.New(queue, nil)
	srv := NewServer(store, dsp, &seqIDs{}, fixedClock{now: time.Unix(1000, 0).UTC()}, zap.NewNop())
	return srv, store, queue
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSubmitCaptureEnqueuesJob(t *testing.T) {
	t.Parallel()

	srv, _, queue := newTestServer(t)
	body := `{"site_id":"site-1","url":"https://example.com/pricing","viewport":"mobile","extract_text":true}`
	req := httptest.NewRequest(http.MethodPost, "/v1/captures", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		JobID   string                `json:"job_id"`
		Page    capture.MonitoredPage `json:"page"`
		Version int                   `json:"version"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.JobID)
	require.Equal(t, 1, resp.Version)
	require.Equal(t, capture.PageStatusPending, resp.Page.Status)
	require.Equal(t, capture.ViewportMobile, resp.Page.Viewport)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	job, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, resp.JobID, job.ID)
	require.Equal(t, resp.Page.ID, job.PageID)
	require.Equal(t, capture.ViewportMobile, job.Viewport)
	require.Equal(t, 375, job.Width)
	require.Equal(t, 812, job.Height)
	require.True(t, job.ExtractText)
}

func TestSubmitCaptureResubmissionBumpsVersion(t *testing.T) {
	t.Parallel()

	srv, _, queue := newTestServer(t)
	body := `{"site_id":"site-1","url":"https://example.com"}`

	for want := 1; want <= 2; want++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/captures", strings.NewReader(body))
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusAccepted, rec.Code)

		var resp struct {
			Version int `json:"version"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		require.Equal(t, want, resp.Version)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_, err := queue.Dequeue(ctx)
		cancel()
		require.NoError(t, err)
	}
}

func TestSubmitCaptureValidation(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	cases := []struct {
		name string
		body string
	}{
		{"bad json", `{`},
		{"missing site", `{"url":"https://example.com"}`},
		{"missing url", `{"site_id":"site-1"}`},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodPost, "/v1/captures", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)
			require.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestSubmitCaptureUnknownViewportDefaultsToDesktop(t *testing.T) {
	t.Parallel()

	srv, _, queue := newTestServer(t)
	body := `{"site_id":"site-1","url":"https://example.com","viewport":"tv"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/captures", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	job, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, capture.ViewportDesktop, job.Viewport)
	require.Equal(t, 1280, job.Width)
	require.Equal(t, 800, job.Height)
}

func TestGetPage(t *testing.T) {
	t.Parallel()

	srv, store, _ := newTestServer(t)
	created, err := store.UpsertPage(context.Background(), capture.MonitoredPage{
		ID:       "page-1",
		SiteID:   "site-1",
		URL:      "https://example.com",
		Viewport: capture.ViewportDesktop,
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/pages/page-1/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var page capture.MonitoredPage
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	require.Equal(t, created.ID, page.ID)
	require.Equal(t, created.Version, page.Version)
}

func TestGetPageNotFound(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/pages/missing/", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRecords(t *testing.T) {
	t.Parallel()

	srv, store, _ := newTestServer(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		record := capture.CaptureRecord{
			ID:        fmt.Sprintf("rec-%d", i),
			PageID:    "page-1",
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		arts := capture.ArtifactSet{RecordID: record.ID, PageID: record.PageID}
		require.NoError(t, store.SaveCapture(context.Background(), record, arts))
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/pages/page-1/records", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var records []capture.CaptureRecord
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&records))
	require.Len(t, records, 2)
	require.Equal(t, "rec-0", records[0].ID)
}

func TestListRecordsEmptyIsArray(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/pages/page-1/records", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}
