package tracking

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/regabilling/retarget/internal/config"
	"github.com/regabilling/retarget/internal/domain"
	"github.com/regabilling/retarget/internal/service/retarget"
)

type fakeTracker struct {
	openErr   error
	clickErr  error
	unsubErr  error
	opens     []string
	clicks    []string
	clickURLs []string
	unsubs    []string
}

func (f *fakeTracker) RecordOpen(ctx context.Context, campaignID, userAgent, ip string) error {
	f.opens = append(f.opens, campaignID)
	return f.openErr
}

func (f *fakeTracker) RecordClick(ctx context.Context, campaignID, url string) error {
	f.clicks = append(f.clicks, campaignID)
	f.clickURLs = append(f.clickURLs, url)
	return f.clickErr
}

func (f *fakeTracker) Unsubscribe(ctx context.Context, prospectID string) error {
	f.unsubs = append(f.unsubs, prospectID)
	return f.unsubErr
}

type fakeProspects struct {
	prospects map[string]*domain.Prospect
}

func (f *fakeProspects) Get(ctx context.Context, id string) (*domain.Prospect, error) {
	p, ok := f.prospects[id]
	if !ok {
		return nil, retarget.ErrProspectNotFound
	}
	return p, nil
}

func newTestHandler(tracker *fakeTracker, prospects *fakeProspects) *Handler {
	if prospects == nil {
		prospects = &fakeProspects{prospects: map[string]*domain.Prospect{}}
	}
	return NewHandler(tracker, prospects, config.TrackingConfig{
		BaseURL:            "https://regabilling.com/api",
		DefaultRedirectURL: "https://regabilling.com",
	})
}

func TestHandleOpenServesPixel(t *testing.T) {
	tracker := &fakeTracker{}
	h := newTestHandler(tracker, nil)

	req := httptest.NewRequest(http.MethodGet, "/track/open/c-1", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/gif" {
		t.Errorf("expected image/gif, got %q", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); !strings.Contains(cc, "no-store") {
		t.Errorf("expected no-store cache header, got %q", cc)
	}
	if !bytes.Equal(rec.Body.Bytes(), pixelGIF) {
		t.Errorf("expected pixel body of %d bytes, got %d", len(pixelGIF), rec.Body.Len())
	}
	if len(tracker.opens) != 1 || tracker.opens[0] != "c-1" {
		t.Errorf("expected open recorded for c-1, got %v", tracker.opens)
	}
}

func TestHandleOpenPixelServedOnError(t *testing.T) {
	tracker := &fakeTracker{openErr: context.DeadlineExceeded}
	h := newTestHandler(tracker, nil)

	req := httptest.NewRequest(http.MethodGet, "/track/open/unknown", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 even on tracking error, got %d", rec.Code)
	}
	if !bytes.Equal(rec.Body.Bytes(), pixelGIF) {
		t.Error("expected pixel body even on tracking error")
	}
}

func TestPixelIs43Bytes(t *testing.T) {
	if len(pixelGIF) != 43 {
		t.Fatalf("expected 43-byte pixel, got %d", len(pixelGIF))
	}
}

func TestHandleClickRedirects(t *testing.T) {
	tracker := &fakeTracker{}
	h := newTestHandler(tracker, nil)

	req := httptest.NewRequest(http.MethodGet, "/track/click/c-2?redirect=https%3A%2F%2Fexample.com%2Foffer", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "https://example.com/offer" {
		t.Errorf("expected redirect to offer URL, got %q", loc)
	}
	if len(tracker.clickURLs) != 1 || tracker.clickURLs[0] != "https://example.com/offer" {
		t.Errorf("expected click url recorded, got %v", tracker.clickURLs)
	}
}

func TestHandleClickDefaultsRedirect(t *testing.T) {
	tracker := &fakeTracker{clickErr: context.DeadlineExceeded}
	h := newTestHandler(tracker, nil)

	req := httptest.NewRequest(http.MethodGet, "/track/click/c-3", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "https://regabilling.com" {
		t.Errorf("expected default redirect, got %q", loc)
	}
}

func TestHandleUnsubscribePage(t *testing.T) {
	prospects := &fakeProspects{prospects: map[string]*domain.Prospect{
		"p-1": {ID: "p-1", Email: "ann@example.com", Status: domain.ProspectPending},
	}}
	h := newTestHandler(&fakeTracker{}, prospects)

	req := httptest.NewRequest(http.MethodGet, "/unsubscribe/p-1", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ann@example.com") {
		t.Error("expected page to show the prospect email")
	}
}

func TestHandleUnsubscribePageAlreadyUnsubscribed(t *testing.T) {
	at := time.Now()
	prospects := &fakeProspects{prospects: map[string]*domain.Prospect{
		"p-2": {ID: "p-2", Email: "bo@example.com", Status: domain.ProspectUnsubscribed, UnsubscribedAt: &at},
	}}
	h := newTestHandler(&fakeTracker{}, prospects)

	req := httptest.NewRequest(http.MethodGet, "/unsubscribe/p-2", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Already unsubscribed") {
		t.Error("expected already-unsubscribed page")
	}
}

func TestHandleUnsubscribeUnknownProspect(t *testing.T) {
	h := newTestHandler(&fakeTracker{unsubErr: retarget.ErrProspectNotFound}, nil)

	req := httptest.NewRequest(http.MethodGet, "/unsubscribe/ghost", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown prospect, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Invalid unsubscribe link") {
		t.Errorf("expected invalid link body, got %q", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/unsubscribe/ghost/confirm", nil)
	rec = httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown prospect confirm, got %d", rec.Code)
	}
}

func TestHandleUnsubscribeConfirm(t *testing.T) {
	tracker := &fakeTracker{}
	h := newTestHandler(tracker, nil)
	before := counterValue(t, "retargeting_unsubscribes_total")

	req := httptest.NewRequest(http.MethodPost, "/unsubscribe/p-1/confirm", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(tracker.unsubs) != 1 || tracker.unsubs[0] != "p-1" {
		t.Errorf("expected unsubscribe recorded for p-1, got %v", tracker.unsubs)
	}
	if !strings.Contains(rec.Body.String(), "unsubscribed") {
		t.Error("expected confirmation body")
	}
	if after := counterValue(t, "retargeting_unsubscribes_total"); after != before+1 {
		t.Errorf("expected unsubscribe counter to move from %v to %v, got %v", before, before+1, after)
	}
}

func counterValue(t *testing.T, name string) float64 {
	t.Helper()
	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}
