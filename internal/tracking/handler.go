// Package tracking serves the engagement endpoints embedded in outgoing
// emails: the open pixel, click redirects, and the unsubscribe flow.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/regabilling/retarget/internal/api"
	"github.com/regabilling/retarget/internal/config"
	"github.com/regabilling/retarget/internal/domain"
	"github.com/regabilling/retarget/internal/service/retarget"
)

// 1x1 transparent GIF
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0x00, 0x00, 0x00, 0xFF, 0xFF, 0xFF, 0x21,
	0xF9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2C, 0x00, 0x00,
	0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x04,
	0x01, 0x00, 0x3B,
}

// EngagementService records opens, clicks, and unsubscribes.
type EngagementService interface {
	RecordOpen(ctx context.Context, campaignID, userAgent, ip string) error
	RecordClick(ctx context.Context, campaignID, url string) error
	Unsubscribe(ctx context.Context, prospectID string) error
}

// ProspectReader looks up a single prospect for the unsubscribe page.
type ProspectReader interface {
	Get(ctx context.Context, id string) (*domain.Prospect, error)
}

type Handler struct {
	tracker   EngagementService
	prospects ProspectReader

	defaultRedirectURL string
}

func NewHandler(tracker EngagementService, prospects ProspectReader, cfg config.TrackingConfig) *Handler {
	return &Handler{
		tracker:            tracker,
		prospects:          prospects,
		defaultRedirectURL: cfg.DefaultRedirectURL,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/track/open/{campaignID}", h.HandleOpen)
	r.Get("/track/click/{campaignID}", h.HandleClick)
	r.Get("/unsubscribe/{prospectID}", h.HandleUnsubscribePage)
	r.Post("/unsubscribe/{prospectID}/confirm", h.HandleUnsubscribeConfirm)
	return r
}

// HandleOpen records an email open and serves the pixel. The pixel is always
// served with 200, whatever happened on the recording side: an image request
// from a mail client must never see an error.
func (h *Handler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "campaignID")

	if err := h.tracker.RecordOpen(r.Context(), campaignID, r.UserAgent(), realIP(r)); err != nil {
		log.Printf("[Tracking] error recording open for campaign %s: %v", campaignID, err)
	}

	h.servePixel(w)
}

// HandleClick records a click and redirects to the target URL, falling back
// to the default site. Recording failures never block the redirect.
func (h *Handler) HandleClick(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "campaignID")
	target := r.URL.Query().Get("redirect")
	if target == "" {
		target = h.defaultRedirectURL
	}

	if err := h.tracker.RecordClick(r.Context(), campaignID, target); err != nil {
		log.Printf("[Tracking] error recording click for campaign %s: %v", campaignID, err)
	}

	http.Redirect(w, r, target, http.StatusFound)
}

// HandleUnsubscribePage shows the confirmation page. Unknown prospect ids get
// a 400 so forged links reveal nothing.
func (h *Handler) HandleUnsubscribePage(w http.ResponseWriter, r *http.Request) {
	prospectID := chi.URLParam(r, "prospectID")

	p, err := h.prospects.Get(r.Context(), prospectID)
	if err != nil {
		if !errors.Is(err, retarget.ErrProspectNotFound) {
			log.Printf("[Tracking] error loading prospect %s: %v", prospectID, err)
		}
		http.Error(w, "Invalid unsubscribe link", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if p.IsUnsubscribed() {
		fmt.Fprint(w, unsubscribedAlreadyHTML)
		return
	}
	fmt.Fprintf(w, unsubscribePageHTML, p.Email, prospectID)
}

// HandleUnsubscribeConfirm applies the unsubscribe. The transition is
// permanent and idempotent.
func (h *Handler) HandleUnsubscribeConfirm(w http.ResponseWriter, r *http.Request) {
	prospectID := chi.URLParam(r, "prospectID")

	if err := h.tracker.Unsubscribe(r.Context(), prospectID); err != nil {
		if !errors.Is(err, retarget.ErrProspectNotFound) {
			log.Printf("[Tracking] error unsubscribing prospect %s: %v", prospectID, err)
		}
		http.Error(w, "Invalid unsubscribe link", http.StatusBadRequest)
		return
	}
	api.RecordUnsubscribe()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, unsubscribedDoneHTML)
}

func (h *Handler) servePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Write(pixelGIF)
}

func realIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

const unsubscribePageHTML = `<!DOCTYPE html><html><body style="font-family:Arial,sans-serif;text-align:center;padding:50px;">
	<h1>Unsubscribe</h1>
	<p>Stop receiving emails at %s?</p>
	<form method="POST" action="/unsubscribe/%s/confirm">
		<button type="submit">Unsubscribe</button>
	</form>
</body></html>`

const unsubscribedAlreadyHTML = `<!DOCTYPE html><html><body style="font-family:Arial,sans-serif;text-align:center;padding:50px;">
	<h1>Already unsubscribed</h1>
	<p>You will not receive any further emails from us.</p>
</body></html>`

const unsubscribedDoneHTML = `<!DOCTYPE html><html><body style="font-family:Arial,sans-serif;text-align:center;padding:50px;">
	<h1>You have been unsubscribed</h1>
	<p>You will no longer receive emails from us.</p>
</body></html>`
