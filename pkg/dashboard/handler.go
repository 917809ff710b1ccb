package dashboard

import (
	"context"
	"net/http"
	"time"

	"github.com/nicktill/carbondash/pkg/httpx"
	"github.com/nicktill/carbondash/pkg/relation"
)

// Handler serves the dashboards over HTTP.
type Handler struct {
	renderer *Renderer
	timeout  time.Duration
}

// NewHandler creates a dashboard handler. A zero timeout leaves requests unbounded.
func NewHandler(renderer *Renderer, timeout time.Duration) *Handler {
	return &Handler{renderer: renderer, timeout: timeout}
}

// SelectionFromRequest reads the dimension query parameters of r.
func SelectionFromRequest(r *http.Request, dims ...relation.Column) Selection {
	q := r.URL.Query()
	sel := make(Selection, len(dims))
	for _, dim := range dims {
		if v := q.Get(Params[dim]); v != "" {
			sel[dim] = v
		}
	}
	return sel
}

func (h *Handler) context(r *http.Request) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), h.timeout)
}

// HandleEmissions handles GET /v1/dashboard/emissions.
func (h *Handler) HandleEmissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.RespondErrorString(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	ctx, cancel := h.context(r)
	defer cancel()

	page, err := h.renderer.Emissions(ctx, SelectionFromRequest(r, PrimaryDims...))
	if err != nil {
		httpx.RespondError(w, StatusFor(err), err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, page)
}

// HandlePeriods handles GET /v1/dashboard/periods.
func (h *Handler) HandlePeriods(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.RespondErrorString(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	ctx, cancel := h.context(r)
	defer cancel()

	page, err := h.renderer.Periods(ctx, SelectionFromRequest(r, PeriodDims...))
	if err != nil {
		httpx.RespondError(w, StatusFor(err), err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, page)
}

// HandleCatalog handles GET /v1/catalog. ?year= scopes the month list.
func (h *Handler) HandleCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.RespondErrorString(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	ctx, cancel := h.context(r)
	defer cancel()

	opts, err := h.renderer.Options(ctx, r.URL.Query().Get("year"))
	if err != nil {
		httpx.RespondError(w, StatusFor(err), err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"options": opts,
	})
}
