package reporthttp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/shiftledger/shiftledger/internal/platform/httpx"
	"github.com/shiftledger/shiftledger/internal/report"
	"github.com/shiftledger/shiftledger/internal/shared"
)

const requestTimeout = 10 * time.Second

// Service exposes the report operations the handler needs.
type Service interface {
	Dashboard(ctx context.Context, q report.Query) (report.DashboardResponse, error)
	ClientSummary(ctx context.Context, q report.Query) (report.SummaryResponse, error)
	ClientAnalytics(ctx context.Context, q report.Query) (report.AnalyticsResponse, error)
	Search(ctx context.Context, q report.Query) (report.SearchResponse, error)
	IntervalSummary(ctx context.Context, client string, start, end report.Period) (report.IntervalResponse, error)
	ExportRows(ctx context.Context, q report.Query) (report.ExportDocument, error)
	Clients(ctx context.Context) ([]string, error)
}

// Handler serves the report API.
type Handler struct {
	logger   *slog.Logger
	service  Service
	validate *validator.Validate
}

// NewHandler constructs the report HTTP handler.
func NewHandler(logger *slog.Logger, service Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
	}
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	resp, err := h.service.Dashboard(ctx, report.Query{})
	if err != nil {
		h.respondError(w, "dashboard", err)
		return
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	q, ok := h.decodeQuery(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	resp, err := h.service.ClientSummary(ctx, q)
	if err != nil {
		h.respondError(w, "client summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	q, ok := h.decodeQuery(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	resp, err := h.service.ClientAnalytics(ctx, q)
	if err != nil {
		h.respondError(w, "client analytics", err)
		return
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	q, ok := h.decodeQuery(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	resp, err := h.service.Search(ctx, q)
	if err != nil {
		h.respondError(w, "search", err)
		return
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	q, ok := h.decodeQuery(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	doc, err := h.service.ExportRows(ctx, q)
	if err != nil {
		h.respondError(w, "export", err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) handleInterval(w http.ResponseWriter, r *http.Request) {
	client := shared.CleanString(r.URL.Query().Get("client"))
	if client == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "client is required")
		return
	}
	start, err := report.ParsePeriod(strings.TrimSpace(r.URL.Query().Get("start")))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "start must be YYYY-MM")
		return
	}
	end, err := report.ParsePeriod(strings.TrimSpace(r.URL.Query().Get("end")))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "end must be YYYY-MM")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	resp, err := h.service.IntervalSummary(ctx, client, start, end)
	if err != nil {
		h.respondError(w, "interval summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleClients(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	clients, err := h.service.Clients(ctx)
	if err != nil {
		h.respondError(w, "list clients", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string][]string{"clients": clients})
}

// decodeQuery reads the request payload into the canonical query. An empty
// body is the default request.
func (h *Handler) decodeQuery(w http.ResponseWriter, r *http.Request) (report.Query, bool) {
	var req report.Request
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		if errors.Is(err, report.ErrInvalidFilterShape) {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return report.Query{}, false
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return report.Query{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return report.Query{}, false
	}
	q, err := req.Query()
	if err != nil {
		h.respondError(w, "decode query", err)
		return report.Query{}, false
	}
	return q, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case isValidationErr(err):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, report.ErrNoData):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func isValidationErr(err error) bool {
	for _, target := range []error{
		report.ErrInvalidYear,
		report.ErrInvalidMonth,
		report.ErrInvalidQuarter,
		report.ErrInvalidRange,
		report.ErrInvalidShiftType,
		report.ErrInvalidHeadcountRange,
		report.ErrInvalidFilterShape,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
