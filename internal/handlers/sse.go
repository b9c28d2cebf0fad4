package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/a-h/templ"
	"github.com/starfederation/datastar-go/datastar"

	"sales-analytics/internal/models"
	"sales-analytics/internal/services"
	"sales-analytics/internal/ui/templates"
)

type SSEHandlers struct {
	analytics *services.Analytics
	logger    *slog.Logger
}

func NewSSEHandlers(analytics *services.Analytics, logger *slog.Logger) *SSEHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &SSEHandlers{
		analytics: analytics,
		logger:    logger,
	}
}

type dashboardSignals struct {
	Summary      models.DashboardSummary `json:"summary"`
	CountrySales map[string]float64      `json:"countrySales"`
	ProductSales map[string]float64      `json:"productSales"`
	MonthlySales map[string]float64      `json:"monthlySales"`
}

// HandleDashboard pushes every dashboard number in one stream: the summary
// cards as an element patch and the grouped sums as signals.
func (h *SSEHandlers) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	signals, err := h.collect()
	if err != nil {
		h.logger.Warn("dashboard stream degraded", "error", err)
		html, renderErr := renderString(r.Context(), templates.Unavailable(toAppError(err).Message))
		if renderErr != nil {
			h.logger.Error("render unavailable fragment", "error", renderErr)
			return
		}
		if err := sse.PatchElements(html); err != nil {
			h.logger.Error("patch elements", "error", err)
		}
		return
	}

	html, err := renderString(r.Context(), templates.SummaryCards(signals.Summary))
	if err != nil {
		h.logger.Error("render summary cards", "error", err)
		return
	}
	if err := sse.PatchElements(html); err != nil {
		h.logger.Error("patch elements", "error", err)
		return
	}

	payload, err := json.Marshal(signals)
	if err != nil {
		h.logger.Error("marshal dashboard signals", "error", err)
		return
	}
	if err := sse.PatchSignals(payload); err != nil {
		h.logger.Error("patch signals", "error", err)
	}
}

func (h *SSEHandlers) collect() (dashboardSignals, error) {
	var (
		s   dashboardSignals
		err error
	)
	if s.Summary, err = h.analytics.Summary(); err != nil {
		return s, err
	}
	if s.CountrySales, err = h.analytics.SumBy(models.GroupByCountry); err != nil {
		return s, err
	}
	if s.ProductSales, err = h.analytics.SumBy(models.GroupByProductLine); err != nil {
		return s, err
	}
	if s.MonthlySales, err = h.analytics.MonthlySum(); err != nil {
		return s, err
	}
	return s, nil
}

func renderString(ctx context.Context, c templ.Component) (string, error) {
	var b strings.Builder
	if err := c.Render(ctx, &b); err != nil {
		return "", err
	}
	return b.String(), nil
}
