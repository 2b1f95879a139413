// Package handlers provides HTTP handlers for positions and the realized gains ledger.
package handlers

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-advisor/internal/domain"
	"github.com/aristath/portfolio-advisor/internal/modules/reconciliation"
)

// Handler handles portfolio HTTP requests
type Handler struct {
	positions domain.PositionStore
	ledger    domain.LedgerStore
	log       zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(positions domain.PositionStore, ledger domain.LedgerStore, log zerolog.Logger) *Handler {
	return &Handler{
		positions: positions,
		ledger:    ledger,
		log:       log.With().Str("handler", "portfolio").Logger(),
	}
}

type positionResponse struct {
	Ticker    string            `json:"ticker"`
	Name      string            `json:"name"`
	BuyDate   string            `json:"buy_date"`
	Shares    float64           `json:"shares"`
	SellDate  string            `json:"sell_date,omitempty"`
	Valuation *domain.Valuation `json:"valuation,omitempty"`
}

// HandleGetPositions lists positions. ?status=open|closed|all, default all.
func (h *Handler) HandleGetPositions(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = "all"
	}
	if status != "open" && status != "closed" && status != "all" {
		h.writeError(w, http.StatusBadRequest, "status must be open, closed or all")
		return
	}

	positions, err := h.positions.ListPositions(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list positions")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	result := make([]positionResponse, 0, len(positions))
	for _, p := range positions {
		if (status == "open" && !p.IsOpen()) || (status == "closed" && p.IsOpen()) {
			continue
		}
		resp := positionResponse{
			Ticker:    p.Ticker,
			Name:      p.Name,
			BuyDate:   domain.FormatDate(p.BuyDate),
			Shares:    p.Shares,
			Valuation: p.Valuation,
		}
		if p.SellDate != nil {
			resp.SellDate = domain.FormatDate(*p.SellDate)
		}
		result = append(result, resp)
	}

	// Newest first, then by ticker
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].BuyDate != result[j].BuyDate {
			return result[i].BuyDate > result[j].BuyDate
		}
		return result[i].Ticker < result[j].Ticker
	})

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    status,
		"count":     len(result),
		"positions": result,
	})
}

type gainsEntryResponse struct {
	Date               string  `json:"date"`
	TotalBuyValue      float64 `json:"total_buy_value"`
	TotalSellValue     float64 `json:"total_sell_value"`
	PerformancePercent float64 `json:"performance_percent"`
}

// HandleGetRealizedGains returns the ledger and its lifetime performance
func (h *Handler) HandleGetRealizedGains(w http.ResponseWriter, r *http.Request) {
	entries, err := h.ledger.ListRealizedGains(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list realized gains")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	result := make([]gainsEntryResponse, 0, len(entries))
	for _, e := range entries {
		result = append(result, gainsEntryResponse{
			Date:               domain.FormatDate(e.Date),
			TotalBuyValue:      e.TotalBuyValue,
			TotalSellValue:     e.TotalSellValue,
			PerformancePercent: e.PerformancePercent,
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries":                      result,
		"lifetime_performance_percent": reconciliation.LifetimePerformance(entries),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
