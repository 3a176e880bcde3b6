package handler

import (
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/commerceday/vageesha-stock-exchange-sub000/internal/domain"
	"github.com/commerceday/vageesha-stock-exchange-sub000/internal/synth"
)

const (
	defaultSeriesLength     = 30
	maxSeriesLength         = 1000
	defaultSeriesStart      = 100.0
	defaultSeriesVolatility = 2.0
	maxSeriesVolatility     = 100.0
)

type seriesResponse struct {
	Length     int       `json:"length"`
	Start      float64   `json:"start"`
	Volatility float64   `json:"volatility"`
	Prices     []float64 `json:"prices"`
}

// GetSeries handles GET /api/series. The series is illustrative only and is
// never tied to a tracked instrument.
func GetSeries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	length, err := queryInt(q.Get("length"), defaultSeriesLength)
	if err != nil || length < 0 || length > maxSeriesLength {
		WriteError(w, http.StatusBadRequest, "validation_error",
			fmt.Sprintf("length must be an integer between 0 and %d", maxSeriesLength))
		return
	}
	start, err := queryFloat(q.Get("start"), defaultSeriesStart)
	if err != nil || start <= 0 {
		WriteError(w, http.StatusBadRequest, "validation_error", "start must be a positive number")
		return
	}
	vol, err := queryFloat(q.Get("volatility"), defaultSeriesVolatility)
	if err != nil || vol < 0 || vol > maxSeriesVolatility {
		WriteError(w, http.StatusBadRequest, "validation_error",
			fmt.Sprintf("volatility must be between 0 and %g", maxSeriesVolatility))
		return
	}

	prices := synth.GenerateSeries(length, start, vol)
	for i, p := range prices {
		prices[i] = domain.DisplayPrice(p)
	}

	WriteJSON(w, http.StatusOK, seriesResponse{
		Length:     length,
		Start:      start,
		Volatility: vol,
		Prices:     prices,
	})
}

func queryInt(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func queryFloat(raw string, def float64) (float64, error) {
	if raw == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%q is not a finite number", raw)
	}
	return f, nil
}
