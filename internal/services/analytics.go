package services

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"sales-analytics/internal/dataset"
	"sales-analytics/internal/models"
)

var (
	ErrDataUnavailable = errors.New("dataset not loaded")
	ErrUnknownGroupKey = errors.New("unknown group key")
)

// Analytics answers aggregate queries over the loaded dataset. Every call
// scans the full table; the dataset never changes so results are stable.
type Analytics struct {
	data   *dataset.Dataset
	logger *slog.Logger
}

// NewAnalytics accepts a nil dataset, in which case every query reports
// ErrDataUnavailable.
func NewAnalytics(data *dataset.Dataset, logger *slog.Logger) *Analytics {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analytics{
		data:   data,
		logger: logger,
	}
}

func (a *Analytics) Available() bool {
	return a.data != nil
}

func (a *Analytics) Summary() (models.DashboardSummary, error) {
	if a.data == nil {
		return models.DashboardSummary{}, ErrDataUnavailable
	}

	total := 0.0
	a.data.Each(func(r models.SalesRecord) {
		total += r.Sales
	})

	count := a.data.Len()
	average := 0.0
	if count > 0 {
		average = total / float64(count)
	}

	return models.DashboardSummary{
		TotalSales:        roundMoney(total),
		TotalOrders:       count,
		AverageOrderValue: roundMoney(average),
	}, nil
}

func (a *Analytics) SumBy(key models.GroupKey) (map[string]float64, error) {
	if a.data == nil {
		return nil, ErrDataUnavailable
	}

	var keyOf func(models.SalesRecord) string
	switch key {
	case models.GroupByCountry:
		keyOf = func(r models.SalesRecord) string { return r.Country }
	case models.GroupByProductLine:
		keyOf = func(r models.SalesRecord) string { return r.ProductLine }
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownGroupKey, key)
	}

	a.logger.Debug("aggregating sales", "group_by", key)
	return a.sumGroups(keyOf), nil
}

// MonthlySum keys groups as "{year}-{month}" without zero padding, e.g. "2003-1".
func (a *Analytics) MonthlySum() (map[string]float64, error) {
	if a.data == nil {
		return nil, ErrDataUnavailable
	}

	a.logger.Debug("aggregating sales", "group_by", "yearId,monthId")
	return a.sumGroups(monthKey), nil
}

func monthKey(r models.SalesRecord) string {
	return strconv.Itoa(r.YearID) + "-" + strconv.Itoa(r.MonthID)
}

func (a *Analytics) sumGroups(keyOf func(models.SalesRecord) string) map[string]float64 {
	groups := make(map[string]float64)
	a.data.Each(func(r models.SalesRecord) {
		groups[keyOf(r)] += r.Sales
	})

	for k, v := range groups {
		groups[k] = roundMoney(v)
	}
	return groups
}

// Stats reports the shape of the loaded dataset for monitoring.
func (a *Analytics) Stats() (map[string]any, error) {
	if a.data == nil {
		return nil, ErrDataUnavailable
	}

	countries := make(map[string]struct{})
	lines := make(map[string]struct{})
	months := make(map[string]struct{})
	a.data.Each(func(r models.SalesRecord) {
		countries[r.Country] = struct{}{}
		lines[r.ProductLine] = struct{}{}
		months[monthKey(r)] = struct{}{}
	})

	return map[string]any{
		"record_count":  a.data.Len(),
		"source":        a.data.Source(),
		"fingerprint":   a.data.Fingerprint(),
		"countries":     len(countries),
		"product_lines": len(lines),
		"months":        len(months),
	}, nil
}
