// Package service contains read-side reporting built on the bhavcopy table.
package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/nse-analytics/internal/metrics"
	"github.com/yourusername/nse-analytics/internal/models"
	"github.com/yourusername/nse-analytics/internal/repository"
)

// AggregationService computes monthly per-symbol summaries and
// month-over-month comparisons. Finished months never change once loaded, so
// their aggregates are memoized.
type AggregationService struct {
	repo       repository.BhavcopyRepository
	cache      *gocache.Cache
	topSymbols int
	log        *logrus.Entry
}

func NewAggregationService(repo repository.BhavcopyRepository, cacheTTL time.Duration, topSymbols int, log *logrus.Logger) *AggregationService {
	if topSymbols <= 0 {
		topSymbols = 25
	}
	return &AggregationService{
		repo:       repo,
		cache:      gocache.New(cacheTTL, 2*cacheTTL),
		topSymbols: topSymbols,
		log:        log.WithField("component", "aggregation"),
	}
}

func monthKey(year, month int) string {
	return fmt.Sprintf("monthly:%04d-%02d", year, month)
}

// MonthlySummary returns the top symbols by traded value for a calendar
// month, plus the number of trading days the month has in the table.
func (s *AggregationService) MonthlySummary(ctx context.Context, year, month int) ([]models.MonthlyAggregate, error) {
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("invalid month %d", month)
	}

	key := monthKey(year, month)
	if cached, found := s.cache.Get(key); found {
		return cached.([]models.MonthlyAggregate), nil
	}

	timer := prometheus.NewTimer(metrics.AggregateQueryDuration)
	aggregates, err := s.repo.MonthlyAggregates(ctx, year, month)
	timer.ObserveDuration()
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate %04d-%02d: %w", year, month, err)
	}

	if len(aggregates) > s.topSymbols {
		aggregates = aggregates[:s.topSymbols]
	}

	// Only a finished month is safe to memoize; the current month grows
	// with every daily load.
	now := time.Now().UTC()
	if year < now.Year() || (year == now.Year() && month < int(now.Month())) {
		s.cache.Set(key, aggregates, gocache.DefaultExpiration)
	}

	s.log.WithFields(logrus.Fields{
		"year":    year,
		"month":   month,
		"symbols": len(aggregates),
	}).Debug("Monthly summary computed")
	return aggregates, nil
}

// MonthOverMonth compares a month against the one before it, symbol by
// symbol. Symbols present in either month appear in the result, ordered by
// current traded value descending.
func (s *AggregationService) MonthOverMonth(ctx context.Context, year, month int) ([]models.MonthComparison, error) {
	current, err := s.MonthlySummary(ctx, year, month)
	if err != nil {
		return nil, err
	}

	prevYear, prevMonth := year, month-1
	if prevMonth == 0 {
		prevYear, prevMonth = year-1, 12
	}
	previous, err := s.MonthlySummary(ctx, prevYear, prevMonth)
	if err != nil {
		return nil, err
	}

	prevBySymbol := make(map[string]models.MonthlyAggregate, len(previous))
	for _, agg := range previous {
		prevBySymbol[agg.Symbol] = agg
	}

	comparisons := make([]models.MonthComparison, 0, len(current))
	seen := make(map[string]bool, len(current))
	for _, cur := range current {
		seen[cur.Symbol] = true
		cmp := models.MonthComparison{
			Symbol:        cur.Symbol,
			CurrentVolume: cur.TotalVolume,
			CurrentValue:  cur.TotalValue,
			CurrentOIChg:  cur.NetOIChange,
		}
		if prev, ok := prevBySymbol[cur.Symbol]; ok {
			cmp.PreviousVolume = prev.TotalVolume
			cmp.PreviousValue = prev.TotalValue
			cmp.PreviousOIChg = prev.NetOIChange
			cmp.VolumePct = pctChange(float64(cur.TotalVolume), float64(prev.TotalVolume))
			cmp.ValuePct = pctChange(cur.TotalValue.InexactFloat64(), prev.TotalValue.InexactFloat64())
		}
		comparisons = append(comparisons, cmp)
	}

	// Symbols that traded last month but not this month still matter to a
	// reader looking for expiries and delistings.
	for _, prev := range previous {
		if seen[prev.Symbol] {
			continue
		}
		comparisons = append(comparisons, models.MonthComparison{
			Symbol:         prev.Symbol,
			PreviousVolume: prev.TotalVolume,
			PreviousValue:  prev.TotalValue,
			PreviousOIChg:  prev.NetOIChange,
		})
	}

	sort.SliceStable(comparisons, func(i, j int) bool {
		return comparisons[i].CurrentValue.GreaterThan(comparisons[j].CurrentValue)
	})
	return comparisons, nil
}

// TradingDays returns the distinct dates a month has in the table, as
// YYYYMMDD keys in ascending order.
func (s *AggregationService) TradingDays(ctx context.Context, year, month int) ([]int, error) {
	dates, err := s.repo.TradedDates(ctx, year, month)
	if err != nil {
		return nil, fmt.Errorf("failed to list traded dates for %04d-%02d: %w", year, month, err)
	}
	sort.Ints(dates)
	return dates, nil
}

func pctChange(current, previous float64) *float64 {
	if previous == 0 {
		return nil
	}
	pct := (current - previous) / previous * 100
	return &pct
}
