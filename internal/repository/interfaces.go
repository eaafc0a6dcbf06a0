// Package repository provides persistence for normalized bhavcopy records.
package repository

import (
	"context"

	"github.com/yourusername/nse-analytics/internal/models"
)

// BhavcopyRepository persists and counts derivative records. ReplaceDay is
// the only writer in the system; everything else is read-only.
type BhavcopyRepository interface {
	// ReplaceDay atomically replaces all rows for a trade date: delete
	// first, then bulk insert, in one transaction. Returns the number of
	// rows inserted.
	ReplaceDay(ctx context.Context, tradeDate int, records []models.DerivativeRecord) (int64, error)

	// CountByDate returns the number of rows currently stored for a date.
	CountByDate(ctx context.Context, tradeDate int) (int64, error)

	// MonthlyAggregates computes per-symbol aggregates for a calendar
	// month, ordered by total traded value descending.
	MonthlyAggregates(ctx context.Context, year, month int) ([]models.MonthlyAggregate, error)

	// TradedDates returns the distinct trade dates stored for a month.
	TradedDates(ctx context.Context, year, month int) ([]int, error)
}
