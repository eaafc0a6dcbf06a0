package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/yourusername/nse-analytics/internal/database"
	"github.com/yourusername/nse-analytics/internal/models"
)

var bhavcopyColumns = []string{
	"trade_date", "biz_date", "segment", "source", "instrument_type",
	"instrument_id", "isin", "symbol", "series", "expiry_date",
	"actual_expiry_date", "strike_price", "option_type", "instrument_name",
	"open_price", "high_price", "low_price", "close_price", "last_price",
	"prev_close_price", "underlying_price", "settlement_price",
	"open_interest", "change_in_oi", "volume", "value", "trades",
	"session_id", "lot_size", "remarks", "reserved1", "reserved2",
	"reserved3", "reserved4",
}

// PostgresBhavcopyRepository implements BhavcopyRepository for PostgreSQL
type PostgresBhavcopyRepository struct {
	db *database.DB
}

// NewPostgresBhavcopyRepository creates a new bhavcopy repository
func NewPostgresBhavcopyRepository(db *database.DB) BhavcopyRepository {
	return &PostgresBhavcopyRepository{db: db}
}

// ReplaceDay deletes the date's rows and bulk-inserts the replacements inside
// one transaction, so a failed insert can never be mistaken for stale data.
func (r *PostgresBhavcopyRepository) ReplaceDay(ctx context.Context, tradeDate int, records []models.DerivativeRecord) (int64, error) {
	var inserted int64

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM fo_bhavcopy WHERE trade_date = $1`, tradeDate); err != nil {
			return fmt.Errorf("failed to delete rows for %d: %w", tradeDate, err)
		}

		n, err := tx.CopyFrom(ctx,
			pgx.Identifier{"fo_bhavcopy"},
			bhavcopyColumns,
			pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
				rec := &records[i]
				return []any{
					rec.TradeDate, rec.BizDate, rec.Segment, rec.Source,
					rec.InstrumentType, rec.InstrumentID, rec.ISIN,
					rec.Symbol, rec.Series, rec.ExpiryDate,
					rec.ActualExpiryDate, rec.StrikePrice, rec.OptionType,
					rec.InstrumentName, rec.OpenPrice, rec.HighPrice,
					rec.LowPrice, rec.ClosePrice, rec.LastPrice,
					rec.PrevClosePrice, rec.UnderlyingPrice,
					rec.SettlementPrice, rec.OpenInterest, rec.ChangeInOI,
					rec.Volume, rec.Value, rec.Trades, rec.SessionID,
					rec.LotSize, rec.Remarks, rec.Reserved1, rec.Reserved2,
					rec.Reserved3, rec.Reserved4,
				}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("failed to bulk insert rows for %d: %w", tradeDate, err)
		}

		inserted = n
		return nil
	})
	if err != nil {
		return 0, err
	}

	return inserted, nil
}

// CountByDate returns the persisted row count for a trade date
func (r *PostgresBhavcopyRepository) CountByDate(ctx context.Context, tradeDate int) (int64, error) {
	var count int64
	err := r.db.GetPool().QueryRow(ctx,
		`SELECT COUNT(*) FROM fo_bhavcopy WHERE trade_date = $1`, tradeDate,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count rows for %d: %w", tradeDate, err)
	}
	return count, nil
}

// MonthlyAggregates computes per-symbol monthly totals
func (r *PostgresBhavcopyRepository) MonthlyAggregates(ctx context.Context, year, month int) ([]models.MonthlyAggregate, error) {
	from, to := monthBounds(year, month)

	query := `
		SELECT symbol,
		       COALESCE(SUM(volume), 0),
		       COALESCE(SUM(value), 0),
		       COALESCE(SUM(change_in_oi), 0),
		       COUNT(DISTINCT trade_date)
		FROM fo_bhavcopy
		WHERE trade_date BETWEEN $1 AND $2
		GROUP BY symbol
		ORDER BY SUM(value) DESC
	`

	rows, err := r.db.GetPool().Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query monthly aggregates: %w", err)
	}
	defer rows.Close()

	var aggs []models.MonthlyAggregate
	for rows.Next() {
		agg := models.MonthlyAggregate{Year: year, Month: month}
		if err := rows.Scan(&agg.Symbol, &agg.TotalVolume, &agg.TotalValue,
			&agg.NetOIChange, &agg.TradingDays); err != nil {
			return nil, fmt.Errorf("failed to scan aggregate: %w", err)
		}
		aggs = append(aggs, agg)
	}

	return aggs, rows.Err()
}

// TradedDates returns the distinct trade dates stored for a month
func (r *PostgresBhavcopyRepository) TradedDates(ctx context.Context, year, month int) ([]int, error) {
	from, to := monthBounds(year, month)

	rows, err := r.db.GetPool().Query(ctx,
		`SELECT DISTINCT trade_date FROM fo_bhavcopy WHERE trade_date BETWEEN $1 AND $2 ORDER BY trade_date`,
		from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query traded dates: %w", err)
	}
	defer rows.Close()

	var dates []int
	for rows.Next() {
		var d int
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan trade date: %w", err)
		}
		dates = append(dates, d)
	}

	return dates, rows.Err()
}

// monthBounds returns the inclusive YYYYMMDD bounds of a calendar month.
func monthBounds(year, month int) (int, int) {
	return year*10000 + month*100 + 1, year*10000 + month*100 + 31
}
