// Package normalize converts raw bhavcopy rows into canonical derivative
// records.
package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/nse-analytics/internal/archive"
	"github.com/yourusername/nse-analytics/internal/models"
)

// Source date layouts seen across bhavcopy vintages.
var dateLayouts = []string{
	"2006-01-02",
	"02-01-2006",
	"02-Jan-2006",
	"2-Jan-2006",
	"20060102",
}

// lakh converts the legacy VAL_INLAKH column to rupees.
var lakh = decimal.NewFromInt(100000)

// RowSource is the stream contract NormalizeAll drains. *archive.Rows
// satisfies it.
type RowSource interface {
	Next() bool
	Row() archive.RawRow
	Err() error
}

// Result carries the normalized records for one date plus the counts the
// validator reconciles against.
type Result struct {
	Records []models.DerivativeRecord
	// SourceCount is the number of rows successfully normalized. Rows
	// dropped for unrecoverable fields are excluded, so validation
	// reflects what should be persisted.
	SourceCount int64
	Dropped     int64
	// Notes records per-row data-quality problems for the run report.
	Notes []string
}

// Normalizer maps raw rows to DerivativeRecord, tolerating the column-name
// drift between source vintages.
type Normalizer struct {
	// maxDropRate is the tolerated fraction of dropped rows before the
	// whole date is treated as corrupt.
	maxDropRate float64
	log         *logrus.Entry
}

// New creates a normalizer. maxDropRate <= 0 means zero tolerance.
func New(maxDropRate float64, log *logrus.Logger) *Normalizer {
	return &Normalizer{
		maxDropRate: maxDropRate,
		log:         log.WithField("component", "normalize"),
	}
}

// NormalizeAll drains the row stream for a date. Row-level problems are
// absorbed and counted; only a drop rate past the configured tolerance fails
// the date.
func (n *Normalizer) NormalizeAll(date time.Time, rows RowSource) (*Result, error) {
	res := &Result{}
	var parsed int64

	for rows.Next() {
		parsed++
		rec, err := n.NormalizeRow(rows.Row())
		if err != nil {
			res.Dropped++
			note := fmt.Sprintf("row %d dropped: %v", parsed, err)
			res.Notes = append(res.Notes, note)
			n.log.WithField("date", date.Format("2006-01-02")).Warn(note)
			continue
		}
		res.Records = append(res.Records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if parsed == 0 {
		return nil, models.NewCorruptSourceError(date, "archive has a header but no rows")
	}

	res.SourceCount = int64(len(res.Records))

	if res.Dropped > 0 {
		rate := float64(res.Dropped) / float64(parsed)
		if rate > n.maxDropRate {
			return nil, models.NewCorruptSourceError(date,
				fmt.Sprintf("%d of %d rows dropped (%.2f%%), above tolerance", res.Dropped, parsed, rate*100))
		}
		n.log.WithFields(logrus.Fields{
			"date":    date.Format("2006-01-02"),
			"dropped": res.Dropped,
			"parsed":  parsed,
		}).Warn("Date normalized with dropped rows")
	}

	return res, nil
}

// NormalizeRow maps a single raw row to a DerivativeRecord. An error means
// the row is unrecoverable and must be dropped.
func (n *Normalizer) NormalizeRow(row archive.RawRow) (*models.DerivativeRecord, error) {
	tradeDateRaw, ok := field(row, "TradDt", "TIMESTAMP")
	if !ok {
		return nil, fmt.Errorf("trade date column missing")
	}
	tradeDate, err := canonicalDate(tradeDateRaw)
	if err != nil {
		return nil, fmt.Errorf("trade date %q: %w", tradeDateRaw, err)
	}

	symbol, ok := field(row, "TckrSymb", "SYMBOL")
	if !ok || symbol == "" {
		return nil, fmt.Errorf("ticker symbol missing")
	}

	instrument, ok := field(row, "FinInstrmTp", "INSTRUMENT")
	if !ok || instrument == "" {
		return nil, fmt.Errorf("instrument type missing")
	}

	optionType, err := normalizeOptionType(fieldOr(row, "", "OptnTp", "OPTION_TYP"), instrument)
	if err != nil {
		return nil, err
	}

	rec := &models.DerivativeRecord{
		TradeDate:        tradeDate,
		BizDate:          dateOr(fieldOr(row, "", "BizDt"), tradeDate),
		Segment:          fieldOr(row, "FO", "Sgmt"),
		Source:           fieldOr(row, "NSE", "Src"),
		InstrumentType:   instrument,
		InstrumentID:     fieldOr(row, "", "FinInstrmId"),
		ISIN:             fieldOr(row, "", "ISIN"),
		Symbol:           symbol,
		Series:           fieldOr(row, "", "SctySrs"),
		ExpiryDate:       dateOr(fieldOr(row, "", "XpryDt", "EXPIRY_DT"), 0),
		ActualExpiryDate: 0,
		StrikePrice:      decimalField(row, "StrkPric", "STRIKE_PR"),
		OptionType:       optionType,
		InstrumentName:   fieldOr(row, "", "FinInstrmNm"),
		OpenPrice:        decimalField(row, "OpnPric", "OPEN"),
		HighPrice:        decimalField(row, "HghPric", "HIGH"),
		LowPrice:         decimalField(row, "LwPric", "LOW"),
		ClosePrice:       decimalField(row, "ClsPric", "CLOSE"),
		LastPrice:        decimalField(row, "LastPric"),
		PrevClosePrice:   decimalField(row, "PrvsClsgPric"),
		UnderlyingPrice:  decimalField(row, "UndrlygPric"),
		SettlementPrice:  decimalField(row, "SttlmPric", "SETTLE_PR"),
		OpenInterest:     intField(row, "OpnIntrst", "OPEN_INT"),
		ChangeInOI:       intField(row, "ChngInOpnIntrst", "CHG_IN_OI"),
		Volume:           intField(row, "TtlTradgVol", "CONTRACTS"),
		Trades:           intField(row, "TtlNbOfTxsExctd"),
		SessionID:        fieldOr(row, "", "SsnId"),
		LotSize:          intField(row, "NewBrdLotQty"),
		Remarks:          fieldOr(row, "", "Rmks"),
		Reserved1:        fieldOr(row, "", "Rsvd1"),
		Reserved2:        fieldOr(row, "", "Rsvd2"),
		Reserved3:        fieldOr(row, "", "Rsvd3"),
		Reserved4:        fieldOr(row, "", "Rsvd4"),
	}

	rec.ActualExpiryDate = dateOr(fieldOr(row, "", "FininstrmActlXpryDt"), rec.ExpiryDate)
	rec.Value = tradedValue(row)

	return rec, nil
}

// normalizeOptionType enforces the CE/PE/absent contract. Futures carry no
// option type; any other token makes the row unrecoverable.
func normalizeOptionType(token, instrument string) (string, error) {
	token = strings.ToUpper(strings.TrimSpace(token))
	switch token {
	case models.OptionTypeCall:
		return models.OptionTypeCall, nil
	case models.OptionTypePut:
		return models.OptionTypePut, nil
	case "":
		return models.OptionTypeNone, nil
	default:
		if strings.HasPrefix(strings.ToUpper(instrument), "FUT") {
			return "", fmt.Errorf("option type %q on futures instrument %s", token, instrument)
		}
		return "", fmt.Errorf("unrecognized option type %q", token)
	}
}

// tradedValue picks the traded value column, converting the legacy
// lakh-denominated column to rupees.
func tradedValue(row archive.RawRow) decimal.Decimal {
	if raw, ok := field(row, "TtlTrfVal"); ok {
		return parseDecimal(raw)
	}
	if raw, ok := field(row, "VAL_INLAKH"); ok {
		return parseDecimal(raw).Mul(lakh)
	}
	return decimal.Zero
}

// field returns the first present column among names.
func field(row archive.RawRow, names ...string) (string, bool) {
	for _, name := range names {
		if v, ok := row[name]; ok {
			return v, true
		}
	}
	return "", false
}

// fieldOr returns the first present non-empty column among names, else def.
func fieldOr(row archive.RawRow, def string, names ...string) string {
	if v, ok := field(row, names...); ok && v != "" {
		return v
	}
	return def
}

// canonicalDate parses any accepted source layout into YYYYMMDD.
func canonicalDate(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Year()*10000 + int(t.Month())*100 + t.Day(), nil
		}
	}
	return 0, fmt.Errorf("unparsable date")
}

// dateOr parses a date column, falling back on parse failure. Bad dates in
// secondary columns are recoverable; the primary trade date is not.
func dateOr(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	d, err := canonicalDate(raw)
	if err != nil {
		return fallback
	}
	return d
}

// decimalField parses a decimal column, substituting zero on failure.
func decimalField(row archive.RawRow, names ...string) decimal.Decimal {
	raw, _ := field(row, names...)
	return parseDecimal(raw)
}

func parseDecimal(raw string) decimal.Decimal {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if raw == "" || raw == "-" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// intField parses an integer column, substituting zero on failure. OI and
// value columns routinely exceed 32-bit range, hence int64.
func intField(row archive.RawRow, names ...string) int64 {
	raw, _ := field(row, names...)
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if raw == "" || raw == "-" {
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// Some vintages publish integral columns with a decimal point.
		if f, ferr := strconv.ParseFloat(raw, 64); ferr == nil {
			return int64(f)
		}
		return 0
	}
	return v
}
