package models

import "github.com/shopspring/decimal"

// MonthlyAggregate is one symbol's derivatives activity over a calendar
// month, computed from the persisted bhavcopy table.
type MonthlyAggregate struct {
	Year        int
	Month       int
	Symbol      string
	TotalVolume int64
	TotalValue  decimal.Decimal
	NetOIChange int64
	TradingDays int
}

// MonthComparison is a month-over-month diff of one symbol's activity.
// Percentages are relative to the previous month; a symbol absent in the
// previous month reports a nil pct.
type MonthComparison struct {
	Symbol         string
	CurrentVolume  int64
	PreviousVolume int64
	VolumePct      *float64
	CurrentValue   decimal.Decimal
	PreviousValue  decimal.Decimal
	ValuePct       *float64
	CurrentOIChg   int64
	PreviousOIChg  int64
}
