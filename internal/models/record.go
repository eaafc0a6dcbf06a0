package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Option type markers as published by the exchange. Futures rows carry no
// option type and are stored with the empty string.
const (
	OptionTypeCall = "CE"
	OptionTypePut  = "PE"
	OptionTypeNone = ""
)

// DerivativeRecord is one normalized row of the F&O bhavcopy.
// Dates are 8-digit YYYYMMDD integers to match the persisted schema.
type DerivativeRecord struct {
	TradeDate        int             `db:"trade_date"`
	BizDate          int             `db:"biz_date"`
	Segment          string          `db:"segment"`
	Source           string          `db:"source"`
	InstrumentType   string          `db:"instrument_type"`
	InstrumentID     string          `db:"instrument_id"`
	ISIN             string          `db:"isin"`
	Symbol           string          `db:"symbol"`
	Series           string          `db:"series"`
	ExpiryDate       int             `db:"expiry_date"`
	ActualExpiryDate int             `db:"actual_expiry_date"`
	StrikePrice      decimal.Decimal `db:"strike_price"`
	OptionType       string          `db:"option_type"`
	InstrumentName   string          `db:"instrument_name"`
	OpenPrice        decimal.Decimal `db:"open_price"`
	HighPrice        decimal.Decimal `db:"high_price"`
	LowPrice         decimal.Decimal `db:"low_price"`
	ClosePrice       decimal.Decimal `db:"close_price"`
	LastPrice        decimal.Decimal `db:"last_price"`
	PrevClosePrice   decimal.Decimal `db:"prev_close_price"`
	UnderlyingPrice  decimal.Decimal `db:"underlying_price"`
	SettlementPrice  decimal.Decimal `db:"settlement_price"`
	OpenInterest     int64           `db:"open_interest"`
	ChangeInOI       int64           `db:"change_in_oi"`
	Volume           int64           `db:"volume"`
	Value            decimal.Decimal `db:"value"`
	Trades           int64           `db:"trades"`
	SessionID        string          `db:"session_id"`
	LotSize          int64           `db:"lot_size"`
	Remarks          string          `db:"remarks"`
	Reserved1        string          `db:"reserved1"`
	Reserved2        string          `db:"reserved2"`
	Reserved3        string          `db:"reserved3"`
	Reserved4        string          `db:"reserved4"`
}

// IsOption reports whether the record is an option contract.
func (r *DerivativeRecord) IsOption() bool {
	return r.OptionType == OptionTypeCall || r.OptionType == OptionTypePut
}

// NaturalKey returns the storage identity of the record. After a successful
// write for a date, no two rows share a natural key.
func (r *DerivativeRecord) NaturalKey() string {
	return fmt.Sprintf("%d:%s:%s:%d:%s:%s",
		r.TradeDate, r.InstrumentType, r.Symbol, r.ExpiryDate,
		r.StrikePrice.String(), r.OptionType)
}
