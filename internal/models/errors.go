package models

import (
	"errors"
	"fmt"
	"time"
)

// Custom errors
var (
	ErrMissingSource = errors.New("source archive not found")
	ErrCorruptSource = errors.New("source archive unreadable")
	ErrNotFound      = errors.New("record not found")
)

// SourceError wraps a missing/corrupt source condition with the trade date it
// occurred on. Use errors.Is with ErrMissingSource / ErrCorruptSource.
type SourceError struct {
	TradeDate time.Time
	Kind      error
	Detail    string
}

func (e *SourceError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %v", e.TradeDate.Format("2006-01-02"), e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.TradeDate.Format("2006-01-02"), e.Kind, e.Detail)
}

func (e *SourceError) Unwrap() error {
	return e.Kind
}

// NewMissingSourceError reports that no archive exists for the date.
func NewMissingSourceError(date time.Time, detail string) error {
	return &SourceError{TradeDate: date, Kind: ErrMissingSource, Detail: detail}
}

// NewCorruptSourceError reports that the archive exists but cannot be parsed.
func NewCorruptSourceError(date time.Time, detail string) error {
	return &SourceError{TradeDate: date, Kind: ErrCorruptSource, Detail: detail}
}
