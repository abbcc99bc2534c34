package core

import (
	"errors"
	"fmt"
)

var (
	ErrMissingPrice     = errors.New("missing price")
	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrMalformedInput   = errors.New("malformed input")
	ErrUnknownMeterKind = errors.New("unknown meter kind")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyID          = errors.New("empty id")
)

// MissingPriceError is returned when no tariff is effective at a
// measurement date. It matches ErrMissingPrice with errors.Is.
type MissingPriceError struct {
	Meter string
	Date  Date
}

func (e *MissingPriceError) Error() string {
	return fmt.Sprintf("missing price for meter %q at %s", e.Meter, e.Date.Format(DateLayout))
}

func (e *MissingPriceError) Is(target error) bool {
	return target == ErrMissingPrice
}
