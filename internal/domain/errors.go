package domain

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies failures so the orchestrator can report them per step
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindPriceNotFound - no close exists for the requested calendar date
	KindPriceNotFound
	// KindQuoteUnavailable - the live quote is missing or not positive
	KindQuoteUnavailable
	// KindMalformedRecord - a stored or proposed record cannot be used
	KindMalformedRecord
	KindTimeout
	KindExternalService
	KindPersistence
)

// String implements fmt.Stringer
func (k ErrorKind) String() string {
	switch k {
	case KindPriceNotFound:
		return "price_not_found"
	case KindQuoteUnavailable:
		return "quote_unavailable"
	case KindMalformedRecord:
		return "malformed_record"
	case KindTimeout:
		return "timeout"
	case KindExternalService:
		return "external_service"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// MarshalText makes kinds readable in JSON reports
func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

var (
	ErrPriceNotFound    = errors.New("price not found")
	ErrQuoteUnavailable = errors.New("quote unavailable")
	ErrInvalidPosition  = errors.New("invalid position")
)

// OpError is a classified failure of one operation, optionally for one ticker
type OpError struct {
	Op     string
	Kind   ErrorKind
	Ticker string
	Err    error
}

func (e *OpError) Error() string {
	if e.Ticker != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Ticker, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first classified error in err's chain.
// Context deadlines are timeouts regardless of wrapping.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var opErr *OpError
	if errors.As(err, &opErr) {
		if opErr.Kind != KindUnknown {
			return opErr.Kind
		}
		return KindOf(opErr.Err)
	}

	switch {
	case errors.Is(err, ErrPriceNotFound):
		return KindPriceNotFound
	case errors.Is(err, ErrQuoteUnavailable):
		return KindQuoteUnavailable
	case errors.Is(err, ErrInvalidPosition):
		return KindMalformedRecord
	}
	return KindUnknown
}

// Wrap classifies err unless it is nil
func Wrap(op string, kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Kind: kind, Err: err}
}
