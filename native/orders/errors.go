package orders

import "errors"

// Error kinds. Every failure returned by the engine wraps exactly one of
// these, so callers classify with errors.Is or KindOf.
var (
	ErrUnauthorized = errors.New("orders: caller not authorized")
	ErrState        = errors.New("orders: invalid state")
	ErrNotFound     = errors.New("orders: order not found")
	ErrTiming       = errors.New("orders: window not elapsed")
	ErrFunding      = errors.New("orders: funding failed")
	ErrDuplicate    = errors.New("orders: duplicate order id")
	ErrInvalid      = errors.New("orders: invalid request")

	errNilState  = errors.New("orders engine: state not configured")
	errNilRail   = errors.New("orders engine: payment rail not configured")
	errNilConfig = errors.New("orders engine: store not configured")
)

// Kind names reported to clients.
const (
	KindAuthorization = "authorization"
	KindState         = "state"
	KindNotFound      = "not_found"
	KindTiming        = "timing"
	KindFunding       = "funding"
	KindDuplicate     = "duplicate"
	KindInvalid       = "invalid"
	KindInternal      = "internal"
)

// KindOf classifies err into one of the kind names above.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return KindAuthorization
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrState):
		return KindState
	case errors.Is(err, ErrTiming):
		return KindTiming
	case errors.Is(err, ErrFunding):
		return KindFunding
	case errors.Is(err, ErrDuplicate):
		return KindDuplicate
	case errors.Is(err, ErrInvalid):
		return KindInvalid
	default:
		return KindInternal
	}
}
