package orders

import (
	"fmt"

	nhstate "orderchain/core/state"
)

// InitStore persists the store configuration. It runs once at genesis; the
// configuration is immutable afterwards.
func InitStore(state engineState, cfg *StoreConfig) error {
	if state == nil {
		return errNilState
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	existing := new(StoreConfig)
	ok, err := state.KVGet(nhstate.OrderConfigKey(), existing)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: store %q already configured", ErrInvalid, existing.StoreName)
	}
	return state.KVPut(nhstate.OrderConfigKey(), cfg)
}

// LoadConfig reads the store configuration written at genesis.
func LoadConfig(state engineState) (*StoreConfig, error) {
	if state == nil {
		return nil, errNilState
	}
	cfg := new(StoreConfig)
	ok, err := state.KVGet(nhstate.OrderConfigKey(), cfg)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errNilConfig
	}
	return cfg, nil
}

// NewRail builds the payment rail the configuration selects.
func NewRail(cfg *StoreConfig, native nativeLedger, tokens tokenLedger) (PaymentRail, error) {
	if cfg == nil {
		return nil, errNilConfig
	}
	switch cfg.Rail {
	case RailNative:
		if native == nil {
			return nil, errNilRail
		}
		return NewNativeRail(native, cfg.EscrowAddress()), nil
	case RailToken:
		if tokens == nil {
			return nil, errNilRail
		}
		return NewTokenRail(tokens, nhstate.NormalizeSymbol(cfg.Token), cfg.EscrowAddress()), nil
	default:
		return nil, fmt.Errorf("%w: unknown rail %d", ErrInvalid, cfg.Rail)
	}
}
