package orders

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"orderchain/core/events"
	nhstate "orderchain/core/state"
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Engine applies order transitions against state. It is built per call by the
// node over a speculative state copy and is not safe for concurrent use.
type Engine struct {
	state    engineState
	rail     PaymentRail
	config   *StoreConfig
	emitter  events.Emitter
	heightFn func() uint64
}

// NewEngine creates an engine with a no-op emitter. State, rail, store
// configuration and block height must be configured before transitions run.
func NewEngine() *Engine {
	return &Engine{
		emitter:  events.NoopEmitter{},
		heightFn: func() uint64 { return 0 },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetRail configures the payment rail escrowed funds move through.
func (e *Engine) SetRail(rail PaymentRail) { e.rail = rail }

// SetConfig configures the store the engine serves.
func (e *Engine) SetConfig(cfg *StoreConfig) { e.config = cfg }

// SetHeightFunc sets the source of the current block height.
func (e *Engine) SetHeightFunc(height func() uint64) {
	if height == nil {
		e.heightFn = func() uint64 { return 0 }
		return
	}
	e.heightFn = height
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Config returns a copy of the store configuration.
func (e *Engine) Config() (*StoreConfig, error) {
	if e == nil || e.config == nil {
		return nil, errNilConfig
	}
	cfg := *e.config
	cfg.ReporterNotice = cloneBytes(e.config.ReporterNotice)
	cfg.ArbiterNotice = cloneBytes(e.config.ArbiterNotice)
	return &cfg, nil
}

func (e *Engine) emit(eventType string, o *Order) {
	if e == nil || e.emitter == nil || o == nil {
		return
	}
	e.emitter.Emit(orderEvent{evt: newOrderEvent(eventType, o, e.config.Seller.Hex())})
}

func (e *Engine) height() uint64 {
	if e == nil || e.heightFn == nil {
		return 0
	}
	return e.heightFn()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.config == nil {
		return errNilConfig
	}
	if e.rail == nil {
		return errNilRail
	}
	return nil
}

func validateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: order id required", ErrInvalid)
	}
	if id != strings.TrimSpace(id) {
		return fmt.Errorf("%w: order id has surrounding whitespace", ErrInvalid)
	}
	if len(id) > MaxIDLength {
		return fmt.Errorf("%w: order id exceeds %d bytes", ErrInvalid, MaxIDLength)
	}
	return nil
}

func (e *Engine) loadOrder(id string) (*Order, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	order := new(Order)
	ok, err := e.state.KVGet(nhstate.OrderKey(id), order)
	if err != nil {
		return nil, err
	}
	if !ok || order.Sequence == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return order, nil
}

func (e *Engine) storeOrder(o *Order) error {
	return e.state.KVPut(nhstate.OrderKey(o.ID), o)
}

func (e *Engine) nextSequence() (uint64, error) {
	var seq uint64
	if _, err := e.state.KVGet(nhstate.OrderSequenceKey(), &seq); err != nil {
		return 0, err
	}
	seq++
	if err := e.state.KVPut(nhstate.OrderSequenceKey(), seq); err != nil {
		return 0, err
	}
	return seq, nil
}

func (e *Engine) adjustOutstanding(delta *big.Int, add bool) error {
	outstanding, err := e.Outstanding()
	if err != nil {
		return err
	}
	if add {
		outstanding.Add(outstanding, delta)
	} else {
		outstanding.Sub(outstanding, delta)
		if outstanding.Sign() < 0 {
			return fmt.Errorf("orders engine: outstanding escrow underflow")
		}
	}
	return e.state.KVPut(nhstate.OrderEscrowHeldKey(), outstanding)
}

// advance moves o to next at height h. The anchor block must strictly
// increase, so two transitions of one order cannot share a block.
func advance(o *Order, next State, h uint64) error {
	if !CanTransition(o.Workflow, o.State, next) {
		return fmt.Errorf("%w: order %s is %s, cannot become %s", ErrState, o.ID, o.State, next)
	}
	if h <= o.LastModifiedBlock {
		return fmt.Errorf("%w: order %s already modified at block %d", ErrState, o.ID, o.LastModifiedBlock)
	}
	o.State = next
	o.LastModifiedBlock = h
	return nil
}

// requireState reports a state error unless o may move to next. It lets
// callers fail on state before checking timing or funds.
func requireState(o *Order, next State) error {
	if !CanTransition(o.Workflow, o.State, next) {
		return fmt.Errorf("%w: order %s is %s, cannot become %s", ErrState, o.ID, o.State, next)
	}
	return nil
}

func elapsed(h, anchor uint64) uint64 {
	if h < anchor {
		return 0
	}
	return h - anchor
}

func checkAmounts(price, shipping *big.Int) (*big.Int, error) {
	if price == nil || shipping == nil {
		return nil, fmt.Errorf("%w: price and shipping required", ErrInvalid)
	}
	if price.Sign() < 0 || shipping.Sign() < 0 {
		return nil, fmt.Errorf("%w: amounts must not be negative", ErrInvalid)
	}
	p, overflow := uint256.FromBig(price)
	if overflow {
		return nil, fmt.Errorf("%w: price exceeds 256 bits", ErrInvalid)
	}
	s, overflow := uint256.FromBig(shipping)
	if overflow {
		return nil, fmt.Errorf("%w: shipping exceeds 256 bits", ErrInvalid)
	}
	total, overflow := new(uint256.Int).AddOverflow(p, s)
	if overflow {
		return nil, fmt.Errorf("%w: price plus shipping overflows", ErrInvalid)
	}
	if total.IsZero() {
		return nil, fmt.Errorf("%w: order total must be positive", ErrInvalid)
	}
	return total.ToBig(), nil
}

func checkShipment(s Shipment) error {
	if len(s.Buyer) == 0 {
		return fmt.Errorf("%w: buyer shipment notice required", ErrInvalid)
	}
	for _, blob := range [][]byte{s.Buyer, s.Reporter, s.Arbiter} {
		if len(blob) > MaxNoticeLength {
			return fmt.Errorf("%w: shipment notice exceeds %d bytes", ErrInvalid, MaxNoticeLength)
		}
	}
	return nil
}

func (e *Engine) resolveRoles(caller common.Address, p SubmitParams) (reporter common.Address, reporterNotice []byte, arbiter common.Address, arbiterNotice []byte, err error) {
	cfg := e.config
	zero := common.Address{}
	if cfg.RoleMode == RolesPerStore {
		if p.Reporter != zero || p.Arbiter != zero || len(p.ReporterNotice) > 0 || len(p.ArbiterNotice) > 0 {
			return zero, nil, zero, nil, fmt.Errorf("%w: store assigns reporter and arbiter", ErrInvalid)
		}
		return cfg.Reporter, cloneBytes(cfg.ReporterNotice), cfg.Arbiter, cloneBytes(cfg.ArbiterNotice), nil
	}
	reporter, reporterNotice = p.Reporter, cloneBytes(p.ReporterNotice)
	if reporter == zero {
		reporter, reporterNotice = cfg.Reporter, cloneBytes(cfg.ReporterNotice)
	}
	arbiter, arbiterNotice = p.Arbiter, cloneBytes(p.ArbiterNotice)
	if arbiter == zero {
		arbiter, arbiterNotice = cfg.Arbiter, cloneBytes(cfg.ArbiterNotice)
	}
	switch {
	case reporter == zero || arbiter == zero:
		return zero, nil, zero, nil, fmt.Errorf("%w: reporter and arbiter required", ErrInvalid)
	case reporter == arbiter:
		return zero, nil, zero, nil, fmt.Errorf("%w: reporter cannot arbitrate its own deliveries", ErrInvalid)
	case reporter == caller || arbiter == caller:
		return zero, nil, zero, nil, fmt.Errorf("%w: buyer cannot act as reporter or arbiter", ErrInvalid)
	case reporter == cfg.Seller || arbiter == cfg.Seller:
		return zero, nil, zero, nil, fmt.Errorf("%w: seller cannot act as reporter or arbiter", ErrInvalid)
	}
	return reporter, reporterNotice, arbiter, arbiterNotice, nil
}

// Submit opens a new order and pulls price plus shipping from the buyer into
// escrow.
func (e *Engine) Submit(caller common.Address, p SubmitParams, attached *big.Int) (*Order, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := validateID(p.ID); err != nil {
		return nil, err
	}
	total, err := checkAmounts(p.Price, p.Shipping)
	if err != nil {
		return nil, err
	}
	if len(p.Metadata) > MaxMetadataLength {
		return nil, fmt.Errorf("%w: metadata exceeds %d bytes", ErrInvalid, MaxMetadataLength)
	}
	if len(p.BuyerNotice) > MaxNoticeLength || len(p.ReporterNotice) > MaxNoticeLength || len(p.ArbiterNotice) > MaxNoticeLength {
		return nil, fmt.Errorf("%w: notice key exceeds %d bytes", ErrInvalid, MaxNoticeLength)
	}
	if _, err := e.loadOrder(p.ID); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, p.ID)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if caller == e.config.Seller {
		return nil, fmt.Errorf("%w: seller cannot buy from its own store", ErrUnauthorized)
	}
	reporter, reporterNotice, arbiter, arbiterNotice, err := e.resolveRoles(caller, p)
	if err != nil {
		return nil, err
	}

	h := e.height()
	if err := e.rail.Pull(caller, total, attached); err != nil {
		return nil, err
	}
	seq, err := e.nextSequence()
	if err != nil {
		return nil, err
	}
	order := &Order{
		ID:                p.ID,
		Sequence:          seq,
		State:             StateSubmitted,
		Workflow:          e.config.Workflow,
		Buyer:             caller,
		BuyerNotice:       cloneBytes(p.BuyerNotice),
		Reporter:          reporter,
		ReporterNotice:    reporterNotice,
		Arbiter:           arbiter,
		ArbiterNotice:     arbiterNotice,
		Price:             cloneBigInt(p.Price),
		Shipping:          cloneBigInt(p.Shipping),
		Metadata:          cloneBytes(p.Metadata),
		ShipmentBuyer:     []byte{},
		ShipmentReporter:  []byte{},
		ShipmentArbiter:   []byte{},
		SellerBond:        big.NewInt(0),
		ReporterBond:      big.NewInt(0),
		SubmittedBlock:    h,
		LastModifiedBlock: h,
	}
	if err := e.storeOrder(order); err != nil {
		return nil, err
	}
	if err := e.adjustOutstanding(total, true); err != nil {
		return nil, err
	}
	if err := e.index(order); err != nil {
		return nil, err
	}
	e.emit(EventTypeOrderSubmitted, order)
	return order.Clone(), nil
}

// index records o under its sequence and appends it to each party's list.
// Party entries are keyed by (party, position) so a submit touches a fixed
// number of keys however many orders the party already has.
func (e *Engine) index(o *Order) error {
	if err := e.state.KVPut(nhstate.OrderSequenceIndexKey(o.Sequence), o.ID); err != nil {
		return err
	}
	seen := make(map[common.Address]bool, 3)
	for _, party := range []common.Address{o.Buyer, o.Reporter, o.Arbiter} {
		if seen[party] {
			continue
		}
		seen[party] = true
		var count uint64
		if _, err := e.state.KVGet(nhstate.OrderPartyCountKey(party), &count); err != nil {
			return err
		}
		count++
		if err := e.state.KVPut(nhstate.OrderPartyEntryKey(party, count), o.ID); err != nil {
			return err
		}
		if err := e.state.KVPut(nhstate.OrderPartyCountKey(party), count); err != nil {
			return err
		}
	}
	return nil
}

// Confirm lets the seller accept an order in the bonded workflow. The seller
// attaches a bond equal to the order total.
func (e *Engine) Confirm(caller common.Address, id string, attached *big.Int) (*Order, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	order, err := e.loadOrder(id)
	if err != nil {
		return nil, err
	}
	if caller != e.config.Seller {
		return nil, fmt.Errorf("%w: only the seller may confirm", ErrUnauthorized)
	}
	h := e.height()
	if err := advance(order, StateConfirmed, h); err != nil {
		return nil, err
	}
	bond := order.Total()
	if err := e.rail.Pull(caller, bond, attached); err != nil {
		return nil, err
	}
	order.SellerBond = bond
	order.ConfirmedBlock = h
	if err := e.storeOrder(order); err != nil {
		return nil, err
	}
	if err := e.adjustOutstanding(bond, true); err != nil {
		return nil, err
	}
	e.emit(EventTypeOrderConfirmed, order)
	return order.Clone(), nil
}

// HandOff records that the seller passed the goods to the shipper, storing
// the sealed shipment notices.
func (e *Engine) HandOff(caller common.Address, id string, shipment Shipment) (*Order, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	order, err := e.loadOrder(id)
	if err != nil {
		return nil, err
	}
	if caller != e.config.Seller {
		return nil, fmt.Errorf("%w: only the seller may hand off", ErrUnauthorized)
	}
	if err := checkShipment(shipment); err != nil {
		return nil, err
	}
	if err := advance(order, StateHandedOff, e.height()); err != nil {
		return nil, err
	}
	setShipment(order, shipment)
	if err := e.storeOrder(order); err != nil {
		return nil, err
	}
	e.emit(EventTypeOrderHandedOff, order)
	return order.Clone(), nil
}

func setShipment(o *Order, s Shipment) {
	o.ShipmentBuyer = cloneBytes(s.Buyer)
	o.ShipmentReporter = cloneBytes(s.Reporter)
	o.ShipmentArbiter = cloneBytes(s.Arbiter)
}

// Ship marks the order as shipped. In the direct workflow the seller ships
// and supplies the sealed notices. In the bonded workflow the reporter, acting
// as shipper, takes custody and attaches a bond equal to the order total.
func (e *Engine) Ship(caller common.Address, id string, shipment Shipment, attached *big.Int) (*Order, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	order, err := e.loadOrder(id)
	if err != nil {
		return nil, err
	}
	h := e.height()
	if order.Workflow == WorkflowBonded {
		if caller != order.Reporter {
			return nil, fmt.Errorf("%w: only the shipper may ship", ErrUnauthorized)
		}
		if len(shipment.Buyer) > 0 || len(shipment.Reporter) > 0 || len(shipment.Arbiter) > 0 {
			return nil, fmt.Errorf("%w: notices are sealed at hand-off, ship takes none", ErrInvalid)
		}
		if err := advance(order, StateShipped, h); err != nil {
			return nil, err
		}
		bond := order.Total()
		if err := e.rail.Pull(caller, bond, attached); err != nil {
			return nil, err
		}
		order.ReporterBond = bond
		if err := e.adjustOutstanding(bond, true); err != nil {
			return nil, err
		}
	} else {
		if caller != e.config.Seller {
			return nil, fmt.Errorf("%w: only the seller may ship", ErrUnauthorized)
		}
		if attached != nil && attached.Sign() != 0 {
			return nil, fmt.Errorf("%w: ship does not accept value", ErrInvalid)
		}
		if err := checkShipment(shipment); err != nil {
			return nil, err
		}
		if err := advance(order, StateShipped, h); err != nil {
			return nil, err
		}
		setShipment(order, shipment)
	}
	order.ShippedBlock = h
	if err := e.storeOrder(order); err != nil {
		return nil, err
	}
	e.emit(EventTypeOrderShipped, order)
	return order.Clone(), nil
}

// Deliver records the reporter's attestation that the goods arrived. It
// opens the dispute window.
func (e *Engine) Deliver(caller common.Address, id string) (*Order, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	order, err := e.loadOrder(id)
	if err != nil {
		return nil, err
	}
	if caller != order.Reporter {
		return nil, fmt.Errorf("%w: only the reporter may deliver", ErrUnauthorized)
	}
	h := e.height()
	if err := advance(order, StateDelivered, h); err != nil {
		return nil, err
	}
	order.DeliveredBlock = h
	if err := e.storeOrder(order); err != nil {
		return nil, err
	}
	e.emit(EventTypeOrderDelivered, order)
	return order.Clone(), nil
}

// Complete releases escrow to the seller once the dispute window has passed
// without a dispute.
func (e *Engine) Complete(caller common.Address, id string) (*Order, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	order, err := e.loadOrder(id)
	if err != nil {
		return nil, err
	}
	if caller != e.config.Seller {
		return nil, fmt.Errorf("%w: only the seller may complete", ErrUnauthorized)
	}
	if err := requireState(order, StateCompleted); err != nil {
		return nil, err
	}
	if order.State != StateDelivered {
		return nil, fmt.Errorf("%w: order %s is %s, awaiting arbiter", ErrState, order.ID, order.State)
	}
	h := e.height()
	if waited := elapsed(h, order.DeliveredBlock); waited < e.config.DisputeBlocks {
		return nil, fmt.Errorf("%w: %d of %d dispute blocks elapsed", ErrTiming, waited, e.config.DisputeBlocks)
	}
	held := order.Held()
	if err := advance(order, StateCompleted, h); err != nil {
		return nil, err
	}
	order.ClosedBlock = h
	order.Resolution = ResolutionNone
	if err := e.storeOrder(order); err != nil {
		return nil, err
	}
	if err := e.adjustOutstanding(held, false); err != nil {
		return nil, err
	}
	if err := e.payRelease(order); err != nil {
		return nil, err
	}
	e.emit(EventTypeOrderCompleted, order)
	return order.Clone(), nil
}

// payRelease pays the seller the order total plus its bond and returns the
// shipper's bond.
func (e *Engine) payRelease(o *Order) error {
	sellerAmount := new(big.Int).Add(o.Total(), cloneBigInt(o.SellerBond))
	if err := e.rail.Push(e.config.Seller, sellerAmount); err != nil {
		return err
	}
	if bond := cloneBigInt(o.ReporterBond); bond.Sign() > 0 {
		if err := e.rail.Push(o.Reporter, bond); err != nil {
			return err
		}
	}
	return nil
}

// Cancel closes an order that was never shipped and refunds the buyer. Buyer
// or seller may cancel once cancelBlocks have passed since the last
// transition. A seller bond is returned to the seller.
func (e *Engine) Cancel(caller common.Address, id string) (*Order, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	order, err := e.loadOrder(id)
	if err != nil {
		return nil, err
	}
	if caller != order.Buyer && caller != e.config.Seller {
		return nil, fmt.Errorf("%w: only the buyer or seller may cancel", ErrUnauthorized)
	}
	if err := requireState(order, StateCancelled); err != nil {
		return nil, err
	}
	h := e.height()
	if waited := elapsed(h, order.LastModifiedBlock); waited < e.config.CancelBlocks {
		return nil, fmt.Errorf("%w: %d of %d cancel blocks elapsed", ErrTiming, waited, e.config.CancelBlocks)
	}
	held := order.Held()
	if err := advance(order, StateCancelled, h); err != nil {
		return nil, err
	}
	order.ClosedBlock = h
	if err := e.storeOrder(order); err != nil {
		return nil, err
	}
	if err := e.adjustOutstanding(held, false); err != nil {
		return nil, err
	}
	if err := e.rail.Push(order.Buyer, order.Total()); err != nil {
		return nil, err
	}
	if bond := cloneBigInt(order.SellerBond); bond.Sign() > 0 {
		if err := e.rail.Push(e.config.Seller, bond); err != nil {
			return nil, err
		}
	}
	e.emit(EventTypeOrderCancelled, order)
	return order.Clone(), nil
}

// Dispute lets the buyer contest a delivery while the dispute window is
// open. Funds stay in escrow until the arbiter resolves.
func (e *Engine) Dispute(caller common.Address, id string) (*Order, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	order, err := e.loadOrder(id)
	if err != nil {
		return nil, err
	}
	if caller != order.Buyer {
		return nil, fmt.Errorf("%w: only the buyer may dispute", ErrUnauthorized)
	}
	if err := requireState(order, StateDisputed); err != nil {
		return nil, err
	}
	h := e.height()
	if waited := elapsed(h, order.DeliveredBlock); waited >= e.config.DisputeBlocks {
		return nil, fmt.Errorf("%w: dispute window of %d blocks closed", ErrTiming, e.config.DisputeBlocks)
	}
	if err := advance(order, StateDisputed, h); err != nil {
		return nil, err
	}
	if err := e.storeOrder(order); err != nil {
		return nil, err
	}
	e.emit(EventTypeOrderDisputed, order)
	return order.Clone(), nil
}

// Resolve records the arbiter's ruling. Release pays out as Complete does;
// refund returns the order total and both bonds to the buyer.
func (e *Engine) Resolve(caller common.Address, id string, refund bool) (*Order, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	order, err := e.loadOrder(id)
	if err != nil {
		return nil, err
	}
	if caller != order.Arbiter {
		return nil, fmt.Errorf("%w: only the arbiter may resolve", ErrUnauthorized)
	}
	if order.State != StateDisputed {
		return nil, fmt.Errorf("%w: order %s is %s, not disputed", ErrState, order.ID, order.State)
	}
	next, resolution := StateCompleted, ResolutionRelease
	if refund {
		next, resolution = StateRefunded, ResolutionRefund
	}
	h := e.height()
	held := order.Held()
	if err := advance(order, next, h); err != nil {
		return nil, err
	}
	order.ClosedBlock = h
	order.Resolution = resolution
	if err := e.storeOrder(order); err != nil {
		return nil, err
	}
	if err := e.adjustOutstanding(held, false); err != nil {
		return nil, err
	}
	if refund {
		if err := e.rail.Push(order.Buyer, held); err != nil {
			return nil, err
		}
	} else if err := e.payRelease(order); err != nil {
		return nil, err
	}
	e.emit(EventTypeOrderResolved, order)
	return order.Clone(), nil
}

// GetOrder returns the order stored under id.
func (e *Engine) GetOrder(id string) (*Order, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.loadOrder(id)
}

// OrderCount returns the number of orders ever submitted.
func (e *Engine) OrderCount() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	var seq uint64
	if _, err := e.state.KVGet(nhstate.OrderSequenceKey(), &seq); err != nil {
		return 0, err
	}
	return seq, nil
}

// OrderIDBySequence returns the id of the order assigned seq.
func (e *Engine) OrderIDBySequence(seq uint64) (string, error) {
	if e == nil || e.state == nil {
		return "", errNilState
	}
	var id string
	ok, err := e.state.KVGet(nhstate.OrderSequenceIndexKey(seq), &id)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: sequence %d", ErrNotFound, seq)
	}
	return id, nil
}

// OrdersByParty lists the ids of orders addr is buyer, reporter or arbiter
// of, in submission order.
func (e *Engine) OrdersByParty(addr common.Address) ([]string, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var count uint64
	if _, err := e.state.KVGet(nhstate.OrderPartyCountKey(addr), &count); err != nil {
		return nil, err
	}
	ids := make([]string, 0, count)
	for i := uint64(1); i <= count; i++ {
		var id string
		ok, err := e.state.KVGet(nhstate.OrderPartyEntryKey(addr, i), &id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("orders engine: party index entry %d missing", i)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Outstanding is the total the escrow account owes to open orders.
func (e *Engine) Outstanding() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	outstanding := new(big.Int)
	if _, err := e.state.KVGet(nhstate.OrderEscrowHeldKey(), outstanding); err != nil {
		return nil, err
	}
	return outstanding, nil
}
