package orders

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const (
	MaxIDLength       = 128
	MaxMetadataLength = 4 << 10
	MaxNoticeLength   = 16 << 10
)

// State is the logical lifecycle state of an order.
type State uint8

const (
	StateSubmitted State = iota
	StateConfirmed
	StateHandedOff
	StateShipped
	StateDelivered
	StateCompleted
	StateCancelled
	StateDisputed
	StateRefunded
)

var stateNames = map[State]string{
	StateSubmitted: "submitted",
	StateConfirmed: "confirmed",
	StateHandedOff: "handed_off",
	StateShipped:   "shipped",
	StateDelivered: "delivered",
	StateCompleted: "completed",
	StateCancelled: "cancelled",
	StateDisputed:  "disputed",
	StateRefunded:  "refunded",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateRefunded
}

var directCodes = []State{
	StateSubmitted, StateShipped, StateDelivered, StateCompleted,
	StateCancelled, StateDisputed, StateRefunded,
}

var bondedCodes = []State{
	StateSubmitted, StateConfirmed, StateHandedOff, StateShipped, StateDelivered,
	StateCompleted, StateCancelled, StateDisputed, StateRefunded,
}

func codeTable(w Workflow) []State {
	if w == WorkflowBonded {
		return bondedCodes
	}
	return directCodes
}

// Code returns the numeric wire value of s under workflow w. The direct
// workflow has no Confirmed or HandedOff states; Code returns false for them.
func (s State) Code(w Workflow) (uint8, bool) {
	for i, candidate := range codeTable(w) {
		if candidate == s {
			return uint8(i), true
		}
	}
	return 0, false
}

// StateFromCode is the inverse of State.Code.
func StateFromCode(w Workflow, code uint8) (State, bool) {
	table := codeTable(w)
	if int(code) >= len(table) {
		return 0, false
	}
	return table[code], true
}

// Workflow selects the transition graph an order follows.
type Workflow uint8

const (
	// WorkflowDirect: submit, ship, deliver, complete.
	WorkflowDirect Workflow = iota
	// WorkflowBonded: submit, confirm, handOff, ship, deliver, complete with
	// seller and shipper posting bonds equal to the order total.
	WorkflowBonded
)

func (w Workflow) String() string {
	if w == WorkflowBonded {
		return "bonded"
	}
	return "direct"
}

// ParseWorkflow accepts "direct" or "bonded". Empty selects direct.
func ParseWorkflow(raw string) (Workflow, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "direct":
		return WorkflowDirect, nil
	case "bonded":
		return WorkflowBonded, nil
	default:
		return 0, fmt.Errorf("unknown workflow %q", raw)
	}
}

// RailKind selects how escrowed value moves.
type RailKind uint8

const (
	RailNative RailKind = iota
	RailToken
)

func (k RailKind) String() string {
	if k == RailToken {
		return "token"
	}
	return "native"
}

// ParseRailKind accepts "native" or "token". Empty selects native.
func ParseRailKind(raw string) (RailKind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "native":
		return RailNative, nil
	case "token":
		return RailToken, nil
	default:
		return 0, fmt.Errorf("unknown payment rail %q", raw)
	}
}

// RoleMode selects whether reporter and arbiter come from the store
// configuration or from each submission.
type RoleMode uint8

const (
	RolesPerStore RoleMode = iota
	RolesPerOrder
)

func (m RoleMode) String() string {
	if m == RolesPerOrder {
		return "order"
	}
	return "store"
}

// ParseRoleMode accepts "store" or "order". Empty selects store.
func ParseRoleMode(raw string) (RoleMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "store":
		return RolesPerStore, nil
	case "order":
		return RolesPerOrder, nil
	default:
		return 0, fmt.Errorf("unknown role mode %q", raw)
	}
}

// Resolution is the arbiter's ruling on a disputed order.
type Resolution uint8

const (
	ResolutionNone Resolution = iota
	ResolutionRelease
	ResolutionRefund
)

func (r Resolution) String() string {
	switch r {
	case ResolutionRelease:
		return "release"
	case ResolutionRefund:
		return "refund"
	default:
		return "none"
	}
}

// Order is the escrow record of one purchase. Sequence zero means the order
// does not exist.
type Order struct {
	ID       string
	Sequence uint64
	State    State
	Workflow Workflow

	Buyer          common.Address
	BuyerNotice    []byte
	Reporter       common.Address
	ReporterNotice []byte
	Arbiter        common.Address
	ArbiterNotice  []byte

	Price    *big.Int
	Shipping *big.Int
	Metadata []byte

	ShipmentBuyer    []byte
	ShipmentReporter []byte
	ShipmentArbiter  []byte

	SellerBond   *big.Int
	ReporterBond *big.Int

	SubmittedBlock    uint64
	ConfirmedBlock    uint64
	ShippedBlock      uint64
	DeliveredBlock    uint64
	ClosedBlock       uint64
	LastModifiedBlock uint64

	Resolution Resolution
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return []byte{}
	}
	return append([]byte(nil), b...)
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// Clone returns a deep copy of the order.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.BuyerNotice = cloneBytes(o.BuyerNotice)
	clone.ReporterNotice = cloneBytes(o.ReporterNotice)
	clone.ArbiterNotice = cloneBytes(o.ArbiterNotice)
	clone.Metadata = cloneBytes(o.Metadata)
	clone.ShipmentBuyer = cloneBytes(o.ShipmentBuyer)
	clone.ShipmentReporter = cloneBytes(o.ShipmentReporter)
	clone.ShipmentArbiter = cloneBytes(o.ShipmentArbiter)
	clone.Price = cloneBigInt(o.Price)
	clone.Shipping = cloneBigInt(o.Shipping)
	clone.SellerBond = cloneBigInt(o.SellerBond)
	clone.ReporterBond = cloneBigInt(o.ReporterBond)
	return &clone
}

// Total is the amount the buyer escrows: price plus shipping.
func (o *Order) Total() *big.Int {
	return new(big.Int).Add(cloneBigInt(o.Price), cloneBigInt(o.Shipping))
}

// Held is everything escrow holds for the order while it is open.
func (o *Order) Held() *big.Int {
	if o.State.Terminal() {
		return big.NewInt(0)
	}
	held := o.Total()
	held.Add(held, cloneBigInt(o.SellerBond))
	held.Add(held, cloneBigInt(o.ReporterBond))
	return held
}

// StateCode is the numeric wire form of the order's state.
func (o *Order) StateCode() uint8 {
	code, _ := o.State.Code(o.Workflow)
	return code
}

// Shipment carries the per-recipient sealed notices written at shipping.
type Shipment struct {
	Buyer    []byte
	Reporter []byte
	Arbiter  []byte
}

// SubmitParams are the buyer supplied fields of a new order.
type SubmitParams struct {
	ID             string
	BuyerNotice    []byte
	Reporter       common.Address
	ReporterNotice []byte
	Arbiter        common.Address
	ArbiterNotice  []byte
	Price          *big.Int
	Shipping       *big.Int
	Metadata       []byte
}

// StoreConfig is fixed at genesis and never changes afterwards.
type StoreConfig struct {
	StoreName      string
	Seller         common.Address
	Reporter       common.Address
	ReporterNotice []byte
	Arbiter        common.Address
	ArbiterNotice  []byte
	CancelBlocks   uint64
	DisputeBlocks  uint64
	Rail           RailKind
	Token          string
	RoleMode       RoleMode
	Workflow       Workflow
}

// EscrowAddress derives the account that custodies funds for the store.
// Token buyers approve this address before submitting.
func EscrowAddress(storeName string) common.Address {
	hash := ethcrypto.Keccak256([]byte("orders:" + strings.TrimSpace(storeName)))
	return common.BytesToAddress(hash[12:])
}

// EscrowAddress returns the store's custody account.
func (c *StoreConfig) EscrowAddress() common.Address {
	return EscrowAddress(c.StoreName)
}

// Validate checks the configuration for internal consistency.
func (c *StoreConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: store config missing", ErrInvalid)
	}
	if strings.TrimSpace(c.StoreName) == "" {
		return fmt.Errorf("%w: store name required", ErrInvalid)
	}
	if c.Seller == (common.Address{}) {
		return fmt.Errorf("%w: seller required", ErrInvalid)
	}
	switch c.Rail {
	case RailNative:
		if strings.TrimSpace(c.Token) != "" {
			return fmt.Errorf("%w: native rail takes no token", ErrInvalid)
		}
	case RailToken:
		if strings.TrimSpace(c.Token) == "" {
			return fmt.Errorf("%w: token rail requires a token symbol", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown rail %d", ErrInvalid, c.Rail)
	}
	if c.RoleMode == RolesPerStore {
		if c.Reporter == (common.Address{}) || c.Arbiter == (common.Address{}) {
			return fmt.Errorf("%w: store-wide roles require reporter and arbiter", ErrInvalid)
		}
	}
	if c.RoleMode != RolesPerStore && c.RoleMode != RolesPerOrder {
		return fmt.Errorf("%w: unknown role mode %d", ErrInvalid, c.RoleMode)
	}
	if c.Workflow != WorkflowDirect && c.Workflow != WorkflowBonded {
		return fmt.Errorf("%w: unknown workflow %d", ErrInvalid, c.Workflow)
	}
	if c.Reporter != (common.Address{}) && c.Reporter == c.Seller {
		return fmt.Errorf("%w: reporter must differ from seller", ErrInvalid)
	}
	if c.Arbiter != (common.Address{}) && c.Arbiter == c.Seller {
		return fmt.Errorf("%w: arbiter must differ from seller", ErrInvalid)
	}
	if c.Reporter != (common.Address{}) && c.Reporter == c.Arbiter {
		return fmt.Errorf("%w: reporter must differ from arbiter", ErrInvalid)
	}
	return nil
}
