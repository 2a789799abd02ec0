package core

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"orderchain/core/events"
	nhstate "orderchain/core/state"
	"orderchain/core/types"
	"orderchain/native/bank"
	"orderchain/native/orders"
	"orderchain/native/token"
	"orderchain/storage/trie"
)

var (
	// ErrChainIDMismatch rejects calls signed for another chain.
	ErrChainIDMismatch = fmt.Errorf("%w: chain id mismatch", orders.ErrInvalid)
	// ErrNonceMismatch rejects replayed or out-of-order calls.
	ErrNonceMismatch = fmt.Errorf("%w: nonce mismatch", orders.ErrInvalid)
	// ErrInvalidSignature rejects calls whose signer cannot be recovered.
	ErrInvalidSignature = fmt.Errorf("%w: invalid signature", orders.ErrInvalid)
	// ErrUnknownCall rejects unsupported call types.
	ErrUnknownCall = fmt.Errorf("%w: unknown call type", orders.ErrInvalid)
	// ErrUnexpectedValue rejects native value attached to calls that do not take any.
	ErrUnexpectedValue = fmt.Errorf("%w: call does not accept value", orders.ErrInvalid)
)

// StateProcessor executes calls against the state trie. The node keeps one
// canonical processor and runs each call on a Copy.
type StateProcessor struct {
	Trie          *trie.Trie
	chainID       uint64
	committedRoot common.Hash
}

// CallResult describes a successfully applied call.
type CallResult struct {
	Caller common.Address
	Order  *orders.Order
	Events []types.Event
}

func NewStateProcessor(tr *trie.Trie, chainID uint64) *StateProcessor {
	return &StateProcessor{
		Trie:          tr,
		chainID:       chainID,
		committedRoot: tr.Root(),
	}
}

// ChainID is the chain identifier calls must be signed for.
func (sp *StateProcessor) ChainID() uint64 { return sp.chainID }

// CurrentRoot returns the last committed state root.
func (sp *StateProcessor) CurrentRoot() common.Hash {
	return sp.committedRoot
}

// PendingRoot returns the root of the trie including in-memory mutations.
func (sp *StateProcessor) PendingRoot() common.Hash {
	return sp.Trie.Hash()
}

// ResetToRoot discards any in-memory changes and reloads the trie at the
// provided root hash.
func (sp *StateProcessor) ResetToRoot(root common.Hash) error {
	if err := sp.Trie.Reset(root); err != nil {
		return err
	}
	sp.committedRoot = root
	return nil
}

// Commit persists the current trie contents and returns the resulting state
// root.
func (sp *StateProcessor) Commit(blockNumber uint64) (common.Hash, error) {
	newRoot, err := sp.Trie.Commit(sp.committedRoot, blockNumber)
	if err != nil {
		return common.Hash{}, err
	}
	sp.committedRoot = newRoot
	return newRoot, nil
}

// Copy returns a clone of the state processor that can be used for
// speculative execution without mutating the canonical state.
func (sp *StateProcessor) Copy() *StateProcessor {
	return &StateProcessor{
		Trie:          sp.Trie.Copy(),
		chainID:       sp.chainID,
		committedRoot: sp.committedRoot,
	}
}

// Manager returns a typed view over the processor's trie.
func (sp *StateProcessor) Manager() *nhstate.Manager {
	return nhstate.NewManager(sp.Trie)
}

// OrderEngine builds an order engine over this processor's state. Events go to
// emitter; height supplies the block the transition lands in.
func (sp *StateProcessor) OrderEngine(height uint64, emitter events.Emitter) (*orders.Engine, error) {
	manager := sp.Manager()
	cfg, err := orders.LoadConfig(manager)
	if err != nil {
		return nil, err
	}
	rail, err := orders.NewRail(cfg, bank.NewLedger(manager, emitter), token.NewLedger(manager, emitter))
	if err != nil {
		return nil, err
	}
	engine := orders.NewEngine()
	engine.SetState(manager)
	engine.SetConfig(cfg)
	engine.SetRail(rail)
	engine.SetEmitter(emitter)
	engine.SetHeightFunc(func() uint64 { return height })
	return engine, nil
}

// ApplyCall verifies and executes call as the content of block height. On
// error the processor's trie may hold partial writes; callers discard it.
func (sp *StateProcessor) ApplyCall(call *types.Call, height uint64) (*CallResult, error) {
	if call == nil {
		return nil, fmt.Errorf("%w: nil call", orders.ErrInvalid)
	}
	if call.ChainID != sp.chainID {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrChainIDMismatch, call.ChainID, sp.chainID)
	}
	from, err := call.From()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	manager := sp.Manager()
	account, err := manager.GetAccount(from)
	if err != nil {
		return nil, err
	}
	if call.Nonce != account.Nonce {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrNonceMismatch, call.Nonce, account.Nonce)
	}
	if call.AttachedValue().Sign() < 0 {
		return nil, fmt.Errorf("%w: negative value", orders.ErrInvalid)
	}

	buffer := &events.Buffer{}
	order, err := sp.dispatch(call, from, height, buffer)
	if err != nil {
		return nil, err
	}

	// Reload: the call may have moved value out of the caller's account.
	account, err = manager.GetAccount(from)
	if err != nil {
		return nil, err
	}
	account.Nonce++
	if err := manager.PutAccount(from, account); err != nil {
		return nil, err
	}

	emitted := buffer.Events()
	for i := range emitted {
		emitted[i].Height = height
	}
	return &CallResult{Caller: from, Order: order, Events: emitted}, nil
}

func (sp *StateProcessor) dispatch(call *types.Call, from common.Address, height uint64, emitter events.Emitter) (*orders.Order, error) {
	value := call.AttachedValue()
	takesValue := call.Type == types.CallSubmit || call.Type == types.CallConfirm || call.Type == types.CallShip
	if !takesValue && value.Sign() != 0 {
		return nil, ErrUnexpectedValue
	}

	switch call.Type {
	case types.CallSubmit, types.CallConfirm, types.CallHandOff, types.CallShip,
		types.CallDeliver, types.CallComplete, types.CallCancel, types.CallDispute, types.CallResolve:
		engine, err := sp.OrderEngine(height, emitter)
		if err != nil {
			return nil, err
		}
		return applyOrderCall(engine, call, from, value)
	case types.CallBankTransfer:
		var payload types.TransferPayload
		if err := decode(call, &payload); err != nil {
			return nil, err
		}
		if payload.Token != "" {
			return nil, ledgerError(token.NewLedger(sp.Manager(), emitter).Transfer(payload.Token, from, payload.To, payload.Amount))
		}
		if payload.Amount == nil || payload.Amount.Sign() <= 0 {
			return nil, fmt.Errorf("%w: transfer amount must be positive", orders.ErrInvalid)
		}
		return nil, ledgerError(bank.NewLedger(sp.Manager(), emitter).Transfer(from, payload.To, payload.Amount))
	case types.CallTokenApprove:
		var payload types.ApprovePayload
		if err := decode(call, &payload); err != nil {
			return nil, err
		}
		return nil, ledgerError(token.NewLedger(sp.Manager(), emitter).Approve(payload.Token, from, payload.Spender, payload.Amount))
	case types.CallTokenTransfer:
		var payload types.TransferPayload
		if err := decode(call, &payload); err != nil {
			return nil, err
		}
		return nil, ledgerError(token.NewLedger(sp.Manager(), emitter).Transfer(payload.Token, from, payload.To, payload.Amount))
	case types.CallTokenMint:
		var payload types.MintPayload
		if err := decode(call, &payload); err != nil {
			return nil, err
		}
		return nil, ledgerError(token.NewLedger(sp.Manager(), emitter).Mint(payload.Token, from, payload.To, payload.Amount))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCall, call.Type)
	}
}

func applyOrderCall(engine *orders.Engine, call *types.Call, from common.Address, value *big.Int) (*orders.Order, error) {
	switch call.Type {
	case types.CallSubmit:
		var p types.SubmitPayload
		if err := decode(call, &p); err != nil {
			return nil, err
		}
		return engine.Submit(from, orders.SubmitParams{
			ID:             p.ID,
			BuyerNotice:    p.BuyerNotice,
			Reporter:       p.Reporter,
			ReporterNotice: p.ReporterNotice,
			Arbiter:        p.Arbiter,
			ArbiterNotice:  p.ArbiterNotice,
			Price:          p.Price,
			Shipping:       p.Shipping,
			Metadata:       p.Metadata,
		}, value)
	case types.CallHandOff, types.CallShip:
		var p types.ShipmentPayload
		if err := decode(call, &p); err != nil {
			return nil, err
		}
		shipment := orders.Shipment{Buyer: p.Buyer, Reporter: p.Reporter, Arbiter: p.Arbiter}
		if call.Type == types.CallHandOff {
			return engine.HandOff(from, p.ID, shipment)
		}
		return engine.Ship(from, p.ID, shipment, value)
	case types.CallResolve:
		var p types.ResolvePayload
		if err := decode(call, &p); err != nil {
			return nil, err
		}
		return engine.Resolve(from, p.ID, p.Refund)
	}

	var ref types.OrderRefPayload
	if err := decode(call, &ref); err != nil {
		return nil, err
	}
	switch call.Type {
	case types.CallConfirm:
		return engine.Confirm(from, ref.ID, value)
	case types.CallDeliver:
		return engine.Deliver(from, ref.ID)
	case types.CallComplete:
		return engine.Complete(from, ref.ID)
	case types.CallCancel:
		return engine.Cancel(from, ref.ID)
	case types.CallDispute:
		return engine.Dispute(from, ref.ID)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCall, call.Type)
	}
}

func decode(call *types.Call, out interface{}) error {
	if err := call.DecodePayload(out); err != nil {
		return fmt.Errorf("%w: %v", orders.ErrInvalid, err)
	}
	return nil
}

// ledgerError folds bank and token failures into the order error kinds so
// clients see one taxonomy.
func ledgerError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, token.ErrNotMintAuthority):
		return fmt.Errorf("%w: %v", orders.ErrUnauthorized, err)
	case errors.Is(err, token.ErrInsufficientBalance),
		errors.Is(err, token.ErrInsufficientAllowance),
		errors.Is(err, bank.ErrInsufficientBalance):
		return fmt.Errorf("%w: %v", orders.ErrFunding, err)
	case errors.Is(err, token.ErrUnknownToken),
		errors.Is(err, token.ErrInvalidAmount),
		errors.Is(err, bank.ErrInvalidAmount):
		return fmt.Errorf("%w: %v", orders.ErrInvalid, err)
	default:
		return err
	}
}
