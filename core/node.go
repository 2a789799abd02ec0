package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"orderchain/core/genesis"
	nhstate "orderchain/core/state"
	"orderchain/core/types"
	"orderchain/native/bank"
	"orderchain/native/orders"
	"orderchain/native/token"
	"orderchain/observability"
	"orderchain/storage"
	"orderchain/storage/trie"
)

// Node is the central controller. It owns the canonical state, serialises
// every state change through stateMu and produces one block per applied call.
type Node struct {
	db      storage.Database
	state   *StateProcessor
	chain   *Blockchain
	stateMu sync.Mutex

	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *observability.OrderMetrics
	clock   func() time.Time

	events eventStream
}

// NewNode opens the chain stored in db. An empty db is initialised from spec;
// otherwise the stored tip wins and spec only supplies the chain id.
func NewNode(db storage.Database, spec *genesis.GenesisSpec) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("node: database required")
	}
	if spec == nil {
		return nil, fmt.Errorf("node: genesis spec required")
	}

	var genesisHeader *types.BlockHeader
	if _, err := db.Get(tipKey); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		genesisHeader, err = genesis.BuildGenesisFromSpec(spec, db)
		if err != nil {
			return nil, fmt.Errorf("build genesis: %w", err)
		}
	}
	chain, err := NewBlockchain(db, genesisHeader)
	if err != nil {
		return nil, err
	}

	stateTrie, err := trie.NewTrie(db, chain.Tip().StateRoot.Bytes())
	if err != nil {
		return nil, err
	}

	n := &Node{
		db:      db,
		state:   NewStateProcessor(stateTrie, spec.ChainID),
		chain:   chain,
		logger:  slog.Default(),
		tracer:  otel.Tracer("orderchain/core"),
		metrics: observability.Orders(),
		clock:   time.Now,
	}
	n.metrics.SetHeight(chain.GetHeight())
	if held, err := n.EscrowHeld(); err == nil {
		n.metrics.SetEscrowHeld(held)
	}
	return n, nil
}

// SetLogger replaces the node logger. Nil restores slog.Default.
func (n *Node) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	n.logger = logger
}

// SetClock overrides the source of block timestamps.
func (n *Node) SetClock(clock func() time.Time) {
	if clock == nil {
		clock = time.Now
	}
	n.clock = clock
}

// Apply verifies call, executes it on a speculative copy of the state and, if
// it succeeds, commits the copy as a new block. A failed call changes nothing.
func (n *Node) Apply(ctx context.Context, call *types.Call) (*types.Receipt, *orders.Order, error) {
	if call == nil {
		return nil, nil, fmt.Errorf("%w: nil call", orders.ErrInvalid)
	}
	callType := call.Type.String()
	ctx, span := n.tracer.Start(ctx, "node.apply",
		trace.WithAttributes(attribute.String("call.type", callType)))
	defer span.End()
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	start := n.clock()
	n.stateMu.Lock()
	receipt, result, err := n.applyLocked(call)
	var held *big.Int
	if err == nil {
		held, _ = n.escrowHeldLocked()
		// Publishing before unlocking keeps stream order equal to block order.
		n.events.publish(receipt.CallHash, receipt.Events)
	}
	n.stateMu.Unlock()

	n.metrics.RecordCall(callType, orders.KindOf(err), n.clock().Sub(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		n.logger.Debug("call rejected",
			slog.String("kind", callType),
			slog.String("reason", orders.KindOf(err)),
			slog.String("error", err.Error()))
		return nil, nil, err
	}

	span.SetAttributes(attribute.Int64("block.height", int64(receipt.Height)))
	n.metrics.SetHeight(receipt.Height)
	if held != nil {
		n.metrics.SetEscrowHeld(held)
	}
	for _, evt := range receipt.Events {
		observability.Events().RecordEvent(evt.Type)
	}

	attrs := []any{
		slog.String("kind", callType),
		slog.Uint64("height", receipt.Height),
		slog.String("caller", receipt.Caller),
	}
	if result.Order != nil {
		attrs = append(attrs, slog.String("order", result.Order.ID), slog.String("state", result.Order.State.String()))
	}
	n.logger.Info("call applied", attrs...)
	return receipt, result.Order, nil
}

func (n *Node) applyLocked(call *types.Call) (*types.Receipt, *CallResult, error) {
	height := n.chain.GetHeight() + 1
	working := n.state.Copy()
	result, err := working.ApplyCall(call, height)
	if err != nil {
		return nil, nil, err
	}
	callHash, err := call.Hash()
	if err != nil {
		return nil, nil, err
	}
	root, err := working.Commit(height)
	if err != nil {
		return nil, nil, fmt.Errorf("state commit failed: %w", err)
	}
	header := &types.BlockHeader{
		Height:     height,
		Timestamp:  uint64(n.clock().Unix()),
		ParentHash: n.chain.Tip().Hash(),
		StateRoot:  root,
		CallHash:   callHash,
	}
	if err := n.chain.AddBlock(header); err != nil {
		return nil, nil, err
	}
	n.state = working

	receipt := &types.Receipt{
		CallHash: callHash.Hex(),
		Caller:   result.Caller.Hex(),
		Height:   height,
		Events:   result.Events,
	}
	return receipt, result, nil
}

// MineBlocks appends count empty blocks. Order windows are measured in blocks,
// so mining is how time passes on a quiet chain.
func (n *Node) MineBlocks(count uint64) (uint64, error) {
	if count == 0 {
		return 0, fmt.Errorf("%w: block count must be positive", orders.ErrInvalid)
	}
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	for i := uint64(0); i < count; i++ {
		tip := n.chain.Tip()
		header := &types.BlockHeader{
			Height:     tip.Height + 1,
			Timestamp:  uint64(n.clock().Unix()),
			ParentHash: tip.Hash(),
			StateRoot:  n.state.CurrentRoot(),
		}
		if err := n.chain.AddBlock(header); err != nil {
			return n.chain.GetHeight(), err
		}
	}
	height := n.chain.GetHeight()
	n.metrics.SetHeight(height)
	return height, nil
}

// Height returns the current block height.
func (n *Node) Height() uint64 { return n.chain.GetHeight() }

// ChainID returns the chain identifier calls must be signed for.
func (n *Node) ChainID() uint64 { return n.state.ChainID() }

// Chain exposes the block header store.
func (n *Node) Chain() *Blockchain { return n.chain }

// StateRoot returns the committed state root.
func (n *Node) StateRoot() common.Hash {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.CurrentRoot()
}

func (n *Node) readEngine() (*orders.Engine, error) {
	return n.state.OrderEngine(n.chain.GetHeight(), nil)
}

// GetOrder returns the order stored under id.
func (n *Node) GetOrder(id string) (*orders.Order, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	engine, err := n.readEngine()
	if err != nil {
		return nil, err
	}
	return engine.GetOrder(strings.TrimSpace(id))
}

// OrderCount returns the number of orders ever submitted.
func (n *Node) OrderCount() (uint64, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	engine, err := n.readEngine()
	if err != nil {
		return 0, err
	}
	return engine.OrderCount()
}

// OrdersByParty returns the orders addr takes part in, in submission order.
func (n *Node) OrdersByParty(addr common.Address) ([]*orders.Order, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	engine, err := n.readEngine()
	if err != nil {
		return nil, err
	}
	ids, err := engine.OrdersByParty(addr)
	if err != nil {
		return nil, err
	}
	out := make([]*orders.Order, 0, len(ids))
	for _, id := range ids {
		order, err := engine.GetOrder(id)
		if err != nil {
			return nil, err
		}
		out = append(out, order)
	}
	return out, nil
}

// StoreConfig returns the store configuration fixed at genesis.
func (n *Node) StoreConfig() (*orders.StoreConfig, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return orders.LoadConfig(n.state.Manager())
}

// EscrowHeld is the total escrow owes to open orders.
func (n *Node) EscrowHeld() (*big.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.escrowHeldLocked()
}

func (n *Node) escrowHeldLocked() (*big.Int, error) {
	engine, err := n.readEngine()
	if err != nil {
		return nil, err
	}
	return engine.Outstanding()
}

// Balance returns the native balance of addr.
func (n *Node) Balance(addr common.Address) (*big.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return bank.NewLedger(n.state.Manager(), nil).Balance(addr)
}

// TokenBalance returns the token balance of addr.
func (n *Node) TokenBalance(symbol string, addr common.Address) (*big.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return token.NewLedger(n.state.Manager(), nil).BalanceOf(symbol, addr)
}

// Allowance returns how much spender may pull from owner.
func (n *Node) Allowance(symbol string, owner, spender common.Address) (*big.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return token.NewLedger(n.state.Manager(), nil).Allowance(symbol, owner, spender)
}

// Token returns the metadata of a registered token.
func (n *Node) Token(symbol string) (*nhstate.TokenMetadata, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	meta, err := n.state.Manager().Token(symbol)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, fmt.Errorf("%w: %s", token.ErrUnknownToken, symbol)
	}
	return meta, nil
}

// Nonce returns the next nonce addr must sign with.
func (n *Node) Nonce(addr common.Address) (uint64, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	account, err := n.state.Manager().GetAccount(addr)
	if err != nil {
		return 0, err
	}
	return account.Nonce, nil
}
