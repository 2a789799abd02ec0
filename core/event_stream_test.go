package core

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"orderchain/core/types"
	"orderchain/native/bank"
)

func testEvents(n int) []types.Event {
	evts := make([]types.Event, n)
	for i := range evts {
		evts[i] = types.Event{Type: "orders.submitted", Height: uint64(i + 1), Attributes: map[string]string{"id": "x"}}
	}
	return evts
}

func TestEventStreamPublishRacesCancel(t *testing.T) {
	n := &Node{}
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				n.events.publish("0x", testEvents(8))
			}
		}()
	}

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		ctx, cancelCtx := context.WithCancel(context.Background())
		_, cancel, _, err := n.SubscribeEvents(ctx, "")
		if err != nil {
			t.Fatalf("subscribe: %v", err)
		}
		cancel()
		cancelCtx()
		cancel()
	}
	close(stop)
	wg.Wait()
}

func TestEventStreamDropsSlowSubscriber(t *testing.T) {
	n := &Node{}
	updates, cancel, _, err := n.SubscribeEvents(context.Background(), "")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	n.events.publish("0x01", testEvents(subscriberBuffer+6))

	var last EventUpdate
	received := 0
	for update := range updates {
		last = update
		received++
	}
	if received != subscriberBuffer {
		t.Fatalf("expected %d buffered updates before close, got %d", subscriberBuffer, received)
	}

	n.events.publish("0x02", testEvents(1))
	_, resume, backlog, err := n.SubscribeEvents(context.Background(), last.Cursor)
	if err != nil {
		t.Fatalf("resubscribe: %v", err)
	}
	defer resume()
	if len(backlog) != 7 {
		t.Fatalf("expected 7 missed updates in backlog, got %d", len(backlog))
	}
	if backlog[0].Sequence != last.Sequence+1 {
		t.Fatalf("backlog must continue after cursor %s, starts at %d", last.Cursor, backlog[0].Sequence)
	}
}

func TestEventStreamFollowsBlockOrder(t *testing.T) {
	p := newParties(t)
	n := newTestNode(t, nativeBondedGenesis(p))

	senders := []actor{p.buyer, p.seller, p.shipper}
	calls := make([][]*types.Call, len(senders))
	for i, from := range senders {
		for nonce := uint64(0); nonce < 5; nonce++ {
			call, err := types.NewCall(testChainID, types.CallBankTransfer, nonce, big.NewInt(0), types.TransferPayload{
				To:     p.stranger.addr,
				Amount: big.NewInt(1),
			})
			if err != nil {
				t.Fatalf("new call: %v", err)
			}
			if err := call.Sign(from.key.PrivateKey); err != nil {
				t.Fatalf("sign: %v", err)
			}
			calls[i] = append(calls[i], call)
		}
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(senders)*5)
	for _, batch := range calls {
		wg.Add(1)
		go func(batch []*types.Call) {
			defer wg.Done()
			for _, call := range batch {
				if _, _, err := n.Apply(context.Background(), call); err != nil {
					errs <- err
				}
			}
		}(batch)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("apply: %v", err)
	}

	listed := n.ListEvents(bank.EventTypeTransfer, 0)
	if len(listed) != 15 {
		t.Fatalf("expected 15 transfer events, got %d", len(listed))
	}
	for i := 1; i < len(listed); i++ {
		if listed[i].Event.Height <= listed[i-1].Event.Height {
			t.Fatalf("event %d at height %d follows height %d", listed[i].Sequence, listed[i].Event.Height, listed[i-1].Event.Height)
		}
	}
}
