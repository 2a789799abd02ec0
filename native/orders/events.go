package orders

import (
	"encoding/hex"
	"strconv"

	"orderchain/core/types"
)

const (
	EventTypeOrderSubmitted = "orders.submitted"
	EventTypeOrderConfirmed = "orders.confirmed"
	EventTypeOrderHandedOff = "orders.handed_off"
	EventTypeOrderShipped   = "orders.shipped"
	EventTypeOrderDelivered = "orders.delivered"
	EventTypeOrderCompleted = "orders.completed"
	EventTypeOrderCancelled = "orders.cancelled"
	EventTypeOrderDisputed  = "orders.disputed"
	EventTypeOrderResolved  = "orders.resolved"
)

type orderEvent struct {
	evt *types.Event
}

func (e orderEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e orderEvent) Event() *types.Event { return e.evt }

func newOrderEvent(eventType string, o *Order, seller string) *types.Event {
	attrs := map[string]string{
		"id":        o.ID,
		"sequence":  strconv.FormatUint(o.Sequence, 10),
		"state":     o.State.String(),
		"stateCode": strconv.FormatUint(uint64(o.StateCode()), 10),
		"workflow":  o.Workflow.String(),
		"buyer":     o.Buyer.Hex(),
		"seller":    seller,
		"reporter":  o.Reporter.Hex(),
		"arbiter":   o.Arbiter.Hex(),
		"price":     cloneBigInt(o.Price).String(),
		"shipping":  cloneBigInt(o.Shipping).String(),
		"total":     o.Total().String(),
	}
	switch eventType {
	case EventTypeOrderShipped, EventTypeOrderHandedOff:
		attrs["shipmentBuyer"] = hex.EncodeToString(o.ShipmentBuyer)
		attrs["shipmentReporter"] = hex.EncodeToString(o.ShipmentReporter)
		attrs["shipmentArbiter"] = hex.EncodeToString(o.ShipmentArbiter)
	case EventTypeOrderResolved:
		attrs["resolution"] = o.Resolution.String()
	}
	return &types.Event{Type: eventType, Height: o.LastModifiedBlock, Attributes: attrs}
}
