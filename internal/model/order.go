package model

import "time"

// Side is the transaction direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the closing direction for this side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderStatus mirrors the brokerage order lifecycle states the engine
// cares about.
type OrderStatus string

const (
	StatusComplete       OrderStatus = "COMPLETE"
	StatusOpen           OrderStatus = "OPEN"
	StatusTriggerPending OrderStatus = "TRIGGER PENDING"
	StatusRejected       OrderStatus = "REJECTED"
	StatusCancelled      OrderStatus = "CANCELLED"
)

// OrderEvent is one master order as reported by the brokerage.
type OrderEvent struct {
	OrderID    string
	Instrument string
	Side       Side
	Quantity   int64
	Product    string // MIS | NRML | CNC
	Status     OrderStatus
	PlacedAt   time.Time
}

// Pending reports whether the order is still working at the exchange and
// therefore contradicts a flat position read.
func (o OrderEvent) Pending() bool {
	return o.Status == StatusOpen || o.Status == StatusTriggerPending
}

// VirtualOrder is the aggregation of all same-tick master orders sharing
// an instrument and side. Split child-lots are merged before any ratio
// math so rounding loss is paid once, not per fragment.
type VirtualOrder struct {
	Instrument    string
	Side          Side
	TotalQuantity int64
	Product       string
}

// OrderAck is the brokerage acknowledgement for a placed replica order.
type OrderAck struct {
	OrderID string
}
