package broker

import (
	"context"

	"MirrorTrade/internal/model"
)

// Broker is the observation adapter over the brokerage API. Every call is
// independently fallible and independently stale; the engine never assumes
// two calls describe the same instant.
type Broker interface {
	// ListMasterOrders returns the master's orders for the current session.
	ListMasterOrders(ctx context.Context) ([]model.OrderEvent, error)
	// MasterMargin returns the master's current margin figures.
	MasterMargin(ctx context.Context) (model.MarginSnapshot, error)
	// MasterPositions returns the master's net positions.
	MasterPositions(ctx context.Context) (model.PositionSnapshot, error)
	// Children returns the replicating accounts with their capital figures.
	Children(ctx context.Context) ([]model.Account, error)
	// ChildPositions returns one child's net positions, used by the
	// reconciler to purge phantom entries.
	ChildPositions(ctx context.Context, childID string) (model.PositionSnapshot, error)
	// PlaceOrder submits a market order for an account.
	PlaceOrder(ctx context.Context, account model.Account, instrument string, side model.Side, quantity int64, product string) (model.OrderAck, error)
	Name() string
}
