package broker

import (
	"context"
	"fmt"

	"MirrorTrade/internal/model"
)

// PlacedOrder records one order submitted through the MockBroker.
type PlacedOrder struct {
	AccountID  string
	Instrument string
	Side       model.Side
	Quantity   int64
	Product    string
}

// MockBroker returns controllable fixed data for development and testing.
type MockBroker struct {
	Orders        []model.OrderEvent
	Margin        model.MarginSnapshot
	Positions     model.PositionSnapshot
	ChildAccounts []model.Account
	ChildPos      map[string]model.PositionSnapshot

	// Error injection. When set, the corresponding call fails.
	OrdersErr    error
	MarginErr    error
	PositionsErr error
	RejectReason map[string]string // account ID -> rejection reason

	Placed []PlacedOrder
	nextID int
}

func (m *MockBroker) Name() string { return "mock" }

func (m *MockBroker) ListMasterOrders(_ context.Context) ([]model.OrderEvent, error) {
	if m.OrdersErr != nil {
		return nil, m.OrdersErr
	}
	return m.Orders, nil
}

func (m *MockBroker) MasterMargin(_ context.Context) (model.MarginSnapshot, error) {
	if m.MarginErr != nil {
		return model.MarginSnapshot{}, m.MarginErr
	}
	return m.Margin, nil
}

func (m *MockBroker) MasterPositions(_ context.Context) (model.PositionSnapshot, error) {
	if m.PositionsErr != nil {
		return nil, m.PositionsErr
	}
	if m.Positions == nil {
		return model.PositionSnapshot{}, nil
	}
	return m.Positions.Clone(), nil
}

func (m *MockBroker) Children(_ context.Context) ([]model.Account, error) {
	return m.ChildAccounts, nil
}

func (m *MockBroker) ChildPositions(_ context.Context, childID string) (model.PositionSnapshot, error) {
	if pos, ok := m.ChildPos[childID]; ok {
		return pos.Clone(), nil
	}
	return model.PositionSnapshot{}, nil
}

func (m *MockBroker) PlaceOrder(_ context.Context, account model.Account, instrument string, side model.Side, quantity int64, product string) (model.OrderAck, error) {
	if reason, ok := m.RejectReason[account.ID]; ok {
		return model.OrderAck{}, &OrderRejectedError{
			AccountID:  account.ID,
			Instrument: instrument,
			Reason:     reason,
		}
	}
	m.Placed = append(m.Placed, PlacedOrder{
		AccountID:  account.ID,
		Instrument: instrument,
		Side:       side,
		Quantity:   quantity,
		Product:    product,
	})
	m.nextID++
	return model.OrderAck{OrderID: fmt.Sprintf("MOCK%06d", m.nextID)}, nil
}

// PlacedFor returns the orders placed for one account, in order.
func (m *MockBroker) PlacedFor(accountID string) []PlacedOrder {
	var out []PlacedOrder
	for _, p := range m.Placed {
		if p.AccountID == accountID {
			out = append(out, p)
		}
	}
	return out
}
