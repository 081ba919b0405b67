package escrow

import (
	"errors"

	"github.com/ksred/escrow-api/internal/custody"
	"github.com/ksred/escrow-api/internal/types"
)

// GetOrderByID returns the order record for an id.
func (s *Service) GetOrderByID(orderID string) (*types.Order, error) {
	return NewDatabase(s.db).GetOrder(orderID, false)
}

// OrderCount returns the number of orders ever created on this ledger.
func (s *Service) OrderCount() (int64, error) {
	return NewDatabase(s.db).CountOrders(false)
}

// OwnerAddress returns the buyer address of an order.
func (s *Service) OwnerAddress(orderID string) (string, error) {
	order, err := s.GetOrderByID(orderID)
	if err != nil {
		return "", err
	}
	return order.OwnerAddress, nil
}

// SellerAddress returns the seller address of an order.
func (s *Service) SellerAddress(orderID string) (string, error) {
	order, err := s.GetOrderByID(orderID)
	if err != nil {
		return "", err
	}
	return order.SellerAddress, nil
}

// AmountToPay returns the order's target amount.
func (s *Service) AmountToPay(orderID string) (int64, error) {
	order, err := s.GetOrderByID(orderID)
	if err != nil {
		return 0, err
	}
	return order.Amount, nil
}

// OrderState returns the state of an order. Unknown ids report NOT_CREATED
// rather than an error, matching absence-as-a-state semantics.
func (s *Service) OrderState(orderID string) (string, error) {
	order, err := s.GetOrderByID(orderID)
	if errors.Is(err, types.ErrNotFound) {
		return types.StateNotCreated, nil
	}
	if err != nil {
		return "", err
	}
	return order.State, nil
}

// UnlockCode returns the release secret for an order. Only the order's own
// buyer may read it back.
func (s *Service) UnlockCode(orderID string, caller string) (uint64, error) {
	order, err := s.GetOrderByID(orderID)
	if err != nil {
		return 0, err
	}
	if caller != order.OwnerAddress {
		return 0, types.ErrUnauthorized
	}
	return order.UnlockCode, nil
}

// OrdersByBuyer lists a buyer's orders, most recent first.
func (s *Service) OrdersByBuyer(address string) ([]types.IndexedOrder, error) {
	orders, err := NewDatabase(s.db).GetOrdersByBuyer(address, false)
	if err != nil {
		return nil, err
	}
	return indexOrders(orders), nil
}

// OrdersBySeller lists a seller's orders, most recent first.
func (s *Service) OrdersBySeller(address string) ([]types.IndexedOrder, error) {
	orders, err := NewDatabase(s.db).GetOrdersBySeller(address, false)
	if err != nil {
		return nil, err
	}
	return indexOrders(orders), nil
}

// ContractBalance returns the total funds currently held in custody across
// all orders.
func (s *Service) ContractBalance() (int64, error) {
	return custody.NewLedger(s.db).TotalHeld()
}

func indexOrders(orders []types.Order) []types.IndexedOrder {
	indexed := make([]types.IndexedOrder, len(orders))
	for i, order := range orders {
		indexed[i] = types.IndexedOrder{ID: order.OrderID, Order: order}
	}
	return indexed
}
