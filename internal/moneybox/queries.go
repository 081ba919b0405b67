package moneybox

import (
	"errors"

	"github.com/ksred/escrow-api/internal/types"
)

// SiblingLedger is a read-only view of another order ledger, injected so the
// merged listings can be served without a hard reference to the base
// component. The escrow service satisfies it.
type SiblingLedger interface {
	OrdersByBuyer(address string) ([]types.IndexedOrder, error)
	OrdersBySeller(address string) ([]types.IndexedOrder, error)
}

// GetMoneyBoxByID returns the pooled order with its payment history and
// derived funding quantities.
func (s *Service) GetMoneyBoxByID(orderID string) (*types.MoneyBox, error) {
	db := NewDatabase(s.db)
	order, err := db.GetOrder(orderID, true)
	if err != nil {
		return nil, err
	}
	return buildMoneyBox(db, order)
}

// MoneyBoxCount returns the number of money boxes ever created.
func (s *Service) MoneyBoxCount() (int64, error) {
	return NewDatabase(s.db).CountOrders(true)
}

// Payments returns a box's payments in arrival order.
func (s *Service) Payments(orderID string) ([]types.Payment, error) {
	db := NewDatabase(s.db)
	if _, err := db.GetOrder(orderID, true); err != nil {
		return nil, err
	}
	return db.GetPayments(orderID)
}

// AmountToFill returns how much funding the box still needs.
func (s *Service) AmountToFill(orderID string) (int64, error) {
	box, err := s.GetMoneyBoxByID(orderID)
	if err != nil {
		return 0, err
	}
	return box.AmountToFill, nil
}

// OrderState returns the state of a box, NOT_CREATED for unknown ids.
func (s *Service) OrderState(orderID string) (string, error) {
	order, err := NewDatabase(s.db).GetOrder(orderID, true)
	if errors.Is(err, types.ErrNotFound) {
		return types.StateNotCreated, nil
	}
	if err != nil {
		return "", err
	}
	return order.State, nil
}

// UnlockCode returns the release secret to the box's own buyer.
func (s *Service) UnlockCode(orderID string, caller string) (uint64, error) {
	order, err := NewDatabase(s.db).GetOrder(orderID, true)
	if err != nil {
		return 0, err
	}
	if caller != order.OwnerAddress {
		return 0, types.ErrUnauthorized
	}
	return order.UnlockCode, nil
}

// OrdersByBuyer lists a buyer's money boxes, most recent first.
func (s *Service) OrdersByBuyer(address string) ([]types.IndexedOrder, error) {
	orders, err := NewDatabase(s.db).GetOrdersByBuyer(address, true)
	if err != nil {
		return nil, err
	}
	return indexOrders(orders), nil
}

// OrdersBySeller lists a seller's money boxes, most recent first.
func (s *Service) OrdersBySeller(address string) ([]types.IndexedOrder, error) {
	orders, err := NewDatabase(s.db).GetOrdersBySeller(address, true)
	if err != nil {
		return nil, err
	}
	return indexOrders(orders), nil
}

// MoneyBoxesByParticipant lists the boxes an address contributed to. Only
// third-party contributions count: a buyer's initial payment into their own
// box does not index them as a participant.
func (s *Service) MoneyBoxesByParticipant(address string) ([]types.MoneyBox, error) {
	db := NewDatabase(s.db)
	orders, err := db.GetOrdersByParticipant(address)
	if err != nil {
		return nil, err
	}

	boxes := make([]types.MoneyBox, 0, len(orders))
	for i := range orders {
		box, err := buildMoneyBox(db, &orders[i])
		if err != nil {
			return nil, err
		}
		boxes = append(boxes, *box)
	}
	return boxes, nil
}

// AllBuyerOrders concatenates this ledger's boxes for a buyer with the
// sibling ledger's orders. Local records come first, most recent first; the
// sibling's follow in its own native order.
func (s *Service) AllBuyerOrders(sibling SiblingLedger, address string) ([]types.IndexedOrder, error) {
	local, err := s.OrdersByBuyer(address)
	if err != nil {
		return nil, err
	}
	remote, err := sibling.OrdersByBuyer(address)
	if err != nil {
		return nil, err
	}
	return append(local, remote...), nil
}

// AllSellerOrders is the seller-side counterpart of AllBuyerOrders.
func (s *Service) AllSellerOrders(sibling SiblingLedger, address string) ([]types.IndexedOrder, error) {
	local, err := s.OrdersBySeller(address)
	if err != nil {
		return nil, err
	}
	remote, err := sibling.OrdersBySeller(address)
	if err != nil {
		return nil, err
	}
	return append(local, remote...), nil
}

func indexOrders(orders []types.Order) []types.IndexedOrder {
	indexed := make([]types.IndexedOrder, len(orders))
	for i, order := range orders {
		indexed[i] = types.IndexedOrder{ID: order.OrderID, Order: order}
	}
	return indexed
}
