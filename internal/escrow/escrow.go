package escrow

import (
	"github.com/ksred/escrow-api/internal/custody"
	"github.com/ksred/escrow-api/internal/events"
	"github.com/ksred/escrow-api/internal/types"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service runs the single-payment order state machine. Every mutating call
// executes inside one database transaction that writes the order state before
// any custody movement, commits, and only then emits the commit notification.
// Custody has no path back into this service, so a transfer recipient cannot
// re-enter the state machine against a stale state.
type Service struct {
	db      *gorm.DB
	emitter events.Emitter
}

// NewService creates an escrow service over the given database connection.
// A nil emitter disables notifications.
func NewService(gormDB *gorm.DB, emitter events.Emitter) *Service {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Service{
		db:      gormDB,
		emitter: emitter,
	}
}

// CreateOrder opens a new escrow agreement. In the single-payment variant the
// attached funds must cover the full amount, so the order is FILLED
// immediately. The returned record carries the freshly generated unlock code;
// it is not re-derivable by anyone but the buyer afterwards.
func (s *Service) CreateOrder(buyer, seller string, amount int64, orderID string, attachedFunds int64) (*types.OrderCreated, error) {
	logger := log.With().
		Str("order_id", orderID).
		Str("service", "escrow").
		Logger()

	if buyer == seller {
		return nil, types.ErrSelfDealing
	}
	if amount <= 0 {
		return nil, types.ErrInvalidAmount
	}
	if attachedFunds != amount {
		return nil, types.ErrAmountMismatch
	}

	code, err := NewUnlockCode()
	if err != nil {
		return nil, err
	}

	order := &types.Order{
		OrderID:       orderID,
		OwnerAddress:  buyer,
		SellerAddress: seller,
		Amount:        amount,
		UnlockCode:    code,
		State:         types.StateFilled,
		Pooled:        false,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		db := NewDatabase(tx)

		used, err := db.OrderIDUsed(orderID)
		if err != nil {
			return err
		}
		if used {
			return types.ErrDuplicateID
		}

		if err := db.CreateOrder(order); err != nil {
			return err
		}

		// Order row is written; only now may funds move.
		return custody.NewLedger(tx).Deposit(orderID, buyer, attachedFunds)
	})
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("owner_address", buyer).
		Str("seller_address", seller).
		Int64("amount", amount).
		Msg("order created")

	s.emitter.Emit(events.Event{
		Type:          events.TypeOrderCreated,
		OrderID:       orderID,
		OwnerAddress:  buyer,
		SellerAddress: seller,
		Amount:        amount,
		State:         order.State,
		UnlockCode:    code,
	})

	return &types.OrderCreated{Order: *order, UnlockCode: code}, nil
}

// ConfirmReceived releases the held funds to the seller. Only the buyer may
// confirm, only against a FILLED order, and only with the exact unlock code.
func (s *Service) ConfirmReceived(orderID string, unlockCode uint64, caller string) (*types.Order, error) {
	logger := log.With().
		Str("order_id", orderID).
		Str("service", "escrow").
		Logger()

	var order *types.Order
	err := s.db.Transaction(func(tx *gorm.DB) error {
		db := NewDatabase(tx)

		var err error
		order, err = db.GetOrder(orderID, false)
		if err != nil {
			return err
		}
		if order.State != types.StateFilled {
			return types.ErrInvalidState
		}
		if caller != order.OwnerAddress {
			return types.ErrUnauthorized
		}
		if unlockCode != order.UnlockCode {
			return types.ErrInvalidUnlockCode
		}

		// State transition is written before the transfer.
		order.State = types.StateClosed
		if err := db.UpdateOrder(order); err != nil {
			return err
		}

		return custody.NewLedger(tx).Release(orderID, order.SellerAddress, order.Amount)
	})
	if err != nil {
		logger.Warn().Err(err).Msg("confirmation rejected")
		return nil, err
	}

	logger.Info().
		Str("seller_address", order.SellerAddress).
		Int64("amount", order.Amount).
		Msg("order closed, funds released to seller")

	s.emitter.Emit(events.Event{
		Type:          events.TypeOrderClosed,
		OrderID:       orderID,
		OwnerAddress:  order.OwnerAddress,
		SellerAddress: order.SellerAddress,
		Amount:        order.Amount,
		State:         order.State,
	})

	return order, nil
}

// Refund cancels the order and returns the held funds to the buyer. Either
// party may trigger it while the order is still CREATED or FILLED.
func (s *Service) Refund(orderID string, caller string) (*types.Order, error) {
	logger := log.With().
		Str("order_id", orderID).
		Str("service", "escrow").
		Logger()

	var order *types.Order
	err := s.db.Transaction(func(tx *gorm.DB) error {
		db := NewDatabase(tx)

		var err error
		order, err = db.GetOrder(orderID, false)
		if err != nil {
			return err
		}
		if order.State != types.StateCreated && order.State != types.StateFilled {
			return types.ErrInvalidState
		}
		if caller != order.OwnerAddress && caller != order.SellerAddress {
			return types.ErrUnauthorized
		}

		order.State = types.StateCancelled
		if err := db.UpdateOrder(order); err != nil {
			return err
		}

		ledger := custody.NewLedger(tx)
		held, err := ledger.HoldingBalance(orderID)
		if err != nil {
			return err
		}
		if held == 0 {
			return nil
		}
		return ledger.Release(orderID, order.OwnerAddress, held)
	})
	if err != nil {
		logger.Warn().Err(err).Msg("refund rejected")
		return nil, err
	}

	logger.Info().
		Str("owner_address", order.OwnerAddress).
		Int64("amount", order.Amount).
		Msg("order cancelled, funds returned to buyer")

	s.emitter.Emit(events.Event{
		Type:          events.TypeOrderCancelled,
		OrderID:       orderID,
		OwnerAddress:  order.OwnerAddress,
		SellerAddress: order.SellerAddress,
		Amount:        order.Amount,
		State:         order.State,
	})

	return order, nil
}
