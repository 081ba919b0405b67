package moneybox

import (
	"github.com/ksred/escrow-api/internal/custody"
	"github.com/ksred/escrow-api/internal/escrow"
	"github.com/ksred/escrow-api/internal/events"
	"github.com/ksred/escrow-api/internal/types"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service runs the pooled-payment (money box) variant of the order state
// machine. It keeps the base machine's rules but lets any number of
// contributors fund the order incrementally, and refunds each contributor
// their own payments rather than a lump sum.
//
// As in the base service, each mutating call is one transaction: state is
// written before funds move, and a failure anywhere rolls everything back,
// so a refund either returns every payment or none of them.
type Service struct {
	db      *gorm.DB
	emitter events.Emitter
}

// NewService creates a money box service over the given database connection.
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

// CreateMoneyBox opens a pooled order. Attached funds may be anything from
// zero up to the full amount; when present they are recorded as the buyer's
// first payment. The box starts CREATED, or FILLED when fully funded at
// creation.
func (s *Service) CreateMoneyBox(buyer, seller string, amount int64, orderID string, attachedFunds int64) (*types.OrderCreated, error) {
	logger := log.With().
		Str("order_id", orderID).
		Str("service", "moneybox").
		Logger()

	if buyer == seller {
		return nil, types.ErrSelfDealing
	}
	if amount <= 0 || attachedFunds < 0 {
		return nil, types.ErrInvalidAmount
	}
	if attachedFunds > amount {
		return nil, types.ErrOverfill
	}

	code, err := escrow.NewUnlockCode()
	if err != nil {
		return nil, err
	}

	state := types.StateCreated
	if attachedFunds == amount {
		state = types.StateFilled
	}

	order := &types.Order{
		OrderID:       orderID,
		OwnerAddress:  buyer,
		SellerAddress: seller,
		Amount:        amount,
		UnlockCode:    code,
		State:         state,
		Pooled:        true,
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
		if attachedFunds == 0 {
			return nil
		}

		payment := &types.Payment{
			OrderID:     orderID,
			FromAddress: buyer,
			Amount:      attachedFunds,
		}
		if err := db.CreatePayment(payment); err != nil {
			return err
		}
		return custody.NewLedger(tx).Deposit(orderID, buyer, attachedFunds)
	})
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("owner_address", buyer).
		Str("seller_address", seller).
		Int64("amount", amount).
		Int64("attached_funds", attachedFunds).
		Str("state", order.State).
		Msg("moneybox created")

	s.emitter.Emit(events.Event{
		Type:          events.TypeMoneyBoxCreated,
		OrderID:       orderID,
		OwnerAddress:  buyer,
		SellerAddress: seller,
		Amount:        amount,
		State:         order.State,
		UnlockCode:    code,
	})

	return &types.OrderCreated{Order: *order, UnlockCode: code}, nil
}

// AddPayment appends one contribution to a box that is still collecting.
// The declared amount and the attached funds must agree exactly, and a
// payment that would push the box past its target is rejected in full. The
// box flips to FILLED the moment the collected total reaches the target, so
// the sum of recorded payments always equals the custody balance.
func (s *Service) AddPayment(orderID string, declaredAmount, attachedFunds int64, from string) (*types.MoneyBox, error) {
	logger := log.With().
		Str("order_id", orderID).
		Str("service", "moneybox").
		Logger()

	if declaredAmount <= 0 {
		return nil, types.ErrInvalidAmount
	}
	if declaredAmount != attachedFunds {
		return nil, types.ErrAmountMismatch
	}

	var box *types.MoneyBox
	err := s.db.Transaction(func(tx *gorm.DB) error {
		db := NewDatabase(tx)

		order, err := db.GetOrder(orderID, true)
		if err != nil {
			return err
		}
		if order.State != types.StateCreated {
			return types.ErrInvalidState
		}

		collected, err := db.SumPayments(orderID)
		if err != nil {
			return err
		}
		if collected+declaredAmount > order.Amount {
			return types.ErrOverfill
		}

		payment := &types.Payment{
			OrderID:     orderID,
			FromAddress: from,
			Amount:      declaredAmount,
		}
		if err := db.CreatePayment(payment); err != nil {
			return err
		}

		collected += declaredAmount
		if collected == order.Amount {
			order.State = types.StateFilled
			if err := db.UpdateOrder(order); err != nil {
				return err
			}
		}

		if err := custody.NewLedger(tx).Deposit(orderID, from, attachedFunds); err != nil {
			return err
		}

		box, err = buildMoneyBox(db, order)
		return err
	})
	if err != nil {
		logger.Warn().Err(err).Str("from", from).Msg("payment rejected")
		return nil, err
	}

	logger.Info().
		Str("from", from).
		Int64("amount", declaredAmount).
		Int64("collected", box.Collected).
		Str("state", box.Order.State).
		Msg("payment added to moneybox")

	s.emitter.Emit(events.Event{
		Type:          events.TypeMoneyBoxPayment,
		OrderID:       orderID,
		OwnerAddress:  box.Order.OwnerAddress,
		SellerAddress: box.Order.SellerAddress,
		Amount:        declaredAmount,
		State:         box.Order.State,
		FromAddress:   from,
	})

	return box, nil
}

// ConfirmReceived releases the full collected amount to the seller, under
// the same rules as the base machine.
func (s *Service) ConfirmReceived(orderID string, unlockCode uint64, caller string) (*types.Order, error) {
	logger := log.With().
		Str("order_id", orderID).
		Str("service", "moneybox").
		Logger()

	var order *types.Order
	err := s.db.Transaction(func(tx *gorm.DB) error {
		db := NewDatabase(tx)

		var err error
		order, err = db.GetOrder(orderID, true)
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
		Msg("moneybox closed, funds released to seller")

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

// Refund cancels the box and returns every recorded payment to its original
// contributor, itemized. All transfers commit together with the CANCELLED
// state or not at all; the buyer's own initial payment refunds like any
// other contribution.
func (s *Service) Refund(orderID string, caller string) (*types.Order, error) {
	logger := log.With().
		Str("order_id", orderID).
		Str("service", "moneybox").
		Logger()

	var order *types.Order
	var refunded int
	err := s.db.Transaction(func(tx *gorm.DB) error {
		db := NewDatabase(tx)

		var err error
		order, err = db.GetOrder(orderID, true)
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

		payments, err := db.GetPayments(orderID)
		if err != nil {
			return err
		}

		ledger := custody.NewLedger(tx)
		for _, payment := range payments {
			if err := ledger.Release(orderID, payment.FromAddress, payment.Amount); err != nil {
				return err
			}
		}
		refunded = len(payments)
		return nil
	})
	if err != nil {
		logger.Warn().Err(err).Msg("refund rejected")
		return nil, err
	}

	logger.Info().
		Int("payments_refunded", refunded).
		Msg("moneybox cancelled, payments returned to contributors")

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

func buildMoneyBox(db *Database, order *types.Order) (*types.MoneyBox, error) {
	payments, err := db.GetPayments(order.OrderID)
	if err != nil {
		return nil, err
	}

	var collected int64
	for _, payment := range payments {
		collected += payment.Amount
	}

	toFill := order.Amount - collected
	if toFill < 0 {
		toFill = 0
	}

	return &types.MoneyBox{
		ID:           order.OrderID,
		Order:        *order,
		Payments:     payments,
		Collected:    collected,
		AmountToFill: toFill,
	}, nil
}
