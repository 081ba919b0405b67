package custody

import (
	"errors"
	"fmt"

	"github.com/ksred/escrow-api/internal/types"
	"gorm.io/gorm"
)

// Ledger moves funds between accounts and per-order custody holdings. It is
// the only code path that mutates balances, and it has no reference back into
// the services that call it: the state machine always writes the order state
// first and only then invokes the ledger, inside the same transaction.
type Ledger struct {
	db *gorm.DB
}

// NewLedger creates a custody ledger over the given database handle. Pass a
// transaction handle to scope all movements to that transaction.
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// AccountBalance returns the balance of an address. Unknown addresses hold
// zero.
func (l *Ledger) AccountBalance(address string) (int64, error) {
	var account Account
	if err := l.db.Where("address = ?", address).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return account.Balance, nil
}

// Credit adds funds to an address, creating the account on first use.
func (l *Ledger) Credit(address string, amount int64) error {
	if amount <= 0 {
		return types.ErrInvalidAmount
	}

	var account Account
	err := l.db.Where("address = ?", address).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return l.db.Create(&Account{Address: address, Balance: amount}).Error
	}
	if err != nil {
		return err
	}

	account.Balance += amount
	return l.db.Save(&account).Error
}

// Debit removes funds from an address, rejecting the movement when the
// balance cannot cover it.
func (l *Ledger) Debit(address string, amount int64) error {
	if amount <= 0 {
		return types.ErrInvalidAmount
	}

	var account Account
	if err := l.db.Where("address = ?", address).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.ErrInsufficientFunds
		}
		return err
	}
	if account.Balance < amount {
		return types.ErrInsufficientFunds
	}

	account.Balance -= amount
	return l.db.Save(&account).Error
}

// Deposit takes funds out of the payer's account and into custody for the
// given order.
func (l *Ledger) Deposit(orderID, from string, amount int64) error {
	if err := l.Debit(from, amount); err != nil {
		return err
	}

	var holding Holding
	err := l.db.Where("order_id = ?", orderID).First(&holding).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return l.db.Create(&Holding{OrderID: orderID, Balance: amount}).Error
	}
	if err != nil {
		return err
	}

	holding.Balance += amount
	return l.db.Save(&holding).Error
}

// Release moves held funds from an order's custody balance to a recipient
// account. The holding must cover the full amount; a shortfall means the
// ledger and the order records have diverged and the movement is refused.
func (l *Ledger) Release(orderID, to string, amount int64) error {
	var holding Holding
	if err := l.db.Where("order_id = ?", orderID).First(&holding).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("no custody holding for order %s", orderID)
		}
		return err
	}
	if holding.Balance < amount {
		return fmt.Errorf("custody holding for order %s holds %d, cannot release %d",
			orderID, holding.Balance, amount)
	}

	holding.Balance -= amount
	if err := l.db.Save(&holding).Error; err != nil {
		return err
	}

	return l.Credit(to, amount)
}

// HoldingBalance returns the custody balance held for an order.
func (l *Ledger) HoldingBalance(orderID string) (int64, error) {
	var holding Holding
	if err := l.db.Where("order_id = ?", orderID).First(&holding).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return holding.Balance, nil
}

// TotalHeld returns the sum of all custody holdings across every order.
func (l *Ledger) TotalHeld() (int64, error) {
	var total int64
	err := l.db.Model(&Holding{}).
		Select("COALESCE(SUM(balance), 0)").
		Scan(&total).Error
	return total, err
}
