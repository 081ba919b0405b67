package moneybox

import (
	"github.com/ksred/escrow-api/internal/escrow"
	"github.com/ksred/escrow-api/internal/types"
	"gorm.io/gorm"
)

// Database extends the base order store with the append-only payment history
// and the participant index queries.
type Database struct {
	*escrow.Database
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{
		Database: escrow.NewDatabase(db),
		db:       db,
	}
}

func (d *Database) CreatePayment(payment *types.Payment) error {
	return d.db.Create(payment).Error
}

// GetPayments returns an order's payments in arrival order. Payments are
// never mutated or removed, so this doubles as the audit trail after a
// refund.
func (d *Database) GetPayments(orderID string) ([]types.Payment, error) {
	var payments []types.Payment
	err := d.db.Where("order_id = ?", orderID).
		Order("id ASC").
		Find(&payments).Error
	return payments, err
}

// SumPayments returns the total collected so far for an order.
func (d *Database) SumPayments(orderID string) (int64, error) {
	var total int64
	err := d.db.Model(&types.Payment{}).
		Where("order_id = ?", orderID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}

// GetOrdersByParticipant lists pooled orders a contributor paid into,
// excluding boxes the contributor owns, ordered by first contribution.
func (d *Database) GetOrdersByParticipant(address string) ([]types.Order, error) {
	var orders []types.Order
	err := d.db.Model(&types.Order{}).
		Joins("JOIN payments ON payments.order_id = orders.order_id AND payments.deleted_at IS NULL").
		Where("payments.from_address = ? AND orders.owner_address <> ? AND orders.pooled = ?", address, address, true).
		Group("orders.id").
		Order("MIN(payments.id) ASC").
		Find(&orders).Error
	return orders, err
}
