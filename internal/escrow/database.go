package escrow

import (
	"errors"

	"github.com/ksred/escrow-api/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateOrder(order *types.Order) error {
	return d.db.Create(order).Error
}

func (d *Database) UpdateOrder(order *types.Order) error {
	return d.db.Save(order).Error
}

// GetOrder fetches an order of the given variant by its caller-supplied id.
func (d *Database) GetOrder(orderID string, pooled bool) (*types.Order, error) {
	var order types.Order
	err := d.db.Where("order_id = ? AND pooled = ?", orderID, pooled).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// OrderIDUsed reports whether an id was ever used, in either variant. Ids are
// never released, so a terminal order still reserves its id.
func (d *Database) OrderIDUsed(orderID string) (bool, error) {
	var count int64
	err := d.db.Model(&types.Order{}).Where("order_id = ?", orderID).Count(&count).Error
	return count > 0, err
}

// CountOrders returns how many orders of the variant were ever created.
// Orders are never deleted, so this is monotonically non-decreasing.
func (d *Database) CountOrders(pooled bool) (int64, error) {
	var count int64
	err := d.db.Model(&types.Order{}).Where("pooled = ?", pooled).Count(&count).Error
	return count, err
}

// GetOrdersByBuyer lists a buyer's orders most-recent-first.
func (d *Database) GetOrdersByBuyer(address string, pooled bool) ([]types.Order, error) {
	var orders []types.Order
	err := d.db.Where("owner_address = ? AND pooled = ?", address, pooled).
		Order("id DESC").
		Find(&orders).Error
	return orders, err
}

// GetOrdersBySeller lists a seller's orders most-recent-first.
func (d *Database) GetOrdersBySeller(address string, pooled bool) ([]types.Order, error) {
	var orders []types.Order
	err := d.db.Where("seller_address = ? AND pooled = ?", address, pooled).
		Order("id DESC").
		Find(&orders).Error
	return orders, err
}
