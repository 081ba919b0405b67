package custody

import (
	"time"

	"gorm.io/gorm"
)

// Account is a ledger account balance for one address.
type Account struct {
	gorm.Model `json:"-"`
	Address    string    `gorm:"uniqueIndex" json:"address"`
	Balance    int64     `json:"balance"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Holding is the custody balance held on behalf of one order. It is credited
// when funds are attached to the order and drained by exactly one release or
// refund.
type Holding struct {
	gorm.Model `json:"-"`
	OrderID    string    `gorm:"uniqueIndex" json:"order_id"`
	Balance    int64     `json:"balance"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
