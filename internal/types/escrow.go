package types

import (
	"time"

	"gorm.io/gorm"
)

// Order states. An order that was never created has no row, which callers
// observe as StateNotCreated.
const (
	StateNotCreated = "NOT_CREATED"
	StateCreated    = "CREATED"
	StateFilled     = "FILLED"
	StateClosed     = "CLOSED"
	StateCancelled  = "CANCELLED"
)

// Order is a single escrow agreement between a buyer (owner) and a seller.
// Rows are never deleted: terminal orders stay on the ledger, and their ids
// can never be reused. Pooled orders (money boxes) additionally own an
// append-only sequence of Payment rows.
type Order struct {
	gorm.Model    `json:"-"`
	OrderID       string    `gorm:"uniqueIndex" json:"order_id"`
	OwnerAddress  string    `gorm:"index" json:"owner_address"`
	SellerAddress string    `gorm:"index" json:"seller_address"`
	Amount        int64     `json:"amount"` // smallest currency unit
	UnlockCode    uint64    `json:"-"`      // release secret, exposed only to the buyer
	State         string    `json:"state"`  // CREATED, FILLED, CLOSED, CANCELLED
	Pooled        bool      `json:"pooled"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Payment is one contributor's recorded funding event toward a pooled order.
// The auto-increment primary key preserves arrival order; rows are append-only
// and survive refunds as an audit trail.
type Payment struct {
	gorm.Model  `json:"-"`
	OrderID     string    `gorm:"index" json:"order_id"`
	FromAddress string    `gorm:"index" json:"from"`
	Amount      int64     `json:"amount"`
	CreatedAt   time.Time `json:"created_at"`
}

// IndexedOrder pairs an order with its caller-supplied identifier in listing
// responses.
type IndexedOrder struct {
	ID    string `json:"id"`
	Order Order  `json:"order"`
}

// MoneyBox is a pooled order together with its payment history and the
// derived funding quantities.
type MoneyBox struct {
	ID           string    `json:"id"`
	Order        Order     `json:"order"`
	Payments     []Payment `json:"payments"`
	Collected    int64     `json:"collected"`
	AmountToFill int64     `json:"amount_to_fill"`
}

// OrderCreated is returned from order creation. It is the one place, besides
// the commit notification, where the freshly generated unlock code is handed
// to the buyer; it cannot be assumed re-derivable later.
type OrderCreated struct {
	Order      Order  `json:"order"`
	UnlockCode uint64 `json:"unlock_code"`
}
