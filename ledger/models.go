// Package ledger keeps per user income and spending records.
package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Transaction is the direction of a ledger record
type Transaction string

const (
	Income   Transaction = "INCOME"
	Spending Transaction = "SPENDING"
)

// Valid reports whether t is a known transaction kind
func (t Transaction) Valid() bool {
	return t == Income || t == Spending
}

// Category is a trade type of the fixed taxonomy
type Category struct {
	bun.BaseModel `bun:"table:categories,alias:cat"`

	ID          int64       `bun:"id,pk,autoincrement" json:"id"`
	Transaction Transaction `bun:"transaction_kind,notnull" json:"transaction"`
	Code        string      `bun:"code,notnull,unique" json:"code"`
	Name        string      `bun:"name,notnull" json:"name"`
}

// Asset is a single income or spending entry of a user
type Asset struct {
	bun.BaseModel `bun:"table:assets,alias:ast"`

	ID          int64       `bun:"id,pk,autoincrement" json:"id"`
	UserID      uuid.UUID   `bun:"user_id,notnull,type:uuid" json:"user"`
	Amount      int64       `bun:"amount,notnull" json:"amount"`
	Description *string     `bun:"description" json:"description"`
	TradeType   *string     `bun:"trade_type" json:"trade_type"`
	Transaction Transaction `bun:"transaction_kind,notnull" json:"transaction"`
	Managed     bool        `bun:"managed,notnull" json:"managed"`
	CreatedAt   time.Time   `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt   time.Time   `bun:"updated_at,notnull" json:"updated_at"`
}

// SumUp is a named, user defined trade type
type SumUp struct {
	bun.BaseModel `bun:"table:sumups,alias:sum"`

	ID          int64       `bun:"id,pk,autoincrement" json:"id"`
	UserID      uuid.UUID   `bun:"user_id,notnull,type:uuid" json:"user"`
	JName       string      `bun:"j_name,notnull" json:"j_name"`
	Transaction Transaction `bun:"transaction_kind,notnull" json:"transaction"`
	TradeType   string      `bun:"trade_type,notnull" json:"trade_type"`
	CreatedAt   time.Time   `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt   time.Time   `bun:"updated_at,notnull" json:"updated_at"`
}

// Summary totals the managed assets of a user
type Summary struct {
	Income   int64 `json:"income"`
	Spending int64 `json:"spending"`
	Balance  int64 `json:"balance"`
}

// AssetFilter narrows an asset listing
type AssetFilter struct {
	Transaction Transaction
	Limit       int
	Offset      int
}
