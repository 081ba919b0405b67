package database

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/ksred/escrow-api/internal/custody"
	"github.com/ksred/escrow-api/internal/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase initializes and returns a new GORM DB connection at the given
// path and migrates the ledger schema.
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&types.Order{},
		&types.Payment{},
		&custody.Account{},
		&custody.Holding{},
	); err != nil {
		return nil, err
	}

	return db, nil
}

// NewTestDatabase returns an isolated in-memory database for tests. The
// shared cache keeps pooled connections on the same database; the random
// name keeps parallel tests apart.
func NewTestDatabase() (*gorm.DB, error) {
	return NewDatabase(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
}
