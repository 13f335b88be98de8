package migrate

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// User mirrors the users table read and written by the Postgres ledger store.
// CreditRefs holds the JSON array of checkout sessions already credited.
type User struct {
	ID             string          `gorm:"primaryKey;type:text"`
	Email          *string         `gorm:"type:text"`
	Name           *string         `gorm:"type:text"`
	WalletBalance  decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0;check:chk_users_wallet_balance,wallet_balance >= 0"`
	LastCheckIn    *time.Time
	CurrentVehicle *string   `gorm:"type:text"`
	CreditRefs     string    `gorm:"type:jsonb;not null;default:'[]'"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

// Transaction mirrors the append-only transactions table.
type Transaction struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	UserID      string          `gorm:"type:text;not null;index:idx_transactions_user_created,priority:1"`
	User        User            `gorm:"foreignKey:UserID;constraint:OnDelete:RESTRICT"`
	Amount      decimal.Decimal `gorm:"type:numeric(14,2);not null;check:chk_transactions_amount,amount > 0"`
	Kind        string          `gorm:"type:text;not null"`
	Vehicle     *string         `gorm:"type:text"`
	Description *string         `gorm:"type:text"`
	Reference   *string         `gorm:"type:text;uniqueIndex:idx_transactions_reference"`
	CreatedAt   time.Time       `gorm:"not null;index:idx_transactions_user_created,priority:2,sort:desc"`
}

// Models lists every table managed by Run, in dependency order.
func Models() []any {
	return []any{&User{}, &Transaction{}}
}

// Open connects gorm to Postgres.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return db, nil
}

// Run creates or updates tables, columns, indexes and constraints.
func Run(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
