package database

import (
	"fmt"
	"strings"

	"requisition-backend/internal/config"
	"requisition-backend/internal/ledger"
	"requisition-backend/internal/logger"
	"requisition-backend/internal/model"
	"requisition-backend/internal/workflow"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// NewConnection opens the connection pool using GORM
func NewConnection(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := Open(cfg.DSN(), cfg)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Open connects without migrating.
func Open(dsn string, cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.NewGormLogger(cfg.SlowQuery),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	return db, nil
}

type enumType struct {
	name   string
	values []string
}

func enumTypes() []enumType {
	statuses := make([]string, 0)
	for _, s := range workflow.Statuses() {
		statuses = append(statuses, string(s))
	}
	actions := make([]string, 0)
	for _, a := range workflow.Actions() {
		actions = append(actions, string(a))
	}
	return []enumType{
		{name: "request_status", values: statuses},
		{name: "approval_level", values: []string{string(workflow.LevelDSE), string(workflow.LevelPadiri)}},
		{name: "approval_action", values: actions},
		{name: "movement_type", values: []string{string(ledger.MovementIn), string(ledger.MovementOut), string(ledger.MovementAdjustment)}},
		{name: "movement_source", values: []string{string(ledger.SourceGRN), string(ledger.SourceIssue), string(ledger.SourceAdjustment)}},
		{name: "adjustment_direction", values: []string{string(ledger.DirectionIncrease), string(ledger.DirectionDecrease)}},
	}
}

// Migrate creates the ENUM types and auto-migrates every model.
func Migrate(db *gorm.DB) error {
	for _, et := range enumTypes() {
		if err := ensureEnum(db, et); err != nil {
			return err
		}
	}

	err := db.AutoMigrate(
		&model.Permission{},
		&model.Role{},
		&model.Site{},
		&model.User{},
		&model.RefreshToken{},
		&model.Store{},
		&model.Category{},
		&model.Unit{},
		&model.Material{},
		&model.Stock{},
		&model.StockMovement{},
		&model.StockAdjustment{},
		&model.Request{},
		&model.RequestItem{},
		&model.Approval{},
		&model.Supplier{},
		&model.SupplierAddress{},
		&model.PurchaseOrder{},
		&model.PurchaseOrderItem{},
		&model.GoodsReceipt{},
		&model.GoodsReceiptItem{},
		&model.Issue{},
		&model.IssueItem{},
		&model.AuditLog{},
	)
	if err != nil {
		return err
	}

	// qty is always positive; direction is carried by movement_type
	return db.Exec(`DO $$ BEGIN
		ALTER TABLE stock_movements ADD CONSTRAINT chk_stock_movements_qty_positive CHECK (qty > 0);
	EXCEPTION WHEN duplicate_object THEN NULL; END $$;`).Error
}

func ensureEnum(db *gorm.DB, et enumType) error {
	quoted := make([]string, 0, len(et.values))
	for _, v := range et.values {
		quoted = append(quoted, "'"+v+"'")
	}
	create := fmt.Sprintf(`DO $$ BEGIN
		CREATE TYPE %s AS ENUM (%s);
	EXCEPTION WHEN duplicate_object THEN NULL; END $$;`, et.name, strings.Join(quoted, ", "))
	if err := db.Exec(create).Error; err != nil {
		return fmt.Errorf("create enum %s: %w", et.name, err)
	}
	// an older database may carry a shorter value list
	for _, v := range et.values {
		if err := db.Exec(fmt.Sprintf("ALTER TYPE %s ADD VALUE IF NOT EXISTS '%s'", et.name, v)).Error; err != nil {
			logger.Warn("[Migrate] extend enum", zap.String("type", et.name), zap.String("value", v), zap.Error(err))
		}
	}
	return nil
}
