package db

import (
	"asset_lending_tool/models"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ConnectDB 打开连接并执行迁移，失败直接退出
func ConnectDB(dsn string, log *zap.Logger) *gorm.DB {
	conn, err := Open(dsn)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := Migrate(conn); err != nil {
		log.Fatal("failed to migrate models", zap.Error(err))
	}
	log.Info("database connected")
	return conn
}

func Open(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(dsn), &gorm.Config{
		// 唯一键冲突 -> gorm.ErrDuplicatedKey
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Asset{},
		&models.AssetUnit{},
		&models.Loan{},
		&models.LoanItem{},
		&models.LoanAuditLog{},
	); err != nil {
		return err
	}

	// 同一单件最多一条“未归还”明细
	if err := db.Exec(fmt.Sprintf(`
	  CREATE UNIQUE INDEX IF NOT EXISTS %s_one_open_per_unit
	  ON %s (asset_unit_id)
	  WHERE returned_at IS NULL AND asset_unit_id IS NOT NULL;
	`, models.LoanItemTable, models.LoanItemTable)).Error; err != nil {
		return err
	}

	// 按数量借出时汇总未归还数量
	if err := db.Exec(fmt.Sprintf(`
	  CREATE INDEX IF NOT EXISTS %s_open_by_asset
	  ON %s (asset_id)
	  WHERE returned_at IS NULL;
	`, models.LoanItemTable, models.LoanItemTable)).Error; err != nil {
		return err
	}

	// 单件明细数量恒为 1
	if err := db.Exec(fmt.Sprintf(`
	  DO $$
	  BEGIN
	    IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_loan_items_unit_qty') THEN
	      ALTER TABLE %s ADD CONSTRAINT chk_loan_items_unit_qty
	        CHECK (asset_unit_id IS NULL OR quantity = 1);
	    END IF;
	  END $$;
	`, models.LoanItemTable)).Error; err != nil {
		return err
	}

	return nil
}
