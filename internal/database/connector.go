package database

import (
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"moff.io/moff-wallet/internal/config"
	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
)

var Postgres *gorm.DB

// InitPostgres connects to the history database and migrates its tables.
func InitPostgres(conf *config.DBCredential) {
	cli, err := Open(postgres.Open(conf.Dsn()))
	if err != nil {
		log.Fatal(err)
	}
	db, err := cli.DB()
	if err != nil {
		log.Fatalf("get pg conn:%v", err)
	}
	if err := db.Ping(); err != nil {
		log.Fatalf("ping to pg:%v", err)
	}
	Postgres = cli
	log.Info("Connected to postgres...")
}

func Open(dialector gorm.Dialector) (*gorm.DB, error) {
	cli, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	})
	if err != nil {
		return nil, errors.Wrap(err, "connect to pg")
	}
	if err := cli.AutoMigrate(&WalletConnectionEvent{}); err != nil {
		return nil, errors.Wrap(err, "autoMigrate tables")
	}
	return cli, nil
}

func Close() {
	if Postgres == nil {
		return
	}
	if db, err := Postgres.DB(); err == nil {
		db.Close()
	}
	Postgres = nil
}
