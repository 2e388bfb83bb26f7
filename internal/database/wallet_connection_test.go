package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"moff.io/moff-wallet/internal/wallet"
	"moff.io/moff-wallet/pkg/errors"
)

type statement struct {
	sql  string
	vars []interface{}
}

// dryRun builds SQL without a server and records every statement.
func dryRun(t *testing.T) (*gorm.DB, *[]statement) {
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost user=moff dbname=moff_wallet"}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               logger.Discard,
	})
	require.NoError(t, err)
	var statements []statement
	capture := func(tx *gorm.DB) {
		statements = append(statements, statement{sql: tx.Statement.SQL.String(), vars: tx.Statement.Vars})
	}
	require.NoError(t, db.Callback().Create().After("gorm:create").Register("test:capture", capture))
	require.NoError(t, db.Callback().Query().After("gorm:query").Register("test:capture", capture))
	return db, &statements
}

func TestPublishInsertsEvent(t *testing.T) {
	db, statements := dryRun(t)
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	err := NewHistory(db).Publish(context.Background(), wallet.Event{
		Type:    wallet.EventConnected,
		Account: "0xABC",
		Kind:    "injected",
		ChainID: 56,
		At:      at,
	})
	require.NoError(t, err)
	require.Len(t, *statements, 1)
	insert := (*statements)[0]
	assert.Contains(t, insert.sql, `INSERT INTO "wallet_connection_events"`)
	assert.Contains(t, insert.vars, "0xABC")
	assert.Contains(t, insert.vars, at.UnixMilli())
}

func TestRecentFiltersByAccount(t *testing.T) {
	db, statements := dryRun(t)
	history := NewHistory(db)

	events, err := history.Recent(context.Background(), "0xABC", 5)
	require.NoError(t, err)
	assert.Empty(t, events)
	require.Len(t, *statements, 1)
	query := (*statements)[0]
	assert.Contains(t, query.sql, `FROM "wallet_connection_events"`)
	assert.Contains(t, query.sql, "account = $1")
	assert.Contains(t, query.sql, "ORDER BY created_at DESC, id DESC")
	assert.Contains(t, query.sql, "LIMIT 5")
	assert.Equal(t, []interface{}{"0xABC"}, query.vars)

	_, err = history.Recent(context.Background(), "", 5)
	require.NoError(t, err)
	assert.NotContains(t, (*statements)[1].sql, "WHERE")
}

func TestWalletConnectionEventKeepsEventFields(t *testing.T) {
	e := wallet.Event{
		Type:          wallet.EventUpdated,
		Account:       "0xABC",
		Kind:          "walletconnect",
		ChainID:       1,
		TargetChainID: 56,
		Balance:       "1000",
		WalletName:    "Rainbow",
		At:            time.UnixMilli(1700000000123).UTC(),
	}
	assert.Equal(t, e, NewWalletConnectionEvent(e).Event())
}

type countingReporter struct {
	target error
	count  int
}

func (r *countingReporter) Report(err error) {
	if errors.Is(err, r.target) {
		r.count++
	}
}

func TestPublishFailureIsLeftToCaller(t *testing.T) {
	db, _ := dryRun(t)
	insertErr := errors.New("insert rejected")
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail", func(tx *gorm.DB) {
		tx.AddError(insertErr)
	}))
	reporter := &countingReporter{target: insertErr}
	errors.RegisterReporter(reporter)

	err := NewHistory(db).Publish(context.Background(), wallet.Event{Type: wallet.EventDisconnected})
	assert.ErrorIs(t, err, insertErr)
	assert.Zero(t, reporter.count)
}
