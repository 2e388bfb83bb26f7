package database

import (
	"context"
	"time"

	"gorm.io/gorm"
	"moff.io/moff-wallet/internal/wallet"
	"moff.io/moff-wallet/pkg/errors"
)

// WalletConnectionEvent is one row of the connection history.
type WalletConnectionEvent struct {
	ID            int64  `gorm:"primaryKey"`
	Type          string `gorm:"type:varchar(20);index"`
	Account       string `gorm:"type:varchar(100);index"`
	Kind          string `gorm:"type:varchar(20)"`
	ChainID       int64  `gorm:"type:int8"`
	TargetChainID int64  `gorm:"type:int8"`
	OnTargetChain bool
	Balance       string `gorm:"type:varchar(80)"`
	WalletName    string `gorm:"type:varchar(100)"`
	CreatedAt     int64  `gorm:"type:int8;index"`
}

func NewWalletConnectionEvent(e wallet.Event) *WalletConnectionEvent {
	return &WalletConnectionEvent{
		Type:          string(e.Type),
		Account:       e.Account,
		Kind:          e.Kind,
		ChainID:       e.ChainID,
		TargetChainID: e.TargetChainID,
		OnTargetChain: e.OnTargetChain,
		Balance:       e.Balance,
		WalletName:    e.WalletName,
		CreatedAt:     e.At.UnixMilli(),
	}
}

func (in *WalletConnectionEvent) Event() wallet.Event {
	return wallet.Event{
		Type:          wallet.EventType(in.Type),
		Account:       in.Account,
		Kind:          in.Kind,
		ChainID:       in.ChainID,
		TargetChainID: in.TargetChainID,
		OnTargetChain: in.OnTargetChain,
		Balance:       in.Balance,
		WalletName:    in.WalletName,
		At:            time.UnixMilli(in.CreatedAt).UTC(),
	}
}

// History stores wallet events and reads them back newest first.
type History struct {
	db *gorm.DB
}

func NewHistory(db *gorm.DB) *History {
	return &History{db: db}
}

func (h *History) Publish(ctx context.Context, e wallet.Event) error {
	err := h.db.WithContext(ctx).Create(NewWalletConnectionEvent(e)).Error
	return errors.Wrap(err, "create wallet connection event")
}

// Recent returns up to limit events, only those of account when it is set.
func (h *History) Recent(ctx context.Context, account string, limit int) ([]wallet.Event, error) {
	var rows []*WalletConnectionEvent
	tx := h.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit)
	if account != "" {
		tx = tx.Where("account = ?", account)
	}
	if err := tx.Find(&rows).Error; err != nil {
		return nil, errors.WrapAndReport(err, "query wallet connection events")
	}
	events := make([]wallet.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, row.Event())
	}
	return events, nil
}
