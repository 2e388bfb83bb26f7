package http

import (
	"moff.io/moff-wallet/internal/wallet"
)

type walletView struct {
	Status            string             `json:"status"`
	Phase             string             `json:"phase"`
	InjectedAvailable bool               `json:"injected_available"`
	Account           string             `json:"account,omitempty"`
	Kind              string             `json:"kind,omitempty"`
	CurrentChainID    int64              `json:"current_chain_id,omitempty"`
	TargetChainID     int64              `json:"target_chain_id,omitempty"`
	OnTargetChain     bool               `json:"on_target_chain"`
	CanSwitchChain    bool               `json:"can_switch_chain"`
	Balance           string             `json:"target_chain_balance,omitempty"`
	WalletInfo        *wallet.WalletInfo `json:"wallet_info,omitempty"`
}

func (s *Server) view() *walletView {
	v := &walletView{Phase: s.wallet.Phase().String()}
	switch state := s.wallet.State().(type) {
	case *wallet.Disconnected:
		v.Status = "disconnected"
		v.InjectedAvailable = state.ConnectInjected != nil
	case *wallet.Connected:
		v.Status = "connected"
		v.Account = state.Account
		v.Kind = state.Kind.String()
		v.CurrentChainID = state.CurrentChainID
		v.TargetChainID = state.TargetChainID()
		v.OnTargetChain = state.IsOnTargetChain()
		v.CanSwitchChain = state.RequestSwitchToCorrectChain != nil
		if state.TargetChainBalance.Value != nil {
			v.Balance = state.TargetChainBalance.Value.String()
		}
		if state.WalletInfo != (wallet.WalletInfo{}) {
			info := state.WalletInfo
			v.WalletInfo = &info
		}
	}
	return v
}
