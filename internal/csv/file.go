package csv

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"moff.io/moff-wallet/internal/wallet"
	"moff.io/moff-wallet/pkg/errors"
)

var header = []string{"at", "type", "account", "kind", "chain_id", "target_chain_id", "on_target_chain", "target_chain_balance", "wallet_name"}

// WriteEvents writes events as CSV rows under a header line.
func WriteEvents(w io.Writer, events []wallet.Event) error {
	records := make([][]string, 0, len(events)+1)
	records = append(records, header)
	for _, e := range events {
		records = append(records, []string{
			e.At.UTC().Format(time.RFC3339),
			string(e.Type),
			e.Account,
			e.Kind,
			optionalInt(e.ChainID),
			optionalInt(e.TargetChainID),
			strconv.FormatBool(e.OnTargetChain),
			e.Balance,
			e.WalletName,
		})
	}
	writer := csv.NewWriter(w)
	if err := writer.WriteAll(records); err != nil {
		return errors.Wrap(err, "write csv")
	}
	return nil
}

func optionalInt(v int64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatInt(v, 10)
}
