package wcbridge

import (
	"encoding/hex"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"time"

	"moff.io/moff-wallet/pkg/errors"
)

const (
	alphanumerical  = "abcdefghijklmnopqrstuvwxyz0123456789"
	bridgeURLFormat = "https://%v.bridge.walletconnect.org"

	// ProtocolVersion is the WalletConnect protocol spoken over the bridge.
	ProtocolVersion = "1"
)

var random = rand.New(rand.NewSource(time.Now().UnixNano()))

// RandomBridgeURL picks one of the public v1 bridge shards.
func RandomBridgeURL() string {
	return fmt.Sprintf(bridgeURLFormat, string(alphanumerical[random.Intn(len(alphanumerical))]))
}

// WebSocketURL converts a bridge URL into the websocket endpoint of the bridge.
func WebSocketURL(bridgeURL, env string) string {
	switch {
	case strings.HasPrefix(bridgeURL, "https://"):
		bridgeURL = "wss://" + strings.TrimPrefix(bridgeURL, "https://")
	case strings.HasPrefix(bridgeURL, "http://"):
		bridgeURL = "ws://" + strings.TrimPrefix(bridgeURL, "http://")
	}
	q := url.Values{}
	q.Set("protocol", "wc")
	q.Set("version", ProtocolVersion)
	q.Set("env", env)
	sep := "?"
	if strings.Contains(bridgeURL, "?") {
		sep = "&"
	}
	return bridgeURL + sep + q.Encode()
}

// PairingURI is the wc: URI a wallet scans to join a handshake topic.
func PairingURI(handshakeTopic, bridgeURL string, key []byte) string {
	return fmt.Sprintf("wc:%s@%s?bridge=%s&key=%s",
		handshakeTopic, ProtocolVersion, url.QueryEscape(bridgeURL), hex.EncodeToString(key))
}

// Pairing is a parsed wc: URI.
type Pairing struct {
	HandshakeTopic string
	Version        string
	BridgeURL      string
	Key            []byte
}

func ParsePairingURI(uri string) (*Pairing, error) {
	if !strings.HasPrefix(uri, "wc:") {
		return nil, errors.Errorf("not a wallet connect uri: %q", uri)
	}
	rest := strings.TrimPrefix(uri, "wc:")
	at := strings.Index(rest, "@")
	q := strings.Index(rest, "?")
	if at < 0 || q < at {
		return nil, errors.Errorf("malformed wallet connect uri: %q", uri)
	}
	values, err := url.ParseQuery(rest[q+1:])
	if err != nil {
		return nil, errors.Wrap(err, "parse wallet connect uri query")
	}
	key, err := hex.DecodeString(values.Get("key"))
	if err != nil || len(key) != KeySize {
		return nil, errors.Errorf("invalid key in wallet connect uri: %q", uri)
	}
	return &Pairing{
		HandshakeTopic: rest[:at],
		Version:        rest[at+1 : q],
		BridgeURL:      values.Get("bridge"),
		Key:            key,
	}, nil
}
