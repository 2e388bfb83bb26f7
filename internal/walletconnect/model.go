package walletconnect

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/atomic"
	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
)

// ClientMeta describes a peer of the session, the dapp or the wallet.
type ClientMeta struct {
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Icons       []string `json:"icons"`
	Name        string   `json:"name"`
}

// StoredSession is what survives a restart: enough to resume talking to the
// wallet over the same bridge topic without pairing again.
type StoredSession struct {
	Connected      bool       `json:"connected"`
	BridgeURL      string     `json:"bridge"`
	Key            string     `json:"key"`
	ClientID       string     `json:"clientId"`
	ClientMeta     ClientMeta `json:"clientMeta"`
	PeerID         string     `json:"peerId"`
	PeerMeta       ClientMeta `json:"peerMeta"`
	HandshakeTopic string     `json:"handshakeTopic"`
	HandshakeID    int64      `json:"handshakeId"`
	Accounts       []string   `json:"accounts"`
	ChainID        int64      `json:"chainId"`
}

type wcMessage struct {
	Topic string `json:"topic"`
	// pub sub ack
	Type    string `json:"type"`
	Payload string `json:"payload"`
	Silent  bool   `json:"silent"`
}

func newWCMessageFromBytes(data []byte) (*wcMessage, error) {
	var msg wcMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.Wrap(err, "unmarshal wallet connect message")
	}
	return &msg, nil
}

func (msg *wcMessage) Marshal() []byte {
	bytes, _ := json.Marshal(msg)
	return bytes
}

type peer struct {
	PeerID   string      `json:"peerId"`
	PeerMeta ClientMeta  `json:"peerMeta"`
	ChainID  interface{} `json:"chainId"`
}

// sessionParams is the result of wc_sessionRequest and the single parameter of wc_sessionUpdate.
type sessionParams struct {
	Approved  bool        `json:"approved"`
	ChainID   *int64      `json:"chainId"`
	NetworkID *int64      `json:"networkId"`
	Accounts  []string    `json:"accounts"`
	RPCURL    string      `json:"rpcUrl,omitempty"`
	PeerID    string      `json:"peerId,omitempty"`
	PeerMeta  *ClientMeta `json:"peerMeta,omitempty"`
}

type jsonRpcRequest struct {
	Id      int64         `json:"id"`
	JSONRpc string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

func newJSONRpcRequest(method string, params ...interface{}) *jsonRpcRequest {
	r := &jsonRpcRequest{
		Id:      payloadID(),
		JSONRpc: "2.0",
		Method:  method,
		Params:  []interface{}{},
	}
	if len(params) > 0 {
		r.Params = params
	}
	return r
}

func (e *jsonRpcRequest) Marshal() string {
	s, err := json.Marshal(e)
	if err != nil {
		log.Errorf("marshal:%v", err)
	}
	return string(s)
}

// IsSilentPayload reports whether the bridge should skip push notifications for the request.
func (e *jsonRpcRequest) IsSilentPayload() bool {
	return strings.HasPrefix(e.Method, "wc_")
}

type jsonRpcResponse struct {
	Id      int64           `json:"id"`
	JSONRpc string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC error returned by the wallet.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("wallet rpc error %d: %s", e.Code, e.Message)
}

// ErrorCode matches the go-ethereum rpc.Error interface.
func (e *RPCError) ErrorCode() int {
	return e.Code
}

var payloadSeq = atomic.NewInt64(time.Now().UnixNano() / 1000)

func payloadID() int64 {
	return payloadSeq.Inc()
}
