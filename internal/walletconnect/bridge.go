package walletconnect

import (
	"context"
	"encoding/json"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
	"moff.io/moff-wallet/pkg/wcbridge"
)

func (s *Session) dialWS(ctx context.Context) error {
	dialer := s.opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	s.mu.Lock()
	wsURL := wcbridge.WebSocketURL(s.data.BridgeURL, s.opts.Env)
	s.mu.Unlock()
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return errors.Wrap(err, "dial to wallet connect bridge url")
	}
	s.writeMu.Lock()
	s.conn = conn
	s.writeMu.Unlock()
	go s.readLoop(conn)
	return nil
}

func (s *Session) currentConn() *websocket.Conn {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn
}

func (s *Session) readLoop(conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if !s.closed.Load() {
				log.Warnf("wallet connect - bridge connection lost: %v", err)
				s.shutdown(true, errors.Wrap(err, "read bridge message"))
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		s.handleMessage(data)
	}
}

func (s *Session) handleMessage(data []byte) {
	log.Debugf("wallet connect - receive:%v", string(data))
	msg, err := newWCMessageFromBytes(data)
	if err != nil {
		log.Warn(err)
		return
	}
	if msg.Type != "pub" {
		return
	}
	if err := s.sessionMessageACK(msg.Topic); err != nil {
		log.Warn(err)
	}
	payload, err := s.decryptJSONRpc(msg)
	if err != nil {
		log.Warnf("wallet connect - drop undecryptable message: %v", err)
		return
	}

	if method := gjson.Get(payload, "method"); method.Exists() {
		s.handleWalletRequest(method.String(), payload)
		return
	}
	var resp jsonRpcResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		log.Warnf("wallet connect - unmarshal response: %v", err)
		return
	}
	s.deliver(&resp)
}

func (s *Session) handleWalletRequest(method, payload string) {
	switch method {
	case "wc_sessionUpdate":
		params := gjson.Get(payload, "params").Array()
		if len(params) == 0 {
			return
		}
		var update sessionParams
		if err := json.Unmarshal([]byte(params[0].Raw), &update); err != nil {
			log.Warnf("wallet connect - unmarshal session update: %v", err)
			return
		}
		s.applySessionUpdate(update)
	default:
		log.Debugf("wallet connect - ignore wallet request %v", method)
	}
}

func (s *Session) decryptJSONRpc(msg *wcMessage) (string, error) {
	var p wcbridge.EncryptedPayload
	if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
		return "", errors.Wrap(err, "unmarshal wallet connect message payload")
	}
	s.mu.Lock()
	key := s.key
	s.mu.Unlock()
	data, err := wcbridge.Open(&p, key)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *Session) publish(topic string, req *jsonRpcRequest) error {
	s.mu.Lock()
	key := s.key
	s.mu.Unlock()
	sealed, err := wcbridge.Seal([]byte(req.Marshal()), key)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(sealed)
	if err != nil {
		return errors.Wrap(err, "marshal encrypted payload")
	}
	msg := wcMessage{
		Topic:   topic,
		Type:    "pub",
		Payload: string(payload),
		Silent:  req.IsSilentPayload(),
	}
	return s.sendRequest(msg.Marshal())
}

func (s *Session) subscribe(topic string) error {
	msg := wcMessage{
		Topic:  topic,
		Type:   "sub",
		Silent: true,
	}
	log.Debugf("wallet connect - subscribe session:%v", string(msg.Marshal()))
	return s.sendRequest(msg.Marshal())
}

func (s *Session) sessionMessageACK(topic string) error {
	msg := wcMessage{
		Topic:  topic,
		Type:   "ack",
		Silent: true,
	}
	return s.sendRequest(msg.Marshal())
}

func (s *Session) sendRequest(payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.conn == nil {
		return ErrNotConnected
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return errors.Wrap(err, "write wallet connect message to bridge")
	}
	return nil
}

func (s *Session) expect(id int64) <-chan *jsonRpcResponse {
	ch := make(chan *jsonRpcResponse, 1)
	s.pendingMu.Lock()
	s.pending[id] = ch
	s.pendingMu.Unlock()
	return ch
}

func (s *Session) forget(id int64) {
	s.pendingMu.Lock()
	delete(s.pending, id)
	s.pendingMu.Unlock()
}

func (s *Session) deliver(resp *jsonRpcResponse) {
	s.pendingMu.Lock()
	ch, ok := s.pending[resp.Id]
	delete(s.pending, resp.Id)
	s.pendingMu.Unlock()
	if !ok {
		log.Debugf("wallet connect - no pending request for response %v", resp.Id)
		return
	}
	ch <- resp
}

func (s *Session) await(ctx context.Context, wait <-chan *jsonRpcResponse) (*jsonRpcResponse, error) {
	select {
	case resp := <-wait:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrSessionClosed
	}
}
