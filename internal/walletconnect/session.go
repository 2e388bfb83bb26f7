package walletconnect

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/skip2/go-qrcode"
	"go.uber.org/atomic"
	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
	"moff.io/moff-wallet/pkg/wcbridge"
)

var (
	ErrSessionClosed   = errors.New("session closed")
	ErrSessionRejected = errors.New("session rejected by wallet")
	ErrNotConnected    = errors.New("session not connected")
)

// Options configures a new Session.
type Options struct {
	// BridgeURL of the relay server, a random public bridge when empty.
	BridgeURL string
	// ChainID requested from the wallet when pairing.
	ChainID    int64
	ClientMeta ClientMeta
	// DisplayURI shows the pairing URI to the user. It is only called when a new
	// pairing is needed, never for a resumed session.
	DisplayURI func(uri string) error
	// Env is reported to the bridge in the websocket query.
	Env    string
	Dialer *websocket.Dialer
}

// Session is a single WalletConnect v1 session. A Session is created fresh for
// every connect attempt and is never reused once closed.
type Session struct {
	opts  Options
	store SessionStore

	mu        sync.Mutex
	data      StoredSession
	key       []byte
	listeners listeners

	writeMu sync.Mutex
	conn    *websocket.Conn

	pendingMu sync.Mutex
	pending   map[int64]chan *jsonRpcResponse

	enabled atomic.Bool
	closed  atomic.Bool
	done    chan struct{}
}

type listeners struct {
	accountsChanged []func([]string)
	chainChanged    []func(int64)
	disconnect      []func(error)
}

// NewSession resumes the session held by store, or prepares a new pairing when
// there is none. No network traffic happens until Enable.
func NewSession(ctx context.Context, opts Options, store SessionStore) (*Session, error) {
	if store == nil {
		store = NewMemoryStore()
	}
	if opts.Env == "" {
		opts.Env = "moff-wallet"
	}
	s := &Session{
		opts:    opts,
		store:   store,
		pending: make(map[int64]chan *jsonRpcResponse),
		done:    make(chan struct{}),
	}

	stored, err := store.Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load wallet connect session")
	}
	if stored != nil && stored.Connected {
		key, err := hex.DecodeString(stored.Key)
		if err == nil && len(key) == wcbridge.KeySize {
			s.data = *stored
			s.key = key
			return s, nil
		}
		log.Warnf("wallet connect - discarding stored session %v with invalid key", stored.ClientID)
	}

	key, err := wcbridge.GenerateRandomBytes(wcbridge.KeySize)
	if err != nil {
		return nil, errors.Wrap(err, "generate session key")
	}
	bridgeURL := opts.BridgeURL
	if bridgeURL == "" {
		bridgeURL = wcbridge.RandomBridgeURL()
	}
	s.key = key
	s.data = StoredSession{
		BridgeURL:      bridgeURL,
		Key:            hex.EncodeToString(key),
		ClientID:       uuid.NewString(),
		ClientMeta:     opts.ClientMeta,
		HandshakeTopic: uuid.NewString(),
		ChainID:        opts.ChainID,
	}
	return s, nil
}

// CachedAccounts returns the accounts known from a stored session without any
// round trip. It is empty for a session that still needs pairing.
func (s *Session) CachedAccounts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.data.Connected {
		return nil
	}
	return append([]string(nil), s.data.Accounts...)
}

func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Connected
}

func (s *Session) ChainID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ChainID
}

// PeerMeta returns the wallet's self description.
func (s *Session) PeerMeta() (name, url string, icons []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.data.PeerMeta
	return m.Name, m.URL, append([]string(nil), m.Icons...)
}

// URI is the pairing URI for this session's handshake topic.
func (s *Session) URI() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return wcbridge.PairingURI(s.data.HandshakeTopic, s.data.BridgeURL, s.key)
}

// WriteQRCode writes the pairing URI as a PNG QR code.
func (s *Session) WriteQRCode(path string, size int) error {
	if err := qrcode.WriteFile(s.URI(), qrcode.Medium, size, path); err != nil {
		return errors.Wrap(err, "write wallet connect qr code")
	}
	return nil
}

func (s *Session) QRCodePNG(size int) ([]byte, error) {
	png, err := qrcode.Encode(s.URI(), qrcode.Medium, size)
	if err != nil {
		return nil, errors.Wrap(err, "encode wallet connect qr code")
	}
	return png, nil
}

// Enable opens the bridge connection. A resumed session returns its cached
// accounts straight away; otherwise the pairing URI is displayed and Enable
// waits for the wallet to approve.
func (s *Session) Enable(ctx context.Context) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}
	if !s.enabled.CAS(false, true) {
		return nil, errors.New("session already enabled")
	}
	if err := s.dialWS(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	clientID := s.data.ClientID
	s.mu.Unlock()
	if err := s.subscribe(clientID); err != nil {
		return nil, err
	}
	if s.Connected() {
		return s.CachedAccounts(), nil
	}
	return s.createSession(ctx)
}

func (s *Session) createSession(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	req := newJSONRpcRequest("wc_sessionRequest", peer{
		PeerID:   s.data.ClientID,
		PeerMeta: s.data.ClientMeta,
		ChainID:  s.data.ChainID,
	})
	topic := s.data.HandshakeTopic
	s.mu.Unlock()

	wait := s.expect(req.Id)
	defer s.forget(req.Id)
	log.Debugf("wallet connect - create session request:%v", req.Marshal())
	if err := s.publish(topic, req); err != nil {
		return nil, err
	}
	if s.opts.DisplayURI != nil {
		if err := s.opts.DisplayURI(s.URI()); err != nil {
			return nil, errors.Wrap(err, "display pairing uri")
		}
	}

	resp, err := s.await(ctx, wait)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		if strings.Contains(resp.Error.Message, "Session Rejected") {
			return nil, ErrSessionRejected
		}
		return nil, resp.Error
	}
	var result sessionParams
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, errors.Wrap(err, "unmarshal session response")
	}
	if !result.Approved {
		return nil, ErrSessionRejected
	}
	if len(result.Accounts) == 0 {
		return nil, errors.New("no wallet accounts acquired")
	}

	s.mu.Lock()
	s.data.Connected = true
	s.data.HandshakeID = req.Id
	s.data.PeerID = result.PeerID
	if result.PeerMeta != nil {
		s.data.PeerMeta = *result.PeerMeta
	}
	s.data.Accounts = append([]string(nil), result.Accounts...)
	if result.ChainID != nil {
		s.data.ChainID = *result.ChainID
	}
	snapshot := s.data
	s.mu.Unlock()

	if err := s.store.Save(ctx, &snapshot); err != nil {
		log.Warnf("wallet connect - save session: %v", err)
	}
	log.Infof("wallet connect - session approved by %v for %v", snapshot.PeerMeta.Name, snapshot.Accounts[0])
	return append([]string(nil), snapshot.Accounts...), nil
}

// Request sends a JSON-RPC request to the wallet and decodes its result into result.
// result may be nil when the caller does not need the response body.
func (s *Session) Request(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	s.mu.Lock()
	connected, peerID := s.data.Connected, s.data.PeerID
	s.mu.Unlock()
	if !connected || s.currentConn() == nil {
		return ErrNotConnected
	}

	req := newJSONRpcRequest(method, params...)
	wait := s.expect(req.Id)
	defer s.forget(req.Id)
	log.Debugf("wallet connect - request:%v", req.Marshal())
	if err := s.publish(peerID, req); err != nil {
		return err
	}
	resp, err := s.await(ctx, wait)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	if result == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return errors.Wrapf(err, "unmarshal %v result", method)
	}
	return nil
}

// Disconnect ends the session for both sides: the wallet is told the session
// is over, the stored session is removed and disconnect listeners fire.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	connected, peerID := s.data.Connected, s.data.PeerID
	s.data.Connected = false
	s.mu.Unlock()

	if connected && !s.closed.Load() && s.currentConn() != nil {
		req := newJSONRpcRequest("wc_sessionUpdate", sessionParams{Approved: false})
		if err := s.publish(peerID, req); err != nil {
			log.Warnf("wallet connect - notify wallet of disconnect: %v", err)
		}
	}
	err := s.store.Delete(ctx)
	s.shutdown(true, nil)
	if err != nil {
		return errors.Wrap(err, "delete stored session")
	}
	return nil
}

// Close releases the bridge connection without ending the session; a later
// Session built from the same store can resume it.
func (s *Session) Close() {
	s.shutdown(false, nil)
}

func (s *Session) OnAccountsChanged(fn func(accounts []string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners.accountsChanged = append(s.listeners.accountsChanged, fn)
}

func (s *Session) OnChainChanged(fn func(chainID int64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners.chainChanged = append(s.listeners.chainChanged, fn)
}

func (s *Session) OnDisconnect(fn func(err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners.disconnect = append(s.listeners.disconnect, fn)
}

func (s *Session) RemoveAllListeners() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = listeners{}
}

func (s *Session) shutdown(emit bool, cause error) {
	if !s.closed.CAS(false, true) {
		return
	}
	close(s.done)
	if conn := s.currentConn(); conn != nil {
		s.writeMu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		_ = conn.Close()
	}
	if !emit {
		return
	}
	s.mu.Lock()
	fns := append([]func(error){}, s.listeners.disconnect...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(cause)
	}
}

func (s *Session) applySessionUpdate(p sessionParams) {
	if !p.Approved {
		log.Warnf("wallet connect - session closed by wallet")
		s.mu.Lock()
		s.data.Connected = false
		s.mu.Unlock()
		if err := s.store.Delete(context.Background()); err != nil {
			log.Warnf("wallet connect - delete stored session: %v", err)
		}
		s.shutdown(true, ErrSessionClosed)
		return
	}

	s.mu.Lock()
	accountsChanged := p.Accounts != nil && !equalAccounts(p.Accounts, s.data.Accounts)
	chainChanged := p.ChainID != nil && *p.ChainID != s.data.ChainID
	if accountsChanged {
		s.data.Accounts = append([]string(nil), p.Accounts...)
	}
	if chainChanged {
		s.data.ChainID = *p.ChainID
	}
	snapshot := s.data
	ls := listeners{
		accountsChanged: append([]func([]string){}, s.listeners.accountsChanged...),
		chainChanged:    append([]func(int64){}, s.listeners.chainChanged...),
	}
	s.mu.Unlock()

	if !accountsChanged && !chainChanged {
		return
	}
	if err := s.store.Save(context.Background(), &snapshot); err != nil {
		log.Warnf("wallet connect - save session: %v", err)
	}
	if accountsChanged {
		for _, fn := range ls.accountsChanged {
			fn(append([]string(nil), snapshot.Accounts...))
		}
	}
	if chainChanged {
		for _, fn := range ls.chainChanged {
			fn(snapshot.ChainID)
		}
	}
}

func equalAccounts(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}
