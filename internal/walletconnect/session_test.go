package walletconnect

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"moff.io/moff-wallet/pkg/wcbridge"
)

// fakeWallet plays both the bridge relay and the wallet on the other end.
type fakeWallet struct {
	t        *testing.T
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conn     *websocket.Conn
	key      []byte
	clientID string
	accounts []string
	chainID  int64
	// methods that are never answered
	silent  map[string]bool
	errors  map[string]*RPCError
	methods []string
	updates []sessionParams
}

func newFakeWallet(t *testing.T) *fakeWallet {
	w := &fakeWallet{
		t:        t,
		accounts: []string{"0xAbC0000000000000000000000000000000000001"},
		chainID:  1,
		silent:   map[string]bool{},
		errors:   map[string]*RPCError{},
	}
	w.server = httptest.NewServer(http.HandlerFunc(w.serve))
	t.Cleanup(w.server.Close)
	return w
}

func (w *fakeWallet) bridgeURL() string {
	return w.server.URL
}

func (w *fakeWallet) setKey(key []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.key = key
}

func (w *fakeWallet) failWith(method string, err *RPCError) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.errors[method] = err
}

func (w *fakeWallet) serve(rw http.ResponseWriter, r *http.Request) {
	conn, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		return
	}
	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg wcMessage
		if json.Unmarshal(data, &msg) != nil {
			continue
		}
		switch msg.Type {
		case "sub":
			w.mu.Lock()
			w.clientID = msg.Topic
			w.mu.Unlock()
		case "pub":
			w.handlePub(msg)
		}
	}
}

func (w *fakeWallet) handlePub(msg wcMessage) {
	var p wcbridge.EncryptedPayload
	if !assert.NoError(w.t, json.Unmarshal([]byte(msg.Payload), &p)) {
		return
	}
	w.mu.Lock()
	key := w.key
	w.mu.Unlock()
	plain, err := wcbridge.Open(&p, key)
	if err != nil {
		w.t.Errorf("fake wallet cannot decrypt: %v", err)
		return
	}
	id := gjson.GetBytes(plain, "id").Int()
	method := gjson.GetBytes(plain, "method").String()

	w.mu.Lock()
	w.methods = append(w.methods, method)
	silent := w.silent[method]
	rpcErr := w.errors[method]
	accounts, chainID := w.accounts, w.chainID
	w.mu.Unlock()
	if silent {
		return
	}
	if rpcErr != nil {
		w.send(map[string]interface{}{"id": id, "jsonrpc": "2.0", "error": rpcErr})
		return
	}

	switch method {
	case "wc_sessionRequest":
		w.send(map[string]interface{}{"id": id, "jsonrpc": "2.0", "result": map[string]interface{}{
			"approved": true,
			"chainId":  chainID,
			"accounts": accounts,
			"peerId":   "wallet-peer",
			"peerMeta": ClientMeta{Name: "Rainbow", URL: "https://rainbow.me", Icons: []string{"https://rainbow.me/icon.png"}},
		}})
	case "wc_sessionUpdate":
		var update sessionParams
		assert.NoError(w.t, json.Unmarshal([]byte(gjson.GetBytes(plain, "params.0").Raw), &update))
		w.mu.Lock()
		w.updates = append(w.updates, update)
		w.mu.Unlock()
	case "eth_accounts":
		w.send(map[string]interface{}{"id": id, "jsonrpc": "2.0", "result": accounts})
	default:
		w.send(map[string]interface{}{"id": id, "jsonrpc": "2.0", "result": nil})
	}
}

// send encrypts v and publishes it on the dapp's topic.
func (w *fakeWallet) send(v interface{}) {
	raw, err := json.Marshal(v)
	assert.NoError(w.t, err)
	w.mu.Lock()
	defer w.mu.Unlock()
	sealed, err := wcbridge.Seal(raw, w.key)
	if !assert.NoError(w.t, err) {
		return
	}
	payload, _ := json.Marshal(sealed)
	msg := wcMessage{Topic: w.clientID, Type: "pub", Payload: string(payload)}
	assert.NoError(w.t, w.conn.WriteMessage(websocket.TextMessage, msg.Marshal()))
}

func (w *fakeWallet) pushUpdate(p sessionParams) {
	w.send(map[string]interface{}{
		"id":      payloadID(),
		"jsonrpc": "2.0",
		"method":  "wc_sessionUpdate",
		"params":  []interface{}{p},
	})
}

func (w *fakeWallet) receivedMethods() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.methods...)
}

func int64Ptr(v int64) *int64 {
	return &v
}

func storedSessionFor(w *fakeWallet, t *testing.T) *StoredSession {
	key, err := wcbridge.GenerateRandomBytes(wcbridge.KeySize)
	require.NoError(t, err)
	w.setKey(key)
	return &StoredSession{
		Connected:      true,
		BridgeURL:      w.bridgeURL(),
		Key:            hex.EncodeToString(key),
		ClientID:       "dapp-client",
		PeerID:         "wallet-peer",
		PeerMeta:       ClientMeta{Name: "Trust Wallet", Icons: []string{"https://trust/icon.png"}},
		HandshakeTopic: "handshake",
		Accounts:       []string{"0xAbC0000000000000000000000000000000000001"},
		ChainID:        56,
	}
}

func TestEnableNewPairing(t *testing.T) {
	w := newFakeWallet(t)
	store := NewMemoryStore()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var displayed string
	s, err := NewSession(ctx, Options{
		BridgeURL:  w.bridgeURL(),
		ChainID:    56,
		ClientMeta: ClientMeta{Name: "moff wallet"},
		DisplayURI: func(uri string) error {
			displayed = uri
			return nil
		},
	}, store)
	require.NoError(t, err)
	defer s.Close()
	assert.Empty(t, s.CachedAccounts())
	png, err := s.QRCodePNG(128)
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG", string(png[:4]))

	pairing, err := wcbridge.ParsePairingURI(s.URI())
	require.NoError(t, err)
	w.setKey(pairing.Key)

	accounts, err := s.Enable(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"0xAbC0000000000000000000000000000000000001"}, accounts)
	assert.Equal(t, s.URI(), displayed)
	assert.Equal(t, int64(1), s.ChainID())
	name, url, icons := s.PeerMeta()
	assert.Equal(t, "Rainbow", name)
	assert.Equal(t, "https://rainbow.me", url)
	assert.Equal(t, []string{"https://rainbow.me/icon.png"}, icons)

	stored, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.Connected)
	assert.Equal(t, "wallet-peer", stored.PeerID)
	assert.Equal(t, accounts, stored.Accounts)
}

func TestEnableRejected(t *testing.T) {
	w := newFakeWallet(t)
	w.failWith("wc_sessionRequest", &RPCError{Code: -32000, Message: "Session Rejected"})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := NewSession(ctx, Options{BridgeURL: w.bridgeURL()}, nil)
	require.NoError(t, err)
	defer s.Close()
	pairing, err := wcbridge.ParsePairingURI(s.URI())
	require.NoError(t, err)
	w.setKey(pairing.Key)

	_, err = s.Enable(ctx)
	assert.ErrorIs(t, err, ErrSessionRejected)
}

func TestResumeStoredSessionAndRequest(t *testing.T) {
	w := newFakeWallet(t)
	store := NewMemoryStore()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, store.Save(ctx, storedSessionFor(w, t)))

	s, err := NewSession(ctx, Options{
		DisplayURI: func(string) error {
			t.Error("resumed session must not display a pairing uri")
			return nil
		},
	}, store)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, []string{"0xAbC0000000000000000000000000000000000001"}, s.CachedAccounts())
	assert.Equal(t, int64(56), s.ChainID())

	accounts, err := s.Enable(ctx)
	require.NoError(t, err)
	assert.Equal(t, s.CachedAccounts(), accounts)

	var live []string
	require.NoError(t, s.Request(ctx, &live, "eth_accounts"))
	assert.Equal(t, accounts, live)

	w.failWith("wallet_switchEthereumChain", &RPCError{Code: 4902, Message: "Unrecognized chain ID"})
	err = s.Request(ctx, nil, "wallet_switchEthereumChain", map[string]string{"chainId": "0x38"})
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, 4902, rpcErr.ErrorCode())
	assert.NotContains(t, w.receivedMethods(), "wc_sessionRequest")
}

func TestRequestHonoursContext(t *testing.T) {
	w := newFakeWallet(t)
	w.silent["eth_accounts"] = true
	store := NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), storedSessionFor(w, t)))

	s, err := NewSession(context.Background(), Options{}, store)
	require.NoError(t, err)
	defer s.Close()
	_, err = s.Enable(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Request(ctx, nil, "eth_accounts"), context.DeadlineExceeded)
}

func TestSessionUpdateEvents(t *testing.T) {
	w := newFakeWallet(t)
	store := NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), storedSessionFor(w, t)))

	s, err := NewSession(context.Background(), Options{}, store)
	require.NoError(t, err)
	defer s.Close()

	chains := make(chan int64, 1)
	accounts := make(chan []string, 1)
	disconnected := make(chan error, 1)
	s.OnChainChanged(func(id int64) { chains <- id })
	s.OnAccountsChanged(func(a []string) { accounts <- a })
	s.OnDisconnect(func(err error) { disconnected <- err })

	_, err = s.Enable(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.clientID == "dapp-client"
	}, time.Second, 5*time.Millisecond)

	w.pushUpdate(sessionParams{Approved: true, ChainID: int64Ptr(1), Accounts: []string{"0xAbC0000000000000000000000000000000000001"}})
	select {
	case id := <-chains:
		assert.Equal(t, int64(1), id)
	case <-time.After(2 * time.Second):
		t.Fatal("chainChanged not emitted")
	}
	assert.Empty(t, accounts)

	w.pushUpdate(sessionParams{Approved: false})
	select {
	case err := <-disconnected:
		assert.ErrorIs(t, err, ErrSessionClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect not emitted")
	}
	stored, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, stored)
	assert.ErrorIs(t, s.Request(context.Background(), nil, "eth_accounts"), ErrSessionClosed)
}

func TestRemoveAllListeners(t *testing.T) {
	w := newFakeWallet(t)
	store := NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), storedSessionFor(w, t)))
	s, err := NewSession(context.Background(), Options{}, store)
	require.NoError(t, err)
	defer s.Close()

	fired := make(chan struct{}, 1)
	s.OnChainChanged(func(int64) { fired <- struct{}{} })
	s.RemoveAllListeners()
	s.applySessionUpdate(sessionParams{Approved: true, ChainID: int64Ptr(137)})
	assert.Empty(t, fired)
	assert.Equal(t, int64(137), s.ChainID())
}

func TestDisconnectNotifiesWallet(t *testing.T) {
	w := newFakeWallet(t)
	store := NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), storedSessionFor(w, t)))
	s, err := NewSession(context.Background(), Options{}, store)
	require.NoError(t, err)
	_, err = s.Enable(context.Background())
	require.NoError(t, err)

	disconnected := make(chan error, 1)
	s.OnDisconnect(func(err error) { disconnected <- err })
	require.NoError(t, s.Disconnect(context.Background()))

	assert.NoError(t, <-disconnected)
	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return len(w.updates) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.False(t, w.updates[0].Approved)

	stored, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, stored)
	assert.False(t, s.Connected())
}

func TestCloseKeepsStoredSession(t *testing.T) {
	w := newFakeWallet(t)
	store := NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), storedSessionFor(w, t)))
	s, err := NewSession(context.Background(), Options{}, store)
	require.NoError(t, err)
	_, err = s.Enable(context.Background())
	require.NoError(t, err)

	s.Close()
	stored, err := store.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, stored)

	resumed, err := NewSession(context.Background(), Options{}, store)
	require.NoError(t, err)
	assert.Equal(t, stored.Accounts, resumed.CachedAccounts())
	_, err = s.Enable(context.Background())
	assert.ErrorIs(t, err, ErrSessionClosed)
}
