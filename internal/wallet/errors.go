package wallet

import (
	"fmt"

	"moff.io/moff-wallet/pkg/errors"
)

var (
	ErrConnection          = errors.New("wallet connection failed")
	ErrNoUsableSession     = errors.New("no usable remote session")
	ErrInjectedUnavailable = errors.New("injected wallet not available")
	ErrNotConnected        = errors.New("wallet not connected")
	ErrChainSwitch         = errors.New("switch chain failed")
	ErrChainSwitchDisabled = errors.New("wallet does not support chain switching")
	ErrChainInfoMissing    = errors.New("target chain metadata missing")
	ErrBalanceFetch        = errors.New("fetch target chain balance failed")
)

// codeChainUnrecognized is the wallet_switchEthereumChain error code for a
// chain the wallet has never been told about.
const codeChainUnrecognized = 4902

// rpcCoder is satisfied by go-ethereum rpc errors and walletconnect.RPCError.
type rpcCoder interface {
	ErrorCode() int
}

func errorCode(err error) (int, bool) {
	var coder rpcCoder
	if errors.As(err, &coder) {
		return coder.ErrorCode(), true
	}
	return 0, false
}

// kindError ties a cause to one of the sentinels above so callers can test
// both with errors.Is / errors.As.
type kindError struct {
	kind error
	msg  string
	err  error
}

func newKindError(kind error, err error, format string, args ...interface{}) error {
	return &kindError{kind: kind, msg: fmt.Sprintf(format, args...), err: err}
}

func (e *kindError) Error() string {
	if e.msg == "" {
		return fmt.Sprintf("%v: %v", e.kind, e.err)
	}
	return fmt.Sprintf("%v: %v: %v", e.kind, e.msg, e.err)
}

func (e *kindError) Unwrap() error {
	return e.err
}

func (e *kindError) Is(target error) bool {
	return target == e.kind
}
