package types

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an error per the runtime discipline: local recovery
// always, process termination never from a single frame. Only
// ConfigError ever reaches main with a non-zero exit.
type Kind int

const (
	// KindConfig is fatal: malformed or unreadable configuration.
	KindConfig Kind = iota
	// KindParse is a malformed or unrecognized wire frame; the
	// offending connection logs and continues.
	KindParse
	// KindNetwork is a write/connect failure; it drives the dead-peer
	// and election paths. Never logged as fatal.
	KindNetwork
	// KindProtocol is a frame valid on the wire but unexpected for the
	// receiving role/state (e.g. a Follower receiving PaymentAccepted).
	KindProtocol
	// KindStock is insufficient ingredient stock for a container; it
	// becomes a CancelPayment, never a crash.
	KindStock
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindParse:
		return "parse"
	case KindNetwork:
		return "network"
	case KindProtocol:
		return "protocol"
	case KindStock:
		return "stock"
	default:
		return "unknown"
	}
}

// KindedError carries a Kind alongside the wrapped cause so callers can
// recover the kind with errors.Cause/errors.As after it has travelled
// across an actor boundary.
type KindedError struct {
	Kind Kind
	Err  error
}

func (e *KindedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *KindedError) Unwrap() error {
	return e.Err
}

func newKinded(kind Kind, format string, args ...interface{}) *KindedError {
	return &KindedError{Kind: kind, Err: errors.Errorf(format, args...)}
}

// NewConfigError wraps a fatal configuration failure.
func NewConfigError(format string, args ...interface{}) error {
	return newKinded(KindConfig, format, args...)
}

// WrapConfigError attaches KindConfig to an underlying error.
func WrapConfigError(err error, message string) error {
	if err == nil {
		return nil
	}
	return &KindedError{Kind: KindConfig, Err: errors.Wrap(err, message)}
}

// NewParseError wraps a malformed or unknown frame.
func NewParseError(format string, args ...interface{}) error {
	return newKinded(KindParse, format, args...)
}

// WrapNetworkError attaches KindNetwork to a dial/write/read failure.
func WrapNetworkError(err error, message string) error {
	if err == nil {
		return nil
	}
	return &KindedError{Kind: KindNetwork, Err: errors.Wrap(err, message)}
}

// NewProtocolError wraps a frame unexpected for the current role/state.
func NewProtocolError(format string, args ...interface{}) error {
	return newKinded(KindProtocol, format, args...)
}

// NewStockError wraps insufficient-stock for a container.
func NewStockError(format string, args ...interface{}) error {
	return newKinded(KindStock, format, args...)
}

// KindOf recovers the Kind of err, defaulting to KindNetwork for plain
// errors raised outside this package (e.g. net.Conn failures), which is
// the runtime's default recovery path.
func KindOf(err error) Kind {
	var ke *KindedError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return KindNetwork
}
