package lifecycle

import (
	"errors"
	"fmt"

	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/contract"
)

type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"
	KindRejected    ErrorKind = "transaction_rejected"
	KindNetwork     ErrorKind = "network"
	KindFailed      ErrorKind = "transaction_failed"
	KindEventParse  ErrorKind = "event_parse"
	KindQuery       ErrorKind = "query"
	KindUnsupported ErrorKind = "unsupported"
)

// Error tags a failure with the kind the surface reports it as.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

var (
	ErrWalletNotConnected  = errors.New("wallet not connected")
	ErrInvalidAmount       = errors.New("amount must be a positive number")
	ErrInvalidRate         = errors.New("rate must be a positive number")
	ErrSenderNotRegistered = errors.New("sender agent is not registered on-chain")
	ErrNoCounterparts      = errors.New("no connected agents to stream to")
	ErrUnknownReceiver     = errors.New("receiver is not a connected agent")
	ErrReceiverIsSender    = errors.New("receiver must differ from sender")
	ErrNoStreamSelected    = errors.New("no stream selected")
	ErrNothingOwed         = errors.New("nothing owed on this stream")

	ErrPending  = errors.New("a transaction is pending")
	ErrFinished = errors.New("flow already finished")
	ErrNotFound = errors.New("flow not found")
)

func validation(err error) *Error {
	return &Error{Kind: KindValidation, Err: err}
}

// Classify maps a chain error onto the failure taxonomy.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var le *Error
	if errors.As(err, &le) {
		return le
	}
	switch {
	case errors.Is(err, contract.ErrTransactionRejected), errors.Is(err, contract.ErrNoWallet):
		return &Error{Kind: KindRejected, Err: err}
	case errors.Is(err, contract.ErrStreamClosed):
		return &Error{Kind: KindValidation, Err: err}
	case errors.Is(err, contract.ErrTransactionFailed):
		return &Error{Kind: KindFailed, Err: err}
	case errors.Is(err, contract.ErrUnsupportedAsset):
		return &Error{Kind: KindUnsupported, Err: err}
	case errors.Is(err, contract.ErrEventNotFound):
		return &Error{Kind: KindEventParse, Err: err}
	case errors.Is(err, contract.ErrNoData):
		return &Error{Kind: KindQuery, Err: err}
	default:
		return &Error{Kind: KindNetwork, Err: err}
	}
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var le *Error
	return errors.As(err, &le) && le.Kind == kind
}
