package session

import (
	"errors"

	"github.com/mahirashab/irc-client/dcc"
	"github.com/mahirashab/irc-client/file"
	"github.com/mahirashab/irc-client/limits"
	"github.com/mahirashab/irc-client/pack"
)

// Outcome is the result of one attempt. OutcomeNone means the attempt is
// still running; every other value ends it.
type Outcome uint8

const (
	OutcomeNone Outcome = iota
	ConnectionFailure
	NoReply
	PeerUnknown
	FlowControlFailure
	TransferIncomplete
	TransferComplete
	AlreadyComplete
	RetriesExhausted
)

var outcomeNames = map[Outcome]string{
	OutcomeNone:        "none",
	ConnectionFailure:  "connection-failure",
	NoReply:            "no-reply",
	PeerUnknown:        "peer-unknown",
	FlowControlFailure: "flow-control-failure",
	TransferIncomplete: "transfer-incomplete",
	TransferComplete:   "transfer-complete",
	AlreadyComplete:    "already-complete",
	RetriesExhausted:   "retries-exhausted",
}

var outcomeMessages = map[Outcome]string{
	ConnectionFailure:  "Connection failed",
	NoReply:            "No reply from bot",
	PeerUnknown:        "Bot not found on the network",
	FlowControlFailure: "Acknowledgment write failed",
	TransferIncomplete: "Transfer interrupted",
	TransferComplete:   "Download complete",
	AlreadyComplete:    "File already downloaded",
	RetriesExhausted:   "Giving up after too many retries",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return "unknown"
}

// Message is the human-readable status line for o.
func (o Outcome) Message() string {
	return outcomeMessages[o]
}

// Terminal reports whether o ends an attempt.
func (o Outcome) Terminal() bool {
	return o != OutcomeNone
}

// Success reports whether o ends the download successfully.
func (o Outcome) Success() bool {
	return o == TransferComplete || o == AlreadyComplete
}

// Retryable reports whether the supervisor should start another attempt.
func (o Outcome) Retryable() bool {
	switch o {
	case ConnectionFailure, FlowControlFailure, TransferIncomplete:
		return true
	}
	return false
}

// Delayed reports whether a retry after o waits for the retry delay first.
func (o Outcome) Delayed() bool {
	return o == FlowControlFailure || o == TransferIncomplete
}

// ErrPeerUnknown indicates the server does not know the bot's nick.
var ErrPeerUnknown = errors.New("peer unknown")

// ErrNoReply indicates the bot stopped answering offer requests.
var ErrNoReply = errors.New("no reply to offer request")

// Classify maps an error raised anywhere below the engine to the outcome
// that ends the attempt. Dial errors, context cancellation and anything
// unrecognized are connection failures.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeNone
	case errors.Is(err, ErrPeerUnknown):
		return PeerUnknown
	case errors.Is(err, ErrNoReply),
		errors.Is(err, dcc.ErrMalformed),
		errors.Is(err, dcc.ErrPassiveUnsupported),
		errors.Is(err, file.ErrDirectoryTraversal),
		errors.Is(err, limits.ErrFileNameEmpty),
		errors.Is(err, limits.ErrFileNameTooLong),
		errors.Is(err, pack.ErrSizeChanged):
		return NoReply
	case errors.Is(err, dcc.ErrAck):
		return FlowControlFailure
	}
	return ConnectionFailure
}
