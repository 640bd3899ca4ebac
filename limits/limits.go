package limits

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// MaxLineLength is the IRC protocol line limit, CRLF included.
	MaxLineLength = 512

	// MaxLinePayload is the room left for a command once CRLF is appended.
	MaxLinePayload = MaxLineLength - 2

	// ReceiveBufferSize is the number of bytes pulled from the data channel per read.
	ReceiveBufferSize = 2048

	// MaxFileNameLength is the maximum allowed file name length in bytes.
	MaxFileNameLength = 255

	// MaxAttempts is the highest attempt number the retry supervisor will start.
	MaxAttempts = 5

	// MaxRequestResends bounds how often an unanswered offer request is resent.
	MaxRequestResends = 5

	// ReplyTimeout is how long the bot has to answer an offer request.
	ReplyTimeout = 60 * time.Second

	// PollInterval is the readiness timeout of the download engine's loop.
	PollInterval = 200 * time.Millisecond

	// RetryDelay is the pause before retrying a transfer that broke mid-stream.
	RetryDelay = 3 * time.Second
)

var (
	// ErrLineEmpty indicates an empty outbound line.
	ErrLineEmpty = errors.New("empty line")

	// ErrLineTooLong indicates an outbound line exceeds MaxLinePayload.
	ErrLineTooLong = errors.New("line too long")

	// ErrLineControl indicates an outbound line contains CR, LF or NUL.
	ErrLineControl = errors.New("line contains forbidden control character")

	// ErrFileNameEmpty indicates an empty file name.
	ErrFileNameEmpty = errors.New("empty file name")

	// ErrFileNameTooLong indicates a file name exceeds MaxFileNameLength.
	ErrFileNameTooLong = errors.New("file name too long")
)

// ValidateLine validates an outbound IRC line, without its CRLF terminator.
// CR, LF and NUL inside the line would let a peer-controlled string inject
// extra commands, so they are rejected.
func ValidateLine(line string) error {
	if len(line) == 0 {
		return ErrLineEmpty
	}
	if len(line) > MaxLinePayload {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrLineTooLong, len(line), MaxLinePayload)
	}
	if strings.ContainsAny(line, "\r\n\x00") {
		return ErrLineControl
	}
	return nil
}

// ValidateFileName validates a file name announced by a peer.
func ValidateFileName(name string) error {
	if len(name) == 0 {
		return ErrFileNameEmpty
	}
	if len(name) > MaxFileNameLength {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrFileNameTooLong, len(name), MaxFileNameLength)
	}
	return nil
}
