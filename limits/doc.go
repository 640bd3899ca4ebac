// Package limits provides centralized protocol and resource limits for the
// XDCC client. Keeping them in one place ensures the IRC collaborator, the
// DCC data channel and the retry supervisor enforce the same bounds.
//
// # Limit Hierarchy
//
//   - MaxLineLength (512 bytes): the IRC line limit including the trailing
//     CRLF. Outbound commands longer than this are rejected before they reach
//     the wire, since servers truncate or drop them.
//
//   - ReceiveBufferSize (2048 bytes): the size of one DCC read. Each chunk read
//     from the data channel is followed by exactly one acknowledgment.
//
//   - MaxFileNameLength (255 bytes): matches typical filesystem limits and
//     bounds file names announced by the peer.
//
//   - MaxAttempts and MaxRequestResends: the retry bounds. An attempt number
//     above MaxAttempts is never started, and an offer request is resent at most
//     MaxRequestResends times before the bot is considered silent.
//
// # Validation Functions
//
//	if err := limits.ValidateLine(line); err != nil {
//	    // ErrLineEmpty, ErrLineTooLong or ErrLineControl
//	}
//
//	if err := limits.ValidateFileName(name); err != nil {
//	    // ErrFileNameEmpty or ErrFileNameTooLong
//	}
//
// All size errors wrap a sentinel and carry the actual and maximum sizes.
package limits
