// Package dcc implements the receiving side of a DCC SEND transfer.
//
// # Offers
//
// A bot offers a file with a CTCP message inside a PRIVMSG:
//
//	\x01DCC SEND <file> <ip> <port> <size>\x01
//
// The file name may be double-quoted and the address is usually a decimal
// IPv4 integer. After a DCC RESUME request the bot answers with
//
//	\x01DCC ACCEPT <file> <port> <offset>\x01
//
// ParseOffer and ParseAccept decode both; Classify tells them apart from
// ordinary text.
//
// # Data Channel
//
// Open dials the bot and starts a read pump. Chunks of at most
// limits.ReceiveBufferSize bytes arrive on Chunks in order, then the end of
// the stream on Closed. After every chunk the owner calls Ack with the
// cumulative byte count. Acks are written in the background, one at a time
// and in call order, so a slow peer never stalls reception. The first failed
// write is reported on AckErrors.
//
// # Acknowledgments
//
// An ack is the byte count as a bare big-endian integer. AckEncoder starts
// at 32 bits and widens to 64 once the count no longer fits; it never
// narrows again. Counts beyond every width are not acknowledged.
package dcc
