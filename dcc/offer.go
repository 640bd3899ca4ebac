package dcc

import (
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// CTCPDelim wraps CTCP requests inside PRIVMSG/NOTICE bodies.
const CTCPDelim = "\x01"

const (
	sendMarker   = "DCC SEND "
	acceptMarker = "DCC ACCEPT "
)

// Kind classifies a directed message body.
type Kind uint8

const (
	// KindOther is any message that is not a DCC offer or resume accept.
	KindOther Kind = iota
	// KindSend is a DCC SEND offer.
	KindSend
	// KindAccept is a DCC ACCEPT reply to a resume request.
	KindAccept
)

// Offer is a parsed DCC SEND.
type Offer struct {
	FileName string
	Addr     net.IP
	Port     int
	Size     uint64
}

// Accept is a parsed DCC ACCEPT.
type Accept struct {
	FileName string
	Port     int
	Offset   uint64
}

// Classify reports which DCC message, if any, body carries.
func Classify(body string) Kind {
	if !strings.Contains(body, "DCC") {
		return KindOther
	}
	switch {
	case strings.Contains(body, sendMarker):
		return KindSend
	case strings.Contains(body, acceptMarker):
		return KindAccept
	}
	return KindOther
}

// CTCP wraps body in CTCP delimiters.
func CTCP(body string) string {
	return CTCPDelim + body + CTCPDelim
}

// ParseOffer parses "\x01DCC SEND <file> <ip> <port> <size>\x01". The file
// name may be double-quoted; the address may be a decimal IPv4 integer or an
// address literal.
func ParseOffer(body string) (*Offer, error) {
	args, err := argsAfter(body, sendMarker)
	if err != nil {
		return nil, err
	}
	if len(args) < 4 {
		return nil, fmt.Errorf("%w: SEND needs 4 fields, got %d", ErrMalformed, len(args))
	}

	addr, err := ParseAddr(args[1])
	if err != nil {
		return nil, err
	}

	port, err := parsePort(args[2])
	if err != nil {
		return nil, err
	}
	if port == 0 {
		return nil, ErrPassiveUnsupported
	}

	size, err := strconv.ParseUint(args[3], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: size %q", ErrMalformed, args[3])
	}

	return &Offer{
		FileName: args[0],
		Addr:     addr,
		Port:     port,
		Size:     size,
	}, nil
}

// ParseAccept parses "\x01DCC ACCEPT <file> <port> <offset>\x01".
func ParseAccept(body string) (*Accept, error) {
	args, err := argsAfter(body, acceptMarker)
	if err != nil {
		return nil, err
	}
	if len(args) < 3 {
		return nil, fmt.Errorf("%w: ACCEPT needs 3 fields, got %d", ErrMalformed, len(args))
	}

	port, err := parsePort(args[1])
	if err != nil {
		return nil, err
	}

	offset, err := strconv.ParseUint(args[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: offset %q", ErrMalformed, args[2])
	}

	return &Accept{
		FileName: args[0],
		Port:     port,
		Offset:   offset,
	}, nil
}

// ParseAddr decodes a DCC peer address.
func ParseAddr(s string) (net.IP, error) {
	if n, err := strconv.ParseUint(s, 10, 32); err == nil {
		ip := make(net.IP, net.IPv4len)
		binary.BigEndian.PutUint32(ip, uint32(n))
		return ip, nil
	}
	if ip := net.ParseIP(s); ip != nil {
		return ip, nil
	}
	return nil, fmt.Errorf("%w: address %q", ErrMalformed, s)
}

func parsePort(s string) (int, error) {
	port, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: port %q", ErrMalformed, s)
	}
	return int(port), nil
}

// argsAfter strips the CTCP delimiters, locates marker and splits what
// follows into fields, keeping a leading double-quoted file name intact.
func argsAfter(body, marker string) ([]string, error) {
	body = strings.Trim(body, CTCPDelim+" \r\n")
	_, rest, found := strings.Cut(body, marker)
	if !found {
		return nil, fmt.Errorf("%w: missing %q", ErrMalformed, strings.TrimSpace(marker))
	}
	rest = strings.TrimSpace(rest)

	if !strings.HasPrefix(rest, `"`) {
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			return nil, fmt.Errorf("%w: no fields", ErrMalformed)
		}
		return fields, nil
	}

	end := strings.Index(rest[1:], `"`)
	if end < 0 {
		return nil, fmt.Errorf("%w: unterminated quoted name", ErrMalformed)
	}
	name := rest[1 : end+1]
	return append([]string{name}, strings.Fields(rest[end+2:])...), nil
}
