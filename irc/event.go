package irc

import "strings"

// EventKind identifies the protocol events the negotiation layer consumes.
type EventKind uint8

const (
	// EventWelcome is RPL_WELCOME (001): registration succeeded.
	EventWelcome EventKind = iota + 1
	// EventKeepAliveProbe is a server PING.
	EventKeepAliveProbe
	// EventDirectedMessage is a PRIVMSG or NOTICE.
	EventDirectedMessage
	// EventChannelJoined is RPL_ENDOFNAMES (366), sent once a JOIN completes.
	EventChannelJoined
	// EventPeerChannelList is RPL_WHOISCHANNELS (319).
	EventPeerChannelList
	// EventPeerLookupComplete is RPL_ENDOFWHOIS (318).
	EventPeerLookupComplete
	// EventPeerUnknown is ERR_NOSUCHNICK (401).
	EventPeerUnknown
	// EventServerError is an ERROR line; the server is about to close the link.
	EventServerError
)

var eventNames = map[EventKind]string{
	EventWelcome:            "welcome",
	EventKeepAliveProbe:     "keepalive-probe",
	EventDirectedMessage:    "directed-message",
	EventChannelJoined:      "channel-joined",
	EventPeerChannelList:    "peer-channel-list",
	EventPeerLookupComplete: "peer-lookup-complete",
	EventPeerUnknown:        "peer-unknown",
	EventServerError:        "server-error",
}

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event is one parsed server line relevant to a transfer.
type Event struct {
	Kind EventKind

	// Source is the nick (or server name) that sent the line.
	Source string

	// Target is the receiver of a directed message.
	Target string

	// Body is the text of a directed message or ERROR line.
	Body string

	// Notice marks a directed message sent as NOTICE rather than PRIVMSG.
	Notice bool

	// Channel is the channel of a channel-joined event.
	Channel string

	// Peer is the nick a WHOIS-related event is about.
	Peer string

	// Channels lists the peer's channels, membership prefixes stripped.
	Channels []string

	// Token is the PING token to echo back.
	Token string
}

// membershipPrefixes are the status sigils servers put in front of channel
// names in RPL_WHOISCHANNELS.
const membershipPrefixes = "~&@%+"

// NormalizeChannel lowercases a channel name and strips membership prefixes.
// A sigil is only stripped when another sigil or '#' follows it, so local
// "&chan" and modeless "+chan" channels keep their names.
func NormalizeChannel(name string) string {
	for len(name) > 1 &&
		strings.ContainsRune(membershipPrefixes, rune(name[0])) &&
		strings.ContainsRune(membershipPrefixes+"#", rune(name[1])) {
		name = name[1:]
	}
	return strings.ToLower(name)
}

// nickOf returns the nick part of a nick!user@host source.
func nickOf(source string) string {
	nick, _, _ := strings.Cut(source, "!")
	return nick
}

// EqualFold compares nicks and channel names case-insensitively.
func EqualFold(a, b string) bool {
	return strings.EqualFold(a, b)
}
