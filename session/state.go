package session

import (
	"sort"
	"time"

	"github.com/mahirashab/irc-client/irc"
)

// Phase is the negotiation phase of one attempt.
type Phase uint8

const (
	PhaseDisconnected Phase = iota
	PhaseRegistered
	PhaseAwaitingPeerInfo
	PhaseJoiningChannels
	PhaseAwaitingOffer
	PhaseTransferring
	PhaseTerminal
)

var phaseNames = map[Phase]string{
	PhaseDisconnected:     "disconnected",
	PhaseRegistered:       "registered",
	PhaseAwaitingPeerInfo: "awaiting-peer-info",
	PhaseJoiningChannels:  "joining-channels",
	PhaseAwaitingOffer:    "awaiting-offer",
	PhaseTransferring:     "transferring",
	PhaseTerminal:         "terminal",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "unknown"
}

// State is the per-attempt negotiation state. Channel names are stored
// normalized so membership compares case-insensitively.
type State struct {
	Phase Phase

	required map[string]struct{}
	joined   map[string]struct{}

	welcomeAt  time.Time
	lookupDone bool
	lookupAt   time.Time

	requested bool
	replied   bool
	resumeAt  time.Time
}

// NewState returns the state of an attempt that has not connected yet.
func NewState() *State {
	return &State{
		required: make(map[string]struct{}),
		joined:   make(map[string]struct{}),
	}
}

// Require adds channels the bot is in to the set we must join.
func (s *State) Require(channels ...string) {
	for _, ch := range channels {
		if ch = irc.NormalizeChannel(ch); ch != "" {
			s.required[ch] = struct{}{}
		}
	}
}

// MarkJoined records a confirmed channel membership.
func (s *State) MarkJoined(channel string) {
	if channel = irc.NormalizeChannel(channel); channel != "" {
		s.joined[channel] = struct{}{}
	}
}

// Joined reports whether channel membership was confirmed.
func (s *State) Joined(channel string) bool {
	_, ok := s.joined[irc.NormalizeChannel(channel)]
	return ok
}

// Missing returns the required channels not joined yet, sorted.
func (s *State) Missing() []string {
	var missing []string
	for ch := range s.required {
		if _, ok := s.joined[ch]; !ok {
			missing = append(missing, ch)
		}
	}
	sort.Strings(missing)
	return missing
}

// Satisfied reports whether every required channel has been joined.
func (s *State) Satisfied() bool {
	for ch := range s.required {
		if _, ok := s.joined[ch]; !ok {
			return false
		}
	}
	return true
}

// LookupDone reports whether the bot's WHOIS reply has ended.
func (s *State) LookupDone() bool { return s.lookupDone }

// Requested reports whether the offer request has gone out.
func (s *State) Requested() bool { return s.requested }

// Replied reports whether the bot answered the offer request.
func (s *State) Replied() bool { return s.replied }

// Reset returns the state to the start of an attempt.
func (s *State) Reset() {
	*s = *NewState()
}
