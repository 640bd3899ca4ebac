package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/mahirashab/irc-client/dcc"
	"github.com/mahirashab/irc-client/file"
	"github.com/mahirashab/irc-client/irc"
	"github.com/mahirashab/irc-client/limits"
	"github.com/mahirashab/irc-client/pack"
	"github.com/sirupsen/logrus"
)

// Commander is the subset of the chat client the machine drives.
type Commander interface {
	Nick() string
	Whois(nick string) error
	Pong(token string) error
	Join(channels ...string) error
	Privmsg(target, body string) error
	CTCP(target, body string) error
}

// Opener opens the data channel and the download target for the pack's
// current offer. ModeAppend is used after a resume was accepted.
type Opener interface {
	Open(mode file.Mode) error
}

// Config tunes the liveness check.
type Config struct {
	// ReplyTimeout is how long to wait for the bot before resending.
	ReplyTimeout time.Duration
	// MaxResends bounds how many requests go out before giving up.
	MaxResends int

	TimeProvider TimeProvider

	// Status receives human-readable progress lines. May be nil.
	Status func(string)
}

// DefaultConfig returns the stock liveness settings.
func DefaultConfig() Config {
	return Config{
		ReplyTimeout: limits.ReplyTimeout,
		MaxResends:   limits.MaxRequestResends,
	}
}

type handler func(irc.Event) Outcome

// Machine turns chat events into transfer progress for one attempt. It is
// not safe for concurrent use; the polling loop owns it.
type Machine struct {
	pack   *pack.Pack
	cmd    Commander
	opener Opener
	cfg    Config
	tp     TimeProvider

	state    *State
	handlers map[irc.EventKind]handler
	err      error
}

// NewMachine creates a machine for p that issues commands through cmd and
// opens the data channel through opener.
func NewMachine(p *pack.Pack, cmd Commander, opener Opener, cfg Config) *Machine {
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = limits.ReplyTimeout
	}
	if cfg.MaxResends <= 0 {
		cfg.MaxResends = limits.MaxRequestResends
	}

	m := &Machine{
		pack:   p,
		cmd:    cmd,
		opener: opener,
		cfg:    cfg,
		tp:     getTimeProvider(cfg.TimeProvider),
		state:  NewState(),
	}
	m.handlers = map[irc.EventKind]handler{
		irc.EventWelcome:            m.onWelcome,
		irc.EventKeepAliveProbe:     m.onKeepAlive,
		irc.EventDirectedMessage:    m.onDirectedMessage,
		irc.EventChannelJoined:      m.onChannelJoined,
		irc.EventPeerChannelList:    m.onPeerChannelList,
		irc.EventPeerLookupComplete: m.onPeerLookupComplete,
		irc.EventPeerUnknown:        m.onPeerUnknown,
		irc.EventServerError:        m.onServerError,
	}
	return m
}

// Phase returns the current negotiation phase.
func (m *Machine) Phase() Phase {
	return m.state.Phase
}

// State exposes the session state for inspection.
func (m *Machine) State() *State {
	return m.state
}

// Err returns the error behind the terminal outcome, if any.
func (m *Machine) Err() error {
	return m.err
}

// Handle dispatches one event and returns the outcome it produced.
func (m *Machine) Handle(ev irc.Event) Outcome {
	if m.state.Phase == PhaseTerminal {
		return OutcomeNone
	}
	h, ok := m.handlers[ev.Kind]
	if !ok {
		return OutcomeNone
	}
	return m.settle(h(ev))
}

// CheckReplies is the liveness check run on idle polls.
func (m *Machine) CheckReplies(now time.Time) Outcome {
	s := m.state
	switch s.Phase {
	case PhaseTransferring, PhaseTerminal:
		return OutcomeNone
	}

	if !s.requested {
		since := s.welcomeAt
		if s.lookupDone {
			since = s.lookupAt
		}
		if since.IsZero() || now.Sub(since) < m.cfg.ReplyTimeout {
			return OutcomeNone
		}
		logrus.WithFields(logrus.Fields{
			"function":    "CheckReplies",
			"pack":        m.pack.String(),
			"lookup_done": s.lookupDone,
			"missing":     s.Missing(),
		}).Warn("Channel joins not confirmed, requesting anyway")
		return m.settle(m.request())
	}

	if !s.resumeAt.IsZero() && now.Sub(s.resumeAt) >= m.cfg.ReplyTimeout {
		return m.settle(m.fail(fmt.Errorf("%w: resume not accepted", ErrNoReply)))
	}

	if s.replied {
		return OutcomeNone
	}

	count, last := m.pack.Requests()
	if now.Sub(last) < m.cfg.ReplyTimeout {
		return OutcomeNone
	}
	if count > m.cfg.MaxResends {
		return m.settle(m.fail(fmt.Errorf("%w: %d requests", ErrNoReply, count)))
	}

	logrus.WithFields(logrus.Fields{
		"function": "CheckReplies",
		"pack":     m.pack.String(),
		"requests": count,
	}).Info("No reply from bot, resending request")
	return m.settle(m.request())
}

func (m *Machine) settle(o Outcome) Outcome {
	if o.Terminal() {
		m.state.Phase = PhaseTerminal
	}
	return o
}

func (m *Machine) fail(err error) Outcome {
	m.err = err
	o := Classify(err)

	logrus.WithFields(logrus.Fields{
		"function": "Machine.fail",
		"pack":     m.pack.String(),
		"outcome":  o.String(),
		"error":    err.Error(),
	}).Debug("Attempt ending")

	return o
}

func (m *Machine) status(msg string) {
	if m.cfg.Status != nil {
		m.cfg.Status(msg)
	}
}

func (m *Machine) isBot(nick string) bool {
	return irc.EqualFold(nick, m.pack.Bot)
}

func (m *Machine) onWelcome(ev irc.Event) Outcome {
	m.state.Phase = PhaseRegistered
	m.state.welcomeAt = m.tp.Now()
	m.status("User registered successfully")

	if err := m.cmd.Whois(m.pack.Bot); err != nil {
		return m.fail(err)
	}
	if ev.Source != "" {
		if err := m.cmd.Pong(ev.Source); err != nil {
			return m.fail(err)
		}
	}
	if err := m.cmd.Join(m.pack.FallbackChannels...); err != nil {
		return m.fail(err)
	}

	m.state.Phase = PhaseAwaitingPeerInfo
	return OutcomeNone
}

func (m *Machine) onKeepAlive(ev irc.Event) Outcome {
	if err := m.cmd.Pong(ev.Token); err != nil {
		return m.fail(err)
	}
	return OutcomeNone
}

func (m *Machine) onPeerChannelList(ev irc.Event) Outcome {
	if m.isBot(ev.Peer) {
		m.state.Require(ev.Channels...)
	}
	return OutcomeNone
}

func (m *Machine) onPeerLookupComplete(ev irc.Event) Outcome {
	if !m.isBot(ev.Peer) || m.state.lookupDone {
		return OutcomeNone
	}
	m.state.lookupDone = true
	m.state.lookupAt = m.tp.Now()

	if missing := m.state.Missing(); len(missing) > 0 {
		logrus.WithFields(logrus.Fields{
			"function": "onPeerLookupComplete",
			"bot":      m.pack.Bot,
			"channels": missing,
		}).Info("Joining bot channels")

		m.status("Joining channels " + strings.Join(missing, ", "))
		if err := m.cmd.Join(missing...); err != nil {
			return m.fail(err)
		}
		if !m.state.requested {
			m.state.Phase = PhaseJoiningChannels
		}
	}
	return m.maybeRequest()
}

func (m *Machine) onChannelJoined(ev irc.Event) Outcome {
	m.state.MarkJoined(ev.Channel)
	return m.maybeRequest()
}

func (m *Machine) onPeerUnknown(ev irc.Event) Outcome {
	if !m.isBot(ev.Peer) {
		return OutcomeNone
	}
	return m.fail(fmt.Errorf("%w: %s", ErrPeerUnknown, ev.Peer))
}

func (m *Machine) onServerError(ev irc.Event) Outcome {
	return m.fail(fmt.Errorf("server closed link: %s", ev.Body))
}

func (m *Machine) maybeRequest() Outcome {
	s := m.state
	if s.requested || !s.Satisfied() {
		return OutcomeNone
	}
	return m.request()
}

// request sends the offer request and stamps it.
func (m *Machine) request() Outcome {
	n := m.pack.MarkRequested(m.tp.Now())
	m.state.requested = true
	m.state.Phase = PhaseAwaitingOffer

	logrus.WithFields(logrus.Fields{
		"function": "request",
		"pack":     m.pack.String(),
		"attempt":  n,
	}).Info("Requesting pack")

	m.status("Requested the package")
	if err := m.cmd.Privmsg(m.pack.Bot, m.pack.PackageRequest()); err != nil {
		return m.fail(err)
	}
	return OutcomeNone
}

func (m *Machine) onDirectedMessage(ev irc.Event) Outcome {
	if !irc.EqualFold(ev.Target, m.cmd.Nick()) || !m.isBot(ev.Source) {
		return OutcomeNone
	}

	switch dcc.Classify(ev.Body) {
	case dcc.KindSend:
		return m.onOffer(ev.Body)
	case dcc.KindAccept:
		return m.onAccept(ev.Body)
	}

	if strings.HasPrefix(ev.Body, dcc.CTCPDelim) {
		logrus.WithFields(logrus.Fields{
			"function": "onDirectedMessage",
			"source":   ev.Source,
		}).Debug("Ignoring CTCP from bot")
		return OutcomeNone
	}

	logrus.WithFields(logrus.Fields{
		"function": "onDirectedMessage",
		"source":   ev.Source,
		"notice":   ev.Notice,
		"message":  ev.Body,
	}).Info("Message from bot")
	m.status(ev.Source + ": " + ev.Body)
	return OutcomeNone
}

func (m *Machine) onOffer(body string) Outcome {
	if m.state.Phase == PhaseTransferring {
		return OutcomeNone
	}
	m.state.replied = true

	offer, err := dcc.ParseOffer(body)
	if err != nil {
		return m.fail(err)
	}
	if err := m.pack.SetInfo(offer.FileName, offer.Addr, offer.Port, offer.Size); err != nil {
		return m.fail(err)
	}

	fields := logrus.Fields{
		"function":  "onOffer",
		"file_name": offer.FileName,
		"peer":      offer.Addr.String(),
		"port":      offer.Port,
		"size":      offer.Size,
	}

	if m.pack.FileExists() {
		local := m.pack.CurrentSize()
		if local >= offer.Size {
			logrus.WithFields(fields).Info("File already complete on disk")
			return AlreadyComplete
		}

		fields["offset"] = local
		logrus.WithFields(fields).Info("Requesting resume")
		m.status("Requested resume")
		if err := m.cmd.CTCP(m.pack.Bot, m.pack.ResumeRequest()); err != nil {
			return m.fail(err)
		}
		m.state.resumeAt = m.tp.Now()
		return OutcomeNone
	}

	logrus.WithFields(fields).Info("Offer received, starting transfer")
	return m.open(file.ModeFresh)
}

func (m *Machine) onAccept(body string) Outcome {
	if m.state.Phase == PhaseTransferring {
		return OutcomeNone
	}
	m.state.replied = true

	accept, err := dcc.ParseAccept(body)
	if err != nil {
		return m.fail(err)
	}
	if _, ok := m.pack.Size(); !ok {
		return m.fail(fmt.Errorf("%w: accept without offer", dcc.ErrMalformed))
	}

	switch local := m.pack.CurrentSize(); {
	case accept.Offset > local:
		return m.fail(fmt.Errorf("%w: resume offset %d beyond local size %d", dcc.ErrMalformed, accept.Offset, local))
	case accept.Offset < local:
		logrus.WithFields(logrus.Fields{
			"function": "onAccept",
			"offset":   accept.Offset,
			"local":    local,
		}).Warn("Resume offset behind local size, truncating")
		if err := m.pack.Truncate(accept.Offset); err != nil {
			return m.fail(err)
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":  "onAccept",
		"file_name": accept.FileName,
		"offset":    accept.Offset,
	}).Info("Resume accepted")

	m.pack.SetProgress(accept.Offset)
	return m.open(file.ModeAppend)
}

func (m *Machine) open(mode file.Mode) Outcome {
	if err := m.opener.Open(mode); err != nil {
		return m.fail(err)
	}
	m.state.resumeAt = time.Time{}
	m.state.Phase = PhaseTransferring
	return OutcomeNone
}
