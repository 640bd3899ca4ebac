package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mahirashab/irc-client/dcc"
	"github.com/mahirashab/irc-client/file"
	"github.com/mahirashab/irc-client/irc"
	"github.com/mahirashab/irc-client/pack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	kind   string
	target string
	body   string
}

type fakeCommander struct {
	nick    string
	sent    []sent
	joins   [][]string
	failErr error
}

func (f *fakeCommander) Nick() string { return f.nick }

func (f *fakeCommander) record(kind, target, body string) error {
	if f.failErr != nil {
		return f.failErr
	}
	f.sent = append(f.sent, sent{kind: kind, target: target, body: body})
	return nil
}

func (f *fakeCommander) Whois(nick string) error { return f.record("WHOIS", nick, "") }
func (f *fakeCommander) Pong(token string) error { return f.record("PONG", "", token) }
func (f *fakeCommander) Privmsg(target, body string) error { return f.record("PRIVMSG", target, body) }
func (f *fakeCommander) CTCP(target, body string) error { return f.record("CTCP", target, body) }

func (f *fakeCommander) Join(channels ...string) error {
	if len(channels) == 0 {
		return nil
	}
	f.joins = append(f.joins, channels)
	return f.record("JOIN", "", "")
}

func (f *fakeCommander) count(kind string) int {
	n := 0
	for _, s := range f.sent {
		if s.kind == kind {
			n++
		}
	}
	return n
}

type fakeOpener struct {
	modes []file.Mode
	err   error
}

func (f *fakeOpener) Open(mode file.Mode) error {
	f.modes = append(f.modes, mode)
	return f.err
}

type mockTimeProvider struct {
	now time.Time
}

func (m *mockTimeProvider) Now() time.Time { return m.now }

func (m *mockTimeProvider) NewTimer(d time.Duration) *time.Timer { return time.NewTimer(d) }

func (m *mockTimeProvider) Advance(d time.Duration) { m.now = m.now.Add(d) }

type fixture struct {
	pack    *pack.Pack
	cmd     *fakeCommander
	opener  *fakeOpener
	clock   *mockTimeProvider
	machine *Machine
	status  []string
}

func newFixture(t *testing.T, fallback ...string) *fixture {
	t.Helper()
	f := &fixture{
		pack:   pack.New("Bot", 7, fallback, t.TempDir()),
		cmd:    &fakeCommander{nick: "tester"},
		opener: &fakeOpener{},
		clock:  &mockTimeProvider{now: time.Unix(1_700_000_000, 0)},
	}
	cfg := DefaultConfig()
	cfg.TimeProvider = f.clock
	cfg.Status = func(s string) { f.status = append(f.status, s) }
	f.machine = NewMachine(f.pack, f.cmd, f.opener, cfg)
	return f
}

// negotiate drives the machine up to the point the pack request is sent,
// with the bot in no channels.
func (f *fixture) negotiate(t *testing.T) {
	t.Helper()
	require.Equal(t, OutcomeNone, f.machine.Handle(irc.Event{Kind: irc.EventWelcome, Source: "irc.example.net"}))
	require.Equal(t, OutcomeNone, f.machine.Handle(irc.Event{Kind: irc.EventPeerLookupComplete, Peer: "Bot"}))
	require.True(t, f.machine.State().Requested())
}

func (f *fixture) offer(body string) Outcome {
	return f.machine.Handle(irc.Event{Kind: irc.EventDirectedMessage, Source: "Bot", Target: "tester", Body: body})
}

const movieOffer = "\x01DCC SEND movie.mkv 3221225994 5000 1048576\x01"

func TestWelcomeQueriesBotAndJoinsFallback(t *testing.T) {
	f := newFixture(t, "#fallback")

	o := f.machine.Handle(irc.Event{Kind: irc.EventWelcome, Source: "irc.example.net"})
	assert.Equal(t, OutcomeNone, o)
	assert.Equal(t, PhaseAwaitingPeerInfo, f.machine.Phase())

	require.Len(t, f.cmd.sent, 3)
	assert.Equal(t, sent{kind: "WHOIS", target: "Bot"}, f.cmd.sent[0])
	assert.Equal(t, sent{kind: "PONG", body: "irc.example.net"}, f.cmd.sent[1])
	assert.Equal(t, [][]string{{"#fallback"}}, f.cmd.joins)
}

func TestKeepAliveAnswered(t *testing.T) {
	f := newFixture(t)
	f.machine.Handle(irc.Event{Kind: irc.EventKeepAliveProbe, Token: "abc"})
	assert.Equal(t, []sent{{kind: "PONG", body: "abc"}}, f.cmd.sent)
}

func TestRequestWaitsForRequiredChannels(t *testing.T) {
	f := newFixture(t)
	m := f.machine

	m.Handle(irc.Event{Kind: irc.EventWelcome})
	m.Handle(irc.Event{Kind: irc.EventPeerChannelList, Peer: "bot", Channels: []string{"#xdcc", "#chat"}})
	m.Handle(irc.Event{Kind: irc.EventPeerChannelList, Peer: "SomeoneElse", Channels: []string{"#other"}})
	m.Handle(irc.Event{Kind: irc.EventPeerLookupComplete, Peer: "Bot"})

	assert.Equal(t, PhaseJoiningChannels, m.Phase())
	assert.Equal(t, []string{"#chat", "#xdcc"}, f.cmd.joins[len(f.cmd.joins)-1])
	assert.Equal(t, 0, f.cmd.count("PRIVMSG"))

	m.Handle(irc.Event{Kind: irc.EventChannelJoined, Channel: "#XDCC"})
	assert.Equal(t, 0, f.cmd.count("PRIVMSG"))

	m.Handle(irc.Event{Kind: irc.EventChannelJoined, Channel: "#chat"})
	assert.Equal(t, 1, f.cmd.count("PRIVMSG"))
	assert.Equal(t, PhaseAwaitingOffer, m.Phase())
	assert.Equal(t, sent{kind: "PRIVMSG", target: "Bot", body: "xdcc send #7"}, f.cmd.sent[len(f.cmd.sent)-1])

	// A later join never triggers a second request.
	m.Handle(irc.Event{Kind: irc.EventChannelJoined, Channel: "#late"})
	assert.Equal(t, 1, f.cmd.count("PRIVMSG"))
}

func TestFallbackJoinRequestsBeforeLookup(t *testing.T) {
	f := newFixture(t, "#fallback")
	m := f.machine

	m.Handle(irc.Event{Kind: irc.EventWelcome})
	m.Handle(irc.Event{Kind: irc.EventChannelJoined, Channel: "#fallback"})
	assert.True(t, m.State().Requested())
	assert.Equal(t, PhaseAwaitingOffer, m.Phase())

	// A late lookup joins the bot's channels but never requests twice.
	m.Handle(irc.Event{Kind: irc.EventPeerChannelList, Peer: "Bot", Channels: []string{"#fallback", "#xdcc"}})
	m.Handle(irc.Event{Kind: irc.EventPeerLookupComplete, Peer: "Bot"})
	assert.Equal(t, 1, f.cmd.count("PRIVMSG"))
	assert.Equal(t, PhaseAwaitingOffer, m.Phase())
	assert.Equal(t, []string{"#xdcc"}, f.cmd.joins[len(f.cmd.joins)-1])
}

func TestLookupNeverCompletes(t *testing.T) {
	f := newFixture(t, "#fallback")
	m := f.machine

	m.Handle(irc.Event{Kind: irc.EventWelcome})

	f.clock.Advance(59 * time.Second)
	assert.Equal(t, OutcomeNone, m.CheckReplies(f.clock.Now()))
	assert.False(t, m.State().Requested())

	f.clock.Advance(time.Second)
	assert.Equal(t, OutcomeNone, m.CheckReplies(f.clock.Now()))
	assert.True(t, m.State().Requested())
	assert.Equal(t, PhaseAwaitingOffer, m.Phase())

	// Without a reply the attempt still ends.
	var o Outcome
	for i := 0; i < 60 && o == OutcomeNone; i++ {
		f.clock.Advance(time.Minute)
		o = m.CheckReplies(f.clock.Now())
	}
	assert.Equal(t, NoReply, o)
	assert.Equal(t, 6, f.cmd.count("PRIVMSG"))
}

func TestEmptyLookupRequestsImmediately(t *testing.T) {
	f := newFixture(t)
	f.negotiate(t)
	assert.Equal(t, PhaseAwaitingOffer, f.machine.Phase())
	assert.Equal(t, []string{"Requested the package"}, f.status[len(f.status)-1:])
}

func TestPeerUnknown(t *testing.T) {
	f := newFixture(t)
	f.machine.Handle(irc.Event{Kind: irc.EventWelcome})

	assert.Equal(t, OutcomeNone, f.machine.Handle(irc.Event{Kind: irc.EventPeerUnknown, Peer: "Other"}))

	o := f.machine.Handle(irc.Event{Kind: irc.EventPeerUnknown, Peer: "Bot"})
	assert.Equal(t, PeerUnknown, o)
	assert.Equal(t, PhaseTerminal, f.machine.Phase())
	assert.ErrorIs(t, f.machine.Err(), ErrPeerUnknown)

	// Terminal machines ignore further events.
	assert.Equal(t, OutcomeNone, f.offer(movieOffer))
}

func TestServerErrorIsConnectionFailure(t *testing.T) {
	f := newFixture(t)
	o := f.machine.Handle(irc.Event{Kind: irc.EventServerError, Body: "Closing Link"})
	assert.Equal(t, ConnectionFailure, o)
}

func TestFreshOfferOpensDataChannel(t *testing.T) {
	f := newFixture(t)
	f.negotiate(t)

	o := f.offer(movieOffer)
	assert.Equal(t, OutcomeNone, o)
	assert.Equal(t, PhaseTransferring, f.machine.Phase())
	assert.Equal(t, []file.Mode{file.ModeFresh}, f.opener.modes)
	assert.True(t, f.machine.State().Replied())

	addr, err := f.pack.Address()
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.10:5000", addr)
	size, ok := f.pack.Size()
	assert.True(t, ok)
	assert.Equal(t, uint64(1048576), size)

	// A duplicate offer mid-transfer is ignored.
	assert.Equal(t, OutcomeNone, f.offer(movieOffer))
	assert.Len(t, f.opener.modes, 1)
}

func TestAlreadyCompleteOpensNothing(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.pack.Dir, "movie.mkv"), make([]byte, 1048576), 0o644))
	f.negotiate(t)

	o := f.offer(movieOffer)
	assert.Equal(t, AlreadyComplete, o)
	assert.True(t, o.Success())
	assert.Empty(t, f.opener.modes)
}

func TestPartialFileResumes(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.pack.Dir, "movie.mkv"), make([]byte, 500000), 0o644))
	f.negotiate(t)

	assert.Equal(t, OutcomeNone, f.offer(movieOffer))
	assert.Empty(t, f.opener.modes)

	last := f.cmd.sent[len(f.cmd.sent)-1]
	assert.Equal(t, sent{kind: "CTCP", target: "Bot", body: "DCC RESUME movie.mkv 5000 500000"}, last)

	o := f.offer("\x01DCC ACCEPT movie.mkv 5000 500000\x01")
	assert.Equal(t, OutcomeNone, o)
	assert.Equal(t, []file.Mode{file.ModeAppend}, f.opener.modes)
	assert.Equal(t, uint64(500000), f.pack.Progress())
	assert.Equal(t, PhaseTransferring, f.machine.Phase())
}

func TestAcceptBehindLocalSizeTruncates(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(f.pack.Dir, "movie.mkv")
	require.NoError(t, os.WriteFile(path, make([]byte, 500000), 0o644))
	f.negotiate(t)
	f.offer(movieOffer)

	o := f.offer("\x01DCC ACCEPT movie.mkv 5000 400000\x01")
	assert.Equal(t, OutcomeNone, o)
	assert.Equal(t, []file.Mode{file.ModeAppend}, f.opener.modes)
	assert.Equal(t, uint64(400000), f.pack.Progress())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(400000), info.Size())
}

func TestAcceptBeyondLocalSizeIsNoReply(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(f.pack.Dir, "movie.mkv")
	require.NoError(t, os.WriteFile(path, make([]byte, 500000), 0o644))
	f.negotiate(t)
	f.offer(movieOffer)

	o := f.offer("\x01DCC ACCEPT movie.mkv 5000 600000\x01")
	assert.Equal(t, NoReply, o)
	assert.ErrorIs(t, f.machine.Err(), dcc.ErrMalformed)
	assert.Empty(t, f.opener.modes)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(500000), info.Size())
}

func TestResumeNeverAccepted(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.pack.Dir, "movie.mkv"), make([]byte, 10), 0o644))
	f.negotiate(t)
	f.offer(movieOffer)

	f.clock.Advance(59 * time.Second)
	assert.Equal(t, OutcomeNone, f.machine.CheckReplies(f.clock.Now()))

	f.clock.Advance(time.Second)
	assert.Equal(t, NoReply, f.machine.CheckReplies(f.clock.Now()))
	assert.ErrorIs(t, f.machine.Err(), ErrNoReply)
}

func TestAcceptWithoutOfferIsNoReply(t *testing.T) {
	f := newFixture(t)
	f.negotiate(t)
	o := f.offer("\x01DCC ACCEPT movie.mkv 5000 500000\x01")
	assert.Equal(t, NoReply, o)
	assert.Empty(t, f.opener.modes)
}

func TestMalformedOffers(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing fields", "\x01DCC SEND movie.mkv 3221225994\x01"},
		{"bad address", "\x01DCC SEND movie.mkv not-an-ip 5000 10\x01"},
		{"passive", "\x01DCC SEND movie.mkv 3221225994 0 10 77\x01"},
		{"traversal", "\x01DCC SEND .. 3221225994 5000 10\x01"},
		{"bad accept", "\x01DCC ACCEPT movie.mkv 5000\x01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.negotiate(t)
			assert.Equal(t, NoReply, f.offer(tt.body))
			assert.Empty(t, f.opener.modes)
		})
	}
}

func TestOpenFailureClassified(t *testing.T) {
	f := newFixture(t)
	f.opener.err = &dcc.Error{Op: dcc.OpDial, Addr: "192.0.2.10:5000", Err: errors.New("refused")}
	f.negotiate(t)

	assert.Equal(t, ConnectionFailure, f.offer(movieOffer))
}

func TestMessagesFromOthersIgnored(t *testing.T) {
	f := newFixture(t)
	f.negotiate(t)

	m := f.machine
	assert.Equal(t, OutcomeNone, m.Handle(irc.Event{Kind: irc.EventDirectedMessage, Source: "Mallory", Target: "tester", Body: movieOffer}))
	assert.Equal(t, OutcomeNone, m.Handle(irc.Event{Kind: irc.EventDirectedMessage, Source: "Bot", Target: "#xdcc", Body: movieOffer}))
	assert.Empty(t, f.opener.modes)
	assert.False(t, m.State().Replied())
}

func TestBotTextPublished(t *testing.T) {
	f := newFixture(t)
	f.negotiate(t)

	o := f.machine.Handle(irc.Event{Kind: irc.EventDirectedMessage, Source: "Bot", Target: "tester", Body: "Invalid Pack Number", Notice: true})
	assert.Equal(t, OutcomeNone, o)
	assert.Equal(t, "Bot: Invalid Pack Number", f.status[len(f.status)-1])
	assert.False(t, f.machine.State().Replied())
}

func TestLivenessResendsThenGivesUp(t *testing.T) {
	f := newFixture(t)
	f.negotiate(t)
	m := f.machine

	f.clock.Advance(59 * time.Second)
	assert.Equal(t, OutcomeNone, m.CheckReplies(f.clock.Now()))
	assert.Equal(t, 1, f.cmd.count("PRIVMSG"))

	for i := 2; i <= 6; i++ {
		f.clock.Advance(time.Minute)
		assert.Equal(t, OutcomeNone, m.CheckReplies(f.clock.Now()))
		assert.Equal(t, i, f.cmd.count("PRIVMSG"))
	}

	f.clock.Advance(time.Minute)
	assert.Equal(t, NoReply, m.CheckReplies(f.clock.Now()))
	assert.Equal(t, 6, f.cmd.count("PRIVMSG"))
}

func TestReplyAt59SecondsCancelsResend(t *testing.T) {
	f := newFixture(t)
	f.negotiate(t)

	f.clock.Advance(59 * time.Second)
	require.Equal(t, OutcomeNone, f.offer(movieOffer))

	f.clock.Advance(10 * time.Minute)
	assert.Equal(t, OutcomeNone, f.machine.CheckReplies(f.clock.Now()))
	assert.Equal(t, 1, f.cmd.count("PRIVMSG"))
}

func TestCheckRepliesBeforeWelcome(t *testing.T) {
	f := newFixture(t)

	f.clock.Advance(time.Hour)
	assert.Equal(t, OutcomeNone, f.machine.CheckReplies(f.clock.Now()))
	assert.Equal(t, 0, f.cmd.count("PRIVMSG"))
}

func TestUnconfirmedJoinsRequestAfterTimeout(t *testing.T) {
	f := newFixture(t)
	m := f.machine
	m.Handle(irc.Event{Kind: irc.EventWelcome})
	m.Handle(irc.Event{Kind: irc.EventPeerChannelList, Peer: "Bot", Channels: []string{"#secret"}})
	m.Handle(irc.Event{Kind: irc.EventPeerLookupComplete, Peer: "Bot"})
	require.False(t, m.State().Requested())

	f.clock.Advance(time.Minute)
	assert.Equal(t, OutcomeNone, m.CheckReplies(f.clock.Now()))
	assert.True(t, m.State().Requested())
}

func TestCommandFailureEndsAttempt(t *testing.T) {
	f := newFixture(t)
	f.cmd.failErr = errors.New("irc connection closed")
	o := f.machine.Handle(irc.Event{Kind: irc.EventWelcome})
	assert.Equal(t, ConnectionFailure, o)
	assert.Equal(t, PhaseTerminal, f.machine.Phase())
}
