// Package irc is the chat-protocol side of the downloader: it opens the
// control connection, frames lines, turns the replies a transfer cares about
// into Events and sends the handful of commands negotiation needs.
//
// It is deliberately not a general IRC library. Lines that do not map onto an
// EventKind are logged and dropped.
package irc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/ergochat/irc-go/ircmsg"
	"github.com/mahirashab/irc-client/limits"
	"github.com/mahirashab/irc-client/transport"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var (
	// ErrClosed indicates a command was issued after Close.
	ErrClosed = errors.New("irc connection closed")

	// ErrSendQueueFull indicates the outbound queue is saturated.
	ErrSendQueueFull = errors.New("irc send queue full")

	// ErrInvalidCommand indicates a command could not be serialized as one line.
	ErrInvalidCommand = errors.New("invalid irc command")
)

const (
	sendQueueSize  = 64
	eventQueueSize = 64
	writeTimeout   = 30 * time.Second
	flushTimeout   = 2 * time.Second
	maxReadLine    = 8191 + limits.MaxLineLength // IRCv3 tags plus the message
)

// Options configures a connection.
type Options struct {
	Nick     string
	Username string
	Realname string
	Password string

	// SendInterval and SendBurst shape outbound traffic so the server's
	// flood protection never disconnects us.
	SendInterval time.Duration
	SendBurst    int
}

// DefaultOptions returns options for nick with conservative flood limits.
func DefaultOptions(nick string) Options {
	return Options{
		Nick:         nick,
		Username:     nick,
		Realname:     nick,
		SendInterval: 500 * time.Millisecond,
		SendBurst:    8,
	}
}

// Client is one control connection.
type Client struct {
	addr string
	conn net.Conn
	opts Options

	limiter *rate.Limiter
	events  chan Event
	outq    chan string

	nickMu     sync.RWMutex
	nick       string
	registered bool

	sendMu  sync.Mutex
	closing bool

	errMu sync.Mutex
	err   error

	ctx        context.Context
	cancel     context.CancelFunc
	readDone   chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once
}

// Dial connects to addr through dialer and starts the read and write pumps.
// Registration is not sent until Register is called.
func Dial(ctx context.Context, dialer transport.Dialer, addr string, opts Options) (*Client, error) {
	if opts.Nick == "" {
		return nil, errors.New("nick cannot be empty")
	}
	if opts.Username == "" {
		opts.Username = opts.Nick
	}
	if opts.Realname == "" {
		opts.Realname = opts.Nick
	}
	if opts.SendBurst <= 0 {
		opts.SendBurst = 1
	}

	logrus.WithFields(logrus.Fields{
		"function": "irc.Dial",
		"server":   addr,
		"nick":     opts.Nick,
	}).Info("Connecting to IRC server")

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "irc.Dial",
			"server":   addr,
			"error":    err.Error(),
		}).Error("Failed to connect to IRC server")
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	limit := rate.Inf
	if opts.SendInterval > 0 {
		limit = rate.Every(opts.SendInterval)
	}

	cctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		addr:       addr,
		conn:       conn,
		opts:       opts,
		limiter:    rate.NewLimiter(limit, opts.SendBurst),
		events:     make(chan Event, eventQueueSize),
		outq:       make(chan string, sendQueueSize),
		nick:       opts.Nick,
		ctx:        cctx,
		cancel:     cancel,
		readDone:   make(chan struct{}),
		writerDone: make(chan struct{}),
	}

	go c.readLoop()
	go c.writeLoop()

	return c, nil
}

// Events delivers parsed events in arrival order. It is closed when the
// connection ends; Err then reports why.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Err returns the error that ended the connection, if any.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Client) setErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

// Nick returns the nick the server knows us by.
func (c *Client) Nick() string {
	c.nickMu.RLock()
	defer c.nickMu.RUnlock()
	return c.nick
}

// Register sends the connection registration commands.
func (c *Client) Register() error {
	if c.opts.Password != "" {
		if err := c.send("PASS", c.opts.Password); err != nil {
			return err
		}
	}
	if err := c.send("NICK", c.Nick()); err != nil {
		return err
	}
	return c.send("USER", c.opts.Username, "0", "*", c.opts.Realname)
}

// Pong answers a keep-alive probe.
func (c *Client) Pong(token string) error {
	return c.send("PONG", token)
}

// Join joins channels with a single JOIN command.
func (c *Client) Join(channels ...string) error {
	if len(channels) == 0 {
		return nil
	}
	return c.send("JOIN", strings.Join(channels, ","))
}

// Whois asks the server about nick.
func (c *Client) Whois(nick string) error {
	return c.send("WHOIS", nick)
}

// Privmsg sends body to target.
func (c *Client) Privmsg(target, body string) error {
	return c.send("PRIVMSG", target, body)
}

// CTCP sends body to target as a CTCP request.
func (c *Client) CTCP(target, body string) error {
	return c.send("PRIVMSG", target, "\x01"+body+"\x01")
}

// Quit leaves the server. The line is flushed by Close.
func (c *Client) Quit(reason string) error {
	return c.send("QUIT", reason)
}

// send validates a command and queues it for the write pump.
func (c *Client) send(command string, params ...string) error {
	msg := ircmsg.MakeMessage(nil, "", command, params...)
	line, err := msg.Line()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidCommand, command, err)
	}
	line = strings.TrimRight(line, "\r\n")
	if err := limits.ValidateLine(line); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidCommand, command, err)
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closing {
		return ErrClosed
	}

	select {
	case c.outq <- line:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// writeLoop drains the queue through the flood limiter.
func (c *Client) writeLoop() {
	defer close(c.writerDone)

	for line := range c.outq {
		if err := c.limiter.Wait(c.ctx); err != nil {
			return
		}

		if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			c.setErr(err)
			return
		}
		if _, err := io.WriteString(c.conn, line+"\r\n"); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "writeLoop",
				"server":   c.addr,
				"error":    err.Error(),
			}).Warn("Failed to write to IRC server")
			c.setErr(err)
			c.conn.Close()
			return
		}

		logrus.WithFields(logrus.Fields{
			"function": "writeLoop",
			"line":     redact(line),
		}).Debug("Sent")
	}
}

// readLoop parses lines until the connection ends.
func (c *Client) readLoop() {
	defer close(c.readDone)
	defer close(c.events)

	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, 4096), maxReadLine)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}

		msg, err := ircmsg.ParseLine(line)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "readLoop",
				"line":     line,
				"error":    err.Error(),
			}).Debug("Dropping unparsable line")
			continue
		}

		ev, ok := c.translate(&msg)
		if !ok {
			continue
		}

		select {
		case c.events <- ev:
		case <-c.ctx.Done():
			return
		}
	}

	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	c.setErr(err)

	logrus.WithFields(logrus.Fields{
		"function": "readLoop",
		"server":   c.addr,
		"error":    err.Error(),
	}).Debug("IRC connection ended")
}

// translate maps a server line onto an Event. Nick collisions during
// registration are handled here so negotiation never sees them.
func (c *Client) translate(msg *ircmsg.Message) (Event, bool) {
	param := func(i int) string {
		if i < len(msg.Params) {
			return msg.Params[i]
		}
		return ""
	}
	last := param(len(msg.Params) - 1)

	switch msg.Command {
	case "001":
		c.nickMu.Lock()
		c.registered = true
		if p := param(0); p != "" {
			c.nick = p
		}
		c.nickMu.Unlock()
		return Event{Kind: EventWelcome, Source: msg.Source}, true

	case "PING":
		return Event{Kind: EventKeepAliveProbe, Source: msg.Source, Token: last}, true

	case "PRIVMSG", "NOTICE":
		return Event{
			Kind:   EventDirectedMessage,
			Source: nickOf(msg.Source),
			Target: param(0),
			Body:   last,
			Notice: msg.Command == "NOTICE",
		}, true

	case "366":
		return Event{Kind: EventChannelJoined, Channel: NormalizeChannel(param(1))}, true

	case "319":
		fields := strings.Fields(last)
		channels := make([]string, 0, len(fields))
		for _, f := range fields {
			channels = append(channels, NormalizeChannel(f))
		}
		return Event{Kind: EventPeerChannelList, Peer: param(1), Channels: channels}, true

	case "318":
		return Event{Kind: EventPeerLookupComplete, Peer: param(1)}, true

	case "401":
		return Event{Kind: EventPeerUnknown, Peer: param(1), Body: last}, true

	case "ERROR":
		return Event{Kind: EventServerError, Body: last}, true

	case "433":
		c.nickMu.Lock()
		retry := !c.registered
		if retry {
			c.nick += "_"
		}
		nick := c.nick
		c.nickMu.Unlock()
		if retry {
			logrus.WithFields(logrus.Fields{
				"function": "translate",
				"nick":     nick,
			}).Info("Nick in use, retrying registration")
			if err := c.send("NICK", nick); err != nil {
				c.setErr(err)
			}
		}
		return Event{}, false
	}

	logrus.WithFields(logrus.Fields{
		"function": "translate",
		"command":  msg.Command,
		"source":   msg.Source,
	}).Debug("Ignoring line")
	return Event{}, false
}

// Close flushes queued commands for a short while, then tears the connection
// down and waits for both pumps. It is safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.sendMu.Lock()
		c.closing = true
		close(c.outq)
		c.sendMu.Unlock()

		select {
		case <-c.writerDone:
		case <-time.After(flushTimeout):
		}

		c.cancel()
		err = c.conn.Close()
		<-c.writerDone
		<-c.readDone

		logrus.WithFields(logrus.Fields{
			"function": "irc.Close",
			"server":   c.addr,
		}).Debug("IRC connection closed")
	})
	return err
}

// redact hides the server password in debug logs.
func redact(line string) string {
	if strings.HasPrefix(line, "PASS ") {
		return "PASS ****"
	}
	return line
}
