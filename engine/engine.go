// Package engine runs one download attempt: it connects to IRC, feeds the
// negotiation state machine, receives the file over the data channel and
// turns whatever ends the attempt into a session.Outcome.
//
// All protocol and transfer logic runs on the goroutine that calls Run. The
// IRC and DCC read pumps only hand it events and chunks over channels, and
// the status printers only read.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/mahirashab/irc-client/dcc"
	"github.com/mahirashab/irc-client/file"
	"github.com/mahirashab/irc-client/irc"
	"github.com/mahirashab/irc-client/limits"
	"github.com/mahirashab/irc-client/pack"
	"github.com/mahirashab/irc-client/session"
	"github.com/mahirashab/irc-client/status"
	"github.com/mahirashab/irc-client/transport"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Config configures an Engine.
type Config struct {
	// Address is the IRC server's host:port.
	Address string
	IRC     irc.Options

	// Dialer opens both the IRC and the DCC connections. Nil dials directly.
	Dialer transport.Dialer

	Session      session.Config
	PollInterval time.Duration
	TimeProvider session.TimeProvider

	// Output receives the status line and progress bar. Nil disables them.
	Output io.Writer
	Color  bool
}

// Engine drives attempts for one pack. Run may be called again after it
// returns; every call is a fresh attempt.
type Engine struct {
	cfg  Config
	pack *pack.Pack
	tp   session.TimeProvider

	err error
}

// New creates an engine downloading p.
func New(p *pack.Pack, cfg Config) (*Engine, error) {
	if cfg.Address == "" {
		return nil, errors.New("server address cannot be empty")
	}
	if cfg.Dialer == nil {
		d, err := transport.NewDialer(nil, transport.DefaultDialTimeout)
		if err != nil {
			return nil, err
		}
		cfg.Dialer = d
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = limits.PollInterval
	}
	tp := cfg.TimeProvider
	if tp == nil {
		tp = session.RealTimeProvider{}
	}
	cfg.Session.TimeProvider = tp

	return &Engine{cfg: cfg, pack: p, tp: tp}, nil
}

// Err returns the error behind the last attempt's outcome, if any.
func (e *Engine) Err() error {
	return e.err
}

// Run performs one attempt and returns its outcome. Connections and the
// output file are closed before it returns, whatever the outcome.
func (e *Engine) Run(ctx context.Context) session.Outcome {
	e.err = nil
	board := status.NewBoard()

	a := &attempt{
		id:     uuid.NewString(),
		ctx:    ctx,
		engine: e,
		board:  board,
		meter:  NewMeter(DefaultMeterWindow),
	}
	a.log = logrus.WithFields(logrus.Fields{
		"attempt": a.id,
		"pack":    e.pack.String(),
	})
	defer a.close()

	g, gctx := errgroup.WithContext(ctx)
	if e.cfg.Output != nil {
		printer := status.NewPrinter(e.cfg.Output, board, e.cfg.Color)
		g.Go(func() error { return printer.Run(gctx, e.pack) })
	}
	defer func() {
		board.Finish()
		_ = g.Wait()
	}()

	outcome := a.run()

	a.log.WithFields(logrus.Fields{
		"function": "Engine.Run",
		"outcome":  outcome.String(),
		"progress": e.pack.Progress(),
	}).Info("Attempt finished")

	return outcome
}

// attempt owns the resources of one Run.
type attempt struct {
	id     string
	ctx    context.Context
	engine *Engine
	board  *status.Board
	meter  *Meter
	log    *logrus.Entry

	client  *irc.Client
	channel *dcc.Channel
	writer  *file.Writer
}

func (a *attempt) fail(err error) session.Outcome {
	a.engine.err = err
	o := session.Classify(err)
	a.log.WithFields(logrus.Fields{
		"function": "attempt.fail",
		"outcome":  o.String(),
		"error":    err.Error(),
	}).Warn("Attempt failed")
	return o
}

func (a *attempt) run() session.Outcome {
	e := a.engine

	a.board.Publish("Connecting to " + e.cfg.Address)
	client, err := irc.Dial(a.ctx, e.cfg.Dialer, e.cfg.Address, e.cfg.IRC)
	if err != nil {
		return a.fail(err)
	}
	a.client = client
	a.board.Publish("Connected to server")

	if err := client.Register(); err != nil {
		return a.fail(err)
	}

	cfg := e.cfg.Session
	cfg.Status = a.board.Publish
	machine := session.NewMachine(e.pack, client, a, cfg)

	timer := e.tp.NewTimer(e.cfg.PollInterval)
	defer timer.Stop()

	events := client.Events()
	for {
		var (
			chunks  <-chan []byte
			closed  <-chan error
			ackErrs <-chan error
		)
		if a.channel != nil {
			chunks = a.channel.Chunks()
			closed = a.channel.Closed()
			ackErrs = a.channel.AckErrors()
		}

		var outcome session.Outcome
		select {
		case <-a.ctx.Done():
			return a.fail(a.ctx.Err())

		case ev, ok := <-events:
			if !ok {
				if a.channel == nil {
					return a.fail(fmt.Errorf("irc connection lost: %w", client.Err()))
				}
				a.log.WithField("function", "attempt.run").Warn("IRC connection lost during transfer")
				events = nil
				continue
			}
			outcome = machine.Handle(ev)
			if outcome.Terminal() && machine.Err() != nil {
				e.err = machine.Err()
			}

		case chunk := <-chunks:
			outcome = a.receive(chunk)

		case err := <-closed:
			outcome = a.closed(err)

		case err := <-ackErrs:
			outcome = a.fail(err)

		case <-timer.C:
			outcome = machine.CheckReplies(e.tp.Now())
			if outcome.Terminal() && machine.Err() != nil {
				e.err = machine.Err()
			}
		}

		if outcome.Terminal() {
			return outcome
		}
		timer.Reset(e.cfg.PollInterval)
	}
}

// Open implements session.Opener.
func (a *attempt) Open(mode file.Mode) error {
	p := a.engine.pack

	addr, err := p.Address()
	if err != nil {
		return err
	}
	path, err := p.Path()
	if err != nil {
		return err
	}

	ch, err := dcc.Open(a.ctx, a.engine.cfg.Dialer, addr)
	if err != nil {
		return err
	}
	w, err := file.Open(path, mode)
	if err != nil {
		ch.Close()
		return err
	}

	a.channel = ch
	a.writer = w
	a.meter.Reset()
	a.meter.Observe(a.engine.tp.Now(), p.Progress())
	a.board.StartTransfer()

	a.log.WithFields(logrus.Fields{
		"function": "attempt.Open",
		"peer":     addr,
		"path":     path,
		"mode":     mode.String(),
		"offset":   p.Progress(),
	}).Info("Data channel open")

	return nil
}

// receive appends one chunk, acknowledges the new total and reports
// completion once the declared size is reached.
func (a *attempt) receive(chunk []byte) session.Outcome {
	if err := a.writer.WriteChunk(chunk); err != nil {
		return a.fail(err)
	}

	p := a.engine.pack
	progress := p.AddProgress(uint64(len(chunk)))
	a.channel.Ack(progress)

	a.meter.Observe(a.engine.tp.Now(), progress)
	a.board.SetSpeed(a.meter.Rate())

	if p.Complete() {
		return session.TransferComplete
	}
	return session.OutcomeNone
}

// closed converts a peer-side close into complete or incomplete.
func (a *attempt) closed(err error) session.Outcome {
	p := a.engine.pack
	size, _ := p.Size()

	fields := logrus.Fields{
		"function": "attempt.closed",
		"progress": p.Progress(),
		"size":     size,
	}
	if err != nil && !errors.Is(err, io.EOF) {
		fields["error"] = err.Error()
	}
	a.log.WithFields(fields).Debug("Data channel closed by peer")

	if p.Complete() {
		return session.TransferComplete
	}
	a.engine.err = fmt.Errorf("transfer incomplete at %d of %d bytes: %w", p.Progress(), size, err)
	return session.TransferIncomplete
}

func (a *attempt) close() {
	if a.client != nil {
		_ = a.client.Quit("Download finished")
		if err := a.client.Close(); err != nil {
			a.log.WithFields(logrus.Fields{
				"function": "attempt.close",
				"error":    err.Error(),
			}).Debug("Closing IRC connection")
		}
	}
	if a.channel != nil {
		_ = a.channel.Close()
	}
	if a.writer != nil {
		_ = a.writer.Close()
	}
}
