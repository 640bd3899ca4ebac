package ircclient

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/mahirashab/irc-client/config"
	"github.com/mahirashab/irc-client/engine"
	"github.com/mahirashab/irc-client/irc"
	"github.com/mahirashab/irc-client/limits"
	"github.com/mahirashab/irc-client/pack"
	"github.com/mahirashab/irc-client/session"
	"github.com/mahirashab/irc-client/status"
	"github.com/mahirashab/irc-client/transport"
	"github.com/sirupsen/logrus"
)

// Result describes a finished download.
type Result struct {
	Outcome  session.Outcome
	Attempts int
	Path     string
	Bytes    uint64
}

// DownloadError is returned when a download ends without the file.
type DownloadError struct {
	Outcome  session.Outcome
	Attempts int
	Err      error
}

func (e *DownloadError) Error() string {
	msg := fmt.Sprintf("download failed after %d attempt(s): %s", e.Attempts, e.Outcome.Message())
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// Downloader is the retry supervisor around the download engine.
type Downloader struct {
	pack *pack.Pack

	maxAttempts int
	retryDelay  time.Duration

	attempt func(ctx context.Context) session.Outcome
	lastErr func() error
	sleep   func(ctx context.Context, d time.Duration) error

	printer *status.Printer
}

// New builds a downloader from cfg. Status output goes to out unless cfg is
// quiet or out is nil.
func New(cfg *config.Config, out io.Writer) (*Downloader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dialer, err := transport.NewDialer(cfg.Proxy, transport.DefaultDialTimeout)
	if err != nil {
		return nil, err
	}

	if cfg.Quiet {
		out = nil
	}

	p := pack.New(cfg.Bot, cfg.Pack, cfg.Channels, cfg.Directory)
	eng, err := engine.New(p, engine.Config{
		Address: cfg.Address(),
		IRC: irc.Options{
			Nick:         cfg.Nick,
			Username:     cfg.Username,
			Realname:     cfg.Realname,
			Password:     cfg.Password,
			SendInterval: cfg.SendInterval,
			SendBurst:    8,
		},
		Dialer: dialer,
		Session: session.Config{
			ReplyTimeout: cfg.ReplyTimeout,
			MaxResends:   cfg.MaxResends,
		},
		PollInterval: cfg.PollInterval,
		Output:       out,
		Color:        !cfg.NoColor,
	})
	if err != nil {
		return nil, err
	}

	d := newDownloader(p, eng.Run, eng.Err, cfg.MaxAttempts, cfg.RetryDelay)
	if out != nil {
		d.printer = status.NewPrinter(out, status.NewBoard(), !cfg.NoColor)
	}
	return d, nil
}

func newDownloader(p *pack.Pack, attempt func(context.Context) session.Outcome, lastErr func() error, maxAttempts int, retryDelay time.Duration) *Downloader {
	if maxAttempts <= 0 {
		maxAttempts = limits.MaxAttempts
	}
	return &Downloader{
		pack:        p,
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
		attempt:     attempt,
		lastErr:     lastErr,
		sleep:       sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pack returns the descriptor being downloaded.
func (d *Downloader) Pack() *pack.Pack {
	return d.pack
}

// Download runs attempts until one succeeds, one fails for good, the attempt
// bound is reached or ctx is cancelled.
func (d *Downloader) Download(ctx context.Context) (Result, error) {
	var (
		outcome  session.Outcome
		attempts int
		cause    error
	)

	for {
		if attempts >= d.maxAttempts {
			outcome = session.RetriesExhausted
			break
		}
		attempts++
		if attempts > 1 {
			d.pack.Reset()
		}

		outcome = d.attempt(ctx)
		cause = d.lastErr()

		fields := logrus.Fields{
			"function": "Download",
			"pack":     d.pack.String(),
			"attempt":  attempts,
			"outcome":  outcome.String(),
		}
		if cause != nil {
			fields["error"] = cause.Error()
		}
		logrus.WithFields(fields).Info("Attempt ended")

		if !outcome.Retryable() || ctx.Err() != nil {
			break
		}

		if outcome.Delayed() {
			logrus.WithFields(logrus.Fields{
				"function": "Download",
				"delay":    d.retryDelay.String(),
			}).Debug("Pausing before retry")
			if err := d.sleep(ctx, d.retryDelay); err != nil {
				cause = err
				break
			}
		}
	}

	result := Result{Outcome: outcome, Attempts: attempts}
	if outcome.Success() {
		result.Path, _ = d.pack.Path()
		result.Bytes = d.pack.CurrentSize()
	}

	d.report(result)

	if outcome.Success() {
		return result, nil
	}
	return result, &DownloadError{Outcome: outcome, Attempts: attempts, Err: cause}
}

func (d *Downloader) report(r Result) {
	logrus.WithFields(logrus.Fields{
		"function": "Download",
		"pack":     d.pack.String(),
		"outcome":  r.Outcome.String(),
		"attempts": r.Attempts,
		"path":     r.Path,
		"bytes":    r.Bytes,
	}).Info(r.Outcome.Message())

	if d.printer != nil {
		d.printer.Final(status.Summary{
			Message: r.Outcome.Message(),
			Success: r.Outcome.Success(),
			Path:    r.Path,
			Bytes:   r.Bytes,
		})
	}
}
