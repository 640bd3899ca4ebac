package status

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mitchellh/colorstring"
	"github.com/schollz/progressbar/v3"
)

// RefreshInterval is how often the printers redraw.
const RefreshInterval = 100 * time.Millisecond

// Source is what the progress printer reads about the file being fetched.
type Source interface {
	FileName() string
	Size() (uint64, bool)
	Progress() uint64
}

// Printer draws a Board onto a terminal.
type Printer struct {
	out      io.Writer
	board    *Board
	colors   colorstring.Colorize
	interval time.Duration
}

// NewPrinter returns a printer writing to out. Colour escapes are omitted
// when color is false.
func NewPrinter(out io.Writer, board *Board, color bool) *Printer {
	return &Printer{
		out:   out,
		board: board,
		colors: colorstring.Colorize{
			Colors:  colorstring.DefaultColors,
			Disable: !color,
			Reset:   true,
		},
		interval: RefreshInterval,
	}
}

func (p *Printer) paint(style, text string) string {
	return p.colors.Color(style) + text + p.colors.Color("[reset]")
}

// Run draws the status messages and then the progress bar. Both share one
// goroutine so the status line is erased before the bar first renders.
func (p *Printer) Run(ctx context.Context, src Source) error {
	if err := p.Messages(ctx); err != nil {
		return err
	}
	return p.Progress(ctx, src)
}

// Messages redraws the status message from the first Publish until the
// transfer starts or the attempt ends.
func (p *Printer) Messages(ctx context.Context) error {
	select {
	case <-p.board.Ready():
	case <-p.board.Done():
		return nil
	case <-ctx.Done():
		return nil
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	previous := 0
	draw := func() {
		msg := " " + p.board.Message() + " "
		if previous > len(msg) {
			fmt.Fprint(p.out, "\r"+strings.Repeat(" ", previous))
		}
		fmt.Fprint(p.out, "\r"+p.paint("[_light_green_][black]", msg))
		previous = len(msg)
	}
	erase := func() {
		fmt.Fprint(p.out, "\r"+strings.Repeat(" ", previous)+"\r")
	}

	for {
		draw()
		select {
		case <-ticker.C:
		case <-p.board.Transferring():
			erase()
			return nil
		case <-p.board.Done():
			erase()
			return nil
		case <-ctx.Done():
			erase()
			return nil
		}
	}
}

// Progress drives a progress bar from src once the transfer starts, until
// the attempt ends.
func (p *Printer) Progress(ctx context.Context, src Source) error {
	select {
	case <-p.board.Transferring():
	case <-p.board.Done():
		return nil
	case <-ctx.Done():
		return nil
	}

	size, _ := src.Size()
	name := src.FileName()
	bar := progressbar.NewOptions64(int64(size),
		progressbar.OptionSetWriter(p.out),
		progressbar.OptionSetDescription(name),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(p.interval),
		progressbar.OptionSetRenderBlankState(true),
	)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	update := func() {
		description := name
		if bps := p.board.Speed(); bps > 0 {
			description = fmt.Sprintf("%s (%s/s)", name, humanize.IBytes(bps))
		}
		bar.Describe(description)
		_ = bar.Set64(int64(src.Progress()))
	}

	for {
		update()
		select {
		case <-ticker.C:
		case <-p.board.Done():
			update()
			_ = bar.Exit()
			fmt.Fprintln(p.out)
			return nil
		case <-ctx.Done():
			_ = bar.Exit()
			fmt.Fprintln(p.out)
			return nil
		}
	}
}

// Summary is the single line reported for a finished download.
type Summary struct {
	Message string
	Success bool
	Path    string
	Bytes   uint64
}

// Final prints the summary line.
func (p *Printer) Final(s Summary) {
	line := " " + s.Message
	if s.Success && s.Path != "" {
		line += fmt.Sprintf(": %s (%s)", s.Path, humanize.IBytes(s.Bytes))
	}
	line += " "

	style := "[_light_green_][black]"
	if !s.Success {
		style = "[_light_yellow_][light_red]"
	}
	fmt.Fprintln(p.out, p.paint(style, line))
}
