// Package pack describes the file an XDCC download is after.
//
// A Pack names the bot and pack number to request, the fallback channels to
// join first and the directory to save into. Those identity fields survive
// retries. The offer-derived fields (file name, size, peer address and port)
// and the progress counters are per attempt and cleared by Reset.
package pack

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mahirashab/irc-client/file"
	"github.com/mahirashab/irc-client/limits"
	"github.com/sirupsen/logrus"
)

// ErrSizeChanged indicates an offer declared a different size than the one
// already fixed for this attempt.
var ErrSizeChanged = errors.New("declared size changed within attempt")

// ErrNoOffer indicates an operation needs offer information that has not arrived.
var ErrNoOffer = errors.New("no offer received")

// Pack is the transfer descriptor shared by the negotiation state machine and
// the data channel. All mutation happens on the polling goroutine; progress is
// atomic because the presentation tasks read it concurrently.
type Pack struct {
	Bot              string
	Number           int
	FallbackChannels []string
	Dir              string

	mu          sync.RWMutex
	fileName    string
	size        uint64
	sizeKnown   bool
	addr        net.IP
	port        int
	requests    int
	lastRequest time.Time

	progress atomic.Uint64
}

// New creates a descriptor for pack number of bot, saved into dir.
func New(bot string, number int, fallbackChannels []string, dir string) *Pack {
	if dir == "" {
		dir = "."
	}
	channels := make([]string, len(fallbackChannels))
	copy(channels, fallbackChannels)

	return &Pack{
		Bot:              bot,
		Number:           number,
		FallbackChannels: channels,
		Dir:              dir,
	}
}

// SetInfo records the details of an offer. The file name must be a plain
// name inside Dir and the size may not change once fixed in this attempt.
func (p *Pack) SetInfo(fileName string, addr net.IP, port int, size uint64) error {
	if err := limits.ValidateFileName(fileName); err != nil {
		return err
	}
	if _, err := file.SafeJoin(p.Dir, fileName); err != nil {
		return err
	}
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port %d", port)
	}
	if addr == nil {
		return errors.New("missing peer address")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sizeKnown && p.size != size {
		return fmt.Errorf("%w: %d then %d", ErrSizeChanged, p.size, size)
	}

	p.fileName = fileName
	p.size = size
	p.sizeKnown = true
	p.addr = addr
	p.port = port

	logrus.WithFields(logrus.Fields{
		"function":  "SetInfo",
		"bot":       p.Bot,
		"file_name": fileName,
		"peer":      addr.String(),
		"port":      port,
		"size":      size,
	}).Debug("Offer recorded")

	return nil
}

// FileName returns the file name resolved from the offer.
func (p *Pack) FileName() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fileName
}

// Size returns the declared size and whether an offer has fixed it yet.
func (p *Pack) Size() (uint64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.size, p.sizeKnown
}

// Address returns the peer's host:port for the data channel.
func (p *Pack) Address() (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.addr == nil {
		return "", ErrNoOffer
	}
	return net.JoinHostPort(p.addr.String(), strconv.Itoa(p.port)), nil
}

// Port returns the peer's declared port.
func (p *Pack) Port() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.port
}

// Path returns where the file is saved.
func (p *Pack) Path() (string, error) {
	name := p.FileName()
	if name == "" {
		return "", ErrNoOffer
	}
	return file.SafeJoin(p.Dir, name)
}

// FileExists reports whether the target file is already on disk.
func (p *Pack) FileExists() bool {
	path, err := p.Path()
	if err != nil {
		return false
	}
	_, ok := file.Size(path)
	return ok
}

// CurrentSize returns the size of the target file on disk, 0 if absent.
func (p *Pack) CurrentSize() uint64 {
	path, err := p.Path()
	if err != nil {
		return 0
	}
	n, _ := file.Size(path)
	return uint64(n)
}

// Truncate cuts the target file on disk down to n bytes.
func (p *Pack) Truncate(n uint64) error {
	path, err := p.Path()
	if err != nil {
		return err
	}
	return file.Truncate(path, int64(n))
}

// Progress returns the number of bytes of the file received so far.
func (p *Pack) Progress() uint64 {
	return p.progress.Load()
}

// SetProgress sets the progress to a resume offset.
func (p *Pack) SetProgress(n uint64) {
	p.progress.Store(n)
}

// AddProgress adds n received bytes and returns the new total.
func (p *Pack) AddProgress(n uint64) uint64 {
	return p.progress.Add(n)
}

// Complete reports whether progress has reached the declared size.
func (p *Pack) Complete() bool {
	size, ok := p.Size()
	return ok && p.Progress() >= size
}

// PackageRequest returns the message asking the bot for this pack.
func (p *Pack) PackageRequest() string {
	return fmt.Sprintf("xdcc send #%d", p.Number)
}

// ResumeRequest returns the CTCP body asking the bot to resume at the local size.
func (p *Pack) ResumeRequest() string {
	return fmt.Sprintf("DCC RESUME %s %d %d", quoteName(p.FileName()), p.Port(), p.CurrentSize())
}

func quoteName(name string) string {
	if strings.ContainsAny(name, " \t") {
		return `"` + name + `"`
	}
	return name
}

// MarkRequested records that the offer request was sent at now.
func (p *Pack) MarkRequested(now time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests++
	p.lastRequest = now
	return p.requests
}

// Requests returns how many offer requests were sent and when the last one went out.
func (p *Pack) Requests() (int, time.Time) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.requests, p.lastRequest
}

// Reset clears everything learned during an attempt. Identity fields are kept.
func (p *Pack) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.fileName = ""
	p.size = 0
	p.sizeKnown = false
	p.addr = nil
	p.port = 0
	p.requests = 0
	p.lastRequest = time.Time{}
	p.progress.Store(0)
}

// String identifies the pack in logs.
func (p *Pack) String() string {
	return fmt.Sprintf("%s#%d", p.Bot, p.Number)
}
