// Package status renders what a download is doing: a one-line status message
// while negotiating, a progress bar while transferring and a final coloured
// summary line.
//
// The polling loop publishes to a Board; the printers only read from it and
// block on its notification channels instead of spinning.
package status

import (
	"sync"
	"sync/atomic"
)

// Board is the status shared between the polling loop and the printers.
// Writers and readers never lock each other; the last write wins.
type Board struct {
	message atomic.Pointer[string]
	speed   atomic.Uint64

	ready        chan struct{}
	transferring chan struct{}
	done         chan struct{}

	readyOnce        sync.Once
	transferringOnce sync.Once
	doneOnce         sync.Once
}

// NewBoard returns an empty board.
func NewBoard() *Board {
	return &Board{
		ready:        make(chan struct{}),
		transferring: make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Publish replaces the status message and marks the board ready.
func (b *Board) Publish(msg string) {
	b.message.Store(&msg)
	b.readyOnce.Do(func() { close(b.ready) })
}

// Message returns the latest status message.
func (b *Board) Message() string {
	if msg := b.message.Load(); msg != nil {
		return *msg
	}
	return ""
}

// SetSpeed records the current throughput in bytes per second.
func (b *Board) SetSpeed(bps uint64) {
	b.speed.Store(bps)
}

// Speed returns the last recorded throughput.
func (b *Board) Speed() uint64 {
	return b.speed.Load()
}

// StartTransfer signals that bytes are flowing.
func (b *Board) StartTransfer() {
	b.transferringOnce.Do(func() { close(b.transferring) })
}

// Finish signals the end of the attempt. The printers return after it.
func (b *Board) Finish() {
	b.doneOnce.Do(func() { close(b.done) })
}

// Ready is closed by the first Publish.
func (b *Board) Ready() <-chan struct{} { return b.ready }

// Transferring is closed by StartTransfer.
func (b *Board) Transferring() <-chan struct{} { return b.transferring }

// Done is closed by Finish.
func (b *Board) Done() <-chan struct{} { return b.done }
