package dcc

import (
	"encoding/binary"
	"math"
)

// Width is the integer width acknowledgments are encoded with.
type Width uint8

const (
	// Width32 is the initial 4-byte width every transfer starts with.
	Width32 Width = iota
	// Width32Long is the intermediate 4-byte width tried before going to 8 bytes.
	Width32Long
	// Width64 is the 8-byte width used once progress passes 4 GiB.
	Width64

	widthCount
)

// Bytes returns the encoded size of w.
func (w Width) Bytes() int {
	if w == Width64 {
		return 8
	}
	return 4
}

// Max returns the largest value representable at w.
func (w Width) Max() uint64 {
	if w == Width64 {
		return math.MaxUint64
	}
	return math.MaxUint32
}

func (w Width) String() string {
	switch w {
	case Width32:
		return "uint32"
	case Width32Long:
		return "uint32-long"
	case Width64:
		return "uint64"
	}
	return "unknown"
}

// AckEncoder turns cumulative progress into big-endian acknowledgment frames.
// Its width only ever grows. The zero value starts at Width32.
type AckEncoder struct {
	width Width
}

// Width returns the width the next acknowledgment will be tried at.
func (e *AckEncoder) Width() Width {
	return e.width
}

// Encode returns the frame for progress, escalating the width when progress
// does not fit. It reports false when no width can hold the value, in which
// case the acknowledgment is skipped.
func (e *AckEncoder) Encode(progress uint64) ([]byte, bool) {
	for e.width < widthCount {
		if progress <= e.width.Max() {
			buf := make([]byte, e.width.Bytes())
			if e.width == Width64 {
				binary.BigEndian.PutUint64(buf, progress)
			} else {
				binary.BigEndian.PutUint32(buf, uint32(progress))
			}
			return buf, true
		}
		if e.width+1 == widthCount {
			return nil, false
		}
		e.width++
	}
	return nil, false
}
