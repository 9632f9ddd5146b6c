// Package framer recovers octet-counted syslog frames ("LENGTH SP BODY")
// from an arbitrarily fragmented byte stream.
package framer

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/thisisjab/sluice/fault"
)

const (
	// DefaultMaxFrame bounds the payload length a sender may declare.
	DefaultMaxFrame = 64 * 1024
	// DefaultMaxBuffer bounds the bytes held while waiting for a complete frame.
	DefaultMaxBuffer = 1 << 20

	// maxPrefixBytes is how far we look for the length/payload separator
	// before declaring the prefix malformed.
	maxPrefixBytes = 16
	// maxPrefixDigits caps the decimal length prefix.
	maxPrefixDigits = 10
)

// Framer holds the partial-frame state of one stream connection. Not safe
// for concurrent use; every connection owns exactly one instance.
type Framer struct {
	buf       []byte
	maxFrame  int
	maxBuffer int
}

// New creates a framer. Zero limits select the defaults.
func New(maxFrame, maxBuffer int) *Framer {
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrame
	}
	if maxBuffer <= 0 {
		maxBuffer = DefaultMaxBuffer
	}
	return &Framer{maxFrame: maxFrame, maxBuffer: maxBuffer}
}

// Feed appends a chunk and returns every frame that became complete, in
// order. A non-nil error is a protocol violation: the connection must be
// closed and the framer discarded. Frames extracted before the violation
// are still returned alongside the error.
func (f *Framer) Feed(chunk []byte) ([]string, error) {
	f.buf = append(f.buf, chunk...)
	if len(f.buf) > f.maxBuffer {
		return nil, fault.New(fault.BufferOverflowCode,
			fmt.Sprintf("framer buffer exceeds %d bytes", f.maxBuffer))
	}

	var frames []string
	for {
		sep := bytes.IndexByte(f.buf, ' ')
		if sep < 0 {
			if len(f.buf) > maxPrefixBytes {
				return frames, fault.New(fault.MalformedPrefixCode,
					fmt.Sprintf("no length separator within %d bytes", maxPrefixBytes))
			}
			return frames, nil // need more data
		}
		if sep == 0 {
			return frames, fault.New(fault.MalformedPrefixCode, "empty length prefix")
		}
		if sep > maxPrefixDigits {
			return frames, fault.New(fault.MalformedPrefixCode,
				fmt.Sprintf("length prefix longer than %d digits", maxPrefixDigits))
		}

		length := 0
		for i := 0; i < sep; i++ {
			c := f.buf[i]
			if c < '0' || c > '9' {
				return frames, fault.New(fault.MalformedPrefixCode,
					fmt.Sprintf("non-digit %q in length prefix", c))
			}
			length = length*10 + int(c-'0')
		}
		if length < 1 || length > f.maxFrame {
			return frames, fault.New(fault.MalformedPrefixCode,
				fmt.Sprintf("declared length %d outside 1..%d", length, f.maxFrame))
		}

		total := sep + 1 + length
		if len(f.buf) < total {
			return frames, nil // need more data
		}

		frames = append(frames, strings.ToValidUTF8(string(f.buf[sep+1:total]), "�"))

		remaining := copy(f.buf, f.buf[total:])
		f.buf = f.buf[:remaining]
	}
}

// Buffered reports how many bytes are pending in the partial-frame buffer.
func (f *Framer) Buffered() int {
	return len(f.buf)
}
