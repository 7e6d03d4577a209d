package transport

import "time"

// AEAD is the required external envelope collaborator: given
// a plaintext of n bytes, Seal returns the wire-ready ciphertext of
// n+Overhead() bytes; Open is its inverse. GenerateKey derives a labeled
// subkey, used by the connection constructor to seed the initial
// next-send-id/next-recv-expected-id pairs so they are not known
// plaintext to an observer. Nothing else is derived from it; padding
// comes from the separately supplied Padder.
//
// A concrete implementation lives in package cryptoaead.
type AEAD interface {
	Seal(dst, plaintext []byte) []byte
	Open(dst, ciphertext []byte) ([]byte, error)
	Overhead() int
	GenerateKey(label string, out []byte) error
}

// EntropyPool supplies cryptographically strong random bytes, standing in
// for the original's Fortuna-style collector.
type EntropyPool interface {
	Read(out []byte) error
}

// Clock abstracts wall-clock time so tests can drive ticks deterministically.
type Clock interface {
	NowMs() int64
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

func (SystemClock) NowMs() int64 { return time.Now().UnixMilli() }

// DatagramSink is the outbound half of the datagram I/O collaborator.
// PostDatagrams is a batched variant; Connection posts each flushed
// cluster through PostDatagram and does not call PostDatagrams.
type DatagramSink interface {
	PostDatagram(b []byte) error
	PostDatagrams(bs [][]byte) error
}

// Padder optionally pads outbound datagrams with exponentially
// distributed random lengths derived from a keyed PRF, mitigating
// traffic analysis. The
// default is a no-op.
type Padder interface {
	PadLength(payloadLen, maxPayload int) int
}

// NoopPadder never adds padding.
type NoopPadder struct{}

func (NoopPadder) PadLength(payloadLen, maxPayload int) int { return payloadLen }

// Allocator abstracts buffer allocation, standing in for the original's
// process-wide allocator singleton. Connection uses it only for the
// padding bytes appended to a flushed cluster; fragment reassembly and
// cluster buffers are allocated with make.
type Allocator interface {
	Alloc(n int) []byte
}

// DefaultAllocator is a plain make()-backed Allocator.
type DefaultAllocator struct{}

func (DefaultAllocator) Alloc(n int) []byte { return make([]byte, 0, n) }
