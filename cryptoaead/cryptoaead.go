// Package cryptoaead provides a concrete transport.AEAD implementation.
//
// The transport's envelope contract calls for ChaCha20 with a Skein-MAC
// and an IV reconstructed from a replay window - machinery with no
// equivalent in the retrieval pack. This package is a deliberate substitution, not a
// faithful reimplementation: it reaches for the nearest real primitives
// the pack's own crypto usage (katzenpost's ratchet.go and stream.go)
// already depends on - golang.org/x/crypto's ChaCha20-Poly1305 AEAD,
// curve25519 for the key agreement the envelope's GenerateKey derives
// from, and HKDF-SHA256 for subkey derivation in the same style as
// stream.go's exchange().
package cryptoaead

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

var ErrOpenFailed = errors.New("cryptoaead: authentication failed")

// aeadCipher is the subset of cipher.AEAD that chacha20poly1305.New
// returns, named here so Envelope and deriveAEAD need not repeat the
// structural type.
type aeadCipher interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	Overhead() int
	NonceSize() int
}

// Envelope implements transport.AEAD over a single shared secret derived
// from a curve25519 key exchange. A monotonically increasing send
// sequence number stands in for the original's truncated, reconstructed
// IV: each Seal call mixes the next sequence number into the nonce so
// the wire never repeats one. Open keeps no replay window: a replayed
// datagram opens again, and while the transport drops reliable messages
// whose ACK-ID it already received, replayed unreliable, ACK and internal
// messages are processed again.
type Envelope struct {
	aead    aeadCipher
	sendSeq uint64
	prk     []byte // raw curve25519 shared secret, retained as HKDF input so GenerateKey can mint further labeled subkeys
}

// GenerateSharedSecret runs the curve25519 side of the key exchange the
// handshake layer performs before constructing a Connection. It is exposed
// here only so demo/test code can stand up a connected pair without a
// real handshake layer.
func GenerateSharedSecret() (priv, pub [32]byte, err error) {
	if _, err = io.ReadFull(rand.Reader, priv[:]); err != nil {
		return priv, pub, err
	}
	p, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return priv, pub, err
	}
	copy(pub[:], p)
	return priv, pub, nil
}

func sharedSecret(priv [32]byte, peerPub [32]byte) ([]byte, error) {
	return curve25519.X25519(priv[:], peerPub[:])
}

// NewEnvelope derives an AEAD envelope from this side's private scalar
// and the peer's public point.
func NewEnvelope(priv, peerPub [32]byte) (*Envelope, error) {
	secret, err := sharedSecret(priv, peerPub)
	if err != nil {
		return nil, err
	}
	aead, prk, err := deriveAEAD(secret)
	if err != nil {
		return nil, err
	}
	return &Envelope{aead: aead, prk: prk}, nil
}

func deriveAEAD(secret []byte) (cipher aeadCipher, prk []byte, err error) {
	kdf := hkdf.New(sha256.New, secret, []byte("raknetdp-envelope-salt"), []byte("raknetdp-aead-key"))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, nil, err
	}
	return aead, secret, nil
}

// Seal implements transport.AEAD.
func (e *Envelope) Seal(dst, plaintext []byte) []byte {
	nonce := make([]byte, e.aead.NonceSize())
	binary.LittleEndian.PutUint64(nonce, e.sendSeq)
	e.sendSeq++
	sealed := e.aead.Seal(nil, nonce, plaintext, nil)
	out := append(dst, nonce[:8]...)
	return append(out, sealed...)
}

// Open implements transport.AEAD. The wire format is the 8-byte sequence
// prefix written by Seal followed by the ciphertext.
func (e *Envelope) Open(dst, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < 8 {
		return nil, ErrOpenFailed
	}
	seq := ciphertext[:8]
	body := ciphertext[8:]
	nonce := make([]byte, e.aead.NonceSize())
	copy(nonce, seq)
	plain, err := e.aead.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, ErrOpenFailed
	}
	return append(dst, plain...), nil
}

// Overhead implements transport.AEAD: the 8-byte sequence prefix plus the
// AEAD tag.
func (e *Envelope) Overhead() int { return 8 + e.aead.Overhead() }

// GenerateKey implements transport.AEAD: it derives a labeled subkey from
// the same shared secret used for the bulk cipher; transport.NewConnection
// uses it for initial ACK-ID seeding.
func (e *Envelope) GenerateKey(label string, out []byte) error {
	kdf := hkdf.New(sha256.New, e.prk, []byte("raknetdp-subkey-salt"), []byte(label))
	_, err := io.ReadFull(kdf, out)
	return err
}
