// Package crypter implements minileaf's optional at-rest encryption layer:
// AEAD sealing of document records and a length-prefixed on-disk framing
// shared by the WAL/snapshot and append-log storage engines.
package crypter

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the AEAD key length in bytes (256 bits).
const KeySize = chacha20poly1305.KeySize

// NonceSize is the AEAD nonce length in bytes (96 bits).
const NonceSize = chacha20poly1305.NonceSize

// TagSize is the AEAD authentication tag length in bytes (128 bits).
const TagSize = 16

// ErrCorruptedCiphertext is returned by Open when the ciphertext fails
// authentication: truncated input, a flipped bit, or the wrong key.
var ErrCorruptedCiphertext = errors.New("crypter: corrupted ciphertext")

// Crypter seals and opens document records with ChaCha20-Poly1305, an AEAD
// cipher requiring no hardware acceleration to run at speed, matching the
// spec's 256-bit key / 96-bit nonce / 128-bit tag profile.
type Crypter struct {
	aead cipher.AEAD
}

// GenerateKey returns a fresh random 256-bit key suitable for New.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("crypter: generate key: %w", err)
	}

	return key, nil
}

// New constructs a Crypter from a 256-bit key.
func New(key []byte) (*Crypter, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("crypter: %w", err)
	}

	return &Crypter{aead: aead}, nil
}

// Seal encrypts plaintext and authenticates it together with
// additionalData (may be nil), returning nonce‖ciphertext‖tag.
func (c *Crypter) Seal(plaintext, additionalData []byte) ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypter: generate nonce: %w", err)
	}

	out := make([]byte, 0, NonceSize+len(plaintext)+TagSize)
	out = append(out, nonce...)
	out = c.aead.Seal(out, nonce, plaintext, additionalData)

	return out, nil
}

// Open authenticates and decrypts a nonce‖ciphertext‖tag blob produced by
// Seal. Returns ErrCorruptedCiphertext if authentication fails or the input
// is too short to contain a nonce and tag.
func (c *Crypter) Open(sealed, additionalData []byte) ([]byte, error) {
	if len(sealed) < NonceSize+TagSize {
		return nil, ErrCorruptedCiphertext
	}

	nonce, ciphertext := sealed[:NonceSize], sealed[NonceSize:]

	plaintext, err := c.aead.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, ErrCorruptedCiphertext
	}

	return plaintext, nil
}

// FrameSeal seals plaintext and writes it to w using the on-disk record
// framing shared by the WAL and append-log engines: a 4-byte big-endian
// length prefix followed by the AEAD output (nonce‖ciphertext‖tag).
func (c *Crypter) FrameSeal(w io.Writer, plaintext, additionalData []byte) (int, error) {
	sealed, err := c.Seal(plaintext, additionalData)
	if err != nil {
		return 0, err
	}

	return writeFrame(w, sealed)
}

// FrameOpen reads one length-prefixed AEAD record from r and returns its
// authenticated plaintext.
func (c *Crypter) FrameOpen(r io.Reader, additionalData []byte) ([]byte, error) {
	sealed, err := readFrame(r)
	if err != nil {
		return nil, err
	}

	return c.Open(sealed, additionalData)
}

// writeFrame writes a [u32 length][payload] record, used both for
// encrypted (AEAD output) and plaintext records so the WAL/append-log
// reader logic is identical in both modes.
func writeFrame(w io.Writer, payload []byte) (int, error) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))

	n1, err := w.Write(lenBuf[:])
	if err != nil {
		return n1, fmt.Errorf("crypter: write frame length: %w", err)
	}

	n2, err := w.Write(payload)
	if err != nil {
		return n1 + n2, fmt.Errorf("crypter: write frame payload: %w", err)
	}

	return n1 + n2, nil
}

// WriteFrame exposes the shared [u32 length][payload] framing for plaintext
// (unencrypted) records, so storage engines use one record format whether
// or not encryption is configured.
func WriteFrame(w io.Writer, payload []byte) (int, error) {
	return writeFrame(w, payload)
}

// ReadFrame reads one [u32 length][payload] record.
func ReadFrame(r io.Reader) ([]byte, error) {
	return readFrame(r)
}

// ErrShortFrame is returned when a length-prefixed record is truncated,
// typically an unfsynced tail left by a crash mid-write.
var ErrShortFrame = errors.New("crypter: truncated frame")

func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte

	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}

		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrShortFrame
		}

		return nil, fmt.Errorf("crypter: read frame length: %w", err)
	}

	length := binary.BigEndian.Uint32(lenBuf[:])

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrShortFrame
		}

		return nil, fmt.Errorf("crypter: read frame payload: %w", err)
	}

	return payload, nil
}
