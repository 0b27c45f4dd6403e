package crypter_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/minileaf/minileaf/pkg/crypter"
)

func TestSealOpen_RoundTrip(t *testing.T) {
	t.Parallel()

	key, err := crypter.GenerateKey()
	require.NoError(t, err)

	c, err := crypter.New(key)
	require.NoError(t, err)

	plaintext := []byte("hello minileaf")
	aad := []byte("doc:123")

	sealed, err := c.Seal(plaintext, aad)
	require.NoError(t, err)
	require.Len(t, sealed, crypter.NonceSize+len(plaintext)+crypter.TagSize)

	got, err := c.Open(sealed, aad)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestOpen_WrongAADFails(t *testing.T) {
	t.Parallel()

	key, err := crypter.GenerateKey()
	require.NoError(t, err)

	c, err := crypter.New(key)
	require.NoError(t, err)

	sealed, err := c.Seal([]byte("data"), []byte("aad-a"))
	require.NoError(t, err)

	_, err = c.Open(sealed, []byte("aad-b"))
	require.ErrorIs(t, err, crypter.ErrCorruptedCiphertext)
}

func TestOpen_TamperedCiphertextFails(t *testing.T) {
	t.Parallel()

	key, err := crypter.GenerateKey()
	require.NoError(t, err)

	c, err := crypter.New(key)
	require.NoError(t, err)

	sealed, err := c.Seal([]byte("data"), nil)
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0xFF

	_, err = c.Open(sealed, nil)
	require.ErrorIs(t, err, crypter.ErrCorruptedCiphertext)
}

func TestOpen_TooShortFails(t *testing.T) {
	t.Parallel()

	key, err := crypter.GenerateKey()
	require.NoError(t, err)

	c, err := crypter.New(key)
	require.NoError(t, err)

	_, err = c.Open([]byte("short"), nil)
	require.ErrorIs(t, err, crypter.ErrCorruptedCiphertext)
}

func TestFrameSealOpen_RoundTrip(t *testing.T) {
	t.Parallel()

	key, err := crypter.GenerateKey()
	require.NoError(t, err)

	c, err := crypter.New(key)
	require.NoError(t, err)

	var buf bytes.Buffer

	_, err = c.FrameSeal(&buf, []byte("record-1"), nil)
	require.NoError(t, err)
	_, err = c.FrameSeal(&buf, []byte("record-2"), nil)
	require.NoError(t, err)

	got1, err := c.FrameOpen(&buf, nil)
	require.NoError(t, err)
	require.Equal(t, []byte("record-1"), got1)

	got2, err := c.FrameOpen(&buf, nil)
	require.NoError(t, err)
	require.Equal(t, []byte("record-2"), got2)
}

func TestReadFrame_TruncatedTailIsShortFrame(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	_, err := crypter.WriteFrame(&buf, []byte("full record"))
	require.NoError(t, err)

	truncated := buf.Bytes()[:buf.Len()-3]

	_, err = crypter.ReadFrame(bytes.NewReader(truncated))
	require.ErrorIs(t, err, crypter.ErrShortFrame)
}

func TestReadFrame_EOFAtBoundary(t *testing.T) {
	t.Parallel()

	_, err := crypter.ReadFrame(bytes.NewReader(nil))
	require.ErrorIs(t, err, io.EOF)
}
