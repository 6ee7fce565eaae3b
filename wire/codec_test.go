package wire

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_CodeOnlyFrames(t *testing.T) {
	for _, f := range []Frame{AcceptFrame{}, RejectFrame{}, CompletedFrame{}} {
		encoded, err := Encode(f)
		require.NoError(t, err)
		assert.Len(t, encoded, 2)

		dec := NewDecoder()
		dec.Feed(encoded)
		got, err := dec.Next()
		require.NoError(t, err)
		assert.Equal(t, f, got)
		assert.Zero(t, dec.Buffered())
	}
}

func TestEncodeDecode_ErrorFrame(t *testing.T) {
	encoded, err := Encode(ErrorFrame{Text: "version mismatch"})
	require.NoError(t, err)

	dec := NewDecoder()
	dec.Feed(encoded)
	got, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, ErrorFrame{Text: "version mismatch"}, got)
}

func TestEncodeDecode_OfferFrame(t *testing.T) {
	manifest := []byte{0x01, 0x02, 0x03, 0x04}
	encoded, err := Encode(OfferFrame{Username: "alice", Manifest: manifest})
	require.NoError(t, err)

	dec := NewDecoder()
	dec.Feed(encoded)
	got, err := dec.Next()
	require.NoError(t, err)

	offer, ok := got.(OfferFrame)
	require.True(t, ok)
	assert.Equal(t, "alice", offer.Username)
	assert.Equal(t, manifest, offer.Manifest)
}

func TestEncodeDecode_ChecksumsFrame(t *testing.T) {
	digests := [][]byte{{0xAA, 0xBB}, {0xCC, 0xDD, 0xEE}}
	encoded, err := Encode(ChecksumsFrame{Digests: digests})
	require.NoError(t, err)

	dec := NewDecoder()
	dec.Feed(encoded)
	got, err := dec.Next()
	require.NoError(t, err)

	cks, ok := got.(ChecksumsFrame)
	require.True(t, ok)
	assert.Equal(t, digests, cks.Digests)
}

func TestEncodeDecode_ChecksumsFrame_Empty(t *testing.T) {
	encoded, err := Encode(ChecksumsFrame{})
	require.NoError(t, err)

	dec := NewDecoder()
	dec.Feed(encoded)
	got, err := dec.Next()
	require.NoError(t, err)

	cks, ok := got.(ChecksumsFrame)
	require.True(t, ok)
	assert.Empty(t, cks.Digests)
}

func TestDecoder_IncompleteFrameWaitsForMoreBytes(t *testing.T) {
	encoded, err := Encode(ChunkFrame{Data: []byte("hello world")})
	require.NoError(t, err)

	dec := NewDecoder()
	dec.Feed(encoded[:4])
	_, err = dec.Next()
	assert.ErrorIs(t, err, ErrIncomplete)

	dec.Feed(encoded[4:])
	got, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, ChunkFrame{Data: []byte("hello world")}, got)
}

func TestDecoder_UnknownCodeIsProtocolError(t *testing.T) {
	dec := NewDecoder()
	dec.Feed([]byte{0xFF, 0xFF})
	_, err := dec.Next()

	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, "UnknownCode", protoErr.Kind)
}

func TestDecoder_ZeroSizeNonChecksumsIsProtocolError(t *testing.T) {
	dec := NewDecoder()
	encoded, err := Encode(ErrorFrame{Text: ""})
	require.NoError(t, err)
	dec.Feed(encoded)

	_, err = dec.Next()
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, "BadMessageSize", protoErr.Kind)
}

func TestCheckHandshake(t *testing.T) {
	assert.NoError(t, CheckHandshake(0x0CAA, 0x0002))
	assert.ErrorIs(t, CheckHandshake(0xBEEF, 0x0002), ErrWrongMagic)
	assert.ErrorIs(t, CheckHandshake(0x0CAA, 0x0003), ErrWrongVersion)
}

func TestHandshake_OverNetPipe(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := make(chan error, 1)
	go func() {
		_, err := client.Write(EncodeHandshake())
		done <- err
	}()

	buf := make([]byte, 4)
	client.SetReadDeadline(time.Now().Add(time.Second))
	server.SetReadDeadline(time.Now().Add(time.Second))
	n, err := server.Read(buf)
	require.NoError(t, err)
	require.NoError(t, <-done)

	dec := NewDecoder()
	dec.Feed(buf[:n])
	magic, version, err := dec.NextHandshake()
	require.NoError(t, err)
	assert.NoError(t, CheckHandshake(magic, version))
}
