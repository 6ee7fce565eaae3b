package transfer

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/localshare/wire"
)

// peerConn is a minimal hand-rolled peer used to drive Upload from the
// wire level without needing a full Download.
type peerConn struct {
	net.Conn
	dec *wire.Decoder
}

func newPeerConn(conn net.Conn) *peerConn {
	return &peerConn{Conn: conn, dec: wire.NewDecoder()}
}

func (p *peerConn) readHandshake(t *testing.T) {
	t.Helper()
	buf := make([]byte, 4)
	_, err := readFull(p.Conn, buf)
	require.NoError(t, err)
}

func (p *peerConn) sendHandshake(t *testing.T) {
	t.Helper()
	_, err := p.Conn.Write(wire.EncodeHandshake())
	require.NoError(t, err)
}

func (p *peerConn) readFrame(t *testing.T) wire.Frame {
	t.Helper()
	buf := make([]byte, 4096)
	for {
		f, err := p.dec.Next()
		if err == nil {
			return f
		}
		n, rerr := p.Conn.Read(buf)
		require.NoError(t, rerr)
		p.dec.Feed(buf[:n])
	}
}

func (p *peerConn) writeFrame(t *testing.T, f wire.Frame) {
	t.Helper()
	encoded, err := wire.Encode(f)
	require.NoError(t, err)
	_, err = p.Conn.Write(encoded)
	require.NoError(t, err)
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func TestUpload_HappyPath(t *testing.T) {
	srcDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "hello.txt"), []byte("hello world"), 0o644))

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	u := NewUpload("alice")
	require.NoError(t, u.SetPayload(filepath.Join(srcDir, "hello.txt"), false))
	u.Base = newBase(clientConn)

	peer := newPeerConn(serverConn)

	go func() {
		peer.readHandshake(t)
		peer.sendHandshake(t)
		offer := peer.readFrame(t).(wire.OfferFrame)
		assert.Equal(t, "alice", offer.Username)
		peer.writeFrame(t, wire.AcceptFrame{})

		var got bytes.Buffer
		for got.Len() < 11 {
			f := peer.readFrame(t)
			if chunk, ok := f.(wire.ChunkFrame); ok {
				got.Write(chunk.Data)
			}
		}
		assert.Equal(t, "hello world", got.String())
		peer.readFrame(t) // checksums
		peer.writeFrame(t, wire.CompletedFrame{})
	}()

	require.NoError(t, u.sendHandshake())
	require.NoError(t, u.readHandshake())
	require.NoError(t, u.writeFrame(wire.OfferFrame{Username: u.username, Manifest: u.mgr.Serialize()}))
	u.setStatus(UploadWaitingForPeerAnswer)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := u.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, UploadCompleted, u.Status())
}

func TestUpload_PeerRejects(t *testing.T) {
	srcDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "hello.txt"), []byte("x"), 0o644))

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	u := NewUpload("bob")
	require.NoError(t, u.SetPayload(filepath.Join(srcDir, "hello.txt"), false))
	u.Base = newBase(clientConn)

	peer := newPeerConn(serverConn)
	var rejected bool
	u.OnRejected(func() { rejected = true })

	go func() {
		peer.readHandshake(t)
		peer.sendHandshake(t)
		peer.readFrame(t)
		peer.writeFrame(t, wire.RejectFrame{})
	}()

	require.NoError(t, u.sendHandshake())
	require.NoError(t, u.readHandshake())
	require.NoError(t, u.writeFrame(wire.OfferFrame{Username: u.username, Manifest: u.mgr.Serialize()}))
	u.setStatus(UploadWaitingForPeerAnswer)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := u.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, UploadRejected, u.Status())
	assert.True(t, rejected)
}
