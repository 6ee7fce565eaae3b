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

	"github.com/opd-ai/localshare/payload"
	"github.com/opd-ai/localshare/wire"
)

func TestDownload_AcceptHappyPath(t *testing.T) {
	srcDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "hello.txt"), []byte("hi there"), 0o644))
	mgr, err := payload.NewManagerFromPath(filepath.Join(srcDir, "hello.txt"), payload.ScanOptions{})
	require.NoError(t, err)

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	d := NewDownload(serverConn)

	var offered OfferInfo
	d.OnOffer(func(info OfferInfo) {
		offered = info
		require.NoError(t, d.GiveUserChoice(true, t.TempDir()))
	})
	var completed bool
	d.OnCompleted(func() { completed = true })

	peer := newPeerConn(clientConn)
	go func() {
		peer.sendHandshake(t)
		peer.readHandshake(t)
		peer.writeFrame(t, wire.OfferFrame{Username: "carol", Manifest: mgr.Serialize()})
		peer.readFrame(t) // Accept
		require.NoError(t, mgr.StartSending())
		for mgr.NextChunkSize() > 0 {
			var chunk bytes.Buffer
			require.NoError(t, mgr.SendNextChunk(&chunk))
			peer.writeFrame(t, wire.ChunkFrame{Data: chunk.Bytes()})
		}
		sums, serr := mgr.TakePendingChecksums()
		require.NoError(t, serr)
		peer.writeFrame(t, wire.ChecksumsFrame{Digests: sums})
		peer.readFrame(t) // Completed
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = d.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, DownloadCompleted, d.Status())
	assert.True(t, completed)
	assert.Equal(t, "carol", offered.Username)
	assert.Equal(t, int64(8), offered.TotalSize)
}

func TestDownload_RejectPath(t *testing.T) {
	srcDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "f.bin"), []byte("data"), 0o644))
	mgr, err := payload.NewManagerFromPath(filepath.Join(srcDir, "f.bin"), payload.ScanOptions{})
	require.NoError(t, err)

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	d := NewDownload(serverConn)
	d.OnOffer(func(OfferInfo) {
		require.NoError(t, d.GiveUserChoice(false, ""))
	})
	var rejected bool
	d.OnRejected(func() { rejected = true })

	peer := newPeerConn(clientConn)
	go func() {
		peer.sendHandshake(t)
		peer.readHandshake(t)
		peer.writeFrame(t, wire.OfferFrame{Username: "dave", Manifest: mgr.Serialize()})
		f := peer.readFrame(t)
		_, ok := f.(wire.RejectFrame)
		assert.True(t, ok)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = d.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, DownloadRejected, d.Status())
	assert.True(t, rejected)
}

func TestDownload_InvalidManifestIsGracefullyRejected(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	d := NewDownload(serverConn)

	peer := newPeerConn(clientConn)
	go func() {
		peer.sendHandshake(t)
		peer.readHandshake(t)
		peer.writeFrame(t, wire.OfferFrame{Username: "eve", Manifest: []byte("not a manifest")})
		f := peer.readFrame(t)
		_, ok := f.(wire.ErrorFrame)
		assert.True(t, ok)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := d.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, DownloadError, d.Status())
}
