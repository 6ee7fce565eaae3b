package localshare

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNode_NewUploadTracksTransfer(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hi"), 0o644))

	n := NewNode("alice", nil)
	u, err := n.NewUpload(filepath.Join(dir, "a.txt"), false)
	require.NoError(t, err)
	assert.Equal(t, 1, n.ActiveTransferCount())

	n.Untrack(u.ID())
	assert.Equal(t, 0, n.ActiveTransferCount())
}

func TestNode_AcceptDownloadTracksTransfer(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	n := NewNode("bob", nil)
	d := n.AcceptDownload(server)
	assert.Equal(t, 1, n.ActiveTransferCount())

	n.Untrack(d.ID())
	assert.Equal(t, 0, n.ActiveTransferCount())
}
