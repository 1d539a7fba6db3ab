package server

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketchat/client"
	"marketchat/observability"
	"marketchat/persistence"
	"marketchat/protocol"
	"marketchat/store"
)

func startServer(t *testing.T, dataDir string) (*Server, string, chan error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	directory := store.NewDirectory()
	conversations := store.NewConversationStore()
	files := persistence.NewFileStore(dataDir, discardLogger())
	srv := New(discardLogger(), directory, conversations, files, observability.NewMonitor(discardLogger()))

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()
	t.Cleanup(func() { srv.Close() })
	return srv, ln.Addr().String(), served
}

func TestServer_EndToEnd(t *testing.T) {
	req := require.New(t)
	dataDir := t.TempDir()
	srv, addr, _ := startServer(t, dataDir)

	c, err := client.Dial(addr)
	req.NoError(err)

	v, err := c.Do(protocol.OpCreateCustomer,
		protocol.String("Camille"), protocol.String("camille@mail.fr"),
		protocol.String("secret"), protocol.StringMap(nil))
	req.NoError(err)
	req.Equal(protocol.KindUser, v.Kind)

	t.Run("two connections share one directory", func(t *testing.T) {
		other, err := client.Dial(addr)
		req.NoError(err)
		defer other.Disconnect()

		v, err := other.Do(protocol.OpUserExists, protocol.String("camille@mail.fr"))
		req.NoError(err)
		exists, err := v.AsBool()
		req.NoError(err)
		req.True(exists)
	})

	req.NoError(c.Disconnect())
	srv.Close()
}

func TestServer_ExitFlushesAndStopsListening(t *testing.T) {
	req := require.New(t)
	dataDir := t.TempDir()
	_, addr, served := startServer(t, dataDir)

	c, err := client.Dial(addr)
	req.NoError(err)

	v, err := c.Do(protocol.OpCreateCustomer,
		protocol.String("Camille"), protocol.String("camille@mail.fr"),
		protocol.String("secret"), protocol.StringMap(nil))
	req.NoError(err)
	req.Equal(protocol.KindUser, v.Kind)

	req.NoError(c.Exit())

	select {
	case err := <-served:
		req.NoError(err)
	case <-time.After(2 * time.Second):
		t.Fatal("accept loop did not stop after exit")
	}

	// The directory reached disk before the listener went down.
	req.FileExists(filepath.Join(dataDir, "users.ssv"))

	reloaded := store.NewDirectory()
	req.NoError(persistence.NewFileStore(dataDir, discardLogger()).
		Load(reloaded, store.NewConversationStore()))
	req.True(reloaded.Exists("camille@mail.fr"))

	_, err = client.Dial(addr)
	req.Error(err, "listener must refuse connections after exit")
}

func TestServer_FlushOnBrokenConnection(t *testing.T) {
	req := require.New(t)
	dataDir := t.TempDir()
	srv, addr, _ := startServer(t, dataDir)

	c, err := client.Dial(addr)
	req.NoError(err)

	v, err := c.Do(protocol.OpCreateCustomer,
		protocol.String("Camille"), protocol.String("camille@mail.fr"),
		protocol.String("secret"), protocol.StringMap(nil))
	req.NoError(err)
	req.Equal(protocol.KindUser, v.Kind)

	// Drop the socket without a Disconnect; the worker flushes on its way
	// out.
	req.NoError(c.Close())
	req.Eventually(func() bool {
		reloaded := store.NewDirectory()
		if err := persistence.NewFileStore(dataDir, discardLogger()).
			Load(reloaded, store.NewConversationStore()); err != nil {
			return false
		}
		return reloaded.Exists("camille@mail.fr")
	}, 2*time.Second, 20*time.Millisecond)

	srv.Close()
}
