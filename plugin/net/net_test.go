package net

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	mtapi "github.com/siemens/embb-sub002"
)

// TestPluginActionRoundTripsArgsAndResult covers the literal scenario: a
// plugin action forwards a task to a remote node and the remote result
// makes it back into the local caller's result buffer.
func TestPluginActionRoundTripsArgsAndResult(t *testing.T) {
	node, err := mtapi.Initialize(1, 1, mtapi.WithWorkerCount(2))
	require.NoError(t, err)
	defer mtapi.Finalize()

	require.NoError(t, node.CreateJob(1))
	require.NoError(t, node.CreateJob(2))

	_, err = node.CreateAction(2, func(args, result []byte, _ any, ctx *mtapi.Context) {
		copy(result, args)
	})
	require.NoError(t, err)

	srv, err := NewServer("127.0.0.1:0", 4, node, zerolog.Nop())
	require.NoError(t, err)
	go func() { _ = srv.Serve() }()
	defer srv.Close()

	client := &Client{Addr: srv.ln.Addr().String(), RemoteJobID: 2, Log: zerolog.Nop()}
	_, err = node.CreateWithPlugin(1, client)
	require.NoError(t, err)

	result := make([]byte, 4)
	task, err := node.StartTask(1, []byte("ping"), result, mtapi.NoneHandle)
	require.NoError(t, err)
	status, err := task.Wait(2 * time.Second)
	require.NoError(t, err)
	require.NoError(t, status)
	require.Equal(t, "ping", string(result))
}

func TestPluginActionSurfacesRemoteFailure(t *testing.T) {
	node, err := mtapi.Initialize(1, 1, mtapi.WithWorkerCount(2))
	require.NoError(t, err)
	defer mtapi.Finalize()

	require.NoError(t, node.CreateJob(1))
	require.NoError(t, node.CreateJob(2))
	// remote job 2 has no registered action, so the server reports an error.

	srv, err := NewServer("127.0.0.1:0", 4, node, zerolog.Nop())
	require.NoError(t, err)
	go func() { _ = srv.Serve() }()
	defer srv.Close()

	client := &Client{Addr: srv.ln.Addr().String(), RemoteJobID: 2, Log: zerolog.Nop()}
	_, err = node.CreateWithPlugin(1, client)
	require.NoError(t, err)

	task, err := node.StartTask(1, nil, nil, mtapi.NoneHandle)
	require.NoError(t, err)
	status, err := task.Wait(2 * time.Second)
	require.NoError(t, err)
	require.Error(t, status)
}
