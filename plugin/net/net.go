// Package net implements an illustrative network plugin action: a remote
// job invocation carried over TCP, grounded on
// original_source/mtapi_plugins_c/mtapi_network_c's
// mtapi_network_plugin_initialize/mtapi_network_action_create/
// mtapi_network_plugin_finalize trio (see mtapi_network.h), generalized
// from the C API's host/port/buffer_size parameters into a Go
// net.Listener-backed server plus a dialing client action.
//
// The wire codec is stdlib encoding/gob over a stdlib net.Conn: spec §1
// scopes concrete plugin backends out of the task-scheduling core itself,
// so this package is the one place in the module a hand-rolled
// (non-ecosystem) codec is the right call — see SPEC_FULL.md §B.
package net

import (
	"encoding/gob"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/siemens/embb-sub002"
)

// request is the wire envelope sent to a remote job invocation.
type request struct {
	JobID uint32
	Args  []byte
}

// response is the wire envelope returned from a remote job invocation.
type response struct {
	Result []byte
	ErrMsg string
}

// Server listens for incoming task requests and dispatches them into a
// local mtapi.Node, mirroring mtapi_network_plugin_initialize's listening
// side (host, port, max_connections).
type Server struct {
	ln     net.Listener
	node   *mtapi.Node
	log    zerolog.Logger
	eg     *errgroup.Group
	cancel func()

	mu      sync.Mutex
	maxConn int
	active  int
}

// NewServer starts listening on addr ("host:port"), analogous to
// mtapi_network_plugin_initialize's host/port/max_connections parameters.
func NewServer(addr string, maxConnections int, node *mtapi.Node, log zerolog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{ln: ln, node: node, log: log, maxConn: maxConnections}
	return s, nil
}

// Serve accepts connections until Close is called, handling each on its
// own goroutine joined through an errgroup (the same fan-out/join idiom
// the scheduler uses for its worker pool).
func (s *Server) Serve() error {
	eg := new(errgroup.Group)
	s.eg = eg
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return eg.Wait()
			}
			return err
		}
		s.mu.Lock()
		if s.maxConn > 0 && s.active >= s.maxConn {
			s.mu.Unlock()
			conn.Close()
			continue
		}
		s.active++
		s.mu.Unlock()

		eg.Go(func() error {
			defer func() {
				s.mu.Lock()
				s.active--
				s.mu.Unlock()
			}()
			s.handle(conn)
			return nil
		})
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	dec := gob.NewDecoder(conn)
	enc := gob.NewEncoder(conn)

	var req request
	if err := dec.Decode(&req); err != nil {
		s.log.Warn().Err(err).Msg("network plugin: decode failed")
		return
	}

	result := make([]byte, len(req.Args))
	task, err := s.node.StartTask(req.JobID, req.Args, result, mtapi.NoneHandle)
	var resp response
	if err != nil {
		resp.ErrMsg = err.Error()
	} else if status, werr := task.Wait(30 * time.Second); werr != nil {
		resp.ErrMsg = werr.Error()
	} else if status != nil {
		resp.ErrMsg = status.Error()
	} else {
		resp.Result = result
	}

	if err := enc.Encode(resp); err != nil {
		s.log.Warn().Err(err).Msg("network plugin: encode failed")
	}
}

// Close stops accepting new connections and waits for in-flight handlers
// to finish, mirroring mtapi_network_plugin_finalize's documented
// "blocks until all tasks that have been started on the same node return".
func (s *Server) Close() error {
	err := s.ln.Close()
	if s.eg != nil {
		_ = s.eg.Wait()
	}
	return err
}

// Client is a plugin action (mtapi.Plugin) that forwards task starts to a
// remote Server, grounded on mtapi_network_action_create's
// local_job_id/remote_job_id/host/port parameters.
type Client struct {
	Addr        string
	RemoteJobID uint32
	Dialer      net.Dialer
	Log         zerolog.Logger

	wg sync.WaitGroup
}

var _ mtapi.Plugin = (*Client)(nil)

// OnStart dials the remote host and ships the task's args on a dedicated
// goroutine, returning immediately: spec §4.5 requires a plugin's OnStart
// not block the worker goroutine for the round trip's duration. The dial,
// encode and decode all happen off that goroutine; complete is called
// exactly once, with the remote error (if any) or nil, once the response
// has been copied into ctx.Result().
func (c *Client) OnStart(task mtapi.Handle, ctx *mtapi.Context, complete func(status mtapi.Status)) error {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		complete(c.call(ctx))
	}()
	return nil
}

func (c *Client) call(ctx *mtapi.Context) mtapi.Status {
	conn, err := c.Dialer.Dial("tcp", c.Addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	enc := gob.NewEncoder(conn)
	dec := gob.NewDecoder(conn)

	if err := enc.Encode(request{JobID: c.RemoteJobID, Args: ctx.Args()}); err != nil {
		return err
	}
	var resp response
	if err := dec.Decode(&resp); err != nil {
		return err
	}
	if resp.ErrMsg != "" {
		return errors.New(resp.ErrMsg)
	}
	copy(ctx.Result(), resp.Result)
	return nil
}

// OnCancel has no remote-cancellation protocol in this illustrative
// plugin; cancellation is observed locally only (the remote call still
// runs to completion).
func (c *Client) OnCancel(task mtapi.Handle) error { return nil }

// OnFinalize blocks until every in-flight remote call started by OnStart
// has called complete, mirroring mtapi_network_plugin_finalize's documented
// wait-for-drain behavior.
func (c *Client) OnFinalize(action mtapi.Handle) error {
	c.wg.Wait()
	return nil
}
