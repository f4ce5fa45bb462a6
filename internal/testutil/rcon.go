// Package testutil provides in-process fakes of the servers this daemon talks to.
package testutil

import (
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	gorcon "github.com/gorcon/rcon"
)

// RCONServer is a minimal Minecraft RCON listener for tests.
// Each connection is served as auth followed by any number of commands.
type RCONServer struct {
	Host string
	Port int

	password string
	handler  func(command string) string
	ln       net.Listener

	mu          sync.Mutex
	commands    []string
	connections int

	mismatch atomic.Bool
}

// NewRCONServer starts a fake server on a loopback port. handler maps a command
// to the response body; a nil handler echoes the command.
func NewRCONServer(t testing.TB, password string, handler func(string) string) *RCONServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	if handler == nil {
		handler = func(cmd string) string { return cmd }
	}
	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)

	s := &RCONServer{Host: host, Port: port, password: password, handler: handler, ln: ln}
	go s.serve()
	t.Cleanup(func() { ln.Close() })
	return s
}

// SetMismatchResponse makes command replies carry the wrong packet type.
func (s *RCONServer) SetMismatchResponse(v bool) {
	s.mismatch.Store(v)
}

// Commands returns every command received after a successful login.
func (s *RCONServer) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// Connections returns the number of accepted connections.
func (s *RCONServer) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connections
}

func (s *RCONServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.connections++
		s.mu.Unlock()
		go s.handle(conn)
	}
}

func (s *RCONServer) handle(conn net.Conn) {
	defer conn.Close()

	authed := false
	for {
		req := new(gorcon.Packet)
		if _, err := req.ReadFrom(conn); err != nil {
			return
		}

		switch req.Type {
		case gorcon.SERVERDATA_AUTH:
			id := req.ID
			if req.Body() != s.password {
				id = -1
			} else {
				authed = true
			}
			if _, err := gorcon.NewPacket(gorcon.SERVERDATA_AUTH_RESPONSE, id, "").WriteTo(conn); err != nil {
				return
			}
		case gorcon.SERVERDATA_EXECCOMMAND:
			if !authed {
				return
			}
			s.mu.Lock()
			s.commands = append(s.commands, req.Body())
			s.mu.Unlock()

			typ := gorcon.SERVERDATA_RESPONSE_VALUE
			if s.mismatch.Load() {
				typ = gorcon.SERVERDATA_AUTH_RESPONSE
			}
			if _, err := gorcon.NewPacket(typ, req.ID, s.handler(req.Body())).WriteTo(conn); err != nil {
				return
			}
		}
	}
}
