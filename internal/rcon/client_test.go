package rcon

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMich157/whitelisthub/internal/logging"
	"github.com/TheMich157/whitelisthub/internal/testutil"
)

func newTestClient(srv *testutil.RCONServer, password string) *Client {
	return NewClient(Config{
		Host:     srv.Host,
		Port:     srv.Port,
		Password: password,
		Timeout:  time.Second,
	}, logging.Discard())
}

func TestExecute_Success(t *testing.T) {
	srv := testutil.NewRCONServer(t, "secret", func(cmd string) string {
		return "Added Steve to the whitelist \n"
	})

	out, err := newTestClient(srv, "secret").Execute(context.Background(), "whitelist add Steve")
	require.NoError(t, err)
	assert.Equal(t, "Added Steve to the whitelist", out)
	assert.Equal(t, []string{"whitelist add Steve"}, srv.Commands())
}

func TestExecute_AuthFailureSendsNoCommand(t *testing.T) {
	srv := testutil.NewRCONServer(t, "secret", nil)

	_, err := newTestClient(srv, "wrong").Execute(context.Background(), "whitelist list")
	require.ErrorIs(t, err, ErrAuthFailed)
	assert.Empty(t, srv.Commands())
}

func TestExecute_ResponseMismatchReturnsEmpty(t *testing.T) {
	srv := testutil.NewRCONServer(t, "secret", nil)
	srv.SetMismatchResponse(true)

	out, err := newTestClient(srv, "secret").Execute(context.Background(), "list")
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestExecute_OneConnectionPerCall(t *testing.T) {
	srv := testutil.NewRCONServer(t, "secret", nil)
	c := newTestClient(srv, "secret")

	for i := 0; i < 3; i++ {
		_, err := c.Execute(context.Background(), "list")
		require.NoError(t, err)
	}
	assert.Equal(t, 3, srv.Connections())
}

func TestExecute_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	ln.Close()

	_, err = Execute(context.Background(), "127.0.0.1", port, "pw", "list", time.Second)
	require.ErrorIs(t, err, ErrNetwork)
}

func TestExecute_Timeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(2 * time.Second)
	}()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)

	start := time.Now()
	_, err = Execute(context.Background(), host, port, "pw", "list", 100*time.Millisecond)
	require.ErrorIs(t, err, ErrNetwork)
	assert.True(t, errors.Is(err, os.ErrDeadlineExceeded), "timeout should be detectable: %v", err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestExecute_InvalidPacketSize(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		if _, err := readPacket(conn); err != nil {
			return
		}
		_ = binary.Write(conn, binary.LittleEndian, int32(4))
	}()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)

	_, err = Execute(context.Background(), host, port, "pw", "list", time.Second)
	require.ErrorIs(t, err, ErrProtocol)
}

func TestPacketCodec(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writePacket(&buf, PacketCommand, 42, "whitelist list"))

	raw := buf.Bytes()
	assert.Equal(t, int32(len("whitelist list")+10), int32(binary.LittleEndian.Uint32(raw[0:4])))
	assert.Equal(t, []byte{0, 0}, raw[len(raw)-2:])

	p, err := readPacket(&buf)
	require.NoError(t, err)
	assert.Equal(t, int32(42), p.ID)
	assert.Equal(t, PacketCommand, p.Type)
	assert.Equal(t, "whitelist list", string(p.Body))
}

func TestReadPacket_Oversized(t *testing.T) {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, int32(maxPacketSize+1))
	_, err := readPacket(&buf)
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestEscapeCommand(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"whitelist add Steve", "whitelist add Steve"},
		{"say hi; stop", "say hi stop"},
		{"tp @a ~ ~ ~", "tp a   "},
		{"give Steve minecraft:diamond 64", "give Steve minecraftdiamond 64"},
		{"kick bad-name_1.0", "kick bad-name_1.0"},
		{"line\nbreak", "line\nbreak"},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, EscapeCommand(tc.in))
		})
	}
}

func TestStripColors(t *testing.T) {
	assert.Equal(t, "There are 2 of a max of 20 players online: Notch, jeb_",
		StripColors("§6There are §c2§6 of a max of §c20§6 players online: §rNotch, jeb_"))
	assert.Equal(t, "plain", StripColors("plain"))
	assert.Equal(t, "bold", StripColors("§Lbold§R"))
}
