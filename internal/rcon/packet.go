package rcon

import (
	"encoding/binary"
	"fmt"
	"io"

	gorcon "github.com/gorcon/rcon"
)

// PacketType is the RCON packet type field.
type PacketType int32

const (
	PacketResponse     = PacketType(gorcon.SERVERDATA_RESPONSE_VALUE)
	PacketCommand      = PacketType(gorcon.SERVERDATA_EXECCOMMAND)
	PacketAuthResponse = PacketType(gorcon.SERVERDATA_AUTH_RESPONSE)
	PacketAuth         = PacketType(gorcon.SERVERDATA_AUTH)
)

const (
	// headerSize covers id and type; the trailing two NUL bytes bring the
	// minimum length field value to 10.
	headerSize    = 8
	minPacketSize = headerSize + 2
	// MaxBodySize is the largest response body a single packet may carry.
	MaxBodySize   = 4096
	maxPacketSize = MaxBodySize + minPacketSize
)

// Packet is a decoded RCON packet.
type Packet struct {
	ID   int32
	Type PacketType
	Body []byte
}

// writePacket encodes one packet: int32 length, int32 id, int32 type, body, two NULs.
func writePacket(w io.Writer, typ PacketType, id int32, body string) error {
	_, err := gorcon.NewPacket(int32(typ), id, body).WriteTo(w)
	return err
}

// readPacket decodes exactly one packet from r.
// A length field outside [10, 4106] is a protocol error.
func readPacket(r io.Reader) (*Packet, error) {
	var size int32
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return nil, fmt.Errorf("%w: read size: %w", ErrNetwork, err)
	}
	if size < minPacketSize || size > maxPacketSize {
		return nil, fmt.Errorf("%w: invalid packet size %d", ErrProtocol, size)
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: read payload: %w", ErrNetwork, err)
	}

	p := &Packet{
		ID:   int32(binary.LittleEndian.Uint32(buf[0:4])),
		Type: PacketType(binary.LittleEndian.Uint32(buf[4:8])),
	}
	// Drop the two trailing NULs; tolerate servers that send only one.
	body := buf[headerSize:]
	for len(body) > 0 && body[len(body)-1] == 0 {
		body = body[:len(body)-1]
	}
	p.Body = body
	return p, nil
}
