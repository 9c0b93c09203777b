package bili

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
)

// Wire format: every frame starts with a 16-byte big-endian header.
//
//	offset 0  uint32  total frame length (header included)
//	offset 4  uint16  header length (always 16)
//	offset 6  uint16  protocol version
//	offset 8  uint32  operation
//	offset 12 uint32  sequence
//
// Protocol versions 2 (zlib) and 3 (brotli) wrap a concatenation of inner
// frames inside a compressed body.
const headerLen = 16

// Operations used by the danmu endpoint.
const (
	OpHeartbeat      = 2
	OpHeartbeatReply = 3
	OpMessage        = 5
	OpJoin           = 7
	OpJoinAck        = 8
)

// Protocol versions.
const (
	VerPlain  = 0
	VerInt    = 1
	VerZlib   = 2
	VerBrotli = 3
)

// Packet is one decoded frame.
type Packet struct {
	Version uint16
	Op      uint32
	Body    []byte
}

// EncodePacket frames a body for sending. Client-originated frames are
// always plain (version 1, the convention for control ops).
func EncodePacket(op uint32, body []byte) []byte {
	buf := make([]byte, headerLen+len(body))
	binary.BigEndian.PutUint32(buf[0:4], uint32(headerLen+len(body)))
	binary.BigEndian.PutUint16(buf[4:6], headerLen)
	binary.BigEndian.PutUint16(buf[6:8], VerInt)
	binary.BigEndian.PutUint32(buf[8:12], op)
	binary.BigEndian.PutUint32(buf[12:16], 1)
	copy(buf[headerLen:], body)
	return buf
}

// DecodePackets splits a websocket message into frames, inflating
// compressed bodies and flattening the inner frames they contain.
func DecodePackets(data []byte) ([]Packet, error) {
	var out []Packet
	for len(data) > 0 {
		if len(data) < headerLen {
			return nil, fmt.Errorf("truncated frame: %d bytes left", len(data))
		}
		total := binary.BigEndian.Uint32(data[0:4])
		hdr := binary.BigEndian.Uint16(data[4:6])
		ver := binary.BigEndian.Uint16(data[6:8])
		op := binary.BigEndian.Uint32(data[8:12])
		if total < uint32(hdr) || uint32(len(data)) < total {
			return nil, fmt.Errorf("bad frame length %d (have %d)", total, len(data))
		}
		body := data[hdr:total]
		data = data[total:]

		switch ver {
		case VerZlib, VerBrotli:
			inflated, err := inflate(ver, body)
			if err != nil {
				return nil, fmt.Errorf("inflate v%d body: %w", ver, err)
			}
			inner, err := DecodePackets(inflated)
			if err != nil {
				return nil, err
			}
			out = append(out, inner...)
		default:
			out = append(out, Packet{Version: ver, Op: op, Body: body})
		}
	}
	return out, nil
}

func inflate(ver uint16, body []byte) ([]byte, error) {
	switch ver {
	case VerZlib:
		zr, err := zlib.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case VerBrotli:
		return io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
	}
	return body, nil
}
