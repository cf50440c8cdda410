package http2

import (
	"encoding/binary"
	"fmt"
)

// FrameType is the HTTP/2 frame type byte (spec.md §4.5).
type FrameType uint8

const (
	FrameData         FrameType = 0x0
	FrameHeaders      FrameType = 0x1
	FrameRSTStream    FrameType = 0x3
	FrameSettings     FrameType = 0x4
	FramePing         FrameType = 0x6
	FrameGoAway       FrameType = 0x7
	FrameWindowUpdate FrameType = 0x8
)

// Flags, as found in the frame header's 8-bit flags field. Not every flag
// applies to every frame type; see the per-type parse functions.
const (
	FlagEndStream  uint8 = 0x1
	FlagEndHeaders uint8 = 0x4
	FlagPadded     uint8 = 0x8
	FlagACK        uint8 = 0x1
)

// MaxFrameLength is the largest payload length a 24-bit length field can
// express (spec.md §4.5: "Maximum length = 2^24-1").
const MaxFrameLength = 1<<24 - 1

// HeaderLen is the fixed size of an HTTP/2 frame header.
const HeaderLen = 9

// FrameHeader is the 9-byte header common to every HTTP/2 frame.
type FrameHeader struct {
	Length   uint32 // 24-bit on the wire
	Type     FrameType
	Flags    uint8
	StreamID uint32 // 31-bit on the wire, top bit reserved = 0
}

// FrameError is returned for any wire-format violation; per spec.md §4.5
// "Any violation → surface as a structured error, never a silent accept."
type FrameError struct {
	Op  string
	Msg string
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("http2: %s: %s", e.Op, e.Msg)
}

// EncodeHeader writes the 9-byte frame header to dst, which must be at
// least HeaderLen bytes long.
func EncodeHeader(dst []byte, h FrameHeader) error {
	if len(dst) < HeaderLen {
		return &FrameError{Op: "EncodeHeader", Msg: "destination buffer shorter than 9 bytes"}
	}
	if h.Length > MaxFrameLength {
		return &FrameError{Op: "EncodeHeader", Msg: "length exceeds 2^24-1"}
	}
	if h.StreamID&0x80000000 != 0 {
		return &FrameError{Op: "EncodeHeader", Msg: "stream id must fit in 31 bits"}
	}

	dst[0] = byte(h.Length >> 16)
	dst[1] = byte(h.Length >> 8)
	dst[2] = byte(h.Length)
	dst[3] = byte(h.Type)
	dst[4] = h.Flags
	binary.BigEndian.PutUint32(dst[5:9], h.StreamID&0x7fffffff)
	return nil
}

// DecodeHeader parses the 9-byte frame header from the front of src.
func DecodeHeader(src []byte) (FrameHeader, error) {
	if len(src) < HeaderLen {
		return FrameHeader{}, &FrameError{Op: "DecodeHeader", Msg: "short buffer"}
	}

	h := FrameHeader{
		Length:   uint32(src[0])<<16 | uint32(src[1])<<8 | uint32(src[2]),
		Type:     FrameType(src[3]),
		Flags:    src[4],
		StreamID: binary.BigEndian.Uint32(src[5:9]) & 0x7fffffff,
	}

	return h, nil
}

// stripPadding applies the PADDED-flag contract shared by DATA and HEADERS:
// the first byte is a pad length, the payload follows, and that many
// trailing bytes are discarded.
func stripPadding(payload []byte) ([]byte, error) {
	if len(payload) < 1 {
		return nil, &FrameError{Op: "stripPadding", Msg: "padded frame has no pad-length byte"}
	}

	padLen := int(payload[0])
	body := payload[1:]

	if padLen > len(body) {
		return nil, &FrameError{Op: "stripPadding", Msg: "pad length exceeds remaining payload"}
	}

	return body[:len(body)-padLen], nil
}

// DataFrame is the decoded payload of a DATA frame.
type DataFrame struct {
	Data      []byte
	EndStream bool
}

// DecodeData parses a DATA frame payload. StreamID must be nonzero; a
// zero stream id is rejected with a FrameError.
func DecodeData(h FrameHeader, payload []byte) (DataFrame, error) {
	if h.StreamID == 0 {
		return DataFrame{}, &FrameError{Op: "DATA", Msg: "stream id must be nonzero"}
	}

	d := payload
	if h.Flags&FlagPadded != 0 {
		var err error
		d, err = stripPadding(payload)
		if err != nil {
			return DataFrame{}, err
		}
	}

	return DataFrame{Data: d, EndStream: h.Flags&FlagEndStream != 0}, nil
}

// HeadersFrame is the decoded payload of a HEADERS frame: an opaque
// header-block fragment (HPACK decoding is out of scope).
type HeadersFrame struct {
	HeaderBlockFragment []byte
	EndHeaders          bool
	EndStream           bool
}

// DecodeHeaders parses a HEADERS frame payload.
func DecodeHeaders(h FrameHeader, payload []byte) (HeadersFrame, error) {
	if h.StreamID == 0 {
		return HeadersFrame{}, &FrameError{Op: "HEADERS", Msg: "stream id must be nonzero"}
	}

	d := payload
	if h.Flags&FlagPadded != 0 {
		var err error
		d, err = stripPadding(payload)
		if err != nil {
			return HeadersFrame{}, err
		}
	}

	return HeadersFrame{
		HeaderBlockFragment: d,
		EndHeaders:          h.Flags&FlagEndHeaders != 0,
		EndStream:           h.Flags&FlagEndStream != 0,
	}, nil
}

// SettingsFrame is the decoded payload of a SETTINGS frame.
type SettingsFrame struct {
	ACK      bool
	Settings []Setting
}

// Setting is one (identifier, value) pair inside a non-ACK SETTINGS frame.
type Setting struct {
	Identifier uint16
	Value      uint32
}

// DecodeSettings parses a SETTINGS frame payload.
func DecodeSettings(h FrameHeader, payload []byte) (SettingsFrame, error) {
	if h.StreamID != 0 {
		return SettingsFrame{}, &FrameError{Op: "SETTINGS", Msg: "stream id must be 0"}
	}

	if h.Flags&FlagACK != 0 {
		if len(payload) != 0 {
			return SettingsFrame{}, &FrameError{Op: "SETTINGS", Msg: "ACK frame must have empty payload"}
		}
		return SettingsFrame{ACK: true}, nil
	}

	if len(payload)%6 != 0 {
		return SettingsFrame{}, &FrameError{Op: "SETTINGS", Msg: "payload length must be a multiple of 6"}
	}

	f := SettingsFrame{}
	for i := 0; i < len(payload); i += 6 {
		f.Settings = append(f.Settings, Setting{
			Identifier: binary.BigEndian.Uint16(payload[i : i+2]),
			Value:      binary.BigEndian.Uint32(payload[i+2 : i+6]),
		})
	}

	return f, nil
}

// RSTStreamFrame is the decoded payload of a RST_STREAM frame.
type RSTStreamFrame struct {
	ErrorCode uint32
}

// DecodeRSTStream parses a RST_STREAM frame payload: exactly 4 bytes.
func DecodeRSTStream(h FrameHeader, payload []byte) (RSTStreamFrame, error) {
	if h.StreamID == 0 {
		return RSTStreamFrame{}, &FrameError{Op: "RST_STREAM", Msg: "stream id must be nonzero"}
	}
	if len(payload) != 4 {
		return RSTStreamFrame{}, &FrameError{Op: "RST_STREAM", Msg: "payload must be exactly 4 bytes"}
	}

	return RSTStreamFrame{ErrorCode: binary.BigEndian.Uint32(payload)}, nil
}

// PingFrame is the decoded payload of a PING frame.
type PingFrame struct {
	Data [8]byte
	ACK  bool
}

// DecodePing parses a PING frame payload: exactly 8 opaque bytes.
func DecodePing(h FrameHeader, payload []byte) (PingFrame, error) {
	if h.StreamID != 0 {
		return PingFrame{}, &FrameError{Op: "PING", Msg: "stream id must be 0"}
	}
	if len(payload) != 8 {
		return PingFrame{}, &FrameError{Op: "PING", Msg: "payload must be exactly 8 bytes"}
	}

	f := PingFrame{ACK: h.Flags&FlagACK != 0}
	copy(f.Data[:], payload)
	return f, nil
}

// GoAwayFrame is the decoded payload of a GOAWAY frame.
type GoAwayFrame struct {
	LastStreamID uint32
	ErrorCode    uint32
	DebugData    []byte
}

// DecodeGoAway parses a GOAWAY frame payload: at least 8 bytes.
func DecodeGoAway(h FrameHeader, payload []byte) (GoAwayFrame, error) {
	if h.StreamID != 0 {
		return GoAwayFrame{}, &FrameError{Op: "GOAWAY", Msg: "stream id must be 0"}
	}
	if len(payload) < 8 {
		return GoAwayFrame{}, &FrameError{Op: "GOAWAY", Msg: "payload must be at least 8 bytes"}
	}

	return GoAwayFrame{
		LastStreamID: binary.BigEndian.Uint32(payload[0:4]) & 0x7fffffff,
		ErrorCode:    binary.BigEndian.Uint32(payload[4:8]),
		DebugData:    append([]byte(nil), payload[8:]...),
	}, nil
}

// WindowUpdateFrame is the decoded payload of a WINDOW_UPDATE frame.
type WindowUpdateFrame struct {
	Increment uint32
}

// DecodeWindowUpdate parses a WINDOW_UPDATE frame payload: exactly 4 bytes,
// a nonzero 31-bit increment.
func DecodeWindowUpdate(h FrameHeader, payload []byte) (WindowUpdateFrame, error) {
	if len(payload) != 4 {
		return WindowUpdateFrame{}, &FrameError{Op: "WINDOW_UPDATE", Msg: "payload must be exactly 4 bytes"}
	}

	inc := binary.BigEndian.Uint32(payload) & 0x7fffffff
	if inc == 0 {
		return WindowUpdateFrame{}, &FrameError{Op: "WINDOW_UPDATE", Msg: "increment must be nonzero"}
	}

	return WindowUpdateFrame{Increment: inc}, nil
}

// EncodeData serializes a DATA frame (without padding) for stream id sid.
func EncodeData(sid uint32, data []byte, endStream bool) []byte {
	var flags uint8
	if endStream {
		flags = FlagEndStream
	}

	buf := make([]byte, HeaderLen+len(data))
	_ = EncodeHeader(buf, FrameHeader{Length: uint32(len(data)), Type: FrameData, Flags: flags, StreamID: sid})
	copy(buf[HeaderLen:], data)
	return buf
}

// EncodeSettings serializes a non-ACK SETTINGS frame.
func EncodeSettings(settings []Setting) []byte {
	buf := make([]byte, HeaderLen+len(settings)*6)
	_ = EncodeHeader(buf, FrameHeader{Length: uint32(len(settings) * 6), Type: FrameSettings})

	off := HeaderLen
	for _, s := range settings {
		binary.BigEndian.PutUint16(buf[off:], s.Identifier)
		binary.BigEndian.PutUint32(buf[off+2:], s.Value)
		off += 6
	}

	return buf
}

// EncodeSettingsACK serializes an empty, ACK-flagged SETTINGS frame.
func EncodeSettingsACK() []byte {
	buf := make([]byte, HeaderLen)
	_ = EncodeHeader(buf, FrameHeader{Type: FrameSettings, Flags: FlagACK})
	return buf
}

// EncodePing serializes a PING frame.
func EncodePing(data [8]byte, ack bool) []byte {
	var flags uint8
	if ack {
		flags = FlagACK
	}

	buf := make([]byte, HeaderLen+8)
	_ = EncodeHeader(buf, FrameHeader{Length: 8, Type: FramePing, Flags: flags})
	copy(buf[HeaderLen:], data[:])
	return buf
}

// EncodeWindowUpdate serializes a WINDOW_UPDATE frame for stream id sid
// (0 for connection-level).
func EncodeWindowUpdate(sid uint32, increment uint32) []byte {
	buf := make([]byte, HeaderLen+4)
	_ = EncodeHeader(buf, FrameHeader{Length: 4, Type: FrameWindowUpdate, StreamID: sid})
	binary.BigEndian.PutUint32(buf[HeaderLen:], increment&0x7fffffff)
	return buf
}

// EncodeRSTStream serializes a RST_STREAM frame for stream id sid.
func EncodeRSTStream(sid uint32, errorCode uint32) []byte {
	buf := make([]byte, HeaderLen+4)
	_ = EncodeHeader(buf, FrameHeader{Length: 4, Type: FrameRSTStream, StreamID: sid})
	binary.BigEndian.PutUint32(buf[HeaderLen:], errorCode)
	return buf
}

// EncodeGoAway serializes a GOAWAY frame.
func EncodeGoAway(lastStreamID, errorCode uint32, debugData []byte) []byte {
	buf := make([]byte, HeaderLen+8+len(debugData))
	_ = EncodeHeader(buf, FrameHeader{Length: uint32(8 + len(debugData)), Type: FrameGoAway})
	binary.BigEndian.PutUint32(buf[HeaderLen:], lastStreamID&0x7fffffff)
	binary.BigEndian.PutUint32(buf[HeaderLen+4:], errorCode)
	copy(buf[HeaderLen+8:], debugData)
	return buf
}
