package quicwire

import (
	"fmt"

	"github.com/nabbar/nettransport/network/varint"
)

// FrameType identifies one of the QUIC frame types this library reproduces
// on the wire (spec.md §3 "QUIC frame").
type FrameType uint8

const (
	FrameTypePadding          FrameType = 0x00
	FrameTypePing             FrameType = 0x01
	FrameTypeAck              FrameType = 0x02
	FrameTypeCrypto           FrameType = 0x06
	FrameTypeStream           FrameType = 0x08
	FrameTypeMaxData          FrameType = 0x10
	FrameTypeMaxStreamData    FrameType = 0x11
	FrameTypeResetStream      FrameType = 0x04
	FrameTypeConnectionClose  FrameType = 0x1c
	FrameTypeHandshakeDone    FrameType = 0x1e
)

func (t FrameType) String() string {
	switch t {
	case FrameTypePadding:
		return "PADDING"
	case FrameTypePing:
		return "PING"
	case FrameTypeAck:
		return "ACK"
	case FrameTypeCrypto:
		return "CRYPTO"
	case FrameTypeStream:
		return "STREAM"
	case FrameTypeMaxData:
		return "MAX_DATA"
	case FrameTypeMaxStreamData:
		return "MAX_STREAM_DATA"
	case FrameTypeResetStream:
		return "RESET_STREAM"
	case FrameTypeConnectionClose:
		return "CONNECTION_CLOSE"
	case FrameTypeHandshakeDone:
		return "HANDSHAKE_DONE"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", uint8(t))
	}
}

// AckRange is one (smallest, largest) inclusive packet-number range
// acknowledged by an ACK frame.
type AckRange struct {
	Smallest uint64
	Largest  uint64
}

// Frame is the tagged union over the QUIC frame set named in spec.md §3.
// Exactly one of the typed payload fields is meaningful, selected by Type.
type Frame struct {
	Type FrameType

	// ACK
	AckRanges []AckRange
	AckDelay  uint64

	// CRYPTO
	CryptoOffset uint64
	CryptoData   []byte

	// STREAM
	StreamID     uint64
	StreamOffset uint64
	StreamData   []byte
	StreamFin    bool

	// CONNECTION_CLOSE
	CloseErrorCode uint64
	CloseReason    string

	// MAX_DATA / MAX_STREAM_DATA / RESET_STREAM
	MaxData   uint64
	ResetCode uint64
}

// Padding returns a PADDING frame.
func Padding() Frame { return Frame{Type: FrameTypePadding} }

// Ping returns a PING frame.
func Ping() Frame { return Frame{Type: FrameTypePing} }

// HandshakeDone returns a HANDSHAKE_DONE frame.
func HandshakeDone() Frame { return Frame{Type: FrameTypeHandshakeDone} }

// Encode serializes f, appending to dst, using QUIC variable-length
// integer encoding for every integer field.
func Encode(dst []byte, f Frame) ([]byte, error) {
	var err error

	if f.Type == FrameTypeStream {
		t := uint64(f.Type) | 0x04 | 0x02 // OFF and LEN fields always present
		if f.StreamFin {
			t |= 0x01
		}
		if dst, err = varint.Encode(dst, t); err != nil {
			return dst, err
		}
	} else if dst, err = varint.Encode(dst, uint64(f.Type)); err != nil {
		return dst, err
	}

	switch f.Type {
	case FrameTypePadding, FrameTypePing, FrameTypeHandshakeDone:
		return dst, nil

	case FrameTypeAck:
		if len(f.AckRanges) == 0 {
			return dst, fmt.Errorf("quicwire: ACK frame requires at least one range")
		}
		largest := f.AckRanges[0].Largest
		first := f.AckRanges[0].Largest - f.AckRanges[0].Smallest
		if dst, err = varint.Encode(dst, largest); err != nil {
			return dst, err
		}
		if dst, err = varint.Encode(dst, f.AckDelay); err != nil {
			return dst, err
		}
		if dst, err = varint.Encode(dst, uint64(len(f.AckRanges)-1)); err != nil {
			return dst, err
		}
		if dst, err = varint.Encode(dst, first); err != nil {
			return dst, err
		}
		prevSmallest := f.AckRanges[0].Smallest
		for _, r := range f.AckRanges[1:] {
			gap := prevSmallest - r.Largest - 2
			length := r.Largest - r.Smallest
			if dst, err = varint.Encode(dst, gap); err != nil {
				return dst, err
			}
			if dst, err = varint.Encode(dst, length); err != nil {
				return dst, err
			}
			prevSmallest = r.Smallest
		}
		return dst, nil

	case FrameTypeCrypto:
		if dst, err = varint.Encode(dst, f.CryptoOffset); err != nil {
			return dst, err
		}
		if dst, err = varint.Encode(dst, uint64(len(f.CryptoData))); err != nil {
			return dst, err
		}
		return append(dst, f.CryptoData...), nil

	case FrameTypeStream:
		if dst, err = varint.Encode(dst, f.StreamID); err != nil {
			return dst, err
		}
		if dst, err = varint.Encode(dst, f.StreamOffset); err != nil {
			return dst, err
		}
		if dst, err = varint.Encode(dst, uint64(len(f.StreamData))); err != nil {
			return dst, err
		}
		return append(dst, f.StreamData...), nil

	case FrameTypeConnectionClose:
		if dst, err = varint.Encode(dst, f.CloseErrorCode); err != nil {
			return dst, err
		}
		if dst, err = varint.Encode(dst, 0); err != nil { // frame type field, 0 = not app-specific
			return dst, err
		}
		if dst, err = varint.Encode(dst, uint64(len(f.CloseReason))); err != nil {
			return dst, err
		}
		return append(dst, f.CloseReason...), nil

	case FrameTypeMaxData, FrameTypeMaxStreamData:
		return varint.Encode(dst, f.MaxData)

	case FrameTypeResetStream:
		if dst, err = varint.Encode(dst, f.StreamID); err != nil {
			return dst, err
		}
		return varint.Encode(dst, f.ResetCode)

	default:
		return dst, fmt.Errorf("quicwire: unknown frame type 0x%02x", uint8(f.Type))
	}
}

// Decode parses one frame from the front of src, returning it along with
// the number of bytes consumed.
func Decode(src []byte) (f Frame, n int, err error) {
	typ, tn, err := varint.Decode(src)
	if err != nil {
		return Frame{}, 0, err
	}
	off := tn

	baseType := FrameType(typ)
	if typ >= uint64(FrameTypeStream) && typ <= uint64(FrameTypeStream)+0x07 {
		baseType = FrameTypeStream
	}

	f.Type = baseType

	switch baseType {
	case FrameTypePadding, FrameTypePing, FrameTypeHandshakeDone:
		return f, off, nil

	case FrameTypeAck:
		largest, ln, e := varint.Decode(src[off:])
		if e != nil {
			return f, 0, e
		}
		off += ln

		delay, ln, e := varint.Decode(src[off:])
		if e != nil {
			return f, 0, e
		}
		off += ln
		f.AckDelay = delay

		count, ln, e := varint.Decode(src[off:])
		if e != nil {
			return f, 0, e
		}
		off += ln

		first, ln, e := varint.Decode(src[off:])
		if e != nil {
			return f, 0, e
		}
		off += ln

		smallest := largest - first
		f.AckRanges = append(f.AckRanges, AckRange{Smallest: smallest, Largest: largest})

		for i := uint64(0); i < count; i++ {
			gap, ln, e := varint.Decode(src[off:])
			if e != nil {
				return f, 0, e
			}
			off += ln

			length, ln, e := varint.Decode(src[off:])
			if e != nil {
				return f, 0, e
			}
			off += ln

			largest = smallest - gap - 2
			smallest = largest - length
			f.AckRanges = append(f.AckRanges, AckRange{Smallest: smallest, Largest: largest})
		}

		return f, off, nil

	case FrameTypeCrypto:
		offset, ln, e := varint.Decode(src[off:])
		if e != nil {
			return f, 0, e
		}
		off += ln
		f.CryptoOffset = offset

		length, ln, e := varint.Decode(src[off:])
		if e != nil {
			return f, 0, e
		}
		off += ln

		if uint64(len(src)-off) < length {
			return f, 0, fmt.Errorf("quicwire: CRYPTO frame truncated")
		}
		f.CryptoData = append([]byte(nil), src[off:off+int(length)]...)
		off += int(length)
		return f, off, nil

	case FrameTypeStream:
		f.StreamFin = typ&0x01 != 0
		hasOffset := typ&0x04 != 0
		hasLength := typ&0x02 != 0

		id, ln, e := varint.Decode(src[off:])
		if e != nil {
			return f, 0, e
		}
		off += ln
		f.StreamID = id

		if hasOffset {
			o, ln, e := varint.Decode(src[off:])
			if e != nil {
				return f, 0, e
			}
			off += ln
			f.StreamOffset = o
		}

		var length uint64
		if hasLength {
			l, ln, e := varint.Decode(src[off:])
			if e != nil {
				return f, 0, e
			}
			off += ln
			length = l
		} else {
			length = uint64(len(src) - off)
		}

		if uint64(len(src)-off) < length {
			return f, 0, fmt.Errorf("quicwire: STREAM frame truncated")
		}
		f.StreamData = append([]byte(nil), src[off:off+int(length)]...)
		off += int(length)
		return f, off, nil

	case FrameTypeConnectionClose:
		code, ln, e := varint.Decode(src[off:])
		if e != nil {
			return f, 0, e
		}
		off += ln
		f.CloseErrorCode = code

		_, ln, e = varint.Decode(src[off:]) // frame-type field, unused
		if e != nil {
			return f, 0, e
		}
		off += ln

		length, ln, e := varint.Decode(src[off:])
		if e != nil {
			return f, 0, e
		}
		off += ln

		if uint64(len(src)-off) < length {
			return f, 0, fmt.Errorf("quicwire: CONNECTION_CLOSE frame truncated")
		}
		f.CloseReason = string(src[off : off+int(length)])
		off += int(length)
		return f, off, nil

	case FrameTypeMaxData, FrameTypeMaxStreamData:
		v, ln, e := varint.Decode(src[off:])
		if e != nil {
			return f, 0, e
		}
		off += ln
		f.MaxData = v
		return f, off, nil

	case FrameTypeResetStream:
		id, ln, e := varint.Decode(src[off:])
		if e != nil {
			return f, 0, e
		}
		off += ln
		f.StreamID = id

		code, ln, e := varint.Decode(src[off:])
		if e != nil {
			return f, 0, e
		}
		off += ln
		f.ResetCode = code
		return f, off, nil

	default:
		return f, 0, fmt.Errorf("quicwire: unknown frame type 0x%02x", typ)
	}
}
