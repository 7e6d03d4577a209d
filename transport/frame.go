package transport

// FrameHeader is the per-message header:
//
//	byte0: [C|R|I|SOP(2)|BLO(3)]   BLO = low 3 bits of (length-1)
//	byte1 (if C=1): BHI(8)         BHI = high 8 bits of (length-1)
//
// Length is biased so wire value 0 means a 1-byte payload.
type FrameHeader struct {
	Reliable     bool
	AckIDPresent bool
	SOP          byte
	Length       int // payload length in bytes, 1..MaxMessageLength
}

// EncodeHeader appends the encoded header to buf and returns the result.
func EncodeHeader(buf []byte, h FrameHeader) []byte {
	lw := uint16(h.Length - 1) // 0..2047, 11 bits
	blo := byte(lw & 0x7)
	hi := byte(lw >> 3)
	c := hi != 0

	var b0 byte
	if c {
		b0 |= 0x80
	}
	if h.Reliable {
		b0 |= 0x40
	}
	if h.AckIDPresent {
		b0 |= 0x20
	}
	b0 |= (h.SOP & 0x3) << 3
	b0 |= blo

	buf = append(buf, b0)
	if c {
		buf = append(buf, hi)
	}
	return buf
}

// DecodeHeader parses a header from the front of data, returning the
// number of bytes consumed. Truncated input is reported via ErrTruncated
// and must not tear down the connection - callers simply stop parsing the
// current datagram.
func DecodeHeader(data []byte) (FrameHeader, int, error) {
	if len(data) < 1 {
		return FrameHeader{}, 0, ErrTruncated
	}
	b0 := data[0]
	var h FrameHeader
	c := b0&0x80 != 0
	h.Reliable = b0&0x40 != 0
	h.AckIDPresent = b0&0x20 != 0
	h.SOP = (b0 >> 3) & 0x3
	blo := b0 & 0x7

	var lw uint16
	consumed := 1
	if c {
		if len(data) < 2 {
			return FrameHeader{}, 0, ErrTruncated
		}
		hi := data[1]
		lw = uint16(hi)<<3 | uint16(blo)
		consumed = 2
	} else {
		lw = uint16(blo)
	}
	h.Length = int(lw) + 1
	return h, consumed, nil
}

// HeaderSize returns the number of bytes EncodeHeader would emit for a
// payload of the given length, without doing the encoding. Used by the
// cluster writer and fragmenter to reason about headroom.
func HeaderSize(length int) int {
	lw := uint16(length - 1)
	if lw>>3 != 0 {
		return 2
	}
	return 1
}

// EncodeFragmentStart appends the 2-byte little-endian total-length field
// that precedes the payload of the first chunk of a fragmented message
//. totalLength may be HugeSentinel to mark a streamed huge
// transfer.
func EncodeFragmentStart(buf []byte, totalLength uint16) []byte {
	bs := NewBitStream(buf)
	bs.WriteUint16LE(totalLength)
	return bs.Bytes()
}

// DecodeFragmentStart reads the 2-byte little-endian total-length field.
func DecodeFragmentStart(data []byte) (uint16, int, error) {
	v, err := NewBitStream(data).ReadUint16LE()
	if err != nil {
		return 0, 0, ErrTruncated
	}
	return v, 2, nil
}
