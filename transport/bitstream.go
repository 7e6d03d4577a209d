package transport

import "encoding/binary"

// BitStream is a small cursor-based byte reader/writer, extended with
// little-endian variants for the fragment total-length field and other
// wire-visible little-endian ints.
type BitStream struct {
	data   []byte
	offset int
}

func NewBitStream(data []byte) *BitStream {
	return &BitStream{data: data}
}

func NewEmptyBitStream() *BitStream {
	return &BitStream{data: make([]byte, 0, 64)}
}

func (bs *BitStream) ReadByte() (byte, error) {
	if bs.offset >= len(bs.data) {
		return 0, ErrTruncated
	}
	b := bs.data[bs.offset]
	bs.offset++
	return b, nil
}

func (bs *BitStream) ReadBytes(n int) ([]byte, error) {
	if n < 0 || bs.offset+n > len(bs.data) {
		return nil, ErrTruncated
	}
	out := bs.data[bs.offset : bs.offset+n]
	bs.offset += n
	return out, nil
}

func (bs *BitStream) ReadUint16LE() (uint16, error) {
	b, err := bs.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (bs *BitStream) ReadUint32LE() (uint32, error) {
	b, err := bs.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (bs *BitStream) WriteByte(b byte) {
	bs.data = append(bs.data, b)
}

func (bs *BitStream) WriteBytes(b []byte) {
	bs.data = append(bs.data, b...)
}

func (bs *BitStream) WriteUint16LE(v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	bs.data = append(bs.data, tmp[:]...)
}

func (bs *BitStream) WriteUint32LE(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	bs.data = append(bs.data, tmp[:]...)
}

func (bs *BitStream) Bytes() []byte { return bs.data }

func (bs *BitStream) Remaining() int { return len(bs.data) - bs.offset }

func (bs *BitStream) Reset() {
	bs.data = bs.data[:0]
	bs.offset = 0
}
