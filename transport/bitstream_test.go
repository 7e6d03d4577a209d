package transport

import "testing"

func TestBitStreamReadWriteBytes(t *testing.T) {
	bs := NewEmptyBitStream()
	bs.WriteByte(0x01)
	bs.WriteBytes([]byte{0x02, 0x03, 0x04})

	r := NewBitStream(bs.Bytes())
	b, err := r.ReadByte()
	if err != nil || b != 0x01 {
		t.Fatalf("ReadByte = %d, %v; want 0x01, nil", b, err)
	}
	rest, err := r.ReadBytes(3)
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if string(rest) != "\x02\x03\x04" {
		t.Errorf("ReadBytes = %v, want [2 3 4]", rest)
	}
	if r.Remaining() != 0 {
		t.Errorf("Remaining = %d, want 0", r.Remaining())
	}
}

func TestBitStreamUint16LERoundTrip(t *testing.T) {
	for _, v := range []uint16{0, 1, 0xFF, 0x1234, HugeSentinel} {
		bs := NewEmptyBitStream()
		bs.WriteUint16LE(v)
		got, err := NewBitStream(bs.Bytes()).ReadUint16LE()
		if err != nil {
			t.Fatalf("ReadUint16LE(%d): %v", v, err)
		}
		if got != v {
			t.Errorf("round trip %d, got %d", v, got)
		}
	}
}

func TestBitStreamUint32LERoundTrip(t *testing.T) {
	for _, v := range []uint32{0, 1, 0xFFFF, 0xDEADBEEF} {
		bs := NewEmptyBitStream()
		bs.WriteUint32LE(v)
		got, err := NewBitStream(bs.Bytes()).ReadUint32LE()
		if err != nil {
			t.Fatalf("ReadUint32LE(%d): %v", v, err)
		}
		if got != v {
			t.Errorf("round trip %d, got %d", v, got)
		}
	}
}

func TestBitStreamReadPastEndReturnsTruncated(t *testing.T) {
	bs := NewBitStream([]byte{0x01})
	if _, err := bs.ReadByte(); err != nil {
		t.Fatalf("first ReadByte: %v", err)
	}
	if _, err := bs.ReadByte(); err != ErrTruncated {
		t.Errorf("second ReadByte = %v, want ErrTruncated", err)
	}
	if _, err := NewBitStream([]byte{0x01}).ReadUint16LE(); err != ErrTruncated {
		t.Errorf("ReadUint16LE on 1 byte: want ErrTruncated")
	}
}

func TestBitStreamReset(t *testing.T) {
	bs := NewEmptyBitStream()
	bs.WriteBytes([]byte{1, 2, 3})
	bs.Reset()
	if len(bs.Bytes()) != 0 || bs.Remaining() != 0 {
		t.Errorf("after Reset: Bytes() = %v, Remaining() = %d", bs.Bytes(), bs.Remaining())
	}
}

func TestEncodeFragmentStartUsesBitStreamLayout(t *testing.T) {
	buf := EncodeFragmentStart([]byte{0xAB}, 0x1234)
	if len(buf) != 3 || buf[0] != 0xAB {
		t.Fatalf("EncodeFragmentStart prefix not preserved: %v", buf)
	}
	got, n, err := DecodeFragmentStart(buf[1:])
	if err != nil || n != 2 || got != 0x1234 {
		t.Errorf("DecodeFragmentStart = %d, %d, %v; want 0x1234, 2, nil", got, n, err)
	}
}
