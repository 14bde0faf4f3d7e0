package lzh

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/kyotei-project/backend/internal/errs"
)

type bitWriter struct {
	buf   []byte
	nbits int
}

func (w *bitWriter) write(v, n int) {
	for i := n - 1; i >= 0; i-- {
		if w.nbits%8 == 0 {
			w.buf = append(w.buf, 0)
		}
		if (v>>uint(i))&1 == 1 {
			w.buf[len(w.buf)-1] |= 1 << uint(7-w.nbits%8)
		}
		w.nbits++
	}
}

func level0(method, name string, payload []byte, orig []byte) []byte {
	total := 24 + len(name)
	h := make([]byte, total)
	h[0] = byte(total - 2)
	copy(h[2:7], method)
	binary.LittleEndian.PutUint32(h[7:], uint32(len(payload)))
	binary.LittleEndian.PutUint32(h[11:], uint32(len(orig)))
	h[19] = 0x20
	h[20] = 0
	h[21] = byte(len(name))
	copy(h[22:], name)
	binary.LittleEndian.PutUint16(h[22+len(name):], crc16(orig))
	var sum byte
	for _, c := range h[2:] {
		sum += c
	}
	h[1] = sum
	return append(h, payload...)
}

func level2(method, name string, payload []byte, orig []byte) []byte {
	extSize := 1 + len(name) + 2
	total := 26 + extSize
	h := make([]byte, total)
	binary.LittleEndian.PutUint16(h[0:], uint16(total))
	copy(h[2:7], method)
	binary.LittleEndian.PutUint32(h[7:], uint32(len(payload)))
	binary.LittleEndian.PutUint32(h[11:], uint32(len(orig)))
	h[19] = 0x20
	h[20] = 2
	binary.LittleEndian.PutUint16(h[21:], crc16(orig))
	h[23] = 'U'
	binary.LittleEndian.PutUint16(h[24:], uint16(extSize))
	h[26] = 0x01
	copy(h[27:], name)
	// trailing next-size of 0 is already zeroed
	return append(h, payload...)
}

func TestDecodeStoredLevel0(t *testing.T) {
	body := []byte("STARTK\r\n01KBGN\r\n")
	archive := append(level0("-lh0-", "K250705.TXT", body, body), 0)

	files, err := Decode(archive)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 1 || files[0].Name != "K250705.TXT" || string(files[0].Data) != string(body) {
		t.Fatalf("unexpected files %+v", files)
	}
}

func TestDecodeLh5SingleSymbolBlocks(t *testing.T) {
	w := &bitWriter{}
	// block 1: one literal 'A'
	w.write(1, 16)
	w.write(0, tbit)
	w.write(0, tbit)
	w.write(0, cbit)
	w.write('A', cbit)
	w.write(0, 4)
	w.write(0, 4)
	// block 2: one match of length 10 at distance 1
	w.write(1, 16)
	w.write(0, tbit)
	w.write(0, tbit)
	w.write(0, cbit)
	w.write(256+10-threshold, cbit)
	w.write(0, 4)
	w.write(0, 4)

	want := []byte("AAAAAAAAAAA")
	archive := append(level2("-lh5-", "B250705.TXT", w.buf, want), 0)

	files, err := Decode(archive)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 1 || string(files[0].Data) != string(want) {
		t.Fatalf("unexpected output %q", files[0].Data)
	}
	if files[0].Name != "B250705.TXT" {
		t.Fatalf("expected name from extended header, got %q", files[0].Name)
	}
}

func TestDecodeLh5HuffmanBlock(t *testing.T) {
	w := &bitWriter{}
	w.write(4, 16) // four symbols in the block

	// code-length table: symbols 2 and 3 get one-bit codes ("0" and "1")
	w.write(4, tbit)
	w.write(0, 3)
	w.write(0, 3)
	w.write(1, 3)
	w.write(0, 2) // zero-run after the third entry
	w.write(1, 3)

	// literal table: 97 zeros, then 'a' and 'b' with length 1
	w.write(99, cbit)
	w.write(0, 1) // symbol 2: long zero run
	w.write(97-20, cbit)
	w.write(1, 1) // symbol 3: length 1
	w.write(1, 1)

	// position table unused
	w.write(0, 4)
	w.write(0, 4)

	// payload "abba"
	w.write(0, 1)
	w.write(1, 1)
	w.write(1, 1)
	w.write(0, 1)

	want := []byte("abba")
	archive := append(level0("-lh5-", "K250705.TXT", w.buf, want), 0)

	files, err := Decode(archive)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(files[0].Data) != "abba" {
		t.Fatalf("expected abba, got %q", files[0].Data)
	}
}

func TestDecodeRejectsUnsupportedMethod(t *testing.T) {
	body := []byte("x")
	archive := append(level0("-lh1-", "K250705.TXT", body, body), 0)

	_, err := Decode(archive)
	if !errors.Is(err, errs.ErrCodecUnsupported) {
		t.Fatalf("expected codec unsupported, got %v", err)
	}
}

func TestDecodeDetectsCRCMismatch(t *testing.T) {
	body := []byte("hello")
	archive := level0("-lh0-", "K.TXT", body, body)
	archive[len(archive)-1] = 'X'

	_, err := Decode(append(archive, 0))
	if !errors.Is(err, errs.ErrParseMalformed) {
		t.Fatalf("expected malformed error, got %v", err)
	}
}

func TestCanonicalHuffmanDecode(t *testing.T) {
	h, err := newHuffman([]int{2, 1, 3, 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w := &bitWriter{}
	w.write(0b0, 1)
	w.write(0b10, 2)
	w.write(0b110, 3)
	w.write(0b111, 3)

	r := &bitReader{data: w.buf}
	for _, want := range []int{1, 0, 2, 3} {
		got, err := h.decode(r)
		if err != nil || got != want {
			t.Fatalf("expected %d, got %d (%v)", want, got, err)
		}
	}
}
