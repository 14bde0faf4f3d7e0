/**
 * @description
 * In-process reader for LHA archives as published by the official data site.
 * Supports header levels 0, 1 and 2 and the -lh0-, -lh5-, -lh6- and -lh7- methods.
 *
 * @notes
 * - Any other method fails with errs.ErrCodecUnsupported naming the entry.
 * - Entry payloads are verified against the header CRC-16.
 */

package lzh

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kyotei-project/backend/internal/errs"
)

// File is one decoded archive entry.
type File struct {
	Name   string
	Method string
	Data   []byte
}

type header struct {
	level      byte
	method     string
	name       string
	packedSize int
	origSize   int
	crc        uint16
	headerLen  int
}

// Open decodes the archive at path.
func Open(path string) ([]File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Read decodes every entry of an archive stream.
func Read(r io.Reader) ([]File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Decode decodes every entry of an in-memory archive.
func Decode(data []byte) ([]File, error) {
	var files []File
	pos := 0
	for pos < len(data) {
		if isEndMarker(data[pos:]) {
			break
		}
		h, err := readHeader(data[pos:])
		if err != nil {
			return nil, err
		}
		start := pos + h.headerLen
		end := start + h.packedSize
		if h.packedSize < 0 || end > len(data) {
			return nil, fmt.Errorf("%w: entry %q truncated", errs.ErrParseMalformed, h.name)
		}
		payload := data[start:end]
		pos = end

		var out []byte
		switch h.method {
		case "-lhd-":
			continue
		case "-lh0-":
			out = append([]byte(nil), payload...)
		case "-lh5-":
			out, err = decompress(payload, h.origSize, 13)
		case "-lh6-":
			out, err = decompress(payload, h.origSize, 15)
		case "-lh7-":
			out, err = decompress(payload, h.origSize, 16)
		default:
			return nil, fmt.Errorf("%w: %s uses %s", errs.ErrCodecUnsupported, h.name, h.method)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", h.name, err)
		}
		if len(out) != h.origSize {
			return nil, fmt.Errorf("%w: %s decoded %d of %d bytes", errs.ErrParseMalformed, h.name, len(out), h.origSize)
		}
		if sum := crc16(out); sum != h.crc {
			return nil, fmt.Errorf("%w: %s crc %04x, header says %04x", errs.ErrParseMalformed, h.name, sum, h.crc)
		}
		files = append(files, File{Name: h.name, Method: h.method, Data: out})
	}
	return files, nil
}

// a zero size byte ends the archive, unless it is the low byte of a level 2 header size
func isEndMarker(b []byte) bool {
	if b[0] != 0 {
		return false
	}
	if len(b) >= 22 && b[20] == 2 && binary.LittleEndian.Uint16(b) != 0 {
		return false
	}
	return true
}

func readHeader(b []byte) (*header, error) {
	if len(b) < 22 {
		return nil, fmt.Errorf("%w: short header", errs.ErrParseMalformed)
	}
	h := &header{
		level:      b[20],
		method:     string(b[2:7]),
		packedSize: int(binary.LittleEndian.Uint32(b[7:])),
		origSize:   int(binary.LittleEndian.Uint32(b[11:])),
	}
	if !strings.HasPrefix(h.method, "-") || !strings.HasSuffix(h.method, "-") {
		return nil, fmt.Errorf("%w: bad method field %q", errs.ErrParseMalformed, h.method)
	}

	switch h.level {
	case 0, 1:
		size := int(b[0]) + 2
		if len(b) < size {
			return nil, fmt.Errorf("%w: short header", errs.ErrParseMalformed)
		}
		var sum byte
		for _, c := range b[2:size] {
			sum += c
		}
		if sum != b[1] {
			return nil, fmt.Errorf("%w: header checksum mismatch", errs.ErrParseMalformed)
		}
		nameLen := int(b[21])
		if 22+nameLen+2 > size {
			return nil, fmt.Errorf("%w: name overruns header", errs.ErrParseMalformed)
		}
		h.name = string(b[22 : 22+nameLen])
		h.crc = binary.LittleEndian.Uint16(b[22+nameLen:])
		h.headerLen = size
		if h.level == 1 {
			next := int(binary.LittleEndian.Uint16(b[size-2:]))
			extLen, err := h.readExtensions(b[size:], next)
			if err != nil {
				return nil, err
			}
			h.headerLen += extLen
			// level 1 counts extension headers in the packed size
			h.packedSize -= extLen
		}
	case 2:
		size := int(binary.LittleEndian.Uint16(b))
		if size < 26 || len(b) < size {
			return nil, fmt.Errorf("%w: short level 2 header", errs.ErrParseMalformed)
		}
		h.crc = binary.LittleEndian.Uint16(b[21:])
		next := int(binary.LittleEndian.Uint16(b[24:]))
		if _, err := h.readExtensions(b[26:size], next); err != nil {
			return nil, err
		}
		h.headerLen = size
	default:
		return nil, fmt.Errorf("%w: header level %d", errs.ErrCodecUnsupported, h.level)
	}
	return h, nil
}

// readExtensions walks the chain of extended headers: type, data, next size.
func (h *header) readExtensions(b []byte, next int) (int, error) {
	var dir string
	off := 0
	for next > 0 {
		if next < 3 || off+next > len(b) {
			return 0, fmt.Errorf("%w: extended header overruns", errs.ErrParseMalformed)
		}
		ext := b[off : off+next]
		payload := ext[1 : next-2]
		switch ext[0] {
		case 0x01:
			h.name = string(payload)
		case 0x02:
			dir = strings.TrimRight(strings.ReplaceAll(string(payload), "\xff", "/"), "/")
		}
		off += next
		next = int(binary.LittleEndian.Uint16(ext[next-2:]))
	}
	if dir != "" {
		h.name = dir + "/" + h.name
	}
	return off, nil
}

var crcTable = func() [256]uint16 {
	var t [256]uint16
	for i := range t {
		c := uint16(i)
		for k := 0; k < 8; k++ {
			if c&1 != 0 {
				c = c>>1 ^ 0xA001
			} else {
				c >>= 1
			}
		}
		t[i] = c
	}
	return t
}()

func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc = crcTable[byte(crc)^b] ^ crc>>8
	}
	return crc
}
