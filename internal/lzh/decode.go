package lzh

import (
	"fmt"

	"github.com/kyotei-project/backend/internal/errs"
)

const (
	threshold = 3
	maxMatch  = 256
	nc        = 255 + maxMatch + 2 - threshold // literal and length symbols
	nt        = 19                             // code length symbols
	cbit      = 9
	tbit      = 5
	maxBits   = 16
)

// bitReader yields bits MSB first. Reads past the end produce zeros.
type bitReader struct {
	data []byte
	pos  int // in bits
}

func (r *bitReader) bit() int {
	idx := r.pos >> 3
	shift := 7 - uint(r.pos&7)
	r.pos++
	if idx >= len(r.data) {
		return 0
	}
	return int(r.data[idx]>>shift) & 1
}

func (r *bitReader) bits(n int) int {
	v := 0
	for i := 0; i < n; i++ {
		v = v<<1 | r.bit()
	}
	return v
}

func (r *bitReader) overrun() bool {
	return r.pos > len(r.data)*8
}

// huffman is a canonical prefix code: shorter codes first, then symbol order.
type huffman struct {
	counts  [maxBits + 1]int
	symbols []int
	single  int
	fixed   bool
}

func singleSymbol(sym int) *huffman {
	return &huffman{single: sym, fixed: true}
}

func newHuffman(lengths []int) (*huffman, error) {
	h := &huffman{}
	for _, l := range lengths {
		if l < 0 || l > maxBits {
			return nil, fmt.Errorf("%w: code length %d", errs.ErrParseMalformed, l)
		}
		h.counts[l]++
	}
	h.counts[0] = 0
	for l := 1; l <= maxBits; l++ {
		for sym, sl := range lengths {
			if sl == l {
				h.symbols = append(h.symbols, sym)
			}
		}
	}
	if len(h.symbols) == 0 {
		return nil, fmt.Errorf("%w: empty code table", errs.ErrParseMalformed)
	}
	return h, nil
}

func (h *huffman) decode(r *bitReader) (int, error) {
	if h.fixed {
		return h.single, nil
	}
	code, first, index := 0, 0, 0
	for l := 1; l <= maxBits; l++ {
		code |= r.bit()
		count := h.counts[l]
		if code >= first && code-first < count {
			return h.symbols[index+code-first], nil
		}
		index += count
		first = (first + count) << 1
		code <<= 1
	}
	return 0, fmt.Errorf("%w: invalid prefix code", errs.ErrParseMalformed)
}

// readPtLen reads the small tables used for code lengths and match positions.
func readPtLen(r *bitReader, nn, nbit, special int) (*huffman, error) {
	n := r.bits(nbit)
	if n == 0 {
		c := r.bits(nbit)
		if c >= nn {
			return nil, fmt.Errorf("%w: table symbol %d", errs.ErrParseMalformed, c)
		}
		return singleSymbol(c), nil
	}
	if n > nn {
		return nil, fmt.Errorf("%w: table size %d", errs.ErrParseMalformed, n)
	}
	lengths := make([]int, nn)
	for i := 0; i < n; {
		c := r.bits(3)
		if c == 7 {
			for r.bit() == 1 {
				c++
				if c > maxBits {
					return nil, fmt.Errorf("%w: code length overflow", errs.ErrParseMalformed)
				}
			}
		}
		lengths[i] = c
		i++
		if i == special {
			for z := r.bits(2); z > 0 && i < nn; z-- {
				lengths[i] = 0
				i++
			}
		}
	}
	return newHuffman(lengths)
}

// readCLen reads the literal/length table, its lengths coded with pt.
func readCLen(r *bitReader, pt *huffman) (*huffman, error) {
	n := r.bits(cbit)
	if n == 0 {
		c := r.bits(cbit)
		if c >= nc {
			return nil, fmt.Errorf("%w: literal symbol %d", errs.ErrParseMalformed, c)
		}
		return singleSymbol(c), nil
	}
	if n > nc {
		return nil, fmt.Errorf("%w: literal table size %d", errs.ErrParseMalformed, n)
	}
	lengths := make([]int, nc)
	for i := 0; i < n; {
		c, err := pt.decode(r)
		if err != nil {
			return nil, err
		}
		if c > 2 {
			lengths[i] = c - 2
			i++
			continue
		}
		switch c {
		case 0:
			c = 1
		case 1:
			c = r.bits(4) + 3
		default:
			c = r.bits(cbit) + 20
		}
		for ; c > 0 && i < nc; c-- {
			lengths[i] = 0
			i++
		}
	}
	return newHuffman(lengths)
}

// decompress inflates an -lh5-/-lh6-/-lh7- payload. dicbit is the window size exponent.
func decompress(src []byte, size int, dicbit int) ([]byte, error) {
	np := dicbit + 1
	pbit := 4
	if dicbit >= 15 {
		pbit = 5
	}

	r := &bitReader{data: src}
	out := make([]byte, 0, size)
	blockSize := 0
	var cTable, pTable *huffman

	for len(out) < size {
		if blockSize == 0 {
			blockSize = r.bits(16)
			if blockSize == 0 {
				blockSize = 1 << 16
			}
			tTable, err := readPtLen(r, nt, tbit, 3)
			if err != nil {
				return nil, err
			}
			if cTable, err = readCLen(r, tTable); err != nil {
				return nil, err
			}
			if pTable, err = readPtLen(r, np, pbit, -1); err != nil {
				return nil, err
			}
		}
		blockSize--

		c, err := cTable.decode(r)
		if err != nil {
			return nil, err
		}
		if c < 256 {
			out = append(out, byte(c))
			continue
		}

		length := c - 256 + threshold
		p, err := pTable.decode(r)
		if err != nil {
			return nil, err
		}
		dist := p
		if p != 0 {
			dist = 1<<(p-1) + r.bits(p-1)
		}
		from := len(out) - dist - 1
		for k := 0; k < length && len(out) < size; k++ {
			if from+k < 0 {
				// the sliding window starts filled with spaces
				out = append(out, ' ')
			} else {
				out = append(out, out[from+k])
			}
		}

		if r.overrun() {
			return nil, fmt.Errorf("%w: compressed stream ended early", errs.ErrParseMalformed)
		}
	}
	return out, nil
}
