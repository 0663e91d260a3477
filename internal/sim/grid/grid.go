package grid

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"gridnav.dev/internal/sim/encoding"
)

var ErrMalformed = errors.New("grid: malformed dimensions")

const (
	CellOpen    uint16 = 0
	CellBlocked uint16 = 1
)

// Grid is an immutable obstruction map. Bounds are fixed at construction and
// every coordinate outside them reads as blocked.
//
// A *Grid is never mutated after it is returned from New, FromRows, Decode or
// Builder.Build, so searches may share it across goroutines without locking.
type Grid struct {
	w, h    int
	blocked []bool
}

// New returns a fully open grid.
func New(w, h int) (*Grid, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrMalformed, w, h)
	}
	return &Grid{w: w, h: h, blocked: make([]bool, w*h)}, nil
}

// FromRows parses a text map: '#' is blocked, anything else is open. All rows
// must have the same width.
func FromRows(rows []string) (*Grid, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no rows", ErrMalformed)
	}
	w := len(rows[0])
	g, err := New(w, len(rows))
	if err != nil {
		return nil, err
	}
	for y, row := range rows {
		if len(row) != w {
			return nil, fmt.Errorf("%w: row %d has width %d, want %d", ErrMalformed, y, len(row), w)
		}
		for x := 0; x < w; x++ {
			g.blocked[y*w+x] = row[x] == '#'
		}
	}
	return g, nil
}

func (g *Grid) Width() int  { return g.w }
func (g *Grid) Height() int { return g.h }

func (g *Grid) InBounds(c Coord) bool {
	return c.X >= 0 && c.Y >= 0 && c.X < g.w && c.Y < g.h
}

func (g *Grid) IsBlocked(c Coord) bool {
	if g == nil || !g.InBounds(c) {
		return true
	}
	return g.blocked[c.Y*g.w+c.X]
}

func (g *Grid) BlockedCount() int {
	n := 0
	for _, b := range g.blocked {
		if b {
			n++
		}
	}
	return n
}

// Rows renders the grid in the same text form FromRows accepts.
func (g *Grid) Rows() []string {
	out := make([]string, g.h)
	var sb strings.Builder
	for y := 0; y < g.h; y++ {
		sb.Reset()
		for x := 0; x < g.w; x++ {
			if g.blocked[y*g.w+x] {
				sb.WriteByte('#')
			} else {
				sb.WriteByte('.')
			}
		}
		out[y] = sb.String()
	}
	return out
}

// Cells returns the row-major cell values (CellOpen / CellBlocked).
func (g *Grid) Cells() []uint16 {
	out := make([]uint16, len(g.blocked))
	for i, b := range g.blocked {
		if b {
			out[i] = CellBlocked
		}
	}
	return out
}

// Encode returns the row-major cells as base64 RLE.
func (g *Grid) Encode() string { return encoding.EncodeRLE(g.Cells()) }

func Decode(w, h int, rle string) (*Grid, error) {
	g, err := New(w, h)
	if err != nil {
		return nil, err
	}
	cells, err := encoding.DecodeRLE(rle, w*h)
	if err != nil {
		return nil, fmt.Errorf("grid rle: %w", err)
	}
	if len(cells) != w*h {
		return nil, fmt.Errorf("%w: rle has %d cells, want %d", ErrMalformed, len(cells), w*h)
	}
	for i, v := range cells {
		switch v {
		case CellOpen:
		case CellBlocked:
			g.blocked[i] = true
		default:
			return nil, fmt.Errorf("grid rle: bad cell value %d at %d", v, i)
		}
	}
	return g, nil
}

// Digest is a stable hash of dimensions and cells.
func (g *Grid) Digest() string {
	h := sha256.New()
	fmt.Fprintf(h, "%d:%d:", g.w, g.h)
	h.Write([]byte(g.Encode()))
	return hex.EncodeToString(h.Sum(nil))
}

// Builder is the only way to edit cells. Build hands out an independent
// immutable copy, so a builder can keep editing after a grid was published.
type Builder struct {
	w, h    int
	blocked []bool
}

func NewBuilder(w, h int) (*Builder, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrMalformed, w, h)
	}
	return &Builder{w: w, h: h, blocked: make([]bool, w*h)}, nil
}

// BuilderFrom starts from an existing grid's cells.
func BuilderFrom(g *Grid) *Builder {
	b := &Builder{w: g.w, h: g.h, blocked: make([]bool, len(g.blocked))}
	copy(b.blocked, g.blocked)
	return b
}

// Set marks a cell. Out-of-bounds writes are ignored and reported as false.
func (b *Builder) Set(c Coord, blocked bool) bool {
	if c.X < 0 || c.Y < 0 || c.X >= b.w || c.Y >= b.h {
		return false
	}
	b.blocked[c.Y*b.w+c.X] = blocked
	return true
}

func (b *Builder) Build() *Grid {
	g := &Grid{w: b.w, h: b.h, blocked: make([]bool, len(b.blocked))}
	copy(g.blocked, b.blocked)
	return g
}
