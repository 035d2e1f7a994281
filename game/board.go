// Package game defines the board and piece types for the falling-block game.
//
// Boards are small fixed-size grids designed to be cloned cheaply so that the
// move search can simulate every candidate placement on its own copy without
// touching the authoritative board.
package game

import "fmt"

// Default board dimensions.
const (
	DefaultWidth  = 10
	DefaultHeight = 20
)

// Cell is the state of one board square: Empty or a palette color index.
type Cell uint8

const Empty Cell = 0

// NumColors is the number of non-background palette entries. Valid colors are
// 1..NumColors.
const NumColors = 7

// Valid reports whether c is Empty or a palette color.
func (c Cell) Valid() bool {
	return c <= NumColors
}

// Board is a Width x Height occupancy grid.
// Coordinates: (0,0) is the top-left cell, y grows downward, so row
// Height-1 is the floor.
type Board struct {
	width  int
	height int
	cells  []Cell // row-major, y*width + x
}

// NewBoard returns an empty board. It panics on non-positive dimensions.
func NewBoard(width, height int) Board {
	if width <= 0 || height <= 0 {
		panic(fmt.Sprintf("game: invalid board size %dx%d", width, height))
	}
	return Board{width: width, height: height, cells: make([]Cell, width*height)}
}

func (b *Board) Width() int  { return b.width }
func (b *Board) Height() int { return b.height }

// InBounds reports whether (x, y) is a cell of the board.
func (b *Board) InBounds(x, y int) bool {
	return x >= 0 && x < b.width && y >= 0 && y < b.height
}

// At returns the cell at (x, y). Out-of-range coordinates read as Empty.
func (b *Board) At(x, y int) Cell {
	if !b.InBounds(x, y) {
		return Empty
	}
	return b.cells[y*b.width+x]
}

// Occupied reports whether (x, y) holds a colored cell.
func (b *Board) Occupied(x, y int) bool {
	return b.At(x, y) != Empty
}

// Set writes c at (x, y). Writes outside the board or with a color outside
// the palette are ignored and reported as false.
func (b *Board) Set(x, y int, c Cell) bool {
	if !b.InBounds(x, y) || !c.Valid() {
		return false
	}
	b.cells[y*b.width+x] = c
	return true
}

// IsRowComplete reports whether every cell of row y is occupied.
func (b *Board) IsRowComplete(y int) bool {
	if y < 0 || y >= b.height {
		return false
	}
	row := b.cells[y*b.width : (y+1)*b.width]
	for _, c := range row {
		if c == Empty {
			return false
		}
	}
	return true
}

// ClearCompletedRows removes every complete row, shifting the rows above it
// down and blanking the top. Rows are scanned bottom to top; after a removal
// the same row index is examined again since the row pulled into it may be
// complete too. It returns the number of rows removed.
func (b *Board) ClearCompletedRows() int {
	cleared := 0
	y := b.height - 1
	for y >= 0 {
		if !b.IsRowComplete(y) {
			y--
			continue
		}
		// Shift rows [0, y) down by one, then blank row 0.
		copy(b.cells[b.width:(y+1)*b.width], b.cells[:y*b.width])
		for x := 0; x < b.width; x++ {
			b.cells[x] = Empty
		}
		cleared++
	}
	return cleared
}

// ColumnHeight is the distance from the topmost occupied cell of column x to
// the floor, or 0 for an empty column.
func (b *Board) ColumnHeight(x int) int {
	for y := 0; y < b.height; y++ {
		if b.cells[y*b.width+x] != Empty {
			return b.height - y
		}
	}
	return 0
}

// AggregateHeight is the sum of all column heights.
func (b *Board) AggregateHeight() int {
	sum := 0
	for x := 0; x < b.width; x++ {
		sum += b.ColumnHeight(x)
	}
	return sum
}

// Clone performs a deep copy of the board.
func (b *Board) Clone() Board {
	out := Board{width: b.width, height: b.height, cells: make([]Cell, len(b.cells))}
	copy(out.cells, b.cells)
	return out
}

// CopyFrom overwrites b with the contents of src, reusing b's storage when the
// dimensions match. It is the allocation-free counterpart of Clone used by
// scratch boards in the move search.
func (b *Board) CopyFrom(src *Board) {
	if cap(b.cells) < len(src.cells) {
		b.cells = make([]Cell, len(src.cells))
	}
	b.cells = b.cells[:len(src.cells)]
	b.width = src.width
	b.height = src.height
	copy(b.cells, src.cells)
}

// Equal reports whether both boards have the same size and contents.
func (b *Board) Equal(o *Board) bool {
	if b.width != o.width || b.height != o.height {
		return false
	}
	for i := range b.cells {
		if b.cells[i] != o.cells[i] {
			return false
		}
	}
	return true
}

// Rows returns a copy of the grid as rows of color indexes, top row first.
// It is the read-only snapshot format handed to collaborators outside the core.
func (b *Board) Rows() [][]uint8 {
	rows := make([][]uint8, b.height)
	for y := 0; y < b.height; y++ {
		row := make([]uint8, b.width)
		for x := 0; x < b.width; x++ {
			row[x] = uint8(b.cells[y*b.width+x])
		}
		rows[y] = row
	}
	return rows
}

// Bytes returns the grid as one byte per cell in row-major order.
func (b *Board) Bytes() []byte {
	out := make([]byte, len(b.cells))
	for i, c := range b.cells {
		out[i] = byte(c)
	}
	return out
}

// BoardFromRows builds a board from rows of color indexes, top row first.
// All rows must have the same length and every value must be a valid Cell.
func BoardFromRows(rows [][]uint8) (Board, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return Board{}, fmt.Errorf("empty board rows")
	}
	b := NewBoard(len(rows[0]), len(rows))
	for y, row := range rows {
		if len(row) != b.width {
			return Board{}, fmt.Errorf("row %d has width %d, want %d", y, len(row), b.width)
		}
		for x, v := range row {
			if !b.Set(x, y, Cell(v)) {
				return Board{}, fmt.Errorf("invalid cell %d at (%d,%d)", v, x, y)
			}
		}
	}
	return b, nil
}

// String renders the board as ASCII, '.' for empty and the color digit
// otherwise.
func (b *Board) String() string {
	buf := make([]byte, 0, (b.width+1)*b.height)
	for y := 0; y < b.height; y++ {
		for x := 0; x < b.width; x++ {
			c := b.cells[y*b.width+x]
			if c == Empty {
				buf = append(buf, '.')
			} else {
				buf = append(buf, byte('0'+c))
			}
		}
		buf = append(buf, '\n')
	}
	return string(buf)
}
