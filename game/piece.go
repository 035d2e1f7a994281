// piece.go holds the static tetromino catalog and the falling piece instance.

package game

import (
	"fmt"
	"math/rand"
)

// TemplateSize is the side length of every rotation bitmap.
const TemplateSize = 5

// SpawnY is the row of a freshly spawned piece's template origin. It is above
// the board so the piece enters from the top.
const SpawnY = -2

// Shape identifies one of the seven tetrominoes.
type Shape uint8

const (
	ShapeS Shape = iota
	ShapeZ
	ShapeJ
	ShapeL
	ShapeI
	ShapeO
	ShapeT
	NumShapes = 7
)

var shapeNames = [NumShapes]string{"S", "Z", "J", "L", "I", "O", "T"}

func (s Shape) String() string {
	if int(s) < len(shapeNames) {
		return shapeNames[s]
	}
	return fmt.Sprintf("Shape(%d)", uint8(s))
}

// ParseShape maps a one-letter name back to its Shape.
func ParseShape(name string) (Shape, error) {
	for i, n := range shapeNames {
		if n == name {
			return Shape(i), nil
		}
	}
	return 0, fmt.Errorf("unknown shape %q", name)
}

// Bitmap is one rotation state. Row r, column c is occupied when bit
// (TemplateSize-1-c) of Bitmap[r] is set, so the literal 0b01100 reads like
// the row it draws.
type Bitmap [TemplateSize]uint8

// Filled reports whether template cell (col, row) is occupied.
func (bm Bitmap) Filled(col, row int) bool {
	return bm[row]>>(TemplateSize-1-col)&1 != 0
}

// Cells calls fn for every occupied template cell.
func (bm Bitmap) Cells(fn func(col, row int)) {
	for row := 0; row < TemplateSize; row++ {
		if bm[row] == 0 {
			continue
		}
		for col := 0; col < TemplateSize; col++ {
			if bm.Filled(col, row) {
				fn(col, row)
			}
		}
	}
}

// templates lists the rotation states of every shape in rotation order.
var templates = [NumShapes][]Bitmap{
	ShapeS: {
		{0b00000, 0b00000, 0b00110, 0b01100, 0b00000},
		{0b00000, 0b00100, 0b00110, 0b00010, 0b00000},
	},
	ShapeZ: {
		{0b00000, 0b00000, 0b01100, 0b00110, 0b00000},
		{0b00000, 0b00100, 0b01100, 0b01000, 0b00000},
	},
	ShapeJ: {
		{0b00000, 0b01000, 0b01110, 0b00000, 0b00000},
		{0b00000, 0b00110, 0b00100, 0b00100, 0b00000},
		{0b00000, 0b00000, 0b01110, 0b00010, 0b00000},
		{0b00000, 0b00100, 0b00100, 0b01100, 0b00000},
	},
	ShapeL: {
		{0b00000, 0b00010, 0b01110, 0b00000, 0b00000},
		{0b00000, 0b00100, 0b00100, 0b00110, 0b00000},
		{0b00000, 0b00000, 0b01110, 0b01000, 0b00000},
		{0b00000, 0b01100, 0b00100, 0b00100, 0b00000},
	},
	ShapeI: {
		{0b00100, 0b00100, 0b00100, 0b00100, 0b00000},
		{0b00000, 0b00000, 0b11110, 0b00000, 0b00000},
	},
	ShapeO: {
		{0b00000, 0b00000, 0b01100, 0b01100, 0b00000},
	},
	ShapeT: {
		{0b00000, 0b00100, 0b01110, 0b00000, 0b00000},
		{0b00000, 0b00100, 0b00110, 0b00100, 0b00000},
		{0b00000, 0b00000, 0b01110, 0b00100, 0b00000},
		{0b00000, 0b00100, 0b01100, 0b00100, 0b00000},
	},
}

// Rotations returns the number of rotation states of s (always >= 1).
func (s Shape) Rotations() int {
	return len(templates[s])
}

// Template returns rotation state r of s, taking r modulo the state count.
func (s Shape) Template(r int) Bitmap {
	n := len(templates[s])
	return templates[s][((r%n)+n)%n]
}

// Piece is a falling piece instance. X and Y locate the top-left corner of the
// rotation bitmap on the board and may be negative while the piece is above
// the playfield. Piece is a value type: copies never alias.
type Piece struct {
	Shape    Shape
	Rotation int
	X        int
	Y        int
	Color    Cell
}

// Bitmap returns the current rotation state.
func (p Piece) Bitmap() Bitmap {
	return p.Shape.Template(p.Rotation)
}

// Rotate returns the piece turned n rotation states forward, cyclically.
func (p Piece) Rotate(n int) Piece {
	r := p.Shape.Rotations()
	p.Rotation = ((p.Rotation+n)%r + r) % r
	return p
}

// Shift returns the piece moved by (dx, dy).
func (p Piece) Shift(dx, dy int) Piece {
	p.X += dx
	p.Y += dy
	return p
}

// SpawnX is the horizontal template origin that centers a piece on a board of
// the given width.
func SpawnX(width int) int {
	return width/2 - TemplateSize/2
}

// SpawnPiece returns a new piece with a uniformly random shape, rotation
// state and color, centered horizontally above a board of the given width.
func SpawnPiece(rng *rand.Rand, width int) Piece {
	shape := Shape(rng.Intn(NumShapes))
	return Piece{
		Shape:    shape,
		Rotation: rng.Intn(shape.Rotations()),
		X:        SpawnX(width),
		Y:        SpawnY,
		Color:    Cell(1 + rng.Intn(NumColors)),
	}
}

// Level is the game level reached with the given score.
func Level(score int) int {
	return score/10 + 1
}
