package board

// Size is the edge length of the square grid.
const Size = 15

// WinLength is the number of contiguous stones that wins.
const WinLength = 5

// Stone is a cell value; a non-empty Stone doubles as a side.
type Stone uint8

const (
	Empty Stone = iota
	First
	Second
)

func (s Stone) String() string {
	switch s {
	case First:
		return "black"
	case Second:
		return "white"
	default:
		return "empty"
	}
}

// Opponent returns the other side. Empty has no opponent.
func (s Stone) Opponent() Stone {
	switch s {
	case First:
		return Second
	case Second:
		return First
	default:
		return Empty
	}
}

// ParseStone accepts "black"/"first" and "white"/"second".
func ParseStone(v string) Stone {
	switch v {
	case "black", "first":
		return First
	case "white", "second":
		return Second
	default:
		return Empty
	}
}

// Board is a value type; copying it yields an independent snapshot.
type Board [Size][Size]Stone

var (
	ErrOutOfBounds  = errf("coordinates out of bounds")
	ErrCellOccupied = errf("cell already occupied")
	ErrNoSide       = errf("empty is not a side")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }

func errf(s string) error { return staticErr(s) }

// InBounds reports whether (row, col) addresses a cell.
func InBounds(row, col int) bool {
	return row >= 0 && row < Size && col >= 0 && col < Size
}

// Place writes side at (row, col). Cells are write-once.
func (b *Board) Place(row, col int, side Stone) error {
	if side != First && side != Second {
		return ErrNoSide
	}
	if !InBounds(row, col) {
		return ErrOutOfBounds
	}
	if b[row][col] != Empty {
		return ErrCellOccupied
	}
	b[row][col] = side
	return nil
}

// At returns the stone at (row, col), Empty when out of bounds.
func (b *Board) At(row, col int) Stone {
	if !InBounds(row, col) {
		return Empty
	}
	return b[row][col]
}

var directions = [4][2]int{{0, 1}, {1, 0}, {1, 1}, {1, -1}}

// CheckWin looks only at lines through (row, col).
func (b *Board) CheckWin(row, col int, side Stone) bool {
	return b.LongestLine(row, col, side) >= WinLength
}

// LongestLine returns the longest run of side through (row, col) over the
// four axes. The origin is counted once; each arm scans at most WinLength-1.
func (b *Board) LongestLine(row, col int, side Stone) int {
	if side == Empty || b.At(row, col) != side {
		return 0
	}
	best := 0
	for _, d := range directions {
		n := 1 + b.run(row, col, d[0], d[1], side) + b.run(row, col, -d[0], -d[1], side)
		if n > best {
			best = n
		}
	}
	return best
}

func (b *Board) run(row, col, dr, dc int, side Stone) int {
	n := 0
	for i := 1; i < WinLength; i++ {
		r, c := row+dr*i, col+dc*i
		if !InBounds(r, c) || b[r][c] != side {
			break
		}
		n++
	}
	return n
}

// IsFull reports whether no empty cell remains.
func (b *Board) IsFull() bool {
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			if b[r][c] == Empty {
				return false
			}
		}
	}
	return true
}

// Count returns how many stones side has on the board.
func (b *Board) Count(side Stone) int {
	n := 0
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			if b[r][c] == side {
				n++
			}
		}
	}
	return n
}

// Rows renders the grid as ints (0 empty, 1 black, 2 white) for the wire.
func (b *Board) Rows() [][]int {
	out := make([][]int, Size)
	for r := 0; r < Size; r++ {
		row := make([]int, Size)
		for c := 0; c < Size; c++ {
			row[c] = int(b[r][c])
		}
		out[r] = row
	}
	return out
}
