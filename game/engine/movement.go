package engine

// Grid is a boardSize x boardSize matrix indexed [row][col].
type Grid [][]Cell

// KnightOffsets are the eight knight vectors. Their order is the enumeration
// order of LegalMoves, which strategies and tie-breaks depend on.
var KnightOffsets = [8]struct{ DR, DC int }{
	{-2, -1},
	{-2, 1},
	{-1, -2},
	{-1, 2},
	{1, -2},
	{1, 2},
	{2, -1},
	{2, 1},
}

// NewGrid returns a size x size grid of Empty cells.
func NewGrid(size int) Grid {
	grid := make(Grid, size)
	for r := range grid {
		grid[r] = make([]Cell, size)
		for c := range grid[r] {
			grid[r][c] = Empty
		}
	}
	return grid
}

// Clone returns a deep copy of the grid.
func (g Grid) Clone() Grid {
	if g == nil {
		return nil
	}
	out := make(Grid, len(g))
	for r := range g {
		out[r] = append([]Cell(nil), g[r]...)
	}
	return out
}

// At returns the cell at p. Callers check bounds first.
func (g Grid) At(p Position) Cell {
	return g[p.Row][p.Col]
}

// Simulate marks p with c, runs fn and restores the previous marker on every
// exit path of fn, including panics. Heuristics use it to score "what if I
// moved here" without cloning the board.
func (g Grid) Simulate(p Position, c Cell, fn func()) {
	prev := g[p.Row][p.Col]
	g[p.Row][p.Col] = c
	defer func() {
		g[p.Row][p.Col] = prev
	}()
	fn()
}

// InBounds reports whether row and col both lie in [0,size).
func InBounds(row, col, size int) bool {
	return row >= 0 && row < size && col >= 0 && col < size
}

// LegalMoves returns the empty in-bounds knight destinations from (row,col),
// in KnightOffsets order.
func LegalMoves(row, col, size int, grid Grid) []Position {
	var moves []Position
	for _, off := range KnightOffsets {
		r, c := row+off.DR, col+off.DC
		if !InBounds(r, c, size) {
			continue
		}
		if grid[r][c] != Empty {
			continue
		}
		moves = append(moves, Position{Row: r, Col: c})
	}
	return moves
}

// Mobility counts the legal moves from (row,col) under the current grid.
func Mobility(row, col, size int, grid Grid) int {
	count := 0
	for _, off := range KnightOffsets {
		r, c := row+off.DR, col+off.DC
		if InBounds(r, c, size) && grid[r][c] == Empty {
			count++
		}
	}
	return count
}

// IsKnightMove reports whether to is one knight offset away from from.
func IsKnightMove(from, to Position) bool {
	dr, dc := abs(to.Row-from.Row), abs(to.Col-from.Col)
	return (dr == 1 && dc == 2) || (dr == 2 && dc == 1)
}

// IsLegal reports whether to is a legal destination from from on grid.
func IsLegal(from, to Position, size int, grid Grid) bool {
	return IsKnightMove(from, to) && InBounds(to.Row, to.Col, size) && grid[to.Row][to.Col] == Empty
}

// LegalMovesFor returns the legal destinations of player id in s.
func (s *GameState) LegalMovesFor(id int) []Position {
	p, ok := s.Player(id)
	if !ok {
		return nil
	}
	return LegalMoves(p.Row, p.Col, s.BoardSize, s.Grid)
}
