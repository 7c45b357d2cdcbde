package engine

// CountOccupied counts the cells that are not Empty.
func CountOccupied(grid Grid) int {
	count := 0
	for _, row := range grid {
		for _, cell := range row {
			if cell != Empty {
				count++
			}
		}
	}
	return count
}

// Density returns the share of occupied cells on the board.
func Density(grid Grid) float64 {
	total := 0
	for _, row := range grid {
		total += len(row)
	}
	if total == 0 {
		return 0
	}
	return float64(CountOccupied(grid)) / float64(total)
}

// CountOwnedBy counts the cells owned by player id.
func CountOwnedBy(grid Grid, id int) int {
	count := 0
	for _, row := range grid {
		for _, cell := range row {
			if owner, ok := cell.Owner(); ok && owner == id {
				count++
			}
		}
	}
	return count
}

// MaxScore returns the highest score among all players.
func MaxScore(players []PlayerState) int {
	best := 0
	for _, p := range players {
		if p.Score > best {
			best = p.Score
		}
	}
	return best
}

// abs returns the absolute value of x
func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
