package cover

// traceLine walks the 8-connected Bresenham line from (x0,y0) to (x1,y1),
// both endpoints included, and stops early when visit returns false.
func traceLine(x0, y0, x1, y1 int, visit func(x, y int) bool) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		if !visit(x0, y0) {
			return
		}
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

// lineOfSight reports whether every pixel on the line between a and b is free.
func lineOfSight(g *OccupancyGrid, a, b Pixel) bool {
	clear := true
	traceLine(a.X, a.Y, b.X, b.Y, func(x, y int) bool {
		if !g.IsFree(x, y) {
			clear = false
		}
		return clear
	})
	return clear
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
