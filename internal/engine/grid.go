package engine

import (
	"math"
	"sort"

	"github.com/twpayne/go-geom"
)

// maxGridSide caps the grid at maxGridSide x maxGridSide cells.
const maxGridSide = 1024

// boundsGrid is a uniform grid over the bounding boxes of a join dataset.
// Each cell lists the indexes of the boxes that touch it.
type boundsGrid struct {
	minX, minY, maxX, maxY float64
	cellW, cellH           float64
	nx, ny                 int
	cells                  [][]int
}

// newBoundsGrid indexes bounds. Nil and empty entries are left out.
func newBoundsGrid(bounds []*geom.Bounds) *boundsGrid {
	g := &boundsGrid{
		minX: math.Inf(1), minY: math.Inf(1),
		maxX: math.Inf(-1), maxY: math.Inf(-1),
	}
	n := 0
	for _, b := range bounds {
		if !usable(b) {
			continue
		}
		n++
		g.minX = math.Min(g.minX, b.Min(0))
		g.minY = math.Min(g.minY, b.Min(1))
		g.maxX = math.Max(g.maxX, b.Max(0))
		g.maxY = math.Max(g.maxY, b.Max(1))
	}
	if n == 0 {
		return g
	}

	side := int(math.Ceil(math.Sqrt(float64(n))))
	side = max(1, min(side, maxGridSide))
	g.nx, g.ny = side, side
	g.cellW = (g.maxX - g.minX) / float64(side)
	g.cellH = (g.maxY - g.minY) / float64(side)
	g.cells = make([][]int, side*side)

	for i, b := range bounds {
		if !usable(b) {
			continue
		}
		x0, x1, y0, y1 := g.cellRange(b)
		for y := y0; y <= y1; y++ {
			for x := x0; x <= x1; x++ {
				c := y*g.nx + x
				g.cells[c] = append(g.cells[c], i)
			}
		}
	}
	return g
}

func (g *boundsGrid) cellRange(b *geom.Bounds) (x0, x1, y0, y1 int) {
	return cell(b.Min(0), g.minX, g.cellW, g.nx), cell(b.Max(0), g.minX, g.cellW, g.nx),
		cell(b.Min(1), g.minY, g.cellH, g.ny), cell(b.Max(1), g.minY, g.cellH, g.ny)
}

func cell(v, origin, size float64, n int) int {
	if size <= 0 {
		return 0
	}
	c := int(math.Floor((v - origin) / size))
	return max(0, min(c, n-1))
}

// candidates returns, in ascending order and without duplicates, the
// indexes of every indexed box that may overlap b.
func (g *boundsGrid) candidates(b *geom.Bounds) []int {
	if g.nx == 0 || !usable(b) || b.Max(0) < g.minX || b.Min(0) > g.maxX || b.Max(1) < g.minY || b.Min(1) > g.maxY {
		return nil
	}
	x0, x1, y0, y1 := g.cellRange(b)
	var out []int
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			out = append(out, g.cells[y*g.nx+x]...)
		}
	}
	if len(out) < 2 {
		return out
	}
	sort.Ints(out)
	uniq := out[:1]
	for _, j := range out[1:] {
		if j != uniq[len(uniq)-1] {
			uniq = append(uniq, j)
		}
	}
	return uniq
}

// usable reports whether b is a finite, non-empty box.
func usable(b *geom.Bounds) bool {
	if b == nil {
		return false
	}
	for dim := 0; dim < 2; dim++ {
		lo, hi := b.Min(dim), b.Max(dim)
		if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) || lo > hi {
			return false
		}
	}
	return true
}
