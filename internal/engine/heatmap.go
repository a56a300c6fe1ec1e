package engine

// Heatmap is a 2-D grid of decaying detection intensities. Each cell covers
// cellSize x cellSize output pixels. A Heatmap is owned by exactly one
// compositor goroutine and is never shared.
type Heatmap struct {
	cols     int
	rows     int
	cellSize int
	cells    []float32
}

// NewHeatmap builds a grid for the given output resolution. cellSize must be
// positive; dimensions that do not divide evenly simply lose the remainder
// strip, matching integer cell math on the way in.
func NewHeatmap(width, height, cellSize int) *Heatmap {
	if cellSize <= 0 {
		cellSize = 1
	}
	cols := width / cellSize
	rows := height / cellSize
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	return &Heatmap{
		cols:     cols,
		rows:     rows,
		cellSize: cellSize,
		cells:    make([]float32, cols*rows),
	}
}

// Dims returns the grid dimensions in cells.
func (h *Heatmap) Dims() (cols, rows int) {
	return h.cols, h.rows
}

// Decay scales every cell by factor, letting old activity fade. Values never
// go negative.
func (h *Heatmap) Decay(factor float32) {
	if factor < 0 {
		factor = 0
	}
	for i := range h.cells {
		h.cells[i] *= factor
	}
}

// Add increments by one every cell covered by the bounding box. Box edges in
// pixels map to cells by integer division and are clamped to the grid, so an
// out-of-range or zero-area box contributes to at least its clamped cell and
// never indexes outside the grid.
func (h *Heatmap) Add(box BoundingBox) {
	cMin := clamp(box.XMin/h.cellSize, 0, h.cols-1)
	cMax := clamp(box.XMax/h.cellSize, 0, h.cols-1)
	rMin := clamp(box.YMin/h.cellSize, 0, h.rows-1)
	rMax := clamp(box.YMax/h.cellSize, 0, h.rows-1)
	if cMax < cMin {
		cMin, cMax = cMax, cMin
	}
	if rMax < rMin {
		rMin, rMax = rMax, rMin
	}
	for r := rMin; r <= rMax; r++ {
		row := r * h.cols
		for c := cMin; c <= cMax; c++ {
			h.cells[row+c]++
		}
	}
}

// At returns the intensity of the cell at (col, row); zero outside the grid.
func (h *Heatmap) At(col, row int) float32 {
	if col < 0 || col >= h.cols || row < 0 || row >= h.rows {
		return 0
	}
	return h.cells[row*h.cols+col]
}

// Max returns the current maximum cell intensity.
func (h *Heatmap) Max() float32 {
	var max float32
	for _, v := range h.cells {
		if v > max {
			max = v
		}
	}
	return max
}

// Normalized scales the grid to 0..255 display intensities by its current
// maximum, row-major. An all-zero grid maps to all-zero output rather than a
// division error.
func (h *Heatmap) Normalized() []uint8 {
	out := make([]uint8, len(h.cells))
	max := h.Max()
	if max <= 0 {
		return out
	}
	for i, v := range h.cells {
		out[i] = uint8(v / max * 255)
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
