package features

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Neighbor offsets as (dy, dx), clockwise from the top-left corner. The
// bit order matters: it fixes which decimal code each neighborhood maps
// to, and every stored signature depends on it.
var patternOffsets = [8][2]int{
	{-1, -1}, {-1, 0}, {-1, 1}, {0, 1},
	{1, 1}, {1, 0}, {1, -1}, {0, -1},
}

// localPatternStats fills four statistics of the local binary pattern
// histogram over disease pixels: mean, standard deviation, energy and
// entropy. A neighbor contributes a set bit when it is at least as
// bright as the center. Border pixels have no full neighborhood and are
// skipped; an empty disease mask leaves the block zero.
func localPatternStats(dst []float64, gray []byte, cols int, disease []byte) {
	if cols <= 0 {
		return
	}
	rows := len(gray) / cols

	hist := make([]float64, 256)
	total := 0.0
	for y := 1; y < rows-1; y++ {
		for x := 1; x < cols-1; x++ {
			i := y*cols + x
			if disease[i] == 0 {
				continue
			}
			center := gray[i]
			code := 0
			for bit, off := range patternOffsets {
				if gray[(y+off[0])*cols+x+off[1]] >= center {
					code |= 1 << uint(bit)
				}
			}
			hist[code]++
			total++
		}
	}
	if total == 0 {
		return
	}
	for i := range hist {
		hist[i] /= total
	}

	mean, std := stat.PopMeanStdDev(hist, nil)
	var energy, entropy float64
	for _, p := range hist {
		energy += p * p
		if p > 0 {
			entropy -= p * math.Log2(p)
		}
	}

	dst[0] = mean
	dst[1] = std
	dst[2] = energy
	dst[3] = entropy
}
