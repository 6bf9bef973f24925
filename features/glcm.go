package features

import (
	"math"
)

// Co-occurrence offsets as (dy, dx): distances 1 and 2 at 0, 45, 90 and
// 135 degrees. Pairs are counted asymmetrically, both endpoints must
// fall inside the disease mask.
var cooccurrenceOffsets = [8][2]int{
	{0, 1}, {-1, 1}, {-1, 0}, {-1, -1},
	{0, 2}, {-2, 2}, {-2, 0}, {-2, -2},
}

// cooccurrenceStats fills the eight gray-level co-occurrence statistics:
// contrast, correlation, energy, homogeneity, dissimilarity, entropy,
// cluster shade and cluster prominence. Gray values are quantized to
// the configured level count before accumulation. An empty disease mask
// leaves the block zero.
func cooccurrenceStats(dst []float64, gray []byte, cols int, disease []byte, levels int) {
	if levels <= 0 || cols <= 0 {
		return
	}
	rows := len(gray) / cols

	glcm := make([]float64, levels*levels)
	total := 0.0
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			i := y*cols + x
			if disease[i] == 0 {
				continue
			}
			a := int(gray[i]) * levels / 256
			for _, off := range cooccurrenceOffsets {
				ny, nx := y+off[0], x+off[1]
				if ny < 0 || ny >= rows || nx < 0 || nx >= cols {
					continue
				}
				j := ny*cols + nx
				if disease[j] == 0 {
					continue
				}
				b := int(gray[j]) * levels / 256
				glcm[a*levels+b]++
				total++
			}
		}
	}
	if total == 0 {
		return
	}
	for i := range glcm {
		glcm[i] /= total
	}

	var meanI, meanJ float64
	for a := 0; a < levels; a++ {
		for b := 0; b < levels; b++ {
			p := glcm[a*levels+b]
			meanI += float64(a) * p
			meanJ += float64(b) * p
		}
	}

	var varI, varJ float64
	var contrast, corrNum, energy, homogeneity, dissimilarity, entropy float64
	var shade, prominence float64
	for a := 0; a < levels; a++ {
		for b := 0; b < levels; b++ {
			p := glcm[a*levels+b]
			if p == 0 {
				continue
			}
			di := float64(a) - meanI
			dj := float64(b) - meanJ
			varI += p * di * di
			varJ += p * dj * dj

			d := float64(a - b)
			contrast += p * d * d
			corrNum += p * di * dj
			energy += p * p
			homogeneity += p / (1 + d*d)
			dissimilarity += p * math.Abs(d)
			entropy -= p * math.Log2(p)

			s := float64(a) + float64(b) - meanI - meanJ
			shade += p * s * s * s
			prominence += p * s * s * s * s
		}
	}

	// A flat patch has zero variance; call it perfectly correlated
	// rather than dividing by zero.
	correlation := 1.0
	if varI > 1e-12 && varJ > 1e-12 {
		correlation = corrNum / math.Sqrt(varI*varJ)
	}

	dst[0] = contrast
	dst[1] = correlation
	dst[2] = energy
	dst[3] = homogeneity
	dst[4] = dissimilarity
	dst[5] = entropy
	dst[6] = shade
	dst[7] = prominence
}
