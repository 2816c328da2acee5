// Package segment splits oversized transaction-log screenshots into
// recognizer-sized chunks, choosing split rows that are visually uniform so a
// cut is unlikely to slice through a line of text.
package segment

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"math"
)

// Chunk is one encoded slice of a source image, queued for independent
// recognition. Index is the top-to-bottom ordinal within the source image.
type Chunk struct {
	Index  int
	Data   []byte
	Width  int
	Height int
}

// Splitter holds the segmentation tunables. The defaults correspond to the
// recognizer's comfortable input size.
type Splitter struct {
	// TargetHeight is the nominal chunk height in pixels.
	TargetHeight int
	// ScanRange is how far below a naive boundary to search for a quiet row.
	ScanRange int
	// RowStride is the vertical sampling interval inside the scan window.
	RowStride int
	// SamplesPerRow is how many evenly spaced pixels score a row.
	SamplesPerRow int
	// BlankThreshold is the score below which a row counts as a perfect
	// background row and the scan stops early. Scores are summed absolute
	// deviations over 8-bit channel values.
	BlankThreshold float64
	// JPEGQuality is the encoding quality for emitted chunks.
	JPEGQuality int
}

// DefaultSplitter returns a Splitter with the standard tunables.
func DefaultSplitter() Splitter {
	return Splitter{
		TargetHeight:   4000,
		ScanRange:      400,
		RowStride:      5,
		SamplesPerRow:  20,
		BlankThreshold: 10,
		JPEGQuality:    85,
	}
}

// Split walks down the image in TargetHeight steps and cuts each boundary at
// the most visually uniform row within the scan window below it. Chunks are
// returned in top-to-bottom order, partition the image exactly, and are each
// at most TargetHeight+ScanRange rows tall.
func (s Splitter) Split(img image.Image) ([]Chunk, error) {
	bounds := img.Bounds()
	width := bounds.Dx()
	totalHeight := bounds.Dy()
	if width == 0 || totalHeight == 0 {
		return nil, fmt.Errorf("splitting image: empty image")
	}

	var chunks []Chunk
	currentY := 0
	for currentY < totalHeight {
		nextY := currentY + s.TargetHeight
		if nextY < totalHeight {
			nextY = s.bestSplitRow(img, nextY, totalHeight)
		} else {
			nextY = totalHeight
		}

		data, err := s.encodeChunk(img, currentY, nextY)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, Chunk{
			Index:  len(chunks),
			Data:   data,
			Width:  width,
			Height: nextY - currentY,
		})
		currentY = nextY
	}
	return chunks, nil
}

// bestSplitRow scans up to ScanRange rows below startY at RowStride and
// returns the row with the lowest score. Ties keep the first (highest) row,
// which biases toward shorter chunks; a row under BlankThreshold wins
// immediately.
func (s Splitter) bestSplitRow(img image.Image, startY, totalHeight int) int {
	limit := s.ScanRange
	if rest := totalHeight - startY; rest < limit {
		limit = rest
	}

	bestY := startY
	minScore := math.Inf(1)
	for dy := 0; dy < limit; dy += s.RowStride {
		score := s.rowScore(img, startY+dy)
		if score < minScore {
			minScore = score
			bestY = startY + dy
		}
		if score < s.BlankThreshold {
			return startY + dy
		}
	}
	return bestY
}

// rowScore samples SamplesPerRow pixels across the row and sums each
// channel's absolute deviation from the row's own channel mean. Lower means
// more uniform.
func (s Splitter) rowScore(img image.Image, y int) float64 {
	bounds := img.Bounds()
	width := bounds.Dx()
	step := width / s.SamplesPerRow
	if step < 1 {
		step = 1
	}

	var rs, gs, bs []float64
	for x := 0; x < width; x += step {
		r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
		rs = append(rs, float64(r>>8))
		gs = append(gs, float64(g>>8))
		bs = append(bs, float64(b>>8))
	}

	return deviation(rs) + deviation(gs) + deviation(bs)
}

func deviation(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean := sum / float64(len(vals))

	var dev float64
	for _, v := range vals {
		dev += math.Abs(v - mean)
	}
	return dev
}

// encodeChunk re-renders rows [fromY, toY) at native resolution and encodes
// them as JPEG.
func (s Splitter) encodeChunk(img image.Image, fromY, toY int) ([]byte, error) {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := toY - fromY

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), img, image.Pt(bounds.Min.X, bounds.Min.Y+fromY), draw.Src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: s.JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encoding chunk: %w", err)
	}
	return buf.Bytes(), nil
}
