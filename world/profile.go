package world

import (
	"image"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"

	"go.viam.com/svo/utils"
)

// ProfileStats summarizes the traversal work of one rendered frame.
type ProfileStats struct {
	Pixels  int
	Hits    int
	Elapsed time.Duration

	// Complexity is the number of traversal steps per ray.
	MeanComplexity   float64
	MedianComplexity float64
	P95Complexity    float64
	MaxComplexity    float64
	StdDevComplexity float64
}

// Profile casts one ray per pixel of a width by height frame seen from cam and reports how much
// traversal work the frame took.
func (w *World) Profile(cam Camera, width, height int) (ProfileStats, error) {
	if width <= 0 || height <= 0 {
		return ProfileStats{}, errors.Errorf("invalid frame size %dx%d", width, height)
	}
	w.mu.RLock()
	defer w.mu.RUnlock()

	complexity := make(stats.Float64Data, width*height)
	hit := make([]bool, width*height)
	start := time.Now()
	utils.ParallelForEachPixel(image.Point{X: width, Y: height}, func(x, y int) {
		ray := cam.Ray(x, y, width, height)
		hp := w.tree.CastRay(ray.Origin, ray.Direction)
		complexity[y*width+x] = float64(hp.Complexity)
		hit[y*width+x] = hp.Hit
	})
	ps := ProfileStats{Pixels: width * height, Elapsed: time.Since(start)}
	for _, h := range hit {
		if h {
			ps.Hits++
		}
	}

	var err error
	if ps.MeanComplexity, err = complexity.Mean(); err != nil {
		return ps, err
	}
	if ps.MedianComplexity, err = complexity.Median(); err != nil {
		return ps, err
	}
	if ps.P95Complexity, err = complexity.Percentile(95); err != nil {
		return ps, err
	}
	if ps.MaxComplexity, err = complexity.Max(); err != nil {
		return ps, err
	}
	if ps.StdDevComplexity, err = complexity.StandardDeviation(); err != nil {
		return ps, err
	}
	w.logger.Debugw("profiled frame", "pixels", ps.Pixels, "hits", ps.Hits,
		"mean_complexity", ps.MeanComplexity, "elapsed", ps.Elapsed)
	return ps, nil
}
