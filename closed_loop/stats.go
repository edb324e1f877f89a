package main

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// maxEpisodeSamples bounds the buffered CTE history of one episode.
const maxEpisodeSamples = 1 << 16

// EpisodeSummary describes the tracking error of one episode.
type EpisodeSummary struct {
	Samples int
	Mean    float64
	StdDev  float64
	RMS     float64
	MaxAbs  float64
}

type episodeStats struct {
	cte []float64
}

func (e *episodeStats) add(cte float64) {
	e.cte = append(e.cte, cte)
}

func (e *episodeStats) full() bool {
	return len(e.cte) >= maxEpisodeSamples
}

func (e *episodeStats) summary() EpisodeSummary {
	n := len(e.cte)
	if n == 0 {
		return EpisodeSummary{}
	}
	s := EpisodeSummary{
		Samples: n,
		Mean:    stat.Mean(e.cte, nil),
		RMS:     floats.Norm(e.cte, 2) / math.Sqrt(float64(n)),
		MaxAbs:  floats.Norm(e.cte, math.Inf(1)),
	}
	if n > 1 {
		s.StdDev = stat.StdDev(e.cte, nil)
	}
	return s
}

func (e *episodeStats) reset() {
	e.cte = e.cte[:0]
}
