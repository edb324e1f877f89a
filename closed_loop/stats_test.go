package main

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEpisodeStats(t *testing.T) {
	var e episodeStats
	assert.Equal(t, EpisodeSummary{}, e.summary())

	e.add(3)
	s := e.summary()
	assert.Equal(t, 1, s.Samples)
	assert.Equal(t, 0.0, s.StdDev)
	assert.InDelta(t, 3, s.RMS, 1e-12)

	for _, v := range []float64{-4, 1, 0} {
		e.add(v)
	}
	s = e.summary()
	assert.Equal(t, 4, s.Samples)
	assert.InDelta(t, 0, s.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(26.0/3), s.StdDev, 1e-12)
	assert.InDelta(t, math.Sqrt(26.0/4), s.RMS, 1e-12)
	assert.Equal(t, 4.0, s.MaxAbs)
	assert.False(t, e.full())

	e.reset()
	assert.Equal(t, 0, e.summary().Samples)
}

func TestEpisodeStatsFull(t *testing.T) {
	var e episodeStats
	for i := 0; i < maxEpisodeSamples; i++ {
		e.add(0.1)
	}
	assert.True(t, e.full())
}
