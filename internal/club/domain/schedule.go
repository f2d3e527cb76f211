package domain

import (
	"math/rand"
	"time"

	"github.com/torresgol10/movie-club/internal/random"
)

// vettingWeekday anchors every scheduled vetting start date.
const vettingWeekday = time.Monday

// seededShuffle is the production shuffle: a Fisher-Yates pass over a PRNG
// seeded from crypto/rand, so batch ordering is unbiased but reproducible
// once the seed is known.
func seededShuffle(n int, swap func(i, j int)) {
	seed, err := random.NewSeed()
	if err != nil {
		seed = time.Now().UnixNano()
	}
	rand.New(rand.NewSource(seed)).Shuffle(n, swap)
}

// nextVettingAnchor returns the next vetting weekday at midnight UTC,
// strictly after now.
func nextVettingAnchor(now time.Time) time.Time {
	now = now.UTC()
	days := (int(vettingWeekday) - int(now.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	anchor := now.AddDate(0, 0, days)
	return time.Date(anchor.Year(), anchor.Month(), anchor.Day(), 0, 0, 0, 0, time.UTC)
}
