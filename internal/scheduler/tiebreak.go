package scheduler

import (
	"math/rand"
	"strings"
	"time"
)

// TieBreaker orders candidates the balancing rules rank as equal. The
// signature matches (*rand.Rand).Shuffle.
type TieBreaker interface {
	Shuffle(n int, swap func(i, j int))
}

// OrderedTieBreaker keeps grid order: earliest day, earliest period.
type OrderedTieBreaker struct{}

// Shuffle leaves the candidates untouched.
func (OrderedTieBreaker) Shuffle(int, func(i, j int)) {}

// NewRandomTieBreaker returns a seeded pseudo-random tie-breaker. A zero seed
// draws one from the clock.
func NewRandomTieBreaker(seed int64) TieBreaker {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// TieBreakerFactory builds a fresh tie-breaker for each run so runs stay
// isolated and reproducible.
type TieBreakerFactory func() TieBreaker

// NewTieBreakerFactory maps a configured mode ("ordered" or "random") to a factory.
func NewTieBreakerFactory(mode string, seed int64) TieBreakerFactory {
	if strings.EqualFold(strings.TrimSpace(mode), "random") {
		return func() TieBreaker { return NewRandomTieBreaker(seed) }
	}
	return func() TieBreaker { return OrderedTieBreaker{} }
}
