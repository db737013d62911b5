package interview

import (
	"math/rand"
	"sync"
)

// Sampler picks an index from a weight vector. The engine samples the next
// question from the top ranked candidates, so tests inject a deterministic
// sampler while production uses the seeded random one.
type Sampler interface {
	Pick(weights []float64) int
}

type randomSampler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomSampler returns a weight-proportional sampler. Pass a fixed seed
// for reproducible draws.
func NewRandomSampler(seed int64) Sampler {
	return &randomSampler{rng: rand.New(rand.NewSource(seed))}
}

func (s *randomSampler) Pick(weights []float64) int {
	if len(weights) == 0 {
		return -1
	}
	var total float64
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return 0
	}

	s.mu.Lock()
	target := s.rng.Float64() * total
	s.mu.Unlock()

	var acc float64
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		acc += w
		if target < acc {
			return i
		}
	}
	return len(weights) - 1
}

// FirstSampler always picks the heaviest (first) candidate. Useful for
// deterministic selection in tests.
type FirstSampler struct{}

func (FirstSampler) Pick(weights []float64) int {
	if len(weights) == 0 {
		return -1
	}
	return 0
}
