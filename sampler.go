package reveal

import "math/rand/v2"

// Sampling defaults.
const (
	// DefaultSampleAttempts bounds the redraws spent avoiding a used index.
	DefaultSampleAttempts = 10

	// DefaultResetRatio is the used fraction of the catalog above which a
	// new batch starts a fresh epoch.
	DefaultResetRatio = 0.7
)

// IndexSampler draws catalog indices without replacement until most of the
// catalog has been used, then starts over.
//
// IndexSampler is not safe for concurrent use; Preloader serializes access.
type IndexSampler struct {
	rng      *rand.Rand
	used     map[int]struct{}
	attempts int
	ratio    float64
	epoch    uint64
}

// NewIndexSampler returns a sampler drawing from rng. A nil rng is replaced
// with a randomly seeded PCG source.
func NewIndexSampler(rng *rand.Rand) *IndexSampler {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &IndexSampler{
		rng:      rng,
		used:     make(map[int]struct{}),
		attempts: DefaultSampleAttempts,
		ratio:    DefaultResetRatio,
	}
}

// Draw returns an index in [0, maxIndex]. It makes up to the configured
// number of uniform draws and returns the first one not yet used; if all of
// them collide the last draw is returned anyway. maxIndex must be >= 0.
func (s *IndexSampler) Draw(maxIndex int) int {
	i := 0
	for range s.attempts {
		i = s.rng.IntN(maxIndex + 1)
		if _, taken := s.used[i]; !taken {
			return i
		}
	}
	return i
}

// Mark records i as used in the current epoch.
func (s *IndexSampler) Mark(i int) {
	s.used[i] = struct{}{}
}

// BeginBatch applies the epoch rule before a batch of draws: if more than
// ratio*catalogSize indices are used, the set is cleared. It reports whether
// a reset happened.
func (s *IndexSampler) BeginBatch(catalogSize int) bool {
	if float64(len(s.used)) <= s.ratio*float64(catalogSize) {
		return false
	}
	s.Reset()
	return true
}

// Reset clears the used set and starts a new epoch.
func (s *IndexSampler) Reset() {
	clear(s.used)
	s.epoch++
}

// Used returns the number of indices used in the current epoch.
func (s *IndexSampler) Used() int {
	return len(s.used)
}

// IsUsed reports whether i was drawn in the current epoch.
func (s *IndexSampler) IsUsed(i int) bool {
	_, ok := s.used[i]
	return ok
}

// Epoch returns the number of resets so far.
func (s *IndexSampler) Epoch() uint64 {
	return s.epoch
}
