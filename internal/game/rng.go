package game

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"
)

// RandomSource yields uniform floats in [0, 1).
type RandomSource interface {
	Float64() float64
}

type cryptoRNG struct{}

func (cryptoRNG) Float64() float64 {
	var buf [8]byte
	if _, err := cryptorand.Read(buf[:]); err != nil {
		return rand.Float64()
	}
	u := binary.BigEndian.Uint64(buf[:]) >> 11 // 53 bits
	return float64(u) / (1 << 53)
}

// DefaultRNG draws from the operating system CSPRNG.
func DefaultRNG() RandomSource { return cryptoRNG{} }

type seededRNG struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewSeededRNG is reproducible for a given seed and safe for concurrent use.
func NewSeededRNG(seed uint64) RandomSource {
	return &seededRNG{r: rand.New(rand.NewPCG(seed, 0x6c6f6f74))}
}

func (s *seededRNG) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Float64()
}

// ScriptedRNG replays a fixed list of draws and then repeats the last one.
// It lets callers pin exact bucket boundaries.
type ScriptedRNG struct {
	mu    sync.Mutex
	draws []float64
	next  int
}

func NewScriptedRNG(draws ...float64) *ScriptedRNG {
	return &ScriptedRNG{draws: draws}
}

func (s *ScriptedRNG) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.draws) == 0 {
		return 0
	}
	if s.next >= len(s.draws) {
		return s.draws[len(s.draws)-1]
	}
	v := s.draws[s.next]
	s.next++
	return v
}

// Push appends more draws to the script.
func (s *ScriptedRNG) Push(draws ...float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.draws) && len(s.draws) > 0 {
		s.draws = s.draws[:0]
		s.next = 0
	}
	s.draws = append(s.draws, draws...)
}

func between(rng RandomSource, min, max float64) float64 {
	return min + rng.Float64()*(max-min)
}

// Intn draws a uniform index in [0, n).
func Intn(rng RandomSource, n int) int {
	if n <= 1 {
		return 0
	}
	i := int(rng.Float64() * float64(n))
	if i >= n {
		i = n - 1
	}
	return i
}
