package game

import (
	"encoding/binary"
	"fmt"
	"sync"

	"golang.org/x/crypto/blake2b"
)

// FairRNG derives floats from BLAKE2b-256 digests keyed by the server seed over
// "clientSeed:nonce:round". Each digest yields eight floats, four bytes apiece,
// so anyone holding both seeds can replay a session's draws.
type FairRNG struct {
	mu         sync.Mutex
	serverSeed []byte
	clientSeed string
	nonce      uint64
	round      uint64
	buf        []float64
}

func NewFairRNG(serverSeed, clientSeed string, nonce uint64) (*FairRNG, error) {
	if len(serverSeed) == 0 || len(serverSeed) > blake2b.Size {
		return nil, fmt.Errorf("%w: server seed must be 1-%d bytes", ErrConfiguration, blake2b.Size)
	}
	return &FairRNG{serverSeed: []byte(serverSeed), clientSeed: clientSeed, nonce: nonce}, nil
}

func (f *FairRNG) Float64() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.buf) == 0 {
		f.buf = FairFloats(f.serverSeed, f.clientSeed, f.nonce, f.round)
		f.round++
	}
	v := f.buf[0]
	f.buf = f.buf[1:]
	return v
}

// Nonce reports the nonce this source was created with.
func (f *FairRNG) Nonce() uint64 {
	return f.nonce
}

// FairFloats returns the eight floats for one digest round.
func FairFloats(serverSeed []byte, clientSeed string, nonce, round uint64) []float64 {
	h, err := blake2b.New256(serverSeed)
	if err != nil {
		// Only reachable with an oversized key, which NewFairRNG rejects.
		panic(err)
	}
	fmt.Fprintf(h, "%s:%d:%d", clientSeed, nonce, round)
	sum := h.Sum(nil)

	out := make([]float64, 0, len(sum)/4)
	for i := 0; i+4 <= len(sum); i += 4 {
		u := binary.BigEndian.Uint32(sum[i : i+4])
		out = append(out, float64(u)/(1<<32))
	}
	return out
}
