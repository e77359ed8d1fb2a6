package oracle

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Clock supplies the current height.
type Clock interface {
	Height() uint64
}

// Beacon is an in-process randomness oracle. It publishes one value every
// period heights, derived as HMAC-SHA256(seed, round). The SHA-256 of the
// seed is public from the start, so once the seed is disclosed anyone can
// check every published value.
type Beacon struct {
	seed       string
	commitment string
	clock      Clock
	genesis    uint64
	period     uint64
}

// NewBeacon starts a beacon at the clock's current height. An empty seed
// draws a fresh random one.
func NewBeacon(seed string, clock Clock, period uint64) *Beacon {
	if seed == "" {
		seed = GenerateSeed()
	}
	if period == 0 {
		period = 1
	}
	return &Beacon{
		seed:       seed,
		commitment: HashCommitment(seed),
		clock:      clock,
		genesis:    clock.Height(),
		period:     period,
	}
}

// Commitment is the public SHA-256 of the seed.
func (b *Beacon) Commitment() string {
	return b.commitment
}

// Seed discloses the secret seed. Only call it once the beacon is retired.
func (b *Beacon) Seed() string {
	return b.seed
}

// LatestRound returns the newest published round. Round 1 is published
// one period after genesis.
func (b *Beacon) LatestRound(_ context.Context) (uint64, bool) {
	now := b.clock.Height()
	if now < b.genesis {
		return 0, false
	}
	latest := (now - b.genesis) / b.period
	return latest, latest > 0
}

func (b *Beacon) ValueAt(ctx context.Context, round uint64) ([32]byte, bool) {
	latest, ok := b.LatestRound(ctx)
	if !ok || round == 0 || round > latest {
		return [32]byte{}, false
	}
	return Derive(b.seed, round), true
}

// Derive computes the value of one round.
func Derive(seed string, round uint64) [32]byte {
	h := hmac.New(sha256.New, []byte(seed))
	fmt.Fprintf(h, "round:%d", round)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Verify checks a published value against a disclosed seed and its
// commitment.
func Verify(seed, commitment string, round uint64, value [32]byte) bool {
	if !strings.EqualFold(HashCommitment(seed), commitment) {
		return false
	}
	want := Derive(seed, round)
	return hmac.Equal(want[:], value[:])
}

// GenerateSeed creates a cryptographically secure random seed.
func GenerateSeed() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// HashCommitment creates a SHA256 hash of the seed for commitment.
func HashCommitment(seed string) string {
	h := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(h[:])
}
