// Package fingerprint derives exact-match hashes and MinHash near-duplicate
// sketches from a record's normalized attributes.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"hash/fnv"
	"math"
	"strings"

	"horse.fit/jobsift/internal/entity"
	"horse.fit/jobsift/internal/textsim"
)

const (
	DefaultShingleSize   = 5
	DefaultSignatureSize = 128

	// 61-bit Mersenne prime used by the universal hash family.
	minhashPrime = (1 << 61) - 1
)

// SentinelSlot fills every sketch position when a record has no descriptive
// text. A sentinel sketch never spuriously matches a real one.
const SentinelSlot = math.MaxUint64

// Fingerprint is owned by its record and recomputed whenever the record's
// normalized attributes change.
type Fingerprint struct {
	ExactHash []byte
	Sketch    []uint64
}

// ExactEqual reports whether the two fingerprints share an exact key hash.
func (f Fingerprint) ExactEqual(other Fingerprint) bool {
	return len(f.ExactHash) > 0 && bytes.Equal(f.ExactHash, other.ExactHash)
}

// Generator computes fingerprints with a fixed shingle size and signature
// size. Generators with equal parameters produce identical fingerprints for
// identical input.
type Generator struct {
	shingleSize   int
	signatureSize int
	hashA         []uint64
	hashB         []uint64
}

func NewGenerator(shingleSize, signatureSize int) *Generator {
	if shingleSize < 2 {
		shingleSize = DefaultShingleSize
	}
	if signatureSize < 16 {
		signatureSize = DefaultSignatureSize
	}

	g := &Generator{
		shingleSize:   shingleSize,
		signatureSize: signatureSize,
		hashA:         make([]uint64, signatureSize),
		hashB:         make([]uint64, signatureSize),
	}

	// Deterministic parameter derivation keeps sketches comparable across
	// process restarts; a must be non-zero mod p.
	seed := uint64(0x9e3779b97f4a7c15)
	for i := 0; i < signatureSize; i++ {
		seed = splitmix64(seed)
		g.hashA[i] = seed%(minhashPrime-1) + 1
		seed = splitmix64(seed)
		g.hashB[i] = seed % minhashPrime
	}
	return g
}

// Fingerprint is pure and deterministic over the record's normalized
// attributes.
func (g *Generator) Fingerprint(rec *entity.Record) Fingerprint {
	return Fingerprint{
		ExactHash: g.exactHash(rec),
		Sketch:    g.sketch(rec.DescriptiveText()),
	}
}

// SignatureSize returns the number of sketch slots this generator emits.
func (g *Generator) SignatureSize() int {
	return g.signatureSize
}

func (g *Generator) exactHash(rec *entity.Record) []byte {
	var fields []string
	switch rec.Kind {
	case entity.KindJob:
		fields = []string{
			string(entity.KindJob),
			entity.NormalizeTitle(rec.Title, rec.OrgName),
			entity.NormalizeOrgName(rec.OrgName),
			entity.NormalizeText(rec.City),
			entity.NormalizeText(rec.Province),
		}
	case entity.KindOrganization:
		fields = []string{
			string(entity.KindOrganization),
			entity.NormalizeOrgName(rec.OrgName),
			entity.NormalizeText(rec.Province),
		}
	default:
		return nil
	}

	sum := sha256.Sum256([]byte(strings.Join(fields, "\x00")))
	return sum[:]
}

func (g *Generator) sketch(text string) []uint64 {
	sketch := make([]uint64, g.signatureSize)
	for i := range sketch {
		sketch[i] = SentinelSlot
	}

	for _, shingle := range shingles(text, g.shingleSize) {
		base := hashShingle(shingle)
		for i := 0; i < g.signatureSize; i++ {
			h := mulmod(g.hashA[i], base%minhashPrime)
			h = (h + g.hashB[i]) % minhashPrime
			if h < sketch[i] {
				sketch[i] = h
			}
		}
	}
	return sketch
}

// EstimateJaccard approximates the Jaccard similarity of the underlying
// shingle sets as matching slots / signature size. Sentinel sketches and
// mismatched sizes estimate 0.
func EstimateJaccard(left, right []uint64) float64 {
	if len(left) == 0 || len(left) != len(right) {
		return 0
	}
	if IsSentinel(left) || IsSentinel(right) {
		return 0
	}

	matches := 0
	for i := range left {
		if left[i] == right[i] {
			matches++
		}
	}
	return float64(matches) / float64(len(left))
}

// IsSentinel reports whether the sketch came from empty text.
func IsSentinel(sketch []uint64) bool {
	for _, slot := range sketch {
		if slot != SentinelSlot {
			return false
		}
	}
	return true
}

func shingles(text string, n int) []string {
	tokens := textsim.Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	if len(tokens) <= n {
		return []string{strings.Join(tokens, " ")}
	}

	out := make([]string, 0, len(tokens)-n+1)
	for i := 0; i+n <= len(tokens); i++ {
		out = append(out, strings.Join(tokens[i:i+n], " "))
	}
	return out
}

func hashShingle(shingle string) uint64 {
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(shingle))
	return hasher.Sum64()
}

// mulmod multiplies two values below 2^61-1 without overflowing uint64 by
// splitting the multiplicand.
func mulmod(a, b uint64) uint64 {
	var result uint64
	a %= minhashPrime
	b %= minhashPrime
	for b > 0 {
		if b&1 == 1 {
			result = (result + a) % minhashPrime
		}
		a = (a << 1) % minhashPrime
		b >>= 1
	}
	return result
}

func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	z := x
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
