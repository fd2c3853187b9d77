// Package canonical picks the representative record of a cluster. Selection
// is a pure ordering over the members, so reselecting after any membership
// change is cheap and deterministic.
package canonical

import (
	"fmt"
	"sort"
	"strings"

	"horse.fit/jobsift/internal/entity"
)

// Selector ranks cluster members. The authority order lists sources from most
// to least trusted; sources not listed rank below every listed one.
type Selector struct {
	authority map[string]int
}

func NewSelector(sourceAuthority []string) *Selector {
	ranks := make(map[string]int, len(sourceAuthority))
	for i, source := range sourceAuthority {
		source = strings.ToLower(strings.TrimSpace(source))
		if source == "" {
			continue
		}
		if _, ok := ranks[source]; !ok {
			ranks[source] = i
		}
	}
	return &Selector{authority: ranks}
}

// Select returns the canonical record of the cluster. The members slice is
// not mutated.
func (s *Selector) Select(members []*entity.Record) (*entity.Record, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("cannot select canonical from empty cluster")
	}

	best := members[0]
	for _, candidate := range members[1:] {
		if s.less(candidate, best) {
			best = candidate
		}
	}
	return best, nil
}

// Rank sorts the members best-first and returns a new slice.
func (s *Selector) Rank(members []*entity.Record) []*entity.Record {
	out := append([]*entity.Record(nil), members...)
	sort.SliceStable(out, func(i, j int) bool { return s.less(out[i], out[j]) })
	return out
}

// less orders a before b when a is the better canonical candidate: higher
// quality first, then more authoritative source, then most recent, then
// richest text, then lowest id as the final deterministic tie-break.
func (s *Selector) less(a, b *entity.Record) bool {
	if a.QualityScore != b.QualityScore {
		return a.QualityScore > b.QualityScore
	}

	rankA, rankB := s.sourceRank(a.Source), s.sourceRank(b.Source)
	if rankA != rankB {
		return rankA < rankB
	}

	if !a.PostedAt.Equal(b.PostedAt) {
		return a.PostedAt.After(b.PostedAt)
	}

	lenA := len(a.DisplayName()) + len(a.Description)
	lenB := len(b.DisplayName()) + len(b.Description)
	if lenA != lenB {
		return lenA > lenB
	}

	return a.ID < b.ID
}

func (s *Selector) sourceRank(source string) int {
	if rank, ok := s.authority[strings.ToLower(strings.TrimSpace(source))]; ok {
		return rank
	}
	return len(s.authority)
}
