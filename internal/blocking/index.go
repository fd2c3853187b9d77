// Package blocking partitions records into candidate buckets by cheap shared
// keys, bounding pairwise comparison volume. Every pair that could plausibly
// match shares at least one key; the index trades extra candidates for never
// scanning the full record universe.
package blocking

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"sync"

	"horse.fit/jobsift/internal/entity"
)

const (
	shardCount = 16

	// Minimum posting-time bucket width. Each record emits its bucket and
	// the next one, so any pair posted within one window of each other
	// shares a key.
	minWindowDays = 30
)

// Index is an in-memory mapping from blocking key to the record ids holding
// that key. Reads on one shard proceed concurrently with writes on others.
type Index struct {
	windowDays int64
	shards     [shardCount]shard
}

type shard struct {
	mu      sync.RWMutex
	buckets map[string]map[int64]struct{}
	keys    map[int64][]string
}

// NewIndex builds the index with the given posting-window width. A pair
// posted further apart than the window never shares a time-bucketed key, so
// the window must be at least as wide as the reposting window or reposts
// would never surface as candidates; narrower values are raised to the
// minimum.
func NewIndex(windowDays int) *Index {
	if windowDays < minWindowDays {
		windowDays = minWindowDays
	}
	idx := &Index{windowDays: int64(windowDays)}
	for i := range idx.shards {
		idx.shards[i].buckets = make(map[string]map[int64]struct{})
		idx.shards[i].keys = make(map[int64][]string)
	}
	return idx
}

// Insert registers the record under all of its blocking keys, replacing any
// keys from a previous insertion of the same id.
func (idx *Index) Insert(rec *entity.Record) error {
	keys := idx.KeysFor(rec)
	if len(keys) == 0 {
		return fmt.Errorf("record %d produced no blocking keys", rec.ID)
	}

	idx.Remove(rec.ID)
	for _, key := range keys {
		s := idx.shardFor(key)
		s.mu.Lock()
		bucket, ok := s.buckets[key]
		if !ok {
			bucket = make(map[int64]struct{})
			s.buckets[key] = bucket
		}
		bucket[rec.ID] = struct{}{}
		s.keys[rec.ID] = append(s.keys[rec.ID], key)
		s.mu.Unlock()
	}
	return nil
}

// Remove drops the record from every bucket it occupies.
func (idx *Index) Remove(recordID int64) {
	for i := range idx.shards {
		s := &idx.shards[i]
		s.mu.Lock()
		for _, key := range s.keys[recordID] {
			if bucket, ok := s.buckets[key]; ok {
				delete(bucket, recordID)
				if len(bucket) == 0 {
					delete(s.buckets, key)
				}
			}
		}
		delete(s.keys, recordID)
		s.mu.Unlock()
	}
}

// Candidates returns the ids sharing at least one blocking key with the
// record, excluding the record itself, in ascending id order.
func (idx *Index) Candidates(rec *entity.Record) []int64 {
	seen := make(map[int64]struct{})
	for _, key := range idx.KeysFor(rec) {
		s := idx.shardFor(key)
		s.mu.RLock()
		for id := range s.buckets[key] {
			if id != rec.ID {
				seen[id] = struct{}{}
			}
		}
		s.mu.RUnlock()
	}

	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (idx *Index) shardFor(key string) *shard {
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(key))
	return &idx.shards[hasher.Sum32()%shardCount]
}

// KeysFor computes the kind-specific blocking keys for a record. Keys are
// prefixed with the kind so jobs and organizations never share buckets.
func (idx *Index) KeysFor(rec *entity.Record) []string {
	if rec == nil || !rec.Kind.Valid() {
		return nil
	}

	switch rec.Kind {
	case entity.KindJob:
		return jobKeys(rec, idx.windowDays)
	case entity.KindOrganization:
		return orgKeys(rec)
	}
	return nil
}

func jobKeys(rec *entity.Record, windowDays int64) []string {
	org := entity.NormalizeOrgName(rec.OrgName)
	if rec.OrgID != nil {
		org = "id:" + strconv.FormatInt(*rec.OrgID, 10)
	}
	province := entity.NormalizeText(rec.Province)

	bucket := postingBucket(rec, windowDays)
	var keys []string
	for _, b := range []int64{bucket, bucket + 1} {
		if org != "" {
			keys = append(keys, fmt.Sprintf("job|org|%s|%d", org, b))
		}
		if province != "" {
			keys = append(keys, fmt.Sprintf("job|prov|%s|%d", province, b))
		}
	}
	if len(keys) == 0 {
		// Degenerate records with neither org nor province still block on
		// the posting window alone rather than dropping out of recall.
		keys = append(keys,
			fmt.Sprintf("job|win|%d", bucket),
			fmt.Sprintf("job|win|%d", bucket+1),
		)
	}
	return keys
}

func orgKeys(rec *entity.Record) []string {
	name := entity.NormalizeOrgName(rec.OrgName)
	if name == "" {
		return nil
	}
	initial := string([]rune(name)[0])
	province := entity.NormalizeText(rec.Province)
	industry := entity.NormalizeText(rec.Industry)

	var keys []string
	if province != "" {
		keys = append(keys, fmt.Sprintf("org|initial|%s|prov|%s", initial, province))
	}
	if industry != "" {
		keys = append(keys, fmt.Sprintf("org|initial|%s|ind|%s", initial, industry))
	}
	if len(keys) == 0 {
		// No province or industry to narrow by; fall back to the bare
		// initial bucket rather than dropping the record out of recall.
		keys = append(keys, fmt.Sprintf("org|initial|%s", initial))
	}
	return keys
}

func postingBucket(rec *entity.Record, windowDays int64) int64 {
	const secondsPerDay = 24 * 60 * 60
	return rec.PostedAt.UTC().Unix() / (windowDays * secondsPerDay)
}
