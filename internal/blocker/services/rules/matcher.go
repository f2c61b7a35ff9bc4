package rules

import (
	"errors"
	"strings"
	"sync/atomic"

	bitsbloom "github.com/bits-and-blooms/bloom/v3"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/distraction-block/internal/blocker/common/log"
	"github.com/haukened/distraction-block/internal/blocker/common/utils"
	"github.com/haukened/distraction-block/internal/blocker/domain"
)

const defaultFPRate = 0.01

// Options tune a compiled Matcher.
type Options struct {
	// CacheSize bounds the per-host decision cache; <= 0 disables it.
	CacheSize int
	// FPRate is the Bloom filter's target false-positive rate.
	FPRate float64
	// SelfPrefix is the base URL of the blocker's own pages.
	SelfPrefix string
	Logger     log.Logger
}

// CacheStats reports decision cache counters.
type CacheStats struct {
	Capacity int
	Size     int
	Hits     uint64
	Misses   uint64
}

// Matcher is an immutable compiled form of one block list. Lookups go
// cache → bloom → entry set, walking dot-boundary suffixes of the host from
// most specific to least.
type Matcher struct {
	entries    map[string]struct{}
	bloom      *bitsbloom.BloomFilter
	cache      *lru.Cache[string, domain.BlockDecision]
	capacity   int
	selfPrefix string
	logger     log.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
}

// Compile builds a Matcher for sites. Entries are normalized like hosts;
// entries that normalize to "" are dropped.
func Compile(sites []string, opts Options) *Matcher {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	fp := opts.FPRate
	if !(fp > 0 && fp < 1) {
		fp = defaultFPRate
	}

	entries := make(map[string]struct{}, len(sites))
	for _, s := range sites {
		if e := NormalizeHost(s); e != "" {
			entries[e] = struct{}{}
		}
	}

	n := uint(len(entries))
	if n == 0 {
		n = 1
	}
	bf := bitsbloom.NewWithEstimates(n, fp)
	for e := range entries {
		bf.AddString(e)
	}

	m := &Matcher{
		entries:    entries,
		bloom:      bf,
		selfPrefix: opts.SelfPrefix,
		logger:     logger,
	}
	if opts.CacheSize > 0 {
		if c, err := lru.New[string, domain.BlockDecision](opts.CacheSize); err == nil {
			m.cache = c
			m.capacity = opts.CacheSize
		}
	}
	return m
}

// Len returns the number of distinct normalized entries.
func (m *Matcher) Len() int { return len(m.entries) }

// Decide evaluates a full URL. Malformed URLs are logged and allowed.
func (m *Matcher) Decide(rawURL string) domain.BlockDecision {
	host, err := ParseHost(rawURL, m.selfPrefix)
	switch {
	case errors.Is(err, ErrSelfURL):
		return domain.EmptyDecision()
	case err != nil:
		m.logger.Warn(map[string]any{"url": rawURL, "error": err}, "Cannot parse URL, allowing")
		return domain.EmptyDecision()
	}
	return m.decide(host)
}

// DecideHost evaluates a bare hostname (DNS question or CONNECT target).
func (m *Matcher) DecideHost(host string) domain.BlockDecision {
	h := NormalizeHost(host)
	if h == "" {
		return domain.EmptyDecision()
	}
	return m.decide(h)
}

func (m *Matcher) decide(host string) domain.BlockDecision {
	if len(m.entries) == 0 {
		return domain.BlockDecision{Host: host}
	}
	if m.cache != nil {
		if d, ok := m.cache.Get(host); ok {
			m.hits.Add(1)
			return d
		}
		m.misses.Add(1)
	}

	d := domain.BlockDecision{Host: host}
	if rule, ok := m.lookup(host); ok {
		d.Blocked = true
		d.MatchedRule = rule
		d.Apex = utils.ApexDomain(host)
	}
	if m.cache != nil {
		m.cache.Add(host, d)
	}
	return d
}

func (m *Matcher) lookup(host string) (string, bool) {
	anchor := host
	for {
		if m.bloom.TestString(anchor) {
			if _, ok := m.entries[anchor]; ok {
				return anchor, true
			}
		}
		i := strings.IndexByte(anchor, '.')
		if i < 0 {
			return "", false
		}
		anchor = anchor[i+1:]
		if anchor == "" {
			return "", false
		}
	}
}

// Stats returns decision cache counters.
func (m *Matcher) Stats() CacheStats {
	st := CacheStats{Capacity: m.capacity, Hits: m.hits.Load(), Misses: m.misses.Load()}
	if m.cache != nil {
		st.Size = m.cache.Len()
	}
	return st
}
