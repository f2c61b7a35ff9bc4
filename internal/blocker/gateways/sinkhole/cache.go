package sinkhole

import (
	"fmt"
	"time"

	"github.com/maypok86/otter"
	"github.com/miekg/dns"
)

// answerCache keeps upstream answers for allowed names. Entries live for the
// smallest TTL in the answer, capped at maxTTL. Answers below minTTL are not
// kept. Blocked names are decided before the cache is consulted, so list
// changes never require a flush.
type answerCache struct {
	cache  otter.CacheWithVariableTTL[string, *dns.Msg]
	minTTL uint32
	maxTTL uint32
}

func newAnswerCache(size int, minTTL, maxTTL time.Duration) (*answerCache, error) {
	c, err := otter.MustBuilder[string, *dns.Msg](size).
		CollectStats().
		WithVariableTTL().
		Build()
	if err != nil {
		return nil, err
	}
	return &answerCache{
		cache:  c,
		minTTL: uint32(minTTL.Seconds()),
		maxTTL: uint32(maxTTL.Seconds()),
	}, nil
}

func cacheKey(q dns.Question) string {
	return fmt.Sprintf("%s-%d-%d", dns.CanonicalName(q.Name), q.Qtype, q.Qclass)
}

// get returns a copy carrying the query's id.
func (c *answerCache) get(r *dns.Msg) (*dns.Msg, bool) {
	cached, ok := c.cache.Get(cacheKey(r.Question[0]))
	if !ok {
		return nil, false
	}
	m := cached.Copy()
	m.Id = r.Id
	return m, true
}

func (c *answerCache) set(r, m *dns.Msg) {
	if m.Rcode != dns.RcodeSuccess && m.Rcode != dns.RcodeNameError {
		return
	}
	ttl := minTTL(c.maxTTL, m.Answer)
	ttl = minTTL(ttl, m.Ns)
	ttl = minTTL(ttl, m.Extra)
	if ttl < c.minTTL || len(m.Answer)+len(m.Ns)+len(m.Extra) == 0 {
		return
	}
	c.cache.Set(cacheKey(r.Question[0]), m.Copy(), time.Duration(ttl)*time.Second)
}

func (c *answerCache) close() {
	c.cache.Close()
}

func minTTL(ttl uint32, rrs []dns.RR) uint32 {
	for _, rr := range rrs {
		if t := rr.Header().Ttl; t < ttl && t != 0 {
			ttl = t
		}
	}
	return ttl
}
