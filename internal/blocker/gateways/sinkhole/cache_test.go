package sinkhole

import (
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func answerWithTTL(r *dns.Msg, ttl uint32) *dns.Msg {
	m := new(dns.Msg)
	m.SetReply(r)
	m.Answer = append(m.Answer, &dns.A{
		Hdr: dns.RR_Header{Name: r.Question[0].Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: ttl},
		A:   net.ParseIP("10.0.0.1").To4(),
	})
	return m
}

func TestAnswerCache_GetRewritesID(t *testing.T) {
	c, err := newAnswerCache(16, 5*time.Second, time.Hour)
	require.NoError(t, err)
	defer c.close()

	q := new(dns.Msg)
	q.SetQuestion("Example.COM.", dns.TypeA)
	c.set(q, answerWithTTL(q, 300))

	q2 := new(dns.Msg)
	q2.SetQuestion("example.com.", dns.TypeA)
	q2.Id = q.Id + 1
	got, ok := c.get(q2)
	require.True(t, ok, "keys are case-insensitive")
	assert.Equal(t, q2.Id, got.Id)
}

func TestAnswerCache_SkipsShortAndFailed(t *testing.T) {
	c, err := newAnswerCache(16, 5*time.Second, time.Hour)
	require.NoError(t, err)
	defer c.close()

	q := new(dns.Msg)
	q.SetQuestion("short.example.", dns.TypeA)
	c.set(q, answerWithTTL(q, 1))
	_, ok := c.get(q)
	assert.False(t, ok)

	q = new(dns.Msg)
	q.SetQuestion("fail.example.", dns.TypeA)
	m := answerWithTTL(q, 300)
	m.Rcode = dns.RcodeServerFailure
	c.set(q, m)
	_, ok = c.get(q)
	assert.False(t, ok)

	q = new(dns.Msg)
	q.SetQuestion("empty.example.", dns.TypeA)
	empty := new(dns.Msg)
	empty.SetReply(q)
	c.set(q, empty)
	_, ok = c.get(q)
	assert.False(t, ok)
}

func TestMinTTL(t *testing.T) {
	q := new(dns.Msg)
	q.SetQuestion("a.example.", dns.TypeA)
	m := answerWithTTL(q, 120)
	m.Answer = append(m.Answer, answerWithTTL(q, 0).Answer...)
	assert.Equal(t, uint32(120), minTTL(3600, m.Answer), "zero ttl ignored")
	assert.Equal(t, uint32(60), minTTL(60, m.Answer))
}
