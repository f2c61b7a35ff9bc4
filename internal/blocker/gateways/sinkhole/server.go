// Package sinkhole is an optional DNS front end. Blocked names resolve to
// the addresses where the interstitial page listens; everything else is
// forwarded upstream.
package sinkhole

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/haukened/distraction-block/internal/blocker/common/log"
	"github.com/haukened/distraction-block/internal/blocker/domain"
)

const (
	defaultTTL       = 60 * time.Second
	defaultCacheSize = 4096
	decideTimeout    = 2 * time.Second
	cacheMinTTL      = 5 * time.Second
	cacheMaxTTL      = time.Hour
)

// HostDecider answers whether a bare host is blocked right now.
type HostDecider interface {
	Decide(ctx context.Context, host string) (domain.BlockDecision, error)
}

// Upstream forwards allowed queries.
type Upstream interface {
	Forward(ctx context.Context, r *dns.Msg) (*dns.Msg, string, error)
}

type Options struct {
	Addr     string
	Decider  HostDecider
	Upstream Upstream
	// Sinkhole holds the addresses returned for blocked A/AAAA questions.
	Sinkhole []net.IP
	TTL      time.Duration
	// CacheSize bounds the upstream answer cache; <= 0 uses the default.
	CacheSize int
	Logger    log.Logger
	// PacketConn, when set, is served instead of listening on Addr.
	PacketConn net.PacketConn
}

type Server struct {
	decider  HostDecider
	upstream Upstream
	v4       []net.IP
	v6       []net.IP
	ttl      uint32
	cache    *answerCache
	logger   log.Logger
	srv      *dns.Server
}

func New(opts Options) (*Server, error) {
	if opts.Decider == nil {
		return nil, errors.New("sinkhole: decider is required")
	}
	if opts.Upstream == nil {
		return nil, errors.New("sinkhole: upstream is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.GetLogger()
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	size := opts.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := newAnswerCache(size, cacheMinTTL, cacheMaxTTL)
	if err != nil {
		return nil, fmt.Errorf("sinkhole cache: %w", err)
	}

	s := &Server{
		decider:  opts.Decider,
		upstream: opts.Upstream,
		ttl:      uint32(ttl.Seconds()),
		cache:    cache,
		logger:   logger,
	}
	for _, ip := range opts.Sinkhole {
		if v4 := ip.To4(); v4 != nil {
			s.v4 = append(s.v4, v4)
		} else if ip.To16() != nil {
			s.v6 = append(s.v6, ip)
		}
	}
	s.srv = &dns.Server{
		Addr:       opts.Addr,
		Net:        "udp",
		PacketConn: opts.PacketConn,
		Handler:    s,
	}
	return s, nil
}

// Start serves until Shutdown.
func (s *Server) Start() error {
	if s.srv.PacketConn != nil {
		return s.srv.ActivateAndServe()
	}
	s.logger.Info(map[string]any{"addr": s.srv.Addr}, "DNS sinkhole listening")
	return s.srv.ListenAndServe()
}

// NotifyStarted registers fn to run once the listener is up.
func (s *Server) NotifyStarted(fn func()) {
	s.srv.NotifyStartedFunc = fn
}

func (s *Server) Shutdown(ctx context.Context) error {
	defer s.cache.close()
	return s.srv.ShutdownContext(ctx)
}

func (s *Server) ServeDNS(w dns.ResponseWriter, r *dns.Msg) {
	if len(r.Question) == 0 {
		m := new(dns.Msg)
		m.SetRcode(r, dns.RcodeFormatError)
		_ = w.WriteMsg(m)
		return
	}
	_ = w.WriteMsg(s.answer(r))
}

func (s *Server) answer(r *dns.Msg) *dns.Msg {
	q := r.Question[0]
	host := strings.TrimSuffix(q.Name, ".")

	ctx, cancel := context.WithTimeout(context.Background(), decideTimeout)
	defer cancel()

	d, err := s.decider.Decide(ctx, host)
	if err != nil {
		s.logger.Warn(map[string]any{"name": q.Name, "error": err}, "Cannot decide query")
		return failure(r)
	}
	if d.Blocked {
		s.logger.Debug(map[string]any{
			"name":    q.Name,
			"qtype":   dns.TypeToString[q.Qtype],
			"matched": d.MatchedRule,
		}, "Sinkholed query")
		return s.blocked(r)
	}

	if m, ok := s.cache.get(r); ok {
		return m
	}
	m, server, err := s.upstream.Forward(ctx, r)
	if err != nil {
		s.logger.Warn(map[string]any{"name": q.Name, "error": err}, "Upstream failed")
		return failure(r)
	}
	s.logger.Debug(map[string]any{"name": q.Name, "upstream": server}, "Forwarded query")
	s.cache.set(r, m)
	m.Id = r.Id
	return m
}

// blocked answers A/AAAA with the sinkhole addresses and anything else with
// an empty NOERROR.
func (s *Server) blocked(r *dns.Msg) *dns.Msg {
	m := new(dns.Msg)
	m.SetReply(r)
	m.RecursionAvailable = true
	m.Authoritative = true

	q := r.Question[0]
	hdr := dns.RR_Header{Name: q.Name, Class: dns.ClassINET, Ttl: s.ttl}
	switch q.Qtype {
	case dns.TypeA:
		hdr.Rrtype = dns.TypeA
		for _, ip := range s.v4 {
			m.Answer = append(m.Answer, &dns.A{Hdr: hdr, A: ip})
		}
	case dns.TypeAAAA:
		hdr.Rrtype = dns.TypeAAAA
		for _, ip := range s.v6 {
			m.Answer = append(m.Answer, &dns.AAAA{Hdr: hdr, AAAA: ip})
		}
	}
	return m
}

func failure(r *dns.Msg) *dns.Msg {
	m := new(dns.Msg)
	m.SetReply(r)
	m.RecursionAvailable = true
	m.SetRcode(r, dns.RcodeServerFailure)
	return m
}
