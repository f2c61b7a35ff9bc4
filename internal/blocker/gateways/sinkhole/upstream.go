package sinkhole

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

const (
	errNoServersProvided = "no upstream DNS servers provided"
	errServerFailed      = "server %s: %w"
	errAllServersFailed  = "all %d upstream servers failed"
	errQueryTimeout      = "query timeout after %v"
)

// ExchangeFunc sends one query to one server.
type ExchangeFunc func(ctx context.Context, m *dns.Msg, server string) (*dns.Msg, error)

// ForwarderOptions configure upstream forwarding for allowed names.
type ForwarderOptions struct {
	Servers  []string
	Timeout  time.Duration
	Parallel bool
	// Exchange is injectable for tests; defaults to a UDP dns.Client.
	Exchange ExchangeFunc
}

// Forwarder relays queries to the first upstream that answers.
type Forwarder struct {
	servers  []string
	timeout  time.Duration
	parallel bool
	exchange ExchangeFunc
}

// NewForwarder validates the server list. Servers without a port get :53.
func NewForwarder(opts ForwarderOptions) (*Forwarder, error) {
	if len(opts.Servers) == 0 {
		return nil, errors.New(errNoServersProvided)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	servers := make([]string, 0, len(opts.Servers))
	for _, s := range opts.Servers {
		servers = append(servers, withDefaultPort(s))
	}
	exchange := opts.Exchange
	if exchange == nil {
		c := &dns.Client{Net: "udp", Timeout: opts.Timeout}
		exchange = func(ctx context.Context, m *dns.Msg, server string) (*dns.Msg, error) {
			resp, _, err := c.ExchangeContext(ctx, m, server)
			return resp, err
		}
	}
	return &Forwarder{
		servers:  servers,
		timeout:  opts.Timeout,
		parallel: opts.Parallel,
		exchange: exchange,
	}, nil
}

func withDefaultPort(server string) string {
	if _, _, err := net.SplitHostPort(server); err == nil {
		return server
	}
	return net.JoinHostPort(server, "53")
}

// Forward returns the first successful answer and the server that gave it.
func (f *Forwarder) Forward(ctx context.Context, r *dns.Msg) (*dns.Msg, string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	if f.parallel {
		return f.forwardParallel(ctx, r)
	}
	return f.forwardSerial(ctx, r)
}

func (f *Forwarder) forwardSerial(ctx context.Context, r *dns.Msg) (*dns.Msg, string, error) {
	var lastErr error
	for _, server := range f.servers {
		resp, err := f.exchange(ctx, r, server)
		if err == nil && resp != nil {
			return resp, server, nil
		}
		if err == nil {
			err = errors.New("empty response")
		}
		lastErr = fmt.Errorf(errServerFailed, server, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, "", fmt.Errorf(errAllServersFailed+": %w", len(f.servers), lastErr)
}

func (f *Forwarder) forwardParallel(ctx context.Context, r *dns.Msg) (*dns.Msg, string, error) {
	type answer struct {
		msg    *dns.Msg
		server string
	}
	answers := make(chan answer, 1)
	failures := make(chan error, len(f.servers))

	for _, server := range f.servers {
		go func(srv string) {
			resp, err := f.exchange(ctx, r.Copy(), srv)
			if err != nil || resp == nil {
				if err == nil {
					err = errors.New("empty response")
				}
				failures <- fmt.Errorf(errServerFailed, srv, err)
				return
			}
			select {
			case answers <- answer{msg: resp, server: srv}:
			default:
			}
		}(server)
	}

	var errs []error
	for range f.servers {
		select {
		case a := <-answers:
			return a.msg, a.server, nil
		case err := <-failures:
			errs = append(errs, err)
		case <-ctx.Done():
			return nil, "", fmt.Errorf(errQueryTimeout, f.timeout)
		}
	}
	return nil, "", fmt.Errorf(errAllServersFailed+": %w", len(f.servers), errors.Join(errs...))
}
