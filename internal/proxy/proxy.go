// Package proxy runs an embedded SOCKS5 proxy that can point host names at
// other addresses. Browsers launched behind it reach a staging deployment
// under the production host names a suite was written for.
package proxy

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"

	socks5 "github.com/armon/go-socks5"
	"github.com/golang/glog"
)

// Server is a running SOCKS5 proxy.
type Server struct {
	l         net.Listener
	done      chan struct{}
	closeOnce sync.Once
}

// Start listens on addr and serves SOCKS5 connections until Close. Each key
// of hosts is a host name and its value the address connections to it are
// sent to, either "host:port" or a bare host that keeps the requested port.
func Start(addr string, hosts map[string]string) (*Server, error) {
	o, err := newOverrides(hosts)
	if err != nil {
		return nil, err
	}
	srv, err := socks5.New(&socks5.Config{
		Resolver: o,
		Rewriter: o,
		Logger:   log.New(glogWriter{}, "socks5: ", 0),
	})
	if err != nil {
		return nil, fmt.Errorf("socks5.New(_) returned error: %w", err)
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{l: l, done: make(chan struct{})}
	go func() {
		err := srv.Serve(l)
		select {
		case <-s.done:
			return
		default:
		}
		if err != nil {
			glog.Errorf("SOCKS5 proxy on %s stopped: %v", l.Addr(), err)
		}
	}()
	glog.Infof("SOCKS5 proxy listening on %s with %d host overrides", l.Addr(), len(hosts))
	return s, nil
}

// Addr returns the host:port the proxy listens on.
func (s *Server) Addr() string {
	return s.l.Addr().String()
}

// Close stops accepting connections.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.l.Close()
	})
	return err
}

type target struct {
	host string
	port int // zero keeps the requested port
}

// overrides resolves and rewrites the destinations of overridden hosts and
// leaves every other destination alone.
type overrides struct {
	hosts map[string]target
	dns   socks5.DNSResolver
}

func newOverrides(hosts map[string]string) (*overrides, error) {
	o := &overrides{hosts: make(map[string]target, len(hosts))}
	for name, addr := range hosts {
		t := target{host: addr}
		if h, p, err := net.SplitHostPort(addr); err == nil {
			port, err := strconv.Atoi(p)
			if err != nil {
				return nil, fmt.Errorf("host override %s: invalid port in %q", name, addr)
			}
			t = target{host: h, port: port}
		}
		if t.host == "" {
			return nil, fmt.Errorf("host override %s: empty address", name)
		}
		o.hosts[strings.ToLower(name)] = t
	}
	return o, nil
}

// Resolve skips name resolution for overridden hosts; Rewrite supplies their
// address.
func (o *overrides) Resolve(ctx context.Context, name string) (context.Context, net.IP, error) {
	if _, ok := o.hosts[strings.ToLower(name)]; ok {
		return ctx, nil, nil
	}
	return o.dns.Resolve(ctx, name)
}

func (o *overrides) Rewrite(ctx context.Context, req *socks5.Request) (context.Context, *socks5.AddrSpec) {
	dest := req.DestAddr
	t, ok := o.hosts[strings.ToLower(dest.FQDN)]
	if !ok {
		return ctx, dest
	}
	port := t.port
	if port == 0 {
		port = dest.Port
	}
	glog.V(1).Infof("proxy: %s:%d -> %s:%d", dest.FQDN, dest.Port, t.host, port)
	return ctx, &socks5.AddrSpec{FQDN: t.host, IP: net.ParseIP(t.host), Port: port}
}

// glogWriter sends the proxy's own log lines to glog.
type glogWriter struct{}

func (glogWriter) Write(p []byte) (int, error) {
	glog.V(1).Info(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}
