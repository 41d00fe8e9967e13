package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	limiterCleanupInterval = 2 * time.Minute
	limiterIdleTimeout     = 30 * time.Minute
)

type server struct {
	cfg      AppConfig
	fetcher  Fetcher
	tr       *Transformer
	cache    *FlagCache
	limiters *clientLimiters
}

func newServer(cfg AppConfig, fetcher Fetcher, tr *Transformer, cache *FlagCache) *server {
	return &server{
		cfg:      cfg,
		fetcher:  fetcher,
		tr:       tr,
		cache:    cache,
		limiters: newClientLimiters(cfg.ClientRPS),
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()

	// подписка: GET /?label=...&flags=1
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		if !s.admit(w, r) {
			return
		}
		s.handleSubscription(w, r)
	})

	// ping
	mux.HandleFunc("/api/ping", func(w http.ResponseWriter, r *http.Request) {
		if !s.admit(w, r) {
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"ok":true,"cache":%d}`, s.cache.Len())
	})

	return mux
}

func (s *server) admit(w http.ResponseWriter, r *http.Request) bool {
	if !checkAuth(s.cfg.APIKey, r) {
		unauthorized(w)
		return false
	}
	if !s.limiters.allow(clientIP(r)) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return false
	}
	return true
}

func (s *server) handleSubscription(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	q := r.URL.Query()
	label := strings.TrimSpace(q.Get("label"))
	if label == "" {
		label = s.cfg.DefaultLabel
	}
	withFlags := s.cfg.Flags
	if q.Has("flags") {
		withFlags = parseBoolParam(q.Get("flags"))
	}

	raw, err := s.fetcher.Fetch(r.Context())
	if err != nil {
		logrus.WithField("upstream", s.cfg.Upstream).Warnln("[http]", err)
		http.Error(w, "failed to fetch or process upstream response", http.StatusBadGateway)
		return
	}
	out := s.tr.Transform(r.Context(), raw, label, withFlags)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, out)
	logrus.WithFields(logrus.Fields{
		"client": clientIP(r),
		"flags":  withFlags,
		"bytes":  len(out),
		"took":   time.Since(started).Round(time.Millisecond),
	}).Infoln("[http] subscription served")
}

func parseBoolParam(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// serve runs the HTTP server until ctx is done.
func serve(ctx context.Context, addr string, h http.Handler) error {
	hs := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() {
		logrus.Infoln("[http] listening on", addr)
		errc <- hs.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := hs.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	io.WriteString(w, "401 unauthorized\npass ?key=... or Authorization: Bearer <key>\n")
}

// checkAuth: пустой api_key означает открытый доступ
func checkAuth(apiKey string, r *http.Request) bool {
	if strings.TrimSpace(apiKey) == "" {
		return true
	}
	if auth := r.Header.Get("Authorization"); auth != "" {
		const p = "bearer "
		if len(auth) >= len(p) && strings.EqualFold(auth[:len(p)], p) {
			if strings.TrimSpace(auth[len(p):]) == apiKey {
				return true
			}
		}
	}
	return r.URL.Query().Get("key") == apiKey
}

func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

type clientLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

// clientLimiters: по лимитеру на IP клиента, loopback без ограничений
type clientLimiters struct {
	mu  sync.Mutex
	rps float64
	m   map[string]*clientLimiter
}

func newClientLimiters(rps float64) *clientLimiters {
	return &clientLimiters{rps: rps, m: make(map[string]*clientLimiter)}
}

func (c *clientLimiters) allow(ip string) bool {
	if c.rps <= 0 {
		return true
	}
	if a := net.ParseIP(ip); a != nil && a.IsLoopback() {
		return true
	}
	c.mu.Lock()
	cl, ok := c.m[ip]
	if !ok {
		cl = &clientLimiter{lim: rate.NewLimiter(rate.Limit(c.rps), max(1, int(c.rps)))}
		c.m[ip] = cl
	}
	cl.seen = time.Now()
	c.mu.Unlock()
	return cl.lim.Allow()
}

func (c *clientLimiters) prune(idle time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for ip, cl := range c.m {
		if time.Since(cl.seen) > idle {
			delete(c.m, ip)
			n++
		}
	}
	return n
}

func (c *clientLimiters) run(ctx context.Context) error {
	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.prune(limiterIdleTimeout)
		}
	}
}
