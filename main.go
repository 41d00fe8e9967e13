package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func setupLogging(level string) {
	lvl, err := logrus.ParseLevel(firstNonEmpty(level, os.Getenv("LOG_LEVEL")))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// buildGeolocator: локальная база (если есть) раньше HTTP API
func buildGeolocator(cfg AppConfig) (Geolocator, func()) {
	var chain geoChain
	closeFn := func() {}
	if cfg.GeoIPDB != "" {
		db, err := openMMDB(cfg.GeoIPDB)
		if err != nil {
			logrus.Warnln("[flags]", err)
		} else {
			chain = append(chain, db)
			closeFn = func() { _ = db.Close() }
		}
	}
	if !strings.EqualFold(cfg.GeoEndpoint, "off") {
		client, err := newHTTPClient(cfg.Proxy, cfg.GeoTimeout)
		if err != nil {
			logrus.Fatalln("geolocation client:", err)
		}
		chain = append(chain, newHTTPGeolocator(client, cfg.GeoEndpoint))
	}
	if len(chain) == 0 {
		return nil, closeFn
	}
	return chain, closeFn
}

func main() {
	var (
		logLevel string
		workers  int
	)
	flag.StringVar(&configPath, "config", configPath, "path to YAML config")
	flag.StringVar(&logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	flag.IntVar(&workers, "workers", 0, "parallel flag lookups (0 = from config)")
	flag.Parse()

	setupLogging(logLevel)

	cfg, err := LoadAppConfig(configPath)
	if err != nil {
		// не фатально: работаем на значениях по умолчанию
		logrus.Warnln("config:", err)
	}
	if workers > 0 {
		cfg.FlagWorkers = workers
	}

	client, err := newHTTPClient(cfg.Proxy, cfg.FetchTimeout)
	if err != nil {
		logrus.Fatalln("upstream client:", err)
	}

	var res AddrResolver
	if cfg.DNSServer != "" {
		res = newDNSResolver(cfg.DNSServer, cfg.DNSTimeout)
	}
	geo, closeGeo := buildGeolocator(cfg)
	defer closeGeo()

	cache := NewFlagCache(cfg.CacheTTL)
	resolver := NewFlagResolver(cache, res, geo, ResolverOptions{
		DNSTimeout: cfg.DNSTimeout,
		GeoTimeout: cfg.GeoTimeout,
		GeoRPS:     cfg.GeoRPS,
	})
	tr := NewTransformer(resolver, cfg.FlagWorkers, cfg.ProfileTitle)
	srv := newServer(cfg, newUpstreamFetcher(client, cfg.Upstream, cfg.FetchTimeout), tr, cache)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return cache.Run(gctx) })
	g.Go(func() error { return srv.limiters.run(gctx) })
	g.Go(func() error { return serve(gctx, cfg.Bind, srv.routes()) })

	logrus.WithFields(logrus.Fields{
		"upstream": cfg.Upstream,
		"flags":    cfg.Flags,
		"workers":  cfg.FlagWorkers,
	}).Infoln("[main] started")
	if err := g.Wait(); err != nil {
		logrus.Fatalln("[main]", err)
	}
	logrus.Infoln("[main] stopped")
}
