package main

import (
	"context"
	"sync"

	"github.com/samber/lo"
)

const DefaultFlagWorkers = 8

// FlagSource resolves a host to a flag glyph, "" when unknown.
type FlagSource interface {
	Resolve(ctx context.Context, host string) string
}

type hostFlag struct {
	host string
	flag string
}

// flagWorker: локальный воркер пула флагов
func flagWorker(ctx context.Context, src FlagSource, jobs <-chan string, results chan<- hostFlag, wg *sync.WaitGroup) {
	defer wg.Done()
	for host := range jobs {
		results <- hostFlag{host: host, flag: src.Resolve(ctx, host)}
	}
}

// resolveFlags resolves every distinct non-empty host with at most workers lookups
// in flight. A failed lookup only leaves its own host without a flag.
func resolveFlags(ctx context.Context, src FlagSource, hosts []string, workers int) map[string]string {
	uniq := lo.Uniq(lo.Compact(hosts))
	if len(uniq) == 0 {
		return nil
	}
	if workers <= 0 {
		workers = DefaultFlagWorkers
	}
	workers = min(workers, len(uniq))

	jobs := make(chan string, len(uniq))
	results := make(chan hostFlag, len(uniq))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go flagWorker(ctx, src, jobs, results, &wg)
	}
	for _, h := range uniq {
		jobs <- h
	}
	close(jobs)
	go func() {
		wg.Wait()
		close(results)
	}()

	out := make(map[string]string, len(uniq))
	for r := range results {
		out[r.host] = r.flag
	}
	return out
}
