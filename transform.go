package main

import (
	"context"
	"strings"
)

// DefaultLabel is used when the caller gives no label.
const DefaultLabel = "𝙀𝙃𝙎𝘼𝙉"

// Transformer rewrites whole subscriptions.
type Transformer struct {
	flags        FlagSource // nil: флаги недоступны
	workers      int
	profileTitle string
}

func NewTransformer(flags FlagSource, workers int, profileTitle string) *Transformer {
	return &Transformer{flags: flags, workers: workers, profileTitle: profileTitle}
}

// Transform relabels every link of raw and keeps line order, line count and the
// original line ending. With withFlags set, links whose label has no flag get the
// flag of their server's country.
func (t *Transformer) Transform(ctx context.Context, raw, desired string, withFlags bool) string {
	if desired == "" {
		desired = DefaultLabel
	}
	nl := "\n"
	if strings.Contains(raw, "\r\n") {
		nl = "\r\n"
	}
	lines := strings.Split(raw, "\n")
	// у последнего куска нет "\n", его "\r" принадлежит тексту
	for i := 0; i < len(lines)-1; i++ {
		lines[i] = strings.TrimSuffix(lines[i], "\r")
	}

	links := make([]*Link, len(lines))
	hosts := make([]string, len(lines))
	for i, ln := range lines {
		if strings.TrimSpace(ln) == "" {
			continue
		}
		if t.profileTitle != "" {
			if prefix, ok := profileTitlePrefix(ln); ok {
				lines[i] = prefix + " base64:" + EncodeBase64Text(t.profileTitle)
				continue
			}
		}
		if !needsRewrite(ln) || !strings.Contains(ln, "://") {
			continue
		}
		lk := parseLink(ln)
		links[i] = &lk
		if withFlags && t.flags != nil {
			hosts[i] = linkHost(lk)
		}
	}

	var flags map[string]string
	if withFlags && t.flags != nil {
		flags = resolveFlags(ctx, t.flags, hosts, t.workers)
	}
	// результаты подставляются по позиции строки
	for i, lk := range links {
		if lk != nil {
			lines[i] = rewriteLink(*lk, desired, flags[hosts[i]])
		}
	}
	return strings.Join(lines, nl)
}

func needsRewrite(ln string) bool {
	return strings.Contains(ln, "#") || strings.HasPrefix(ln, "vless://") || strings.HasPrefix(ln, "vmess://")
}

// profileTitlePrefix matches "//profile-title:" and "#profile-title:" directives.
func profileTitlePrefix(ln string) (string, bool) {
	s := strings.TrimSpace(ln)
	for _, p := range []string{"//profile-title:", "#profile-title:"} {
		if len(s) >= len(p) && strings.EqualFold(s[:len(p)], p) {
			return s[:len(p)], true
		}
	}
	return "", false
}
