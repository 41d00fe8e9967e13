package main

import (
	"net/netip"
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// parseLink: разбор строки на схему, часть до '#' и тег
func parseLink(line string) Link {
	lk := Link{Raw: line, BeforeTag: line}
	if i := strings.IndexByte(line, '#'); i >= 0 {
		lk.BeforeTag = line[:i]
		lk.Tag = decodeTag(line[i+1:])
		lk.HasTag = true
	}
	if scheme, rest := scanScheme(lk.BeforeTag); rest >= 0 {
		lk.Scheme = scheme
		lk.Body = lk.BeforeTag[rest:]
		auth := lk.Body
		if j := strings.IndexAny(auth, "/?"); j >= 0 {
			auth = auth[:j]
		}
		lk.Authority = auth
	}
	return lk
}

// scanScheme reads `*WSP scheme "://"` from the start of s. It returns the lower-cased
// scheme and the offset just past "://", or ("", -1) when s does not start that way.
func scanScheme(s string) (string, int) {
	i := 0
	for i < len(s) {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !unicode.IsSpace(r) {
			break
		}
		i += size
	}
	start := i
	for i < len(s) {
		c := s[i]
		isAlpha := c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
		if i == start && !isAlpha {
			return "", -1
		}
		if !isAlpha && !(c >= '0' && c <= '9') && c != '+' && c != '.' && c != '-' {
			break
		}
		i++
	}
	if i == start || !strings.HasPrefix(s[i:], "://") {
		return "", -1
	}
	return strings.ToLower(s[start:i]), i + len("://")
}

// decodeTag decodes like decodeURIComponent with '+' read as a space. Broken escapes
// or a result that is not UTF-8 give back the raw text.
func decodeTag(s string) string {
	dec, err := url.PathUnescape(strings.ReplaceAll(s, "+", "%20"))
	if err != nil || !utf8.ValidString(dec) {
		return s
	}
	return dec
}

const upperhex = "0123456789ABCDEF"

// EncodeURIComponent escapes everything except A-Z a-z 0-9 - _ . ! ~ * ' ( ).
func EncodeURIComponent(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
			strings.IndexByte("-_.!~*'()", c) >= 0 {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

var (
	ipv4Re = regexp.MustCompile(`^\d{1,3}(\.\d{1,3}){3}$`)
	hostRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
)

// isIPLiteral matches the dotted IPv4 shape without range checks, or any IPv6 literal.
func isIPLiteral(host string) bool {
	if ipv4Re.MatchString(host) {
		return true
	}
	a, err := netip.ParseAddr(host)
	return err == nil && a.Is6()
}

// linkHost returns the server host of a link, "" when none can be found.
func linkHost(lk Link) string {
	if lk.Scheme == "vmess" {
		text, ok := DecodeBase64Text(lk.Body)
		if !ok {
			return ""
		}
		vp, err := ParseVmessPayload(text)
		if err != nil {
			return ""
		}
		return strings.Trim(vp.Host(), "[]")
	}
	return authorityHost(lk.Authority)
}

// authorityHost: host из "user@host:port" или "host:port"
func authorityHost(auth string) string {
	if i := strings.LastIndexByte(auth, '@'); i >= 0 {
		auth = auth[i+1:]
	}
	if strings.HasPrefix(auth, "[") {
		end := strings.IndexByte(auth, ']')
		if end < 0 {
			return ""
		}
		port, ok := strings.CutPrefix(auth[end+1:], ":")
		if !ok || !validPort(port) {
			return ""
		}
		host := auth[1:end]
		if !isIPLiteral(host) {
			return ""
		}
		return host
	}
	i := strings.LastIndexByte(auth, ':')
	if i <= 0 || !validPort(auth[i+1:]) {
		return ""
	}
	host := auth[:i]
	if !hostRe.MatchString(host) {
		return ""
	}
	return host
}

func validPort(p string) bool {
	if p == "" || len(p) > 5 {
		return false
	}
	for _, c := range p {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
