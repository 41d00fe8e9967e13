package main

import "strings"

const (
	regionalA = 0x1F1E6
	regionalZ = 0x1F1FF
	// 'A' + flagOffset == regionalA
	flagOffset = 127397
)

func isRegional(r rune) bool { return r >= regionalA && r <= regionalZ }

// extractFlags: все непересекающиеся пары regional indicator слева направо
func extractFlags(s string) []string {
	rs := []rune(s)
	var out []string
	for i := 0; i+1 < len(rs); i++ {
		if isRegional(rs[i]) && isRegional(rs[i+1]) {
			out = append(out, string(rs[i:i+2]))
			i++
		}
	}
	return out
}

// BuildLabel keeps every flag found in source and puts desired after them.
func BuildLabel(source, desired string) string {
	return BuildLabelWithFlag(source, desired, "")
}

// BuildLabelWithFlag is BuildLabel, but falls back to fallbackFlag when source has no flags.
func BuildLabelWithFlag(source, desired, fallbackFlag string) string {
	flags := extractFlags(source)
	if len(flags) == 0 && fallbackFlag != "" {
		flags = []string{fallbackFlag}
	}
	prefix := ""
	if len(flags) > 0 {
		prefix = strings.Join(flags, " ") + " "
	}
	return strings.TrimSpace(prefix + desired)
}

// CountryFlag maps a two-letter country code to its flag glyph; "" for anything else.
func CountryFlag(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 2 {
		return ""
	}
	var b strings.Builder
	for _, c := range code {
		if c < 'A' || c > 'Z' {
			return ""
		}
		b.WriteRune(c + flagOffset)
	}
	return b.String()
}

// validFlag: ровно одна пара regional indicator
func validFlag(s string) bool {
	rs := []rune(strings.TrimSpace(s))
	return len(rs) == 2 && isRegional(rs[0]) && isRegional(rs[1])
}
