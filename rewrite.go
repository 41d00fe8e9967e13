package main

import "strings"

// RewriteLine replaces the display label of one subscription line. Lines that are
// not links come back unchanged; links always leave with a "#tag".
func RewriteLine(line, desired string) string {
	return RewriteLineWithFlag(line, desired, "")
}

// RewriteLineWithFlag is RewriteLine that adds flag when the existing label has none.
func RewriteLineWithFlag(line, desired, flag string) string {
	if line == "" || !strings.Contains(line, "://") {
		return line
	}
	return rewriteLink(parseLink(line), desired, flag)
}

func rewriteLink(lk Link, desired, flag string) string {
	before := lk.BeforeTag
	finalTag := BuildLabelWithFlag(lk.Tag, desired, flag)

	if lk.Scheme == "vmess" {
		if body, ps, ok := rewriteVmessBody(lk.Body, lk.Tag, desired, flag); ok {
			before = "vmess://" + body
			if !lk.HasTag {
				finalTag = ps
			}
		}
		// иначе тело не трогаем, меняется только тег
	}
	return before + "#" + EncodeURIComponent(finalTag)
}
