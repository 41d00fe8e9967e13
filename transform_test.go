package main

import (
	"context"
	"strings"
	"sync"
	"testing"
)

type mapFlags struct {
	mu    sync.Mutex
	flags map[string]string
	calls map[string]int
}

func (m *mapFlags) Resolve(_ context.Context, host string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = map[string]int{}
	}
	m.calls[host]++
	return m.flags[host]
}

func TestTransformKeepsLineEndingsAndCount(t *testing.T) {
	tr := NewTransformer(nil, 0, "")
	raw := "vless://id@1.2.3.4:443#OldName\r\n\r\n   \r\nplain line\r\ntrojan://p@h.example:443#x"
	got := tr.Transform(context.Background(), raw, "NEXZO", false)
	want := "vless://id@1.2.3.4:443#NEXZO\r\n\r\n   \r\nplain line\r\ntrojan://p@h.example:443#NEXZO"
	if got != want {
		t.Fatalf("unexpected output:\n got %q\nwant %q", got, want)
	}
}

func TestTransformLineCountInvariant(t *testing.T) {
	tr := NewTransformer(nil, 0, "")
	for _, raw := range []string{"", "\n", "a\nb\n", "vmess://x\n\nvless://y\n", "x\r\ny\nz"} {
		got := tr.Transform(context.Background(), raw, "L", false)
		in := len(strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n"))
		out := len(strings.Split(strings.ReplaceAll(got, "\r\n", "\n"), "\n"))
		if in != out {
			t.Fatalf("line count changed for %q: %d -> %d (%q)", raw, in, out, got)
		}
	}
}

func TestTransformKeepsBareTrailingCR(t *testing.T) {
	tr := NewTransformer(nil, 0, "")
	cases := []struct {
		raw, want string
	}{
		{"a\r", "a\r"},
		{"plain\r\nlast\r", "plain\r\nlast\r"},
		{"vless://id@h:1#x\r\nplain\r", "vless://id@h:1#N\r\nplain\r"},
	}
	for _, c := range cases {
		if got := tr.Transform(context.Background(), c.raw, "N", false); got != c.want {
			t.Fatalf("Transform(%q) = %q, want %q", c.raw, got, c.want)
		}
	}
}

func TestTransformSkipsLinesWithoutTagOrKnownPrefix(t *testing.T) {
	tr := NewTransformer(nil, 0, "")
	raw := "trojan://p@h.example:443\nss://abc@h:1\nvless://id@h:1"
	got := tr.Transform(context.Background(), raw, "N", false)
	want := "trojan://p@h.example:443\nss://abc@h:1\nvless://id@h:1#N"
	if got != want {
		t.Fatalf("unexpected output:\n got %q\nwant %q", got, want)
	}
}

func TestTransformDefaultLabel(t *testing.T) {
	tr := NewTransformer(nil, 0, "")
	got := tr.Transform(context.Background(), "vless://id@h:1#a", "", false)
	if got != "vless://id@h:1#"+EncodeURIComponent(DefaultLabel) {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestTransformFlagsByPosition(t *testing.T) {
	src := &mapFlags{flags: map[string]string{
		"1.2.3.4":          "🇩🇪",
		"node.example.com": "🇺🇸",
		"vm.example.com":   "🇫🇷",
	}}
	tr := NewTransformer(src, 2, "")
	vm := "vmess://" + EncodeBase64Text(`{"add":"vm.example.com","ps":"x"}`)
	raw := strings.Join([]string{
		"vless://id@1.2.3.4:443#a",
		"trojan://p@node.example.com:443#b",
		"vless://id@1.2.3.4:8443#%F0%9F%87%AF%F0%9F%87%B5%20c", // свой флаг остаётся
		"ss://nohost#d",
		vm,
		"vless://id@unknown.example:1#e",
	}, "\n")

	got := strings.Split(tr.Transform(context.Background(), raw, "N", true), "\n")
	want := []string{
		"vless://id@1.2.3.4:443#" + EncodeURIComponent("🇩🇪 N"),
		"trojan://p@node.example.com:443#" + EncodeURIComponent("🇺🇸 N"),
		"vless://id@1.2.3.4:8443#" + EncodeURIComponent("🇯🇵 N"),
		"ss://nohost#N",
		"vmess://" + EncodeBase64Text(`{"add":"vm.example.com","ps":"🇫🇷 N"}`) + "#" + EncodeURIComponent("🇫🇷 N"),
		"vless://id@unknown.example:1#N",
	}
	if len(got) != len(want) {
		t.Fatalf("line count changed: %d", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("line %d:\n got %q\nwant %q", i, got[i], want[i])
		}
	}
	if src.calls["1.2.3.4"] != 1 {
		t.Fatalf("duplicate host must be resolved once, calls=%v", src.calls)
	}
}

func TestTransformFlagsDisabled(t *testing.T) {
	src := &mapFlags{flags: map[string]string{"1.2.3.4": "🇩🇪"}}
	tr := NewTransformer(src, 2, "")
	got := tr.Transform(context.Background(), "vless://id@1.2.3.4:443#a", "N", false)
	if got != "vless://id@1.2.3.4:443#N" || len(src.calls) != 0 {
		t.Fatalf("flags must not be resolved: %q %v", got, src.calls)
	}
}

func TestTransformProfileTitle(t *testing.T) {
	tr := NewTransformer(nil, 0, "My Sub")
	raw := "//profile-title: base64:Ly8=\n#profile-title: old\nvless://id@h:1#a"
	got := tr.Transform(context.Background(), raw, "N", false)
	want := "//profile-title: base64:TXkgU3Vi\n#profile-title: base64:TXkgU3Vi\nvless://id@h:1#N"
	if got != want {
		t.Fatalf("unexpected output:\n got %q\nwant %q", got, want)
	}

	plain := NewTransformer(nil, 0, "")
	if got := plain.Transform(context.Background(), "//profile-title: base64:Ly8=", "N", false); got != "//profile-title: base64:Ly8=" {
		t.Fatalf("title must stay without profile_title: %q", got)
	}
}
