package main

import (
	"errors"
	"testing"
)

func TestDecodeBase64Text(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"standard", "eyJwcyI6IvCfh6nwn4eqIEJlcmxpbiIsImFkZCI6IngifQ==", `{"ps":"🇩🇪 Berlin","add":"x"}`, true},
		{"url safe without padding", "eyJwcyI6ImE_Yj4ifQ", `{"ps":"a?b>"}`, true},
		{"surrounding spaces", "  TXkgU3Vi\n", "My Sub", true},
		{"garbage", "not*base64", "", false},
		{"not utf8", EncodeBase64Text("\xff\xfe"), "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := DecodeBase64Text(tc.in)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("DecodeBase64Text(%q) = %q, %v; want %q, %v", tc.in, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestBase64TextRoundTrip(t *testing.T) {
	for _, s := range []string{"", "a", "ab", "abc", "🇩🇪 FOO", `{"ps":"x"}`} {
		enc := EncodeBase64Text(s)
		got, ok := DecodeBase64Text(enc)
		if !ok || got != s {
			t.Fatalf("round trip of %q gave %q, %v", s, got, ok)
		}
		if EncodeBase64Text(got) != enc {
			t.Fatalf("re-encode of %q changed %q", s, enc)
		}
	}
}

func TestVmessPayloadKeepsOrderAndValues(t *testing.T) {
	vp, err := ParseVmessPayload(`{ "v": "2", "ps" : "old", "port": 443, "tls": "", "extra": {"a": [1, 2.50]} }`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if vp.PS() != "old" {
		t.Fatalf("unexpected ps: %q", vp.PS())
	}
	vp.SetPS("<new> & more")
	b, err := vp.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{"v":"2","ps":"<new> & more","port":443,"tls":"","extra":{"a":[1,2.50]}}`
	if string(b) != want {
		t.Fatalf("encode mismatch:\n got %s\nwant %s", b, want)
	}
}

func TestVmessPayloadPS(t *testing.T) {
	cases := map[string]string{
		`{"ps":"name"}`: "name",
		`{"ps":7}`:      "7",
		`{"ps":0}`:      "",
		`{"ps":true}`:   "true",
		`{"ps":null}`:   "",
		`{"add":"h"}`:   "",
		`{"ps":{}}`:     "[object Object]",
		`{"ps":[]}`:     "",

		`{"ps":["🇩🇪 a",1,null,false,[2,{}]]}`: "🇩🇪 a,1,,false,2,[object Object]",
	}
	for in, want := range cases {
		vp, err := ParseVmessPayload(in)
		if err != nil {
			t.Fatalf("parse %s: %v", in, err)
		}
		if got := vp.PS(); got != want {
			t.Fatalf("PS of %s = %q, want %q", in, got, want)
		}
	}
}

func TestRewriteVmessBodyNonStringPS(t *testing.T) {
	tag := "🇩🇪 old"
	cases := []struct {
		payload, want string
	}{
		{`{"add":"h","ps":{}}`, "N"},
		{`{"add":"h","ps":[]}`, "🇩🇪 N"},
		{`{"add":"h","ps":["🇫🇮 a",1]}`, "🇫🇮 N"},
	}
	for _, c := range cases {
		t.Run(c.payload, func(t *testing.T) {
			_, ps, ok := rewriteVmessBody(EncodeBase64Text(c.payload), tag, "N", "")
			if !ok {
				t.Fatalf("payload rejected")
			}
			if ps != c.want {
				t.Fatalf("ps = %q, want %q", ps, c.want)
			}
		})
	}
}

func TestVmessPayloadSetPSAppendsWhenMissing(t *testing.T) {
	vp, err := ParseVmessPayload(`{"add":"h"}`)
	if err != nil {
		t.Fatal(err)
	}
	vp.SetPS("x")
	b, _ := vp.Encode()
	if string(b) != `{"add":"h","ps":"x"}` {
		t.Fatalf("unexpected payload %s", b)
	}
	if vp.Host() != "h" {
		t.Fatalf("unexpected host %q", vp.Host())
	}
}

func TestParseVmessPayloadRejects(t *testing.T) {
	for _, in := range []string{``, `[1,2]`, `"str"`, `{"a":1} trailing`, `{"a":}`, `{"a":1`} {
		if _, err := ParseVmessPayload(in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
	if _, err := ParseVmessPayload(`[]`); !errors.Is(err, errNotObject) {
		t.Fatalf("expected errNotObject, got %v", err)
	}
}
