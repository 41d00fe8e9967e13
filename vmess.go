package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"
)

// DecodeBase64Text accepts both alphabets and missing padding. ok is false when the
// body is not base64 or does not decode to UTF-8 text.
func DecodeBase64Text(body string) (string, bool) {
	s := strings.TrimSpace(body)
	s = strings.NewReplacer("-", "+", "_", "/").Replace(s)
	if n := len(s) % 4; n != 0 {
		s += strings.Repeat("=", 4-n)
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil || !utf8.Valid(raw) {
		return "", false
	}
	return string(raw), true
}

func EncodeBase64Text(text string) string {
	return base64.StdEncoding.EncodeToString([]byte(text))
}

var errNotObject = errors.New("vmess payload is not a JSON object")

type member struct {
	key string
	raw json.RawMessage
}

// VmessPayload keeps the vmess JSON members in source order. Only "ps" and "add"
// are interpreted; everything else is carried as raw JSON.
type VmessPayload struct {
	members []member
}

func ParseVmessPayload(text string) (*VmessPayload, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errNotObject
	}
	vp := &VmessPayload{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("member %q: %w", key, err)
		}
		vp.members = append(vp.members, member{key: key, raw: raw})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	// хвост после объекта недопустим
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after vmess payload")
	}
	return vp, nil
}

func (vp *VmessPayload) lookup(key string) (json.RawMessage, bool) {
	for i := len(vp.members) - 1; i >= 0; i-- {
		if vp.members[i].key == key {
			return vp.members[i].raw, true
		}
	}
	return nil, false
}

// PS returns the profile label the way a loosely typed client would read it:
// strings as is, non-zero numbers and true as their JSON text, objects and
// arrays coerced like JS String(), anything else "".
func (vp *VmessPayload) PS() string { return vp.text("ps") }

// Host returns the server address ("add").
func (vp *VmessPayload) Host() string { return strings.TrimSpace(vp.text("add")) }

func (vp *VmessPayload) text(key string) string {
	raw, ok := vp.lookup(key)
	if !ok {
		return ""
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case float64:
		if x != 0 {
			return string(bytes.TrimSpace(raw))
		}
	case bool:
		if x {
			return "true"
		}
	case []any, map[string]any:
		return looseString(x)
	}
	return ""
}

// looseString приводит значение к строке как String() в JS:
// объект даёт "[object Object]", массив склеивается через ","
func looseString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = looseString(e)
		}
		return strings.Join(parts, ",")
	}
	return "[object Object]"
}

func (vp *VmessPayload) SetPS(label string) {
	raw := json.RawMessage(quoteJSON(label))
	found := false
	for i := range vp.members {
		if vp.members[i].key == "ps" {
			vp.members[i].raw = raw
			found = true
		}
	}
	if !found {
		vp.members = append(vp.members, member{key: "ps", raw: raw})
	}
}

// Encode writes compact JSON with members in their original order.
func (vp *VmessPayload) Encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range vp.members {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(quoteJSON(m.key))
		buf.WriteByte(':')
		if err := json.Compact(&buf, m.raw); err != nil {
			return nil, fmt.Errorf("member %q: %w", m.key, err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func quoteJSON(s string) string {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s) // строка всегда кодируется
	return strings.TrimRight(b.String(), "\n")
}

// rewriteVmessBody relabels the base64 body of a vmess link. ok is false when the
// body could not be decoded or parsed; the caller then keeps the body untouched.
func rewriteVmessBody(body, tag, desired, fallbackFlag string) (newBody, ps string, ok bool) {
	text, ok := DecodeBase64Text(body)
	if !ok {
		return body, "", false
	}
	vp, err := ParseVmessPayload(text)
	if err != nil {
		return body, "", false
	}
	ps = BuildLabelWithFlag(firstNonEmpty(vp.PS(), tag), desired, fallbackFlag)
	vp.SetPS(ps)
	out, err := vp.Encode()
	if err != nil {
		return body, "", false
	}
	return EncodeBase64Text(string(out)), ps, true
}
