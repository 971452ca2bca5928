// Package template holds the routing config template that node records are
// merged into. Documents keep the key order of the text they were loaded
// from.
package template

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"unicode/utf8"
)

//go:embed default.json
var defaultJSON []byte

// Sections every template is expected to carry.
var Sections = []string{"log", "dns", "inbounds", "outbounds", "route", "experimental"}

type Document struct {
	root Object
}

// Load parses text as a template. It must be a JSON object and, when an
// "outbounds" member exists, that member must be an array of objects.
func Load(location string, text []byte) (*Document, error) {
	text = bytes.TrimPrefix(text, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(text) {
		return nil, parseError(location, "配置模板不是合法 UTF-8", nil)
	}
	var root Object
	if err := json.Unmarshal(text, &root); err != nil {
		return nil, parseError(location, "配置模板 JSON 解析失败", err)
	}
	d := &Document{root: root}
	if _, err := d.Outbounds(); err != nil {
		return nil, parseError(location, "outbounds 必须是对象数组", err)
	}
	return d, nil
}

// Default returns a fresh copy of the built-in skeleton.
func Default() *Document {
	d, err := Load("embedded:default.json", defaultJSON)
	if err != nil {
		panic(err)
	}
	return d
}

// MissingSections lists the expected top-level sections absent from d.
func (d *Document) MissingSections() []string {
	var out []string
	for _, s := range Sections {
		if _, ok := d.root.Get(s); !ok {
			out = append(out, s)
		}
	}
	return out
}

// Outbounds decodes the "outbounds" array. A missing or null member yields
// an empty list.
func (d *Document) Outbounds() ([]Object, error) {
	raw, ok := d.root.Get("outbounds")
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	var out []Object
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetOutbounds replaces the "outbounds" member in place. Items may mix
// Objects and any other JSON-marshalable values.
func (d *Document) SetOutbounds(items []any) error {
	if items == nil {
		items = []any{}
	}
	return d.root.Set("outbounds", items)
}

func (d *Document) Keys() []string { return d.root.Keys() }

func (d *Document) Get(key string) (json.RawMessage, bool) { return d.root.Get(key) }

func (d *Document) Clone() *Document {
	return &Document{root: d.root.Clone()}
}

func (d *Document) MarshalJSON() ([]byte, error) {
	if d == nil {
		return nil, errors.New("nil template document")
	}
	return d.root.MarshalJSON()
}
