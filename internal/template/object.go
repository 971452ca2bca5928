package template

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Member is one key of an Object. Value holds the member's JSON verbatim, so
// nested objects keep their key order as well.
type Member struct {
	Key   string
	Value json.RawMessage
}

// Object is a JSON object that keeps its members in document order.
type Object struct {
	members []Member
}

func (o *Object) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("expected JSON object")
	}
	members := make([]Member, 0, 8)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		members = append(members, Member{Key: key, Value: raw})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	o.members = members
	return nil
}

func (o Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range o.members {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := marshalNoEscape(m.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		if len(m.Value) == 0 {
			buf.WriteString("null")
		} else {
			buf.Write(m.Value)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (o Object) Keys() []string {
	keys := make([]string, 0, len(o.members))
	for _, m := range o.members {
		keys = append(keys, m.Key)
	}
	return keys
}

// Get returns the first member named key.
func (o Object) Get(key string) (json.RawMessage, bool) {
	for _, m := range o.members {
		if m.Key == key {
			return m.Value, true
		}
	}
	return nil, false
}

// String returns the member as a string, or "" when it is missing or not a
// JSON string.
func (o Object) String(key string) string {
	raw, ok := o.Get(key)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// Set replaces key in place, or appends it when absent.
func (o *Object) Set(key string, v any) error {
	raw, err := marshalNoEscape(v)
	if err != nil {
		return err
	}
	for i := range o.members {
		if o.members[i].Key == key {
			o.members[i].Value = raw
			return nil
		}
	}
	o.members = append(o.members, Member{Key: key, Value: raw})
	return nil
}

// Clone copies the member list; values are immutable and shared.
func (o Object) Clone() Object {
	return Object{members: append([]Member(nil), o.members...)}
}

// marshalNoEscape is json.Marshal without HTML escaping, so tags such as
// "A&B" stay literal.
func marshalNoEscape(v any) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
