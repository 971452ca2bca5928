package template

import (
	"bytes"
	"encoding/json"
	"testing"
)

func FuzzLoad(f *testing.F) {
	f.Add([]byte(`{"log":{},"outbounds":[{"type":"direct","tag":"direct"}]}`))
	f.Add([]byte("\uFEFF{\"b\":1,\"a\":[1,{\"x\":null}],\"outbounds\":[]}"))
	f.Add([]byte(`{"outbounds":{}}`))
	f.Add([]byte(`[]`))
	f.Add([]byte(`{"a":"<&>"}`))

	f.Fuzz(func(t *testing.T, text []byte) {
		doc, err := Load("fuzz.json", text)
		if err != nil {
			return
		}
		first, err := json.Marshal(doc)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		again, err := Load("fuzz.json", first)
		if err != nil {
			t.Fatalf("reload: %v\n%s", err, first)
		}
		second, err := json.Marshal(again)
		if err != nil {
			t.Fatalf("marshal again: %v", err)
		}
		if !bytes.Equal(first, second) {
			t.Fatalf("round trip changed output\nfirst=%s\nsecond=%s", first, second)
		}
	})
}
