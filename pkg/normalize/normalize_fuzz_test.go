package normalize

import (
	"bytes"
	"encoding/json"
	"testing"
)

// FuzzCanonical checks that canonicalization never panics on arbitrary
// JSON and that canonical output is a fixed point.
// Run: go test -fuzz=FuzzCanonical -fuzztime=30s ./pkg/normalize/
func FuzzCanonical(f *testing.F) {
	f.Add(`{"name": "ct", "vlan_id": 100}`)
	f.Add(`{"b": null, "a": 1}`)
	f.Add(`{"tagged_vn_node_ids": ["x", "y"]}`)
	f.Add(`{"nested": {"deep": {"deeper": null}}}`)
	f.Add(`{"unicode": "café ☕ 日本語"}`)
	f.Add(`[]`)
	f.Add(`null`)
	f.Add(`"plain"`)
	f.Add(`1e21`)
	f.Add(`{"big": 9007199254740991}`)

	f.Fuzz(func(t *testing.T, input string) {
		var v any
		dec := json.NewDecoder(bytes.NewReader([]byte(input)))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			return // invalid JSON, skip
		}

		c1, err := Canonical(v)
		if err != nil {
			return // some number forms are not canonicalizable, fine
		}

		// Canonical output must itself be canonical.
		var round any
		dec2 := json.NewDecoder(bytes.NewReader(c1))
		dec2.UseNumber()
		if err := dec2.Decode(&round); err != nil {
			t.Fatalf("canonical output is not valid JSON: %v", err)
		}
		c2, err := Canonical(round)
		if err != nil {
			t.Fatalf("re-canonicalization failed: %v", err)
		}
		if string(c1) != string(c2) {
			t.Errorf("canonical form is not a fixed point: %s != %s", c1, c2)
		}
	})
}
