package codec

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/ValentinKolb/sKV/lib/store"
)

// testCodecs is a map of codec name to factory function
var testCodecs = map[string]func() ICodec{
	"JSON":   NewJSONCodec,
	"GOB":    NewGOBCodec,
	"Binary": NewBinaryCodec,
}

func mustValue(t *testing.T, dataType, text string) store.Value {
	t.Helper()
	v, err := store.ParseLiteral(dataType, text)
	if err != nil {
		t.Fatalf("Failed to build %s value from %q: %v", dataType, text, err)
	}
	return v
}

// testEntrySets creates entry sets with different shapes
func testEntrySets(t *testing.T) []map[string]*store.Entry {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	full := &store.Entry{
		Key:          "session:1",
		Value:        mustValue(t, "json", `{"user":"alice","roles":["admin"]}`),
		TTL:          5 * time.Minute,
		CreatedAt:    base,
		UpdatedAt:    base.Add(time.Second),
		LastAccessed: base.Add(2 * time.Second),
		AccessCount:  42,
		ExpiresAt:    base.Add(5 * time.Minute),
	}

	return []map[string]*store.Entry{
		// Empty set
		{},

		// Single minimal entry
		{
			"greeting": {
				Key:       "greeting",
				Value:     store.NewStringValue("hello"),
				CreatedAt: base,
			},
		},

		// Mixed data types with metadata filled in
		{
			"name":     {Key: "name", Value: store.NewStringValue("smart store"), CreatedAt: base, UpdatedAt: base, LastAccessed: base},
			"pi":       {Key: "pi", Value: store.NewNumberValue(3.25), CreatedAt: base, AccessCount: 7},
			"tags":     {Key: "tags", Value: mustValue(t, "list", `["a","b","c"]`), CreatedAt: base},
			"session":  full,
			"empty":    {Key: "empty", Value: store.NewStringValue(""), CreatedAt: base},
			"unicode":  {Key: "unicode", Value: store.NewStringValue("größe 本"), CreatedAt: base},
			"negative": {Key: "negative", Value: store.NewNumberValue(-17), CreatedAt: base},
		},
	}
}

// requireEntriesEqual compares two entry sets field by field. Timestamps
// are compared as instants so that location differences do not matter.
func requireEntriesEqual(t *testing.T, want, got map[string]*store.Entry) {
	t.Helper()

	if len(want) != len(got) {
		t.Fatalf("Entry count mismatch: expected %d, got %d", len(want), len(got))
	}

	for key, w := range want {
		g, ok := got[key]
		if !ok {
			t.Errorf("Missing key %q after round trip", key)
			continue
		}

		if g.Key != w.Key {
			t.Errorf("Key %q: key field mismatch: expected %q, got %q", key, w.Key, g.Key)
		}
		if g.Value.Kind != w.Value.Kind {
			t.Errorf("Key %q: data type mismatch: expected %q, got %q", key, w.Value.Kind, g.Value.Kind)
		}
		if !bytes.Equal(g.Value.Raw, w.Value.Raw) {
			t.Errorf("Key %q: value mismatch: expected %q, got %q", key, w.Value.Raw, g.Value.Raw)
		}
		if g.TTL != w.TTL {
			t.Errorf("Key %q: ttl mismatch: expected %v, got %v", key, w.TTL, g.TTL)
		}
		if !g.CreatedAt.Equal(w.CreatedAt) {
			t.Errorf("Key %q: created_at mismatch: expected %v, got %v", key, w.CreatedAt, g.CreatedAt)
		}
		if !g.UpdatedAt.Equal(w.UpdatedAt) {
			t.Errorf("Key %q: updated_at mismatch: expected %v, got %v", key, w.UpdatedAt, g.UpdatedAt)
		}
		if !g.LastAccessed.Equal(w.LastAccessed) {
			t.Errorf("Key %q: last_accessed mismatch: expected %v, got %v", key, w.LastAccessed, g.LastAccessed)
		}
		if g.AccessCount != w.AccessCount {
			t.Errorf("Key %q: access_count mismatch: expected %d, got %d", key, w.AccessCount, g.AccessCount)
		}
		if g.ExpiresAt.IsZero() != w.ExpiresAt.IsZero() || !g.ExpiresAt.Equal(w.ExpiresAt) {
			t.Errorf("Key %q: expires_at mismatch: expected %v, got %v", key, w.ExpiresAt, g.ExpiresAt)
		}
	}
}

// TestCodecRoundTrip tests that entry sets survive encode and decode
func TestCodecRoundTrip(t *testing.T) {
	for name, factory := range testCodecs {
		t.Run(name, func(t *testing.T) {
			c := factory()

			for i, entries := range testEntrySets(t) {
				var buf bytes.Buffer
				if err := c.EncodeEntries(&buf, entries); err != nil {
					t.Errorf("Failed to encode entry set %d: %v", i, err)
					continue
				}

				result, err := c.DecodeEntries(&buf)
				if err != nil {
					t.Errorf("Failed to decode entry set %d: %v", i, err)
					continue
				}

				requireEntriesEqual(t, entries, result)
			}
		})
	}
}

// TestBinarySafeValues tests arbitrary byte values with the codecs that
// support them (the json codec is text only)
func TestBinarySafeValues(t *testing.T) {
	raw := []byte{0x00, 0xff, 0x13, 0x37, 0x80, 0x7f, 0x0a}
	entries := map[string]*store.Entry{
		"blob": {
			Key:       "blob",
			Value:     store.Value{Kind: store.TypeString, Raw: raw},
			CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		},
	}

	for _, name := range []string{"Binary", "GOB"} {
		t.Run(name, func(t *testing.T) {
			c := testCodecs[name]()

			var buf bytes.Buffer
			if err := c.EncodeEntries(&buf, entries); err != nil {
				t.Fatalf("Failed to encode: %v", err)
			}

			result, err := c.DecodeEntries(&buf)
			if err != nil {
				t.Fatalf("Failed to decode: %v", err)
			}

			requireEntriesEqual(t, entries, result)
		})
	}
}

// TestBinaryDeterministic tests that the binary codec produces identical
// bytes for identical entry sets
func TestBinaryDeterministic(t *testing.T) {
	c := NewBinaryCodec()
	entries := testEntrySets(t)[2]

	var first, second bytes.Buffer
	if err := c.EncodeEntries(&first, entries); err != nil {
		t.Fatalf("Failed to encode: %v", err)
	}
	if err := c.EncodeEntries(&second, entries); err != nil {
		t.Fatalf("Failed to encode: %v", err)
	}

	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Error("Encoding the same entries twice produced different bytes")
	}
}

// TestInvalidBinaryData tests how the binary codec handles corrupt data
func TestInvalidBinaryData(t *testing.T) {
	c := NewBinaryCodec()

	// Build one valid file to derive corrupt variants from
	var valid bytes.Buffer
	if err := c.EncodeEntries(&valid, testEntrySets(t)[2]); err != nil {
		t.Fatalf("Failed to encode: %v", err)
	}

	truncated := valid.Bytes()[:valid.Len()/2]

	flipped := append([]byte(nil), valid.Bytes()...)
	flipped[len(flipped)/2] ^= 0xff

	badVersion := append([]byte(nil), valid.Bytes()...)
	badVersion[len(binaryMagic)] = 99

	testCases := []struct {
		name string
		data []byte
	}{
		{name: "Empty data", data: []byte{}},
		{name: "Short header", data: binaryMagic[:4]},
		{name: "Wrong magic", data: []byte("NOTSKV\x00\x01\x00\x00\x00\x00\x00\x00\x00\x00")},
		{name: "Unsupported version", data: badVersion},
		{name: "Truncated file", data: truncated},
		{name: "Flipped byte", data: flipped},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.DecodeEntries(bytes.NewReader(tc.data))
			if err == nil {
				t.Fatal("Expected error but got none")
			}
			if code := store.CodeOf(err); code != store.RetCCorrupted {
				t.Errorf("Expected corrupted code, got %v (%v)", code, err)
			}
		})
	}
}

// TestDetect tests codec detection from file prefixes
func TestDetect(t *testing.T) {
	entries := testEntrySets(t)[1]

	for name, factory := range testCodecs {
		t.Run(name, func(t *testing.T) {
			c := factory()

			var buf bytes.Buffer
			if err := c.EncodeEntries(&buf, entries); err != nil {
				t.Fatalf("Failed to encode: %v", err)
			}

			prefix := buf.Bytes()
			if len(prefix) > DetectPrefixLen {
				prefix = prefix[:DetectPrefixLen]
			}

			detected, err := Detect(prefix)
			if err != nil {
				t.Fatalf("Failed to detect codec: %v", err)
			}
			if detected.Name() != c.Name() {
				t.Errorf("Expected codec %q, got %q", c.Name(), detected.Name())
			}
		})
	}

	t.Run("Garbage", func(t *testing.T) {
		_, err := Detect([]byte("certainly not a file we wrote"))
		if err == nil {
			t.Fatal("Expected error but got none")
		}
		if code := store.CodeOf(err); code != store.RetCCorrupted {
			t.Errorf("Expected corrupted code, got %v", code)
		}
	})
}

// TestForName tests codec lookup by configuration name
func TestForName(t *testing.T) {
	for _, name := range Names() {
		c, err := ForName(name)
		if err != nil {
			t.Errorf("Failed to look up codec %q: %v", name, err)
			continue
		}
		if c.Name() != name {
			t.Errorf("Expected codec %q, got %q", name, c.Name())
		}
	}

	if _, err := ForName("yaml"); err == nil {
		t.Error("Expected error for unknown codec name")
	}
}

// TestJSONFileShape tests that the json codec writes a plain object with
// per-entry metadata, keeping the file greppable
func TestJSONFileShape(t *testing.T) {
	c := NewJSONCodec()

	var buf bytes.Buffer
	if err := c.EncodeEntries(&buf, testEntrySets(t)[1]); err != nil {
		t.Fatalf("Failed to encode: %v", err)
	}

	var records map[string]map[string]any
	if err := json.Unmarshal(buf.Bytes(), &records); err != nil {
		t.Fatalf("File is not a plain json object: %v", err)
	}

	rec, ok := records["greeting"]
	if !ok {
		t.Fatal("Expected record for key 'greeting'")
	}
	for _, field := range []string{"key", "value", "data_type", "created_at", "access_count"} {
		if _, ok := rec[field]; !ok {
			t.Errorf("Record is missing field %q", field)
		}
	}
	if rec["value"] != "hello" {
		t.Errorf("Expected rendered value 'hello', got %v", rec["value"])
	}
}
