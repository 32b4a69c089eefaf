package recovery

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/ValentinKolb/sKV/lib/store"
)

func testRecords() []LogRecord {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	jsonValue, err := store.NewJSONValue([]byte(`{"role":"admin"}`))
	if err != nil {
		panic(err)
	}

	return []LogRecord{
		{
			ID:        "rec-1",
			Timestamp: base,
			Op:        OpPut,
			Key:       "session:1",
			Value:     store.NewStringValue("abc"),
			TTL:       time.Second,
		},
		{
			ID:        "rec-2",
			Timestamp: base.Add(time.Second),
			Op:        OpPut,
			Key:       "profile",
			Value:     jsonValue,
		},
		{
			ID:        "rec-3",
			Timestamp: base.Add(2 * time.Second),
			Op:        OpDelete,
			Key:       "session:1",
		},
		{
			ID:        "rec-4",
			Timestamp: base.Add(3 * time.Second),
			Op:        OpClear,
		},
		{
			ID:        "rec-5",
			Timestamp: base.Add(4 * time.Second),
			Op:        OpPut,
			Key:       "unicode-schlüssel",
			Value:     store.NewNumberValue(-2.5),
		},
	}
}

func TestLogRoundTrip(t *testing.T) {
	records := testRecords()

	var buf bytes.Buffer
	if err := encodeLog(&buf, records); err != nil {
		t.Fatalf("Failed to encode log: %v", err)
	}

	decoded, err := decodeLog(&buf)
	if err != nil {
		t.Fatalf("Failed to decode log: %v", err)
	}

	if len(decoded) != len(records) {
		t.Fatalf("Expected %d records, got %d", len(records), len(decoded))
	}

	for i, want := range records {
		got := decoded[i]
		if got.ID != want.ID {
			t.Errorf("Record %d: id mismatch: %s != %s", i, got.ID, want.ID)
		}
		if !got.Timestamp.Equal(want.Timestamp) {
			t.Errorf("Record %d: timestamp mismatch: %v != %v", i, got.Timestamp, want.Timestamp)
		}
		if got.Op != want.Op {
			t.Errorf("Record %d: operation mismatch: %v != %v", i, got.Op, want.Op)
		}
		if got.Key != want.Key {
			t.Errorf("Record %d: key mismatch: %s != %s", i, got.Key, want.Key)
		}
		if !got.Value.Equal(want.Value) {
			t.Errorf("Record %d: value mismatch", i)
		}
		if got.TTL != want.TTL {
			t.Errorf("Record %d: ttl mismatch: %v != %v", i, got.TTL, want.TTL)
		}
	}
}

func TestLogRoundTripEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := encodeLog(&buf, nil); err != nil {
		t.Fatalf("Failed to encode empty log: %v", err)
	}

	decoded, err := decodeLog(&buf)
	if err != nil {
		t.Fatalf("Failed to decode empty log: %v", err)
	}
	if len(decoded) != 0 {
		t.Errorf("Expected no records, got %d", len(decoded))
	}
}

func TestLogPreservesOrder(t *testing.T) {
	records := make([]LogRecord, 100)
	for i := range records {
		records[i] = LogRecord{
			ID:        fmt.Sprintf("rec-%d", i),
			Timestamp: time.Now(),
			Op:        OpPut,
			Key:       fmt.Sprintf("key-%d", i),
			Value:     store.NewStringValue(fmt.Sprintf("value-%d", i)),
		}
	}

	var buf bytes.Buffer
	if err := encodeLog(&buf, records); err != nil {
		t.Fatalf("Failed to encode log: %v", err)
	}

	decoded, err := decodeLog(&buf)
	if err != nil {
		t.Fatalf("Failed to decode log: %v", err)
	}

	if len(decoded) != len(records) {
		t.Fatalf("Expected %d records, got %d", len(records), len(decoded))
	}
	for i := range records {
		if decoded[i].Key != records[i].Key {
			t.Errorf("Record order broken at position %d: %s != %s", i, decoded[i].Key, records[i].Key)
		}
	}
}

func TestLogDetectsCorruption(t *testing.T) {
	var buf bytes.Buffer
	if err := encodeLog(&buf, testRecords()); err != nil {
		t.Fatalf("Failed to encode log: %v", err)
	}
	valid := buf.Bytes()

	// Wrong magic number
	wrongMagic := append([]byte{}, valid...)
	copy(wrongMagic, []byte("NOTAWAL"))

	// Unsupported version
	badVersion := append([]byte{}, valid...)
	badVersion[len(walMagic)] = 99

	// Truncated file
	truncated := valid[:len(valid)/2]

	// A flipped byte in the middle of the payload
	flipped := append([]byte{}, valid...)
	flipped[len(flipped)/2] ^= 0xff

	cases := map[string][]byte{
		"Empty":      {},
		"Garbage":    []byte("this is not a transaction log"),
		"WrongMagic": wrongMagic,
		"BadVersion": badVersion,
		"Truncated":  truncated,
		"Flipped":    flipped,
	}

	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := decodeLog(bytes.NewReader(data))
			if err == nil {
				t.Fatalf("Expected decode to fail")
			}
			if code := store.CodeOf(err); code != store.RetCCorrupted {
				t.Errorf("Expected corrupted error code, got %v", code)
			}
		})
	}
}
