package codec

import (
	"bufio"
	"encoding/json"
	"io"
	"time"

	"github.com/ValentinKolb/sKV/lib/store"
)

const jsonName = "json"

// NewJSONCodec creates a codec using human-readable json encoding. The
// resulting file is a plain json object mapping keys to entry records,
// which makes it inspectable and editable with standard tooling.
func NewJSONCodec() ICodec {
	return &jsonCodecImpl{}
}

// jsonCodecImpl implements the ICodec interface using json encoding
type jsonCodecImpl struct {
}

// jsonEntry is the on-disk record for a single entry. The value is
// rendered according to its data type, so a string value appears as a
// json string and a list value as a json array.
type jsonEntry struct {
	Key          string          `json:"key"`
	Value        json.RawMessage `json:"value"`
	TTL          float64         `json:"ttl,omitempty"` // seconds
	DataType     store.DataType  `json:"data_type"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	LastAccessed time.Time       `json:"last_accessed"`
	AccessCount  uint64          `json:"access_count"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty"`
}

// --------------------------------------------------------------------------
// Interface Methods (docu see codec.ICodec)
// --------------------------------------------------------------------------

func (j jsonCodecImpl) Name() string {
	return jsonName
}

func (j jsonCodecImpl) EncodeEntries(w io.Writer, entries map[string]*store.Entry) error {
	records := make(map[string]jsonEntry, len(entries))

	for key, e := range entries {
		value, err := json.Marshal(e.Value)
		if err != nil {
			return err
		}

		rec := jsonEntry{
			Key:          key,
			Value:        value,
			TTL:          e.TTL.Seconds(),
			DataType:     e.Value.Kind,
			CreatedAt:    e.CreatedAt,
			UpdatedAt:    e.UpdatedAt,
			LastAccessed: e.LastAccessed,
			AccessCount:  e.AccessCount,
		}
		if !e.ExpiresAt.IsZero() {
			expiresAt := e.ExpiresAt
			rec.ExpiresAt = &expiresAt
		}

		records[key] = rec
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}

	bw := bufio.NewWriterSize(w, writeBufferSize)
	if _, err := bw.Write(data); err != nil {
		return err
	}
	return bw.Flush()
}

func (j jsonCodecImpl) DecodeEntries(r io.Reader) (map[string]*store.Entry, error) {
	var records map[string]jsonEntry

	dec := json.NewDecoder(bufio.NewReaderSize(r, writeBufferSize))
	if err := dec.Decode(&records); err != nil {
		return nil, store.Errorf(store.RetCCorrupted, "decoding entries: %v", err)
	}

	entries := make(map[string]*store.Entry, len(records))
	for key, rec := range records {
		// Zero data type means a zero value, everything else is parsed
		// according to its tag
		var value store.Value
		if rec.DataType != "" {
			var err error
			value, err = store.FromJSON(string(rec.DataType), rec.Value)
			if err != nil {
				return nil, store.Errorf(store.RetCCorrupted, "decoding value for key %q: %v", key, err)
			}
		}

		entry := &store.Entry{
			Key:          key,
			Value:        value,
			TTL:          time.Duration(rec.TTL * float64(time.Second)),
			CreatedAt:    rec.CreatedAt,
			UpdatedAt:    rec.UpdatedAt,
			LastAccessed: rec.LastAccessed,
			AccessCount:  rec.AccessCount,
		}
		if rec.ExpiresAt != nil {
			entry.ExpiresAt = *rec.ExpiresAt
		}

		entries[key] = entry
	}

	return entries, nil
}
