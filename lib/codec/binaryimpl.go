package codec

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"sort"
	"time"

	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/cespare/xxhash/v2"
)

const (
	binaryName    = "binary"
	binaryVersion = 1

	// writeBufferSize is the buffer size for encoding and decoding
	writeBufferSize = 1024 * 1024 // 1 MB

	// Sanity bounds applied while decoding untrusted files
	maxEntryCount = 1 << 24
	maxValueBytes = 1 << 30
)

// binaryMagic identifies the binary snapshot format
var binaryMagic = []byte("SKVBIN\x00")

// NewBinaryCodec creates a codec using a custom binary format optimized
// for speed and compactness. The stream carries a trailing xxhash
// checksum so that truncated or bit-flipped files are detected on load.
func NewBinaryCodec() ICodec {
	return &binaryCodecImpl{}
}

// binaryCodecImpl implements ICodec using a custom binary format
type binaryCodecImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see codec.ICodec)
// --------------------------------------------------------------------------

func (c binaryCodecImpl) Name() string {
	return binaryName
}

func (c binaryCodecImpl) EncodeEntries(w io.Writer, entries map[string]*store.Entry) error {
	// Use a buffered writer for better performance
	bw := bufio.NewWriterSize(w, writeBufferSize)

	// Everything before the trailing checksum is hashed
	h := xxhash.New()
	mw := io.MultiWriter(bw, h)

	// Write file header
	if _, err := mw.Write(binaryMagic); err != nil {
		return err
	}
	if err := binary.Write(mw, binary.LittleEndian, uint8(binaryVersion)); err != nil {
		return err
	}

	// Write total entry count
	if err := binary.Write(mw, binary.LittleEndian, uint64(len(entries))); err != nil {
		return err
	}

	// Sort keys so that identical entry sets encode to identical bytes
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	// Write entry records
	for _, key := range keys {
		if err := writeBinaryEntry(mw, entries[key]); err != nil {
			return err
		}
	}

	// Write trailing checksum (not part of the hashed payload)
	if err := binary.Write(bw, binary.LittleEndian, h.Sum64()); err != nil {
		return err
	}

	// Flush buffer to ensure all data is written
	return bw.Flush()
}

func (c binaryCodecImpl) DecodeEntries(r io.Reader) (map[string]*store.Entry, error) {
	// Use a buffered reader for better performance
	br := bufio.NewReaderSize(r, writeBufferSize)

	// Hash everything up to the trailing checksum while reading
	h := xxhash.New()
	tr := io.TeeReader(br, h)

	// Read and verify magic number
	magic := make([]byte, len(binaryMagic))
	if _, err := io.ReadFull(tr, magic); err != nil {
		return nil, store.Errorf(store.RetCCorrupted, "reading magic number: %v", err)
	}
	if !bytes.Equal(magic, binaryMagic) {
		return nil, store.NewError(store.RetCCorrupted, "invalid file format: magic number mismatch")
	}

	// Read and verify version
	var version uint8
	if err := binary.Read(tr, binary.LittleEndian, &version); err != nil {
		return nil, store.Errorf(store.RetCCorrupted, "reading version: %v", err)
	}
	if version != binaryVersion {
		return nil, store.Errorf(store.RetCCorrupted, "unsupported version: %d (expected %d)", version, binaryVersion)
	}

	// Read entry count
	var count uint64
	if err := binary.Read(tr, binary.LittleEndian, &count); err != nil {
		return nil, store.Errorf(store.RetCCorrupted, "reading entry count: %v", err)
	}
	if count > maxEntryCount {
		return nil, store.Errorf(store.RetCCorrupted, "implausible entry count %d", count)
	}

	// Read entry records
	entries := make(map[string]*store.Entry, count)
	for i := uint64(0); i < count; i++ {
		entry, err := readBinaryEntry(tr)
		if err != nil {
			return nil, err
		}
		entries[entry.Key] = entry
	}

	// The checksum covers everything consumed so far
	want := h.Sum64()

	// Read and verify trailing checksum (read from br, it is not hashed)
	var got uint64
	if err := binary.Read(br, binary.LittleEndian, &got); err != nil {
		return nil, store.Errorf(store.RetCCorrupted, "reading checksum: %v", err)
	}
	if got != want {
		return nil, store.NewError(store.RetCCorrupted, "checksum mismatch")
	}

	return entries, nil
}

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

// writeBinaryEntry writes a single entry record
func writeBinaryEntry(w io.Writer, e *store.Entry) error {
	// Write key
	if err := binary.Write(w, binary.LittleEndian, uint32(len(e.Key))); err != nil {
		return err
	}
	if _, err := io.WriteString(w, e.Key); err != nil {
		return err
	}

	// Write data type tag
	if err := binary.Write(w, binary.LittleEndian, uint8(len(e.Value.Kind))); err != nil {
		return err
	}
	if _, err := io.WriteString(w, string(e.Value.Kind)); err != nil {
		return err
	}

	// Write value bytes
	if err := binary.Write(w, binary.LittleEndian, uint32(len(e.Value.Raw))); err != nil {
		return err
	}
	if _, err := w.Write(e.Value.Raw); err != nil {
		return err
	}

	// Write TTL and timestamps
	for _, v := range []int64{
		int64(e.TTL),
		timeToNanos(e.CreatedAt),
		timeToNanos(e.UpdatedAt),
		timeToNanos(e.LastAccessed),
	} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}

	// Write access count
	if err := binary.Write(w, binary.LittleEndian, e.AccessCount); err != nil {
		return err
	}

	// Write expiry timestamp
	return binary.Write(w, binary.LittleEndian, timeToNanos(e.ExpiresAt))
}

// readBinaryEntry reads a single entry record
func readBinaryEntry(r io.Reader) (*store.Entry, error) {
	// Read key
	var keyLen uint32
	if err := binary.Read(r, binary.LittleEndian, &keyLen); err != nil {
		return nil, store.Errorf(store.RetCCorrupted, "reading key length: %v", err)
	}
	if keyLen > store.MaxKeyLength {
		return nil, store.Errorf(store.RetCCorrupted, "implausible key length %d", keyLen)
	}
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, store.Errorf(store.RetCCorrupted, "reading key: %v", err)
	}

	// Read data type tag
	var kindLen uint8
	if err := binary.Read(r, binary.LittleEndian, &kindLen); err != nil {
		return nil, store.Errorf(store.RetCCorrupted, "reading data type length: %v", err)
	}
	kind := make([]byte, kindLen)
	if _, err := io.ReadFull(r, kind); err != nil {
		return nil, store.Errorf(store.RetCCorrupted, "reading data type: %v", err)
	}

	// Read value bytes
	var valueLen uint32
	if err := binary.Read(r, binary.LittleEndian, &valueLen); err != nil {
		return nil, store.Errorf(store.RetCCorrupted, "reading value length: %v", err)
	}
	if valueLen > maxValueBytes {
		return nil, store.Errorf(store.RetCCorrupted, "implausible value length %d", valueLen)
	}
	value := make([]byte, valueLen)
	if _, err := io.ReadFull(r, value); err != nil {
		return nil, store.Errorf(store.RetCCorrupted, "reading value: %v", err)
	}

	// Read TTL and timestamps
	var ttl, createdAt, updatedAt, lastAccessed int64
	for _, dst := range []*int64{&ttl, &createdAt, &updatedAt, &lastAccessed} {
		if err := binary.Read(r, binary.LittleEndian, dst); err != nil {
			return nil, store.Errorf(store.RetCCorrupted, "reading timestamps: %v", err)
		}
	}

	// Read access count
	var accessCount uint64
	if err := binary.Read(r, binary.LittleEndian, &accessCount); err != nil {
		return nil, store.Errorf(store.RetCCorrupted, "reading access count: %v", err)
	}

	// Read expiry timestamp
	var expiresAt int64
	if err := binary.Read(r, binary.LittleEndian, &expiresAt); err != nil {
		return nil, store.Errorf(store.RetCCorrupted, "reading expiry: %v", err)
	}

	return &store.Entry{
		Key:          string(key),
		Value:        store.Value{Kind: store.DataType(kind), Raw: value},
		TTL:          time.Duration(ttl),
		CreatedAt:    nanosToTime(createdAt),
		UpdatedAt:    nanosToTime(updatedAt),
		LastAccessed: nanosToTime(lastAccessed),
		AccessCount:  accessCount,
		ExpiresAt:    nanosToTime(expiresAt),
	}, nil
}

// timeToNanos encodes a timestamp, mapping the zero time to 0
func timeToNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

// nanosToTime decodes a timestamp, mapping 0 back to the zero time
func nanosToTime(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
