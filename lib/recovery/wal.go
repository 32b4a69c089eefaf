package recovery

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"time"

	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/cespare/xxhash/v2"
)

const (
	walVersion = 1

	// walBufferSize is the buffer size for encoding and decoding
	walBufferSize = 1024 * 1024 // 1 MB

	// Sanity bounds applied while decoding untrusted files
	maxLogRecords = 1 << 24
	maxRecordID   = 128
	maxWALValue   = 1 << 30
)

// walMagic identifies the transaction log format
var walMagic = []byte("SKVWAL\x00")

// --------------------------------------------------------------------------
// Log encoding
// --------------------------------------------------------------------------

// encodeLog writes the ordered record list. The envelope mirrors the
// binary snapshot codec: magic, version, count, records, and a trailing
// xxhash checksum so torn log writes are detected on load.
func encodeLog(w io.Writer, records []LogRecord) error {
	bw := bufio.NewWriterSize(w, walBufferSize)

	// Everything before the trailing checksum is hashed
	h := xxhash.New()
	mw := io.MultiWriter(bw, h)

	// Write file header
	if _, err := mw.Write(walMagic); err != nil {
		return err
	}
	if err := binary.Write(mw, binary.LittleEndian, uint8(walVersion)); err != nil {
		return err
	}

	// Write total record count
	if err := binary.Write(mw, binary.LittleEndian, uint64(len(records))); err != nil {
		return err
	}

	// Write records in append order, the order is part of the contract
	for i := range records {
		if err := writeLogRecord(mw, &records[i]); err != nil {
			return err
		}
	}

	// Write trailing checksum (not part of the hashed payload)
	if err := binary.Write(bw, binary.LittleEndian, h.Sum64()); err != nil {
		return err
	}

	return bw.Flush()
}

// decodeLog reads an ordered record list written by encodeLog. All
// failures carry the corrupted error code, callers decide whether to
// treat a corrupt log as empty.
func decodeLog(r io.Reader) ([]LogRecord, error) {
	br := bufio.NewReaderSize(r, walBufferSize)

	// Hash everything up to the trailing checksum while reading
	h := xxhash.New()
	tr := io.TeeReader(br, h)

	// Read and verify magic number
	magic := make([]byte, len(walMagic))
	if _, err := io.ReadFull(tr, magic); err != nil {
		return nil, store.Errorf(store.RetCCorrupted, "reading magic number: %v", err)
	}
	if !bytes.Equal(magic, walMagic) {
		return nil, store.NewError(store.RetCCorrupted, "invalid log format: magic number mismatch")
	}

	// Read and verify version
	var version uint8
	if err := binary.Read(tr, binary.LittleEndian, &version); err != nil {
		return nil, store.Errorf(store.RetCCorrupted, "reading version: %v", err)
	}
	if version != walVersion {
		return nil, store.Errorf(store.RetCCorrupted, "unsupported log version: %d (expected %d)", version, walVersion)
	}

	// Read record count
	var count uint64
	if err := binary.Read(tr, binary.LittleEndian, &count); err != nil {
		return nil, store.Errorf(store.RetCCorrupted, "reading record count: %v", err)
	}
	if count > maxLogRecords {
		return nil, store.Errorf(store.RetCCorrupted, "implausible record count %d", count)
	}

	// Read records
	records := make([]LogRecord, 0, count)
	for i := uint64(0); i < count; i++ {
		rec, err := readLogRecord(tr)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
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

	return records, nil
}

// --------------------------------------------------------------------------
// Record encoding
// --------------------------------------------------------------------------

// writeLogRecord writes a single log record
func writeLogRecord(w io.Writer, rec *LogRecord) error {
	// Write record id
	if err := binary.Write(w, binary.LittleEndian, uint8(len(rec.ID))); err != nil {
		return err
	}
	if _, err := io.WriteString(w, rec.ID); err != nil {
		return err
	}

	// Write timestamp and operation kind
	if err := binary.Write(w, binary.LittleEndian, rec.Timestamp.UnixNano()); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint8(rec.Op)); err != nil {
		return err
	}

	// Write key
	if err := binary.Write(w, binary.LittleEndian, uint32(len(rec.Key))); err != nil {
		return err
	}
	if _, err := io.WriteString(w, rec.Key); err != nil {
		return err
	}

	// Write data type tag
	if err := binary.Write(w, binary.LittleEndian, uint8(len(rec.Value.Kind))); err != nil {
		return err
	}
	if _, err := io.WriteString(w, string(rec.Value.Kind)); err != nil {
		return err
	}

	// Write value bytes
	if err := binary.Write(w, binary.LittleEndian, uint32(len(rec.Value.Raw))); err != nil {
		return err
	}
	if _, err := w.Write(rec.Value.Raw); err != nil {
		return err
	}

	// Write ttl
	return binary.Write(w, binary.LittleEndian, int64(rec.TTL))
}

// readLogRecord reads a single log record
func readLogRecord(r io.Reader) (LogRecord, error) {
	var rec LogRecord

	// Read record id
	var idLen uint8
	if err := binary.Read(r, binary.LittleEndian, &idLen); err != nil {
		return rec, store.Errorf(store.RetCCorrupted, "reading record id length: %v", err)
	}
	if idLen > maxRecordID {
		return rec, store.Errorf(store.RetCCorrupted, "implausible record id length %d", idLen)
	}
	id := make([]byte, idLen)
	if _, err := io.ReadFull(r, id); err != nil {
		return rec, store.Errorf(store.RetCCorrupted, "reading record id: %v", err)
	}

	// Read timestamp and operation kind
	var nanos int64
	if err := binary.Read(r, binary.LittleEndian, &nanos); err != nil {
		return rec, store.Errorf(store.RetCCorrupted, "reading timestamp: %v", err)
	}
	var op uint8
	if err := binary.Read(r, binary.LittleEndian, &op); err != nil {
		return rec, store.Errorf(store.RetCCorrupted, "reading operation kind: %v", err)
	}
	if !OpKind(op).Valid() {
		return rec, store.Errorf(store.RetCCorrupted, "unknown operation kind %d", op)
	}

	// Read key
	var keyLen uint32
	if err := binary.Read(r, binary.LittleEndian, &keyLen); err != nil {
		return rec, store.Errorf(store.RetCCorrupted, "reading key length: %v", err)
	}
	if keyLen > store.MaxKeyLength {
		return rec, store.Errorf(store.RetCCorrupted, "implausible key length %d", keyLen)
	}
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return rec, store.Errorf(store.RetCCorrupted, "reading key: %v", err)
	}

	// Read data type tag
	var kindLen uint8
	if err := binary.Read(r, binary.LittleEndian, &kindLen); err != nil {
		return rec, store.Errorf(store.RetCCorrupted, "reading data type length: %v", err)
	}
	kind := make([]byte, kindLen)
	if _, err := io.ReadFull(r, kind); err != nil {
		return rec, store.Errorf(store.RetCCorrupted, "reading data type: %v", err)
	}

	// Read value bytes
	var valueLen uint32
	if err := binary.Read(r, binary.LittleEndian, &valueLen); err != nil {
		return rec, store.Errorf(store.RetCCorrupted, "reading value length: %v", err)
	}
	if valueLen > maxWALValue {
		return rec, store.Errorf(store.RetCCorrupted, "implausible value length %d", valueLen)
	}
	value := make([]byte, valueLen)
	if _, err := io.ReadFull(r, value); err != nil {
		return rec, store.Errorf(store.RetCCorrupted, "reading value: %v", err)
	}

	// Read ttl
	var ttl int64
	if err := binary.Read(r, binary.LittleEndian, &ttl); err != nil {
		return rec, store.Errorf(store.RetCCorrupted, "reading ttl: %v", err)
	}

	rec.ID = string(id)
	rec.Timestamp = time.Unix(0, nanos).UTC()
	rec.Op = OpKind(op)
	rec.Key = string(key)
	rec.Value = store.Value{Kind: store.DataType(kind), Raw: value}
	rec.TTL = time.Duration(ttl)
	return rec, nil
}
