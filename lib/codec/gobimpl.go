package codec

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"io"

	"github.com/ValentinKolb/sKV/lib/store"
)

const (
	gobName    = "gob"
	gobVersion = 1
)

// gobMagic identifies the gob snapshot format
var gobMagic = []byte("SKVGOB\x00")

// NewGOBCodec creates a codec using Go's binary gob format
func NewGOBCodec() ICodec {
	return &gobCodecImpl{}
}

// gobCodecImpl implements the ICodec interface using gob encoding
type gobCodecImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see codec.ICodec)
// --------------------------------------------------------------------------

func (g gobCodecImpl) Name() string {
	return gobName
}

func (g gobCodecImpl) EncodeEntries(w io.Writer, entries map[string]*store.Entry) error {
	bw := bufio.NewWriterSize(w, writeBufferSize)

	// Write file header
	if _, err := bw.Write(gobMagic); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint8(gobVersion)); err != nil {
		return err
	}

	// Write entries
	enc := gob.NewEncoder(bw)
	if err := enc.Encode(entries); err != nil {
		return err
	}

	return bw.Flush()
}

func (g gobCodecImpl) DecodeEntries(r io.Reader) (map[string]*store.Entry, error) {
	br := bufio.NewReaderSize(r, writeBufferSize)

	// Read and verify magic number
	magic := make([]byte, len(gobMagic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, store.Errorf(store.RetCCorrupted, "reading magic number: %v", err)
	}
	if !bytes.Equal(magic, gobMagic) {
		return nil, store.NewError(store.RetCCorrupted, "invalid file format: magic number mismatch")
	}

	// Read and verify version
	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return nil, store.Errorf(store.RetCCorrupted, "reading version: %v", err)
	}
	if version != gobVersion {
		return nil, store.Errorf(store.RetCCorrupted, "unsupported version: %d (expected %d)", version, gobVersion)
	}

	// Read entries
	var entries map[string]*store.Entry
	dec := gob.NewDecoder(br)
	if err := dec.Decode(&entries); err != nil {
		return nil, store.Errorf(store.RetCCorrupted, "decoding entries: %v", err)
	}
	if entries == nil {
		entries = make(map[string]*store.Entry)
	}

	return entries, nil
}
