package codec

import (
	"io"

	"github.com/ValentinKolb/sKV/lib/store"
)

// ICodec is the interface for all snapshot codecs. A codec encodes the
// full entry set of a store into a durable byte stream and decodes it
// back. The same codecs serve the store file and recovery checkpoints.
type ICodec interface {
	// Name returns the short identifier of the codec (e.g. "json").
	// The name is stable and usable in configuration.
	Name() string

	// EncodeEntries writes all entries to w.
	// It returns an error if any.
	EncodeEntries(w io.Writer, entries map[string]*store.Entry) error

	// DecodeEntries reads an entry set from r.
	// Decode failures of any kind (truncation, checksum mismatch,
	// malformed data) return an error carrying the corrupted code.
	DecodeEntries(r io.Reader) (entries map[string]*store.Entry, err error)
}
