package codec

import (
	"bytes"

	"github.com/ValentinKolb/sKV/lib/store"
)

// DetectPrefixLen is the number of leading bytes Detect needs to
// identify the codec that wrote a file.
const DetectPrefixLen = 16

// ForName returns the codec with the given name ("binary", "gob" or
// "json"). It returns an error for unknown names.
func ForName(name string) (ICodec, error) {
	switch name {
	case binaryName:
		return NewBinaryCodec(), nil
	case gobName:
		return NewGOBCodec(), nil
	case jsonName:
		return NewJSONCodec(), nil
	default:
		return nil, store.Errorf(store.RetCInvalidKey, "unknown codec %q (supported: %v)", name, Names())
	}
}

// Names returns the names of all supported codecs.
func Names() []string {
	return []string{binaryName, gobName, jsonName}
}

// Detect identifies the codec that wrote a file from its first bytes.
// Pass at least DetectPrefixLen bytes (fewer is fine for short files).
// Binary and gob files are recognized by their magic numbers, json
// files by their leading object brace. Unrecognized data returns an
// error carrying the corrupted code.
func Detect(prefix []byte) (ICodec, error) {
	switch {
	case bytes.HasPrefix(prefix, binaryMagic):
		return NewBinaryCodec(), nil
	case bytes.HasPrefix(prefix, gobMagic):
		return NewGOBCodec(), nil
	}

	if trimmed := bytes.TrimLeft(prefix, " \t\r\n"); len(trimmed) > 0 && trimmed[0] == '{' {
		return NewJSONCodec(), nil
	}

	return nil, store.NewError(store.RetCCorrupted, "unrecognized file format")
}
