package fstore

import (
	"testing"

	"github.com/ValentinKolb/sKV/lib/codec"
	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/lib/store/teststore"
)

func jsonFactory(t testing.TB) store.IStore {
	s, err := New(DefaultOptions(t.TempDir()))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return s
}

func binaryFactory(t testing.TB) store.IStore {
	opts := DefaultOptions(t.TempDir())
	opts.Codec = codec.NewBinaryCodec()
	s, err := New(opts)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return s
}

func Test(t *testing.T) {
	teststore.RunStoreTests(t, "FStore(json)", jsonFactory)
	teststore.RunStoreTests(t, "FStore(binary)", binaryFactory)
}

func Benchmark(b *testing.B) {
	teststore.RunStoreBenchmarks(b, "FStore(json)", jsonFactory)
	teststore.RunStoreBenchmarks(b, "FStore(binary)", binaryFactory)
}
