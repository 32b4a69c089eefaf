package teststore

import (
	"fmt"
	"testing"
	"time"

	"github.com/ValentinKolb/sKV/lib/store"
)

// RunStoreBenchmarks runs a benchmark suite against a store.IStore
// implementation. Every mutation includes the full persistence cost of the
// implementation, so the numbers reflect durable throughput and not just
// in-memory bookkeeping.
func RunStoreBenchmarks(b *testing.B, name string, factory StoreFactory) {
	b.Run(name, func(b *testing.B) {

		b.Run("Put", func(b *testing.B) {
			s := factory(b)
			b.Cleanup(func() { _ = s.Close() })

			value := store.NewStringValue("benchmark-value")

			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				counter := 0
				for pb.Next() {
					key := fmt.Sprintf("bench-key-%d", counter)
					if err := s.Put(key, value, 0); err != nil {
						b.Fatalf("Put failed: %v", err)
					}
					counter++
				}
			})
		})

		b.Run("PutExisting", func(b *testing.B) {
			s := factory(b)
			b.Cleanup(func() { _ = s.Close() })

			value := store.NewStringValue("benchmark-value")
			if err := s.Put("existing-key", value, 0); err != nil {
				b.Fatalf("Setup failed: %v", err)
			}

			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				for pb.Next() {
					if err := s.Put("existing-key", value, 0); err != nil {
						b.Fatalf("Put failed: %v", err)
					}
				}
			})
		})

		b.Run("PutWithExpiry", func(b *testing.B) {
			s := factory(b)
			b.Cleanup(func() { _ = s.Close() })

			value := store.NewStringValue("benchmark-value")

			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				counter := 0
				for pb.Next() {
					key := fmt.Sprintf("bench-expiry-key-%d", counter)
					if err := s.Put(key, value, time.Hour); err != nil {
						b.Fatalf("Put failed: %v", err)
					}
					counter++
				}
			})
		})

		b.Run("Get", func(b *testing.B) {
			s := factory(b)
			b.Cleanup(func() { _ = s.Close() })

			numKeys := 1000
			value := store.NewStringValue("benchmark-value")
			for i := 0; i < numKeys; i++ {
				if err := s.Put(fmt.Sprintf("bench-key-%d", i), value, 0); err != nil {
					b.Fatalf("Setup failed: %v", err)
				}
			}

			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				counter := 0
				for pb.Next() {
					key := fmt.Sprintf("bench-key-%d", counter%numKeys)
					if _, _, err := s.Get(key); err != nil {
						b.Fatalf("Get failed: %v", err)
					}
					counter++
				}
			})
		})

		b.Run("Exists", func(b *testing.B) {
			s := factory(b)
			b.Cleanup(func() { _ = s.Close() })

			if err := s.Put("bench-key", store.NewStringValue("benchmark-value"), 0); err != nil {
				b.Fatalf("Setup failed: %v", err)
			}

			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				counter := 0
				for pb.Next() {
					var key string
					if counter%2 == 0 {
						key = "bench-key"
					} else {
						key = "missing-key"
					}
					if _, err := s.Exists(key); err != nil {
						b.Fatalf("Exists failed: %v", err)
					}
					counter++
				}
			})
		})

		b.Run("Delete", func(b *testing.B) {
			s := factory(b)
			b.Cleanup(func() { _ = s.Close() })

			value := store.NewStringValue("benchmark-value")
			for i := 0; i < b.N; i++ {
				if err := s.Put(fmt.Sprintf("bench-key-%d", i), value, 0); err != nil {
					b.Fatalf("Setup failed: %v", err)
				}
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := s.Delete(fmt.Sprintf("bench-key-%d", i)); err != nil {
					b.Fatalf("Delete failed: %v", err)
				}
			}
		})

		b.Run("MixedUsage", func(b *testing.B) {
			s := factory(b)
			b.Cleanup(func() { _ = s.Close() })

			value := store.NewStringValue("benchmark-value")

			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				counter := 0
				for pb.Next() {
					key := fmt.Sprintf("bench-key-%d", counter%100)

					switch counter % 10 {
					case 0, 1, 2:
						if err := s.Put(key, value, 0); err != nil {
							b.Fatalf("Put failed: %v", err)
						}
					case 9:
						if _, err := s.Delete(key); err != nil {
							b.Fatalf("Delete failed: %v", err)
						}
					default:
						if _, _, err := s.Get(key); err != nil {
							b.Fatalf("Get failed: %v", err)
						}
					}
					counter++
				}
			})
		})
	})
}
