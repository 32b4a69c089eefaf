package teststore

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/sKV/lib/store"
)

// StoreFactory is a function that creates a fresh store instance for one
// test. Each call must return an isolated store (own data directory).
type StoreFactory func(t testing.TB) store.IStore

// RunStoreTests runs a comprehensive test suite against a store.IStore
// implementation.
func RunStoreTests(t *testing.T, name string, factory StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Put&Get", func(t *testing.T) {
			testPutGet(t, factory(t))
		})

		t.Run("DataTypes", func(t *testing.T) {
			testDataTypes(t, factory(t))
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory(t))
		})

		t.Run("Exists", func(t *testing.T) {
			testExists(t, factory(t))
		})

		t.Run("KeyExpiry", func(t *testing.T) {
			testKeyExpiry(t, factory(t))
		})

		t.Run("AccessMetadata", func(t *testing.T) {
			testAccessMetadata(t, factory(t))
		})

		t.Run("KeyValidation", func(t *testing.T) {
			testKeyValidation(t, factory(t))
		})

		t.Run("Keys", func(t *testing.T) {
			testKeys(t, factory(t))
		})

		t.Run("Entries", func(t *testing.T) {
			testEntries(t, factory(t))
		})

		t.Run("ClearAll", func(t *testing.T) {
			testClearAll(t, factory(t))
		})

		t.Run("Stats", func(t *testing.T) {
			testStats(t, factory(t))
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory(t))
		})

		t.Run("ManyKeys", func(t *testing.T) {
			testManyKeys(t, factory(t))
		})

		t.Run("ConcurrentUsage", func(t *testing.T) {
			testConcurrentUsage(t, factory(t))
		})
	})
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testPutGet(t *testing.T, s store.IStore) {
	defer s.Close()

	testKey := "test-key"
	value1 := store.NewStringValue("test-value1")
	value2 := store.NewStringValue("test-value2")

	if err := s.Put(testKey, value1, 0); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}

	result, loaded, err := s.Get(testKey)
	if err != nil {
		t.Fatalf("Unexpected error during Get: %v", err)
	}
	if !loaded {
		t.Errorf("Expected key %s to exist after Put", testKey)
	}
	if result.Text() != "test-value1" {
		t.Errorf("Expected value test-value1, got %s", result.Text())
	}

	// Put on the same key is a full replace
	if err := s.Put(testKey, value2, 0); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}

	result, loaded, _ = s.Get(testKey)
	if !loaded {
		t.Errorf("Expected key %s to exist after Put", testKey)
	}
	if result.Text() != "test-value2" {
		t.Errorf("Expected value test-value2, got %s", result.Text())
	}

	_, loaded, err = s.Get("nonexistent-key")
	if err != nil {
		t.Fatalf("Unexpected error during Get: %v", err)
	}
	if loaded {
		t.Errorf("Expected nonexistent key to return loaded=false")
	}

	// Get must return a copy, not a reference to the stored value
	retrieved, _, _ := s.Get(testKey)
	if len(retrieved.Raw) > 0 {
		retrieved.Raw[0] = 'X'
	}
	original, _, _ := s.Get(testKey)
	if original.Text() != "test-value2" {
		t.Errorf("Mutating a returned value must not affect the store, got %s", original.Text())
	}
}

func testDataTypes(t *testing.T, s store.IStore) {
	defer s.Close()

	values := map[string]store.Value{
		"t-string": store.NewStringValue("plain text"),
		"t-number": store.NewNumberValue(13.25),
	}

	jsonValue, err := store.NewJSONValue([]byte(`{"a":1,"b":[true,null]}`))
	if err != nil {
		t.Fatalf("Unexpected error building json value: %v", err)
	}
	values["t-json"] = jsonValue

	listValue, err := store.NewListValue([]byte(`[1,"two",3]`))
	if err != nil {
		t.Fatalf("Unexpected error building list value: %v", err)
	}
	values["t-list"] = listValue

	for key, value := range values {
		if err := s.Put(key, value, 0); err != nil {
			t.Fatalf("Unexpected error during Put of %s: %v", key, err)
		}
	}

	for key, want := range values {
		got, loaded, err := s.Get(key)
		if err != nil {
			t.Fatalf("Unexpected error during Get of %s: %v", key, err)
		}
		if !loaded {
			t.Errorf("Key %s not found", key)
			continue
		}
		if got.Kind != want.Kind {
			t.Errorf("Key %s: expected data type %s, got %s", key, want.Kind, got.Kind)
		}
		if !got.Equal(want) {
			t.Errorf("Key %s: value mismatch after round trip", key)
		}
	}
}

func testDelete(t *testing.T, s store.IStore) {
	defer s.Close()

	testKey := "delete-test-key"

	if err := s.Put(testKey, store.NewStringValue("delete-test-value"), 0); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}

	deleted, err := s.Delete(testKey)
	if err != nil {
		t.Fatalf("Unexpected error during Delete: %v", err)
	}
	if !deleted {
		t.Errorf("Expected Delete to report true for a live key")
	}

	_, loaded, _ := s.Get(testKey)
	if loaded {
		t.Errorf("Expected key %s to not exist after Delete", testKey)
	}

	// Deleting again reports false
	deleted, err = s.Delete(testKey)
	if err != nil {
		t.Fatalf("Unexpected error during second Delete: %v", err)
	}
	if deleted {
		t.Errorf("Expected Delete to report false for an absent key")
	}

	deleted, err = s.Delete("nonexistent-key")
	if err != nil {
		t.Fatalf("Unexpected error during Delete: %v", err)
	}
	if deleted {
		t.Errorf("Expected Delete to report false for a nonexistent key")
	}
}

func testExists(t *testing.T, s store.IStore) {
	defer s.Close()

	testKey := "exists-test-key"

	loaded, err := s.Exists(testKey)
	if err != nil {
		t.Fatalf("Unexpected error during Exists: %v", err)
	}
	if loaded {
		t.Errorf("Expected Exists to return false for nonexistent key")
	}

	if err := s.Put(testKey, store.NewStringValue("exists-test-value"), 0); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}

	loaded, err = s.Exists(testKey)
	if err != nil {
		t.Fatalf("Unexpected error during Exists: %v", err)
	}
	if !loaded {
		t.Errorf("Expected Exists to return true after Put")
	}

	// Exists must not count as an access
	entry, _, err := s.GetEntry(testKey)
	if err != nil {
		t.Fatalf("Unexpected error during GetEntry: %v", err)
	}
	if entry.AccessCount != 0 {
		t.Errorf("Exists must not bump the access count, got %d", entry.AccessCount)
	}
}

func testKeyExpiry(t *testing.T, s store.IStore) {
	defer s.Close()

	expiringKey := "expiring-key"
	stableKey := "stable-key"

	if err := s.Put(expiringKey, store.NewStringValue("expiring-value"), 200*time.Millisecond); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}
	if err := s.Put(stableKey, store.NewStringValue("stable-value"), 0); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}

	// Fresh entry is visible
	result, loaded, _ := s.Get(expiringKey)
	if !loaded {
		t.Errorf("Key should exist right after Put")
	}
	if result.Text() != "expiring-value" {
		t.Errorf("Expected value expiring-value, got %s", result.Text())
	}

	entry, _, _ := s.GetEntry(expiringKey)
	if entry == nil || entry.ExpiresAt.IsZero() {
		t.Fatalf("Entry with ttl must carry an expiry timestamp")
	}
	if entry.TTL != 200*time.Millisecond {
		t.Errorf("Expected ttl 200ms, got %v", entry.TTL)
	}

	time.Sleep(350 * time.Millisecond)

	// Expired entry is logically absent on every read path, regardless
	// of whether the background sweep has run
	if _, loaded, _ := s.Get(expiringKey); loaded {
		t.Errorf("Key should have expired (get)")
	}
	if loaded, _ := s.Exists(expiringKey); loaded {
		t.Errorf("Key should have expired (exists)")
	}
	if _, loaded, _ := s.GetEntry(expiringKey); loaded {
		t.Errorf("Key should have expired (get_entry)")
	}

	// Entry without ttl never expires
	if _, loaded, _ := s.Get(stableKey); !loaded {
		t.Errorf("Key without ttl should never expire")
	}
	entry, _, _ = s.GetEntry(stableKey)
	if entry == nil || !entry.ExpiresAt.IsZero() {
		t.Errorf("Entry without ttl must not carry an expiry timestamp")
	}
}

func testAccessMetadata(t *testing.T, s store.IStore) {
	defer s.Close()

	testKey := "access-test-key"

	if err := s.Put(testKey, store.NewStringValue("v1"), 0); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, loaded, _ := s.Get(testKey); !loaded {
			t.Fatalf("Key disappeared during access test")
		}
	}

	entry, loaded, err := s.GetEntry(testKey)
	if err != nil || !loaded {
		t.Fatalf("Unexpected GetEntry result: loaded=%v err=%v", loaded, err)
	}
	if entry.AccessCount != 3 {
		t.Errorf("Expected access count 3, got %d", entry.AccessCount)
	}
	if entry.LastAccessed.Before(entry.CreatedAt) {
		t.Errorf("Last access must not precede creation")
	}

	// GetEntry is a peek and must not bump the counter
	again, _, _ := s.GetEntry(testKey)
	if again.AccessCount != 3 {
		t.Errorf("GetEntry must not bump the access count, got %d", again.AccessCount)
	}

	// A new Put fully replaces the entry, counters start over
	if err := s.Put(testKey, store.NewStringValue("v2"), 0); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}
	entry, _, _ = s.GetEntry(testKey)
	if entry.AccessCount != 0 {
		t.Errorf("Put must reset the access count, got %d", entry.AccessCount)
	}
}

func testKeyValidation(t *testing.T, s store.IStore) {
	defer s.Close()

	invalidKeys := []string{
		"",
		strings.Repeat("a", store.MaxKeyLength+1),
		"path/separator",
		"back\\slash",
		"control\x01char",
		"del\x7fchar",
		"new\nline",
	}

	for _, key := range invalidKeys {
		err := s.Put(key, store.NewStringValue("value"), 0)
		if err == nil {
			t.Errorf("Expected Put to reject key %q", key)
			continue
		}
		if code := store.CodeOf(err); code != store.RetCInvalidKey {
			t.Errorf("Expected invalid-key code for %q, got %v", key, code)
		}

		if _, _, err := s.Get(key); err == nil {
			t.Errorf("Expected Get to reject key %q", key)
		}
		if _, err := s.Delete(key); err == nil {
			t.Errorf("Expected Delete to reject key %q", key)
		}
		if _, err := s.Exists(key); err == nil {
			t.Errorf("Expected Exists to reject key %q", key)
		}
	}

	// Boundary cases that must be accepted
	validKeys := []string{
		strings.Repeat("a", store.MaxKeyLength),
		"session:1",
		"user profile 42",
		"unicode-schlüssel",
	}
	for _, key := range validKeys {
		if err := s.Put(key, store.NewStringValue("value"), 0); err != nil {
			t.Errorf("Expected Put to accept key %q, got: %v", key, err)
		}
	}

	// Negative ttl is rejected
	if err := s.Put("ttl-key", store.NewStringValue("value"), -time.Second); err == nil {
		t.Errorf("Expected Put to reject a negative ttl")
	}
}

func testKeys(t *testing.T, s store.IStore) {
	defer s.Close()

	for _, key := range []string{"zebra", "alpha", "mango"} {
		if err := s.Put(key, store.NewStringValue(key), 0); err != nil {
			t.Fatalf("Unexpected error during Put: %v", err)
		}
	}
	if err := s.Put("short-lived", store.NewStringValue("x"), 100*time.Millisecond); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}

	time.Sleep(200 * time.Millisecond)

	keys, err := s.Keys()
	if err != nil {
		t.Fatalf("Unexpected error during Keys: %v", err)
	}

	want := []string{"alpha", "mango", "zebra"}
	if len(keys) != len(want) {
		t.Fatalf("Expected %d keys, got %d (%v)", len(want), len(keys), keys)
	}
	for i, key := range want {
		if keys[i] != key {
			t.Errorf("Expected keys sorted, position %d: expected %s, got %s", i, key, keys[i])
		}
	}
}

func testEntries(t *testing.T, s store.IStore) {
	defer s.Close()

	if err := s.Put("live", store.NewStringValue("live-value"), 0); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}
	if err := s.Put("dying", store.NewStringValue("dying-value"), 100*time.Millisecond); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}

	time.Sleep(200 * time.Millisecond)

	entries, err := s.Entries()
	if err != nil {
		t.Fatalf("Unexpected error during Entries: %v", err)
	}

	if _, ok := entries["dying"]; ok {
		t.Errorf("Expired entries must not appear in Entries")
	}

	entry, ok := entries["live"]
	if !ok {
		t.Fatalf("Expected entry for key 'live'")
	}

	// The returned map is a detached snapshot
	entry.Value = store.NewStringValue("mutated")
	entry.AccessCount = 99

	fresh, _, _ := s.GetEntry("live")
	if fresh.Value.Text() != "live-value" || fresh.AccessCount != 0 {
		t.Errorf("Mutating an Entries snapshot must not affect the store")
	}
}

func testClearAll(t *testing.T, s store.IStore) {
	defer s.Close()

	for i := 0; i < 5; i++ {
		if err := s.Put(fmt.Sprintf("clear-key-%d", i), store.NewStringValue("v"), 0); err != nil {
			t.Fatalf("Unexpected error during Put: %v", err)
		}
	}
	if err := s.Put("clear-expired", store.NewStringValue("v"), 50*time.Millisecond); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	// Only live entries count as removed
	count, err := s.ClearAll()
	if err != nil {
		t.Fatalf("Unexpected error during ClearAll: %v", err)
	}
	if count != 5 {
		t.Errorf("Expected 5 removed entries, got %d", count)
	}

	keys, _ := s.Keys()
	if len(keys) != 0 {
		t.Errorf("Expected empty store after ClearAll, got %v", keys)
	}

	count, err = s.ClearAll()
	if err != nil {
		t.Fatalf("Unexpected error during second ClearAll: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected 0 removed entries on empty store, got %d", count)
	}
}

func testStats(t *testing.T, s store.IStore) {
	defer s.Close()

	for i := 0; i < 4; i++ {
		if err := s.Put(fmt.Sprintf("stats-key-%d", i), store.NewStringValue("stats-value"), 0); err != nil {
			t.Fatalf("Unexpected error during Put: %v", err)
		}
	}

	// 3 accesses on one key, 1 on another
	for i := 0; i < 3; i++ {
		s.Get("stats-key-0")
	}
	s.Get("stats-key-1")

	if _, err := s.Delete("stats-key-3"); err != nil {
		t.Fatalf("Unexpected error during Delete: %v", err)
	}

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Unexpected error during Stats: %v", err)
	}

	if stats.TotalKeys != 3 {
		t.Errorf("Expected 3 total keys, got %d", stats.TotalKeys)
	}
	if stats.TotalAccesses != 4 {
		t.Errorf("Expected 4 total accesses, got %d", stats.TotalAccesses)
	}
	if stats.Writes != 4 {
		t.Errorf("Expected 4 writes, got %d", stats.Writes)
	}
	if stats.Deletes != 1 {
		t.Errorf("Expected 1 delete, got %d", stats.Deletes)
	}
	if stats.StorageSizeBytes <= 0 {
		t.Errorf("Expected positive storage size, got %d", stats.StorageSizeBytes)
	}
	if stats.ValueSizeMean <= 0 {
		t.Errorf("Expected positive mean value size, got %f", stats.ValueSizeMean)
	}
}

func testEdgeCases(t *testing.T, s store.IStore) {
	defer s.Close()

	// Empty value
	if err := s.Put("empty-value-key", store.NewStringValue(""), 0); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}
	result, loaded, _ := s.Get("empty-value-key")
	if !loaded {
		t.Errorf("Key for empty value not found after Put")
	} else if result.Text() != "" {
		t.Errorf("Empty value mismatch: got %q", result.Text())
	}

	// Large value (1 MB)
	large := strings.Repeat("x", 1024*1024)
	if err := s.Put("large-value-key", store.NewStringValue(large), 0); err != nil {
		t.Fatalf("Unexpected error during Put of large value: %v", err)
	}
	result, loaded, _ = s.Get("large-value-key")
	if !loaded {
		t.Errorf("Key for large value not found after Put")
	} else if result.Size() != len(large) {
		t.Errorf("Large value size mismatch: expected %d, got %d", len(large), result.Size())
	}

	// Overwriting with a different data type
	if err := s.Put("morphing-key", store.NewStringValue("13"), 0); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}
	if err := s.Put("morphing-key", store.NewNumberValue(13), 0); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}
	result, _, _ = s.Get("morphing-key")
	if result.Kind != store.TypeNumber {
		t.Errorf("Expected data type number after overwrite, got %s", result.Kind)
	}
}

func testManyKeys(t *testing.T, s store.IStore) {
	defer s.Close()

	prefix := "many-keys-"
	numKeys := 200

	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("%s%d", prefix, i)
		if err := s.Put(key, store.NewStringValue(fmt.Sprintf("value-%d", i)), 0); err != nil {
			t.Fatalf("Unexpected error during Put of %s: %v", key, err)
		}
	}

	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("%s%d", prefix, i)
		result, loaded, _ := s.Get(key)
		if !loaded {
			t.Errorf("Key %s not found", key)
			continue
		}
		if want := fmt.Sprintf("value-%d", i); result.Text() != want {
			t.Errorf("Value for key %s does not match: expected %s, got %s", key, want, result.Text())
		}
	}

	// Delete every second key
	for i := 0; i < numKeys; i += 2 {
		if _, err := s.Delete(fmt.Sprintf("%s%d", prefix, i)); err != nil {
			t.Fatalf("Unexpected error during Delete: %v", err)
		}
	}

	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("%s%d", prefix, i)
		_, loaded, _ := s.Get(key)

		if i%2 == 0 {
			if loaded {
				t.Errorf("Key %s should be deleted", key)
			}
		} else {
			if !loaded {
				t.Errorf("Key %s should still exist", key)
			}
		}
	}
}

func testConcurrentUsage(t *testing.T, s store.IStore) {
	defer s.Close()

	if testing.Short() {
		t.Skip("Skipping concurrent usage test in short mode")
	}

	type operation struct {
		op    string
		key   string
		value string
	}

	numOperations := 1000
	operations := make([]operation, numOperations)

	for i := 0; i < numOperations; i++ {
		var op string
		switch i % 10 {
		case 0, 1, 2, 3, 4, 5, 6:
			op = "put"
		case 7, 8:
			op = "get"
		case 9:
			op = "delete"
		}

		var key string
		if i%5 == 0 {
			key = fmt.Sprintf("hot-key-%d", i%20)
		} else {
			key = fmt.Sprintf("key-%d", i)
		}

		operations[i] = operation{op, key, fmt.Sprintf("value-%d", i)}
	}

	allKeys := make(map[string]bool)
	for _, op := range operations {
		allKeys[op.key] = true
	}

	numWorkers := 4
	var wg sync.WaitGroup
	wg.Add(numWorkers)

	opsPerWorker := numOperations / numWorkers

	for w := 0; w < numWorkers; w++ {
		go func(workerID int) {
			defer wg.Done()

			start := workerID * opsPerWorker
			end := start + opsPerWorker

			for i := start; i < end; i++ {
				op := operations[i]

				switch op.op {
				case "put":
					if err := s.Put(op.key, store.NewStringValue(op.value), 0); err != nil {
						t.Errorf("Put of %s failed: %v", op.key, err)
					}
				case "get":
					if _, _, err := s.Get(op.key); err != nil {
						t.Errorf("Get of %s failed: %v", op.key, err)
					}
				case "delete":
					if _, err := s.Delete(op.key); err != nil {
						t.Errorf("Delete of %s failed: %v", op.key, err)
					}
				}
			}
		}(w)
	}

	wg.Wait()

	// Two verification passes must agree with each other
	firstPass := make(map[string]string)
	for key := range allKeys {
		if value, loaded, _ := s.Get(key); loaded {
			firstPass[key] = value.Text()
		}
	}

	for key := range allKeys {
		value, loaded, _ := s.Get(key)
		if _, seen := firstPass[key]; seen != loaded {
			t.Errorf("Consistency error: key %s existence changed between passes", key)
			continue
		}
		if loaded && value.Text() != firstPass[key] {
			t.Errorf("Consistency error: value for key %s changed between passes", key)
		}
	}

	// The store must still be fully operational
	if err := s.Put("final-key", store.NewStringValue("final"), 0); err != nil {
		t.Errorf("Store not operational after concurrent usage: %v", err)
	}
}
