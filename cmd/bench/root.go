package bench

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/sKV/cmd/util"
	"github.com/ValentinKolb/sKV/lib/codec"
	"github.com/ValentinKolb/sKV/lib/smartstore"
	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// BenchCmd represents the benchmark command
	BenchCmd = &cobra.Command{
		Use:     "bench",
		Short:   "Performance testing tool for the embedded engine and the snapshot codecs",
		Long:    `Run benchmarks against an embedded database and the snapshot codecs. The database is opened in a throwaway directory unless --dir is given. Results can be exported as CSV for comparison across codecs and configurations.`,
		RunE:    run,
		PreRunE: processBenchConfig,
	}
	benchKeyPrefix    = "__bench"
	benchValueSize    = 128
	benchLargeValueKB = 100
	benchNumThreads   = 10
	benchKeySpread    = 100
	benchSkip         = make([]string, 0)
)

func init() {
	// initialize viper
	cobra.OnInitialize(util.InitConfig)

	// add flags
	key := "dir"
	BenchCmd.Flags().String(key, "", util.WrapString("Directory to open the database in (empty for a throwaway temp directory)"))

	key = "threads"
	BenchCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))

	key = "keys"
	BenchCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))

	key = "value-size"
	BenchCmd.Flags().Int(key, 128, util.WrapString("Size of the values for the standard tests (in bytes)"))

	key = "large-value-size"
	BenchCmd.Flags().Int(key, 100, util.WrapString("How large the value for the put-large test should be (in KB)"))

	key = "skip"
	BenchCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. put,get,codecs)"))

	key = "csv"
	BenchCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processBenchConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	benchValueSize = viper.GetInt("value-size")
	benchLargeValueKB = viper.GetInt("large-value-size")
	benchKeySpread = viper.GetInt("keys")
	benchNumThreads = viper.GetInt("threads")
	benchSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func run(_ *cobra.Command, _ []string) error {

	fmt.Println("Performance testing tool for the sKV embedded engine")

	// Resolve the snapshot codec
	c, err := util.GetCodec()
	if err != nil {
		return err
	}

	// Open the database, in a throwaway directory unless --dir is given
	dir := viper.GetString("dir")
	if dir == "" {
		tmp, err := os.MkdirTemp("", "skv-bench-*")
		if err != nil {
			return fmt.Errorf("failed to create temp directory: %w", err)
		}
		defer os.RemoveAll(tmp)
		dir = tmp
	}

	opts := smartstore.DefaultOptions(dir)
	opts.Codec = c
	db, err := smartstore.New(opts)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("  Dir:        %s\n", dir)
	fmt.Printf("  Codec:      %s\n", c.Name())
	fmt.Printf("  Threads:    %d\n", benchNumThreads)
	fmt.Printf("  Keys:       %d\n", benchKeySpread)
	fmt.Printf("  Value Size: %d bytes\n", benchValueSize)
	fmt.Println()

	fmt.Println("starting tests...")

	value := store.NewStringValue(strings.Repeat("x", benchValueSize))
	largeValue := store.NewStringValue(strings.Repeat("x", benchLargeValueKB*1024))

	// Create results map
	results := make(map[string]testing.BenchmarkResult)

	putResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("put") {
			return
		}

		// prepare keys
		getKey, iter := getKeys("put")

		// cleanup
		b.Cleanup(func() {
			iter(func(k string) {
				if _, err := db.Delete(k); err != nil {
					log.Printf("(put) - error deleting key: %v\n", err)
				}
			})
		})

		b.SetParallelism(benchNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if err := db.Put(getKey(counter), value, 0); err != nil {
					log.Printf("(put) - error setting key: %v\n", err)
				}
				counter++
			}
		})
	})

	results["put"] = putResult
	printResult("put", putResult)

	putLargeResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("put-large") {
			return
		}

		// prepare keys
		getKey, iter := getKeys("put-large")

		// cleanup
		b.Cleanup(func() {
			iter(func(k string) {
				if _, err := db.Delete(k); err != nil {
					log.Printf("(put-large) - error deleting key: %v\n", err)
				}
			})
		})

		b.SetParallelism(benchNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if err := db.Put(getKey(counter), largeValue, 0); err != nil {
					log.Printf("(put-large) - error setting key: %v\n", err)
				}
				counter++
			}
		})
	})

	results["put-large"] = putLargeResult
	printResult("put-large", putLargeResult)

	getResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("get") {
			return
		}

		// prepare keys
		getKey, iter := getKeys("get")

		// set keys
		iter(func(k string) {
			if err := db.Put(k, value, 0); err != nil {
				log.Printf("(get) - error setting key: %v\n", err)
			}
		})

		// cleanup
		b.Cleanup(func() {
			iter(func(k string) {
				if _, err := db.Delete(k); err != nil {
					log.Printf("(get) - error deleting key: %v\n", err)
				}
			})
		})

		b.SetParallelism(benchNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if _, _, err := db.Get(getKey(counter)); err != nil {
					log.Printf("(get) - error getting key: %v\n", err)
				}
				counter++
			}
		})
	})

	results["get"] = getResult
	printResult("get", getResult)

	deleteResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("delete") {
			return
		}

		// prepare keys
		getKey, iter := getKeys("delete")

		// set keys
		iter(func(k string) {
			if err := db.Put(k, value, 0); err != nil {
				log.Printf("(delete) - error setting key: %v\n", err)
			}
		})

		b.SetParallelism(benchNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if _, err := db.Delete(getKey(counter)); err != nil {
					log.Printf("(delete) - error deleting key: %v\n", err)
				}
				counter++
			}
		})
	})

	results["delete"] = deleteResult
	printResult("delete", deleteResult)

	existsResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("exists") {
			return
		}

		// prepare keys
		getKey, iter := getKeys("exists")

		// set keys
		iter(func(k string) {
			if err := db.Put(k, value, 0); err != nil {
				log.Printf("(exists) - error setting key: %v\n", err)
			}
		})

		// cleanup
		b.Cleanup(func() {
			iter(func(k string) {
				if _, err := db.Delete(k); err != nil {
					log.Printf("(exists) - error deleting key: %v\n", err)
				}
			})
		})

		b.SetParallelism(benchNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if _, err := db.Exists(getKey(counter)); err != nil {
					log.Printf("(exists) - error checking key: %v\n", err)
				}
				counter++
			}
		})
	})

	results["exists"] = existsResult
	printResult("exists", existsResult)

	existsNotResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("exists-not") {
			return
		}

		b.SetParallelism(benchNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				key := fmt.Sprintf("%s/exists-not-%d", benchKeyPrefix, counter%benchKeySpread)
				if _, err := db.Exists(key); err != nil {
					log.Printf("(exists-not) - error checking key: %v\n", err)
				}
				counter++
			}
		})
	})

	results["exists-not"] = existsNotResult
	printResult("exists-not", existsNotResult)

	mixedResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("mixed") {
			return
		}

		// prepare keys
		getKey, iter := getKeys("mixed")

		// set keys
		iter(func(k string) {
			if err := db.Put(k, value, 0); err != nil {
				log.Printf("(mixed) - error setting key: %v\n", err)
			}
		})

		// cleanup
		b.Cleanup(func() {
			iter(func(k string) {
				if _, err := db.Delete(k); err != nil {
					log.Printf("(mixed) - error deleting key: %v\n", err)
				}
			})
		})

		b.SetParallelism(benchNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				key := getKey(counter)
				var err error
				switch counter % 4 {
				case 0: // put
					err = db.Put(key, value, 0)
				case 1: // get
					_, _, err = db.Get(key)
				case 2: // delete
					_, err = db.Delete(key)
				case 3: // exists
					_, err = db.Exists(key)
				}

				if err != nil {
					log.Printf("(mixed) - error performing operation (%d): %v\n", counter%4, err)
				}
				counter++
			}
		})
	})

	results["mixed"] = mixedResult
	printResult("mixed", mixedResult)

	// Codec benchmarks: encode and decode a synthetic snapshot with
	// every registered codec
	if !shouldSkip("codecs") {
		entries := benchEntries(value)
		for _, name := range codec.Names() {
			cc, err := codec.ForName(name)
			if err != nil {
				return err
			}

			encodeResult := testing.Benchmark(func(b *testing.B) {
				for i := 0; i < b.N; i++ {
					if err := cc.EncodeEntries(io.Discard, entries); err != nil {
						log.Printf("(encode-%s) - error encoding: %v\n", name, err)
					}
				}
			})
			results["encode-"+name] = encodeResult
			printResult("encode-"+name, encodeResult)

			var buf bytes.Buffer
			if err := cc.EncodeEntries(&buf, entries); err != nil {
				return fmt.Errorf("failed to encode snapshot with %s: %w", name, err)
			}

			decodeResult := testing.Benchmark(func(b *testing.B) {
				for i := 0; i < b.N; i++ {
					if _, err := cc.DecodeEntries(bytes.NewReader(buf.Bytes())); err != nil {
						log.Printf("(decode-%s) - error decoding: %v\n", name, err)
					}
				}
			})
			results["decode-"+name] = decodeResult
			printResult("decode-"+name, decodeResult)
		}
	}

	// Write results to csv if specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, c.Name()); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range benchSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// creates an array of test keys and functions to work with them
func getKeys(prefix string) (func(int) string, func(func(string))) {
	keys := make([]string, benchKeySpread)
	for i := 0; i < benchKeySpread; i++ {
		keys[i] = fmt.Sprintf("%s-%s-%d", benchKeyPrefix, prefix, i)
	}

	// Function to get a key by index (with wraparound)
	getKey := func(i int) string {
		return keys[i%benchKeySpread]
	}

	// Function to iterate over all keys and apply a function to each
	iterateKeys := func(fn func(string)) {
		for _, key := range keys {
			fn(key)
		}
	}

	return getKey, iterateKeys
}

// benchEntries builds a synthetic snapshot for the codec benchmarks
func benchEntries(value store.Value) map[string]*store.Entry {
	entries := make(map[string]*store.Entry, benchKeySpread)
	now := time.Now()
	for i := 0; i < benchKeySpread; i++ {
		key := fmt.Sprintf("%s-codec-%d", benchKeyPrefix, i)
		entries[key] = &store.Entry{
			Key:          key,
			Value:        value,
			CreatedAt:    now,
			UpdatedAt:    now,
			LastAccessed: now,
			AccessCount:  uint64(i),
		}
	}
	return entries
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, codecName string) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Codec", "Threads", "ValueSizeBytes", "LargeValueSizeKB", "KeysCount",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, result := range results {
		var nsPerOp float64
		var opsPerSec float64
		var skipped string

		if result.NsPerOp() == 0 {
			skipped = "true"
			nsPerOp = 0
			opsPerSec = 0
		} else {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			codecName,
			strconv.Itoa(benchNumThreads),
			strconv.Itoa(benchValueSize),
			strconv.Itoa(benchLargeValueKB),
			strconv.Itoa(benchKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
