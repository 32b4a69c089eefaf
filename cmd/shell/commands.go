package shell

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/sKV/lib/anomaly"
	"github.com/ValentinKolb/sKV/lib/smartstore"
	"github.com/ValentinKolb/sKV/lib/store"
)

const (
	prompt     = "sKV> "
	timeFormat = "2006-01-02 15:04:05"
)

const helpText = `Key-value commands:
  put <key> <value> [ttl=<seconds>] [type=<string|number|json|list>]
  get <key>
  delete <key>
  keys [pattern]
  info <key>

Cache commands:
  cache_stats        show cache statistics
  cache_train        train the predictive cache model
  cache_optimize     pre-load keys predicted to be accessed soon
  cache_hot_keys     show keys predicted to be accessed soon
  cache_clear        drop all cached values

Anomaly commands:
  anomalies [low|medium|high]   list unresolved anomalies
  anomaly_check                 run all detection checks now

Archive commands:
  archive <key> [key...]        archive keys to compressed storage
  archive cold                  archive keys the model predicts cold
  restore [key...|all]          restore archived keys
  archive_list                  list archived keys

Recovery commands:
  checkpoint         create a recovery checkpoint
  recovery_stats     show write-ahead log and checkpoint state

System commands:
  stats              show statistics for all components
  clear              delete all data (asks for confirmation)
  help               show this help
  exit               leave the shell`

// shell executes commands against an embedded database. Parsing and
// output formatting are separated from the terminal so tests can drive
// the shell with scripted input.
type shell struct {
	db      *smartstore.SmartStore
	out     io.Writer
	scanner *bufio.Scanner
}

func newShell(db *smartstore.SmartStore, out io.Writer) *shell {
	return &shell{db: db, out: out}
}

// loop reads commands from in until exit, quit or end of input.
func (sh *shell) loop(in io.Reader) {
	sh.scanner = bufio.NewScanner(in)
	for {
		fmt.Fprint(sh.out, prompt)
		if !sh.scanner.Scan() {
			fmt.Fprintln(sh.out)
			return
		}
		if sh.dispatch(sh.scanner.Text()) {
			return
		}
	}
}

// readLine reads one more line from the input, used for confirmations.
func (sh *shell) readLine() (string, bool) {
	if sh.scanner == nil || !sh.scanner.Scan() {
		return "", false
	}
	return sh.scanner.Text(), true
}

// dispatch runs a single command line and reports whether the shell
// should exit.
func (sh *shell) dispatch(line string) (exit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "put":
		sh.put(args)
	case "get":
		sh.get(args)
	case "delete":
		sh.del(args)
	case "keys":
		sh.keys(args)
	case "info":
		sh.info(args)
	case "cache_stats":
		sh.cacheStats()
	case "cache_train":
		sh.cacheTrain()
	case "cache_optimize":
		sh.cacheOptimize()
	case "cache_hot_keys":
		sh.cacheHotKeys()
	case "cache_clear":
		sh.cacheClear()
	case "anomalies":
		sh.anomalies(args)
	case "anomaly_check":
		sh.anomalyCheck()
	case "archive":
		sh.archive(args)
	case "restore":
		sh.restore(args)
	case "archive_list":
		sh.archiveList()
	case "checkpoint":
		sh.checkpoint()
	case "recovery_stats":
		sh.recoveryStats()
	case "stats":
		sh.stats()
	case "clear":
		sh.clear()
	case "help", "?":
		fmt.Fprintln(sh.out, helpText)
	case "exit", "quit":
		return true
	default:
		fmt.Fprintf(sh.out, "unknown command %q, type 'help' for a list of commands\n", cmd)
	}
	return false
}

// --------------------------------------------------------------------------
// Key-Value Commands
// --------------------------------------------------------------------------

func (sh *shell) put(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(sh.out, "usage: put <key> <value> [ttl=<seconds>] [type=<string|number|json|list>]")
		return
	}

	key, literal := args[0], args[1]
	var ttl time.Duration
	dataType := "string"

	// parse optional parameters
	for _, param := range args[2:] {
		switch {
		case strings.HasPrefix(param, "ttl="):
			seconds, err := strconv.ParseInt(strings.TrimPrefix(param, "ttl="), 10, 64)
			if err != nil {
				fmt.Fprintln(sh.out, "error: ttl must be an integer")
				return
			}
			ttl = time.Duration(seconds) * time.Second
		case strings.HasPrefix(param, "type="):
			dataType = strings.TrimPrefix(param, "type=")
		default:
			fmt.Fprintf(sh.out, "error: unknown parameter %q\n", param)
			return
		}
	}

	value, err := store.ParseLiteral(dataType, literal)
	if err != nil {
		fmt.Fprintf(sh.out, "error: %v\n", err)
		return
	}

	if err := sh.db.Put(key, value, ttl); err != nil {
		fmt.Fprintf(sh.out, "error: %v\n", err)
		return
	}

	fmt.Fprintf(sh.out, "stored: %s = %s\n", key, value.Text())
	if ttl > 0 {
		fmt.Fprintf(sh.out, "  ttl: %s\n", ttl)
	}
}

func (sh *shell) get(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(sh.out, "usage: get <key>")
		return
	}
	key := args[0]

	start := time.Now()
	value, found, err := sh.db.Get(key)
	latency := time.Since(start)

	if err != nil {
		fmt.Fprintf(sh.out, "error: %v\n", err)
		return
	}
	if !found {
		fmt.Fprintf(sh.out, "key %q not found\n", key)
		return
	}

	fmt.Fprintf(sh.out, "%s = %s\n", key, value.Text())
	fmt.Fprintf(sh.out, "  latency: %s\n", latency.Round(time.Microsecond))
}

func (sh *shell) del(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(sh.out, "usage: delete <key>")
		return
	}
	key := args[0]

	deleted, err := sh.db.Delete(key)
	if err != nil {
		fmt.Fprintf(sh.out, "error: %v\n", err)
		return
	}
	if !deleted {
		fmt.Fprintf(sh.out, "key %q not found\n", key)
		return
	}
	fmt.Fprintf(sh.out, "deleted: %s\n", key)
}

func (sh *shell) keys(args []string) {
	keys, err := sh.db.Keys()
	if err != nil {
		fmt.Fprintf(sh.out, "error: %v\n", err)
		return
	}

	// filter by pattern if provided (substring match, '*' is ignored)
	if len(args) > 0 {
		pattern := strings.ReplaceAll(args[0], "*", "")
		filtered := keys[:0]
		for _, key := range keys {
			if strings.Contains(key, pattern) {
				filtered = append(filtered, key)
			}
		}
		keys = filtered
	}

	if len(keys) == 0 {
		fmt.Fprintln(sh.out, "no keys found")
		return
	}

	fmt.Fprintf(sh.out, "keys (%d total):\n", len(keys))
	for i, key := range keys {
		fmt.Fprintf(sh.out, "  %d. %s\n", i+1, key)
	}
}

func (sh *shell) info(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(sh.out, "usage: info <key>")
		return
	}
	key := args[0]

	entry, found, err := sh.db.GetEntry(key)
	if err != nil {
		fmt.Fprintf(sh.out, "error: %v\n", err)
		return
	}
	if !found {
		fmt.Fprintf(sh.out, "key %q not found\n", key)
		return
	}

	fmt.Fprintf(sh.out, "information for key: %s\n", key)
	fmt.Fprintf(sh.out, "  value: %s\n", entry.Value.Text())
	fmt.Fprintf(sh.out, "  type: %s\n", entry.Value.Kind)
	fmt.Fprintf(sh.out, "  created: %s\n", entry.CreatedAt.Format(timeFormat))
	fmt.Fprintf(sh.out, "  last accessed: %s\n", entry.LastAccessed.Format(timeFormat))
	fmt.Fprintf(sh.out, "  access count: %d\n", entry.AccessCount)
	if entry.TTL > 0 {
		fmt.Fprintf(sh.out, "  ttl: %s\n", entry.TTL)
		fmt.Fprintf(sh.out, "  expires: %s\n", entry.ExpiresAt.Format(timeFormat))
	}
}

// --------------------------------------------------------------------------
// Cache Commands
// --------------------------------------------------------------------------

func (sh *shell) cacheStats() {
	stats := sh.db.Cache().CacheStats()

	fmt.Fprintln(sh.out, "cache statistics:")
	fmt.Fprintf(sh.out, "  size: %d/%d\n", stats.CacheSize, stats.MaxCacheSize)
	fmt.Fprintf(sh.out, "  utilization: %.1f%%\n", stats.CacheUtilization)
	fmt.Fprintf(sh.out, "  hits: %d\n", stats.Hits)
	fmt.Fprintf(sh.out, "  misses: %d\n", stats.Misses)
	fmt.Fprintf(sh.out, "  hit rate: %.2f%%\n", stats.HitRate)
	fmt.Fprintf(sh.out, "  patterns tracked: %d\n", stats.PatternsTracked)
	fmt.Fprintf(sh.out, "  model trained: %s\n", yesNo(stats.ModelTrained))
}

func (sh *shell) cacheTrain() {
	fmt.Fprintln(sh.out, "training cache model...")
	if sh.db.TrainCache(0) {
		fmt.Fprintln(sh.out, "model trained successfully")
	} else {
		fmt.Fprintln(sh.out, "training failed (insufficient data)")
	}
}

func (sh *shell) cacheOptimize() {
	fmt.Fprintln(sh.out, "optimizing cache...")
	loaded := sh.db.OptimizeCache()
	fmt.Fprintf(sh.out, "pre-loaded %d hot keys\n", loaded)
}

func (sh *shell) cacheHotKeys() {
	hot := sh.db.Cache().GetHotKeys(10)
	if len(hot) == 0 {
		fmt.Fprintln(sh.out, "no predictions available (train the model first)")
		return
	}

	fmt.Fprintln(sh.out, "top hot keys (predicted access likelihood):")
	for i, ks := range hot {
		barLen := int(ks.Score * 20)
		if barLen > 20 {
			barLen = 20
		}
		bar := strings.Repeat("#", barLen) + strings.Repeat("-", 20-barLen)
		fmt.Fprintf(sh.out, "  %d. %-20s %s %.1f%%\n", i+1, ks.Key, bar, ks.Score*100)
	}
}

func (sh *shell) cacheClear() {
	count := sh.db.Cache().ClearCache()
	fmt.Fprintf(sh.out, "cleared %d cached values\n", count)
}

// --------------------------------------------------------------------------
// Anomaly Commands
// --------------------------------------------------------------------------

func (sh *shell) anomalies(args []string) {
	var severity anomaly.Severity
	if len(args) > 0 {
		severity = anomaly.Severity(args[0])
		if !severity.Valid() {
			fmt.Fprintf(sh.out, "error: unknown severity %q (expected low, medium or high)\n", args[0])
			return
		}
	}

	anomalies := sh.db.Detector().GetAnomalies(severity, true)
	if len(anomalies) == 0 {
		fmt.Fprintln(sh.out, "no anomalies detected")
		return
	}

	fmt.Fprintln(sh.out, "detected anomalies:")
	for _, a := range anomalies {
		fmt.Fprintf(sh.out, "\n  [%s] %s\n", strings.ToUpper(string(a.Severity)), a.Type)
		fmt.Fprintf(sh.out, "  %s\n", a.Description)
		fmt.Fprintf(sh.out, "  detected: %s\n", a.Timestamp.Format(timeFormat))
		if a.Key != "" {
			fmt.Fprintf(sh.out, "  key: %s\n", a.Key)
		}
	}
}

func (sh *shell) anomalyCheck() {
	fmt.Fprintln(sh.out, "running anomaly detection...")
	detected, err := sh.db.RunAnomalyCheck()
	if err != nil {
		fmt.Fprintf(sh.out, "error: %v\n", err)
		return
	}
	if len(detected) == 0 {
		fmt.Fprintln(sh.out, "no new anomalies detected")
		return
	}
	fmt.Fprintf(sh.out, "detected %d new anomalies\n", len(detected))
}

// --------------------------------------------------------------------------
// Archive Commands
// --------------------------------------------------------------------------

func (sh *shell) archive(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(sh.out, "usage: archive <key> [key...] | archive cold")
		return
	}

	if len(args) == 1 && args[0] == "cold" {
		fmt.Fprintln(sh.out, "archiving cold keys...")
		count, err := sh.db.ArchiveColdKeys(0, 0)
		if err != nil {
			fmt.Fprintf(sh.out, "error: %v\n", err)
			return
		}
		fmt.Fprintf(sh.out, "archived %d cold keys\n", count)
		return
	}

	count, err := sh.db.ArchiveKeys(args, true)
	if err != nil {
		fmt.Fprintf(sh.out, "error: %v\n", err)
		return
	}
	fmt.Fprintf(sh.out, "archived %d keys\n", count)
}

func (sh *shell) restore(args []string) {
	var keys []string
	if len(args) > 0 && !(len(args) == 1 && args[0] == "all") {
		keys = args
	}

	count, err := sh.db.RestoreKeys(keys)
	if err != nil {
		fmt.Fprintf(sh.out, "error: %v\n", err)
		return
	}
	fmt.Fprintf(sh.out, "restored %d keys from archive\n", count)
}

func (sh *shell) archiveList() {
	archived := sh.db.Archive().ListArchivedKeys()
	if len(archived) == 0 {
		fmt.Fprintln(sh.out, "no archived keys")
		return
	}

	fmt.Fprintf(sh.out, "archived keys (%d total):\n", len(archived))
	for i, item := range archived {
		fmt.Fprintf(sh.out, "  %d. %s (archived: %s)\n", i+1, item.Key, item.ArchivedAt.Format(timeFormat))
	}
}

// --------------------------------------------------------------------------
// Recovery Commands
// --------------------------------------------------------------------------

func (sh *shell) checkpoint() {
	fmt.Fprintln(sh.out, "creating checkpoint...")
	if err := sh.db.CreateCheckpoint(); err != nil {
		fmt.Fprintf(sh.out, "error: %v\n", err)
		return
	}
	fmt.Fprintln(sh.out, "checkpoint created")
}

func (sh *shell) recoveryStats() {
	stats := sh.db.Recovery().LogStats()

	fmt.Fprintln(sh.out, "recovery system statistics:")
	fmt.Fprintf(sh.out, "  transaction log exists: %s\n", yesNo(stats.LogExists))
	fmt.Fprintf(sh.out, "  checkpoint exists: %s\n", yesNo(stats.CheckpointExists))
	fmt.Fprintf(sh.out, "  buffered records: %d\n", stats.BufferedRecords)
	fmt.Fprintf(sh.out, "  log records: %d\n", stats.LogRecords)
	fmt.Fprintf(sh.out, "  log size: %d bytes\n", stats.LogSizeBytes)
	fmt.Fprintf(sh.out, "  recovery performed: %s\n", yesNo(stats.RecoveryPerformed))
}

// --------------------------------------------------------------------------
// System Commands
// --------------------------------------------------------------------------

func (sh *shell) stats() {
	stats, err := sh.db.Stats()
	if err != nil {
		fmt.Fprintf(sh.out, "error: %v\n", err)
		return
	}

	fmt.Fprintln(sh.out, "storage:")
	fmt.Fprintf(sh.out, "  total keys: %d\n", stats.Store.TotalKeys)
	fmt.Fprintf(sh.out, "  total accesses: %d\n", stats.Store.TotalAccesses)
	fmt.Fprintf(sh.out, "  storage size: %d bytes\n", stats.Store.StorageSizeBytes)

	fmt.Fprintln(sh.out, "cache:")
	fmt.Fprintf(sh.out, "  hit rate: %.2f%%\n", stats.Cache.HitRate)
	fmt.Fprintf(sh.out, "  utilization: %.1f%%\n", stats.Cache.CacheUtilization)
	fmt.Fprintf(sh.out, "  model trained: %s\n", yesNo(stats.Cache.ModelTrained))

	fmt.Fprintln(sh.out, "anomalies:")
	fmt.Fprintf(sh.out, "  unresolved: %d\n", stats.Anomalies.UnresolvedAnomalies)
	fmt.Fprintf(sh.out, "  high severity: %d\n", stats.Anomalies.HighSeverity)

	fmt.Fprintln(sh.out, "archive:")
	fmt.Fprintf(sh.out, "  archived keys: %d\n", stats.Archive.ArchivedKeys)
	fmt.Fprintf(sh.out, "  archive size: %d bytes\n", stats.Archive.ArchiveSizeBytes)
	if stats.Archive.CompressionRatio > 0 {
		fmt.Fprintf(sh.out, "  compression ratio: %.2f\n", stats.Archive.CompressionRatio)
	}
}

func (sh *shell) clear() {
	fmt.Fprint(sh.out, "This will delete all data. Type 'YES' to confirm: ")
	answer, ok := sh.readLine()
	if !ok || answer != "YES" {
		fmt.Fprintln(sh.out, "operation cancelled")
		return
	}

	count, err := sh.db.ClearAll()
	if err != nil {
		fmt.Fprintf(sh.out, "error: %v\n", err)
		return
	}
	fmt.Fprintf(sh.out, "cleared %d keys\n", count)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
