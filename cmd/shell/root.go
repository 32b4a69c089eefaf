package shell

import (
	"fmt"
	"os"
	"time"

	cmdUtil "github.com/ValentinKolb/sKV/cmd/util"
	"github.com/ValentinKolb/sKV/lib/smartstore"
	"github.com/ValentinKolb/sKV/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	storeOpts *smartstore.Options

	// ShellCmd represents the interactive shell command
	ShellCmd = &cobra.Command{
		Use:     "shell",
		Short:   "Start an interactive shell on an embedded database",
		Long:    `Start an interactive shell on an embedded database. The shell opens the data directory directly (no server required) and gives access to key-value operations as well as the cache, anomaly, archive and recovery subsystems. Type 'help' inside the shell for a list of commands.`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	// add flags
	key := "data-dir"
	ShellCmd.PersistentFlags().String(key, "data", cmdUtil.WrapString("The directory used for the store file, write-ahead log, checkpoint and archive"))

	key = "cache-capacity"
	ShellCmd.PersistentFlags().Int(key, 1000, cmdUtil.WrapString("Maximum number of values held by the predictive cache"))

	key = "buffer-size"
	ShellCmd.PersistentFlags().Int(key, 1, cmdUtil.WrapString("Number of write-ahead log records buffered in memory before a flush to disk"))

	key = "lock-timeout"
	ShellCmd.PersistentFlags().Int(key, 10, cmdUtil.WrapString("Maximum time to wait for the data directory file lock in seconds"))

	key = "strict-open"
	ShellCmd.PersistentFlags().Bool(key, false, cmdUtil.WrapString("Fail on a corrupt store file instead of starting with an empty store"))

	key = "log-level"
	ShellCmd.PersistentFlags().String(key, "error", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error). The shell defaults to error so log lines do not interleave with the prompt"))
}

// processConfig reads the configuration from the command line flags and environment variables
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	storeOpts = smartstore.DefaultOptions(viper.GetString("data-dir"))
	storeOpts.CacheCapacity = viper.GetInt("cache-capacity")
	storeOpts.BufferSize = viper.GetInt("buffer-size")
	storeOpts.LockTimeout = time.Duration(viper.GetInt("lock-timeout")) * time.Second
	storeOpts.StrictOpen = viper.GetBool("strict-open")

	c, err := cmdUtil.GetCodec()
	if err != nil {
		return err
	}
	storeOpts.Codec = c

	return nil
}

// run opens the embedded database and hands control to the shell loop
func run(_ *cobra.Command, _ []string) error {
	logger, err := cmdUtil.GetLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	fmt.Println("Initializing sKV...")

	storeOpts.Logger = logger
	db, err := smartstore.New(storeOpts)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	fmt.Printf("sKV v%s ready (data dir: %s)\n", server.Version, storeOpts.Dir)
	fmt.Println("Type 'help' to list commands, 'exit' to quit.")
	fmt.Println()

	sh := newShell(db, os.Stdout)
	sh.loop(os.Stdin)

	fmt.Println("Goodbye! sKV shutting down...")
	return db.Close()
}
