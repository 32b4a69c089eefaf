package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	cmdUtil "github.com/ValentinKolb/sKV/cmd/util"
	"github.com/ValentinKolb/sKV/lib/smartstore"
	"github.com/ValentinKolb/sKV/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	serveCmdConfig = server.DefaultConfig()
	storeOpts      *smartstore.Options

	ServeCmd = &cobra.Command{
		Use:     "serve",
		Short:   "Start the sKV REST server",
		Long:    `Start the sKV REST server around an embedded database. The configuration can be set via command line flags or environment variables. The format of the environment variables is SKV_<flag> (e.g. SKV_ENDPOINT=:9090)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	// add flags
	key := "data-dir"
	ServeCmd.PersistentFlags().String(key, "data", cmdUtil.WrapString("The directory used for the store file, write-ahead log, checkpoint and archive"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, ":8080", cmdUtil.WrapString("The address on which the API will listen (e.g. :8080, localhost:9090)"))

	key = "read-timeout"
	ServeCmd.PersistentFlags().Int(key, 10, cmdUtil.WrapString("HTTP read timeout in seconds"))

	key = "write-timeout"
	ServeCmd.PersistentFlags().Int(key, 30, cmdUtil.WrapString("HTTP write timeout in seconds"))

	key = "shutdown-timeout"
	ServeCmd.PersistentFlags().Int(key, 10, cmdUtil.WrapString("How long a graceful shutdown waits for in-flight requests (in seconds)"))

	key = "rate-limit"
	ServeCmd.PersistentFlags().Float64(key, 0, cmdUtil.WrapString("Maximum API requests per second (0 disables rate limiting, /health and /metrics are never limited)"))

	key = "rate-burst"
	ServeCmd.PersistentFlags().Int(key, 1, cmdUtil.WrapString("Burst size for the rate limiter (only used when rate-limit is set)"))

	key = "nats-url"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("NATS server URL for change notifications (e.g. nats://localhost:4222, empty disables publishing)"))

	key = "nats-subject"
	ServeCmd.PersistentFlags().String(key, "skv.events", cmdUtil.WrapString("NATS subject change notifications are published on"))

	key = "cache-capacity"
	ServeCmd.PersistentFlags().Int(key, 1000, cmdUtil.WrapString("Maximum number of values held by the predictive cache"))

	key = "buffer-size"
	ServeCmd.PersistentFlags().Int(key, 100, cmdUtil.WrapString("Number of write-ahead log records buffered in memory before a flush to disk"))

	key = "sweep-interval"
	ServeCmd.PersistentFlags().Int(key, 5, cmdUtil.WrapString("Time between expired-key sweeps in seconds"))

	key = "lock-timeout"
	ServeCmd.PersistentFlags().Int(key, 10, cmdUtil.WrapString("Maximum time to wait for the data directory file lock in seconds"))

	key = "strict-open"
	ServeCmd.PersistentFlags().Bool(key, false, cmdUtil.WrapString("Fail on a corrupt store file instead of starting with an empty store"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// server configuration
	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.ReadTimeout = time.Duration(viper.GetInt("read-timeout")) * time.Second
	serveCmdConfig.WriteTimeout = time.Duration(viper.GetInt("write-timeout")) * time.Second
	serveCmdConfig.ShutdownTimeout = time.Duration(viper.GetInt("shutdown-timeout")) * time.Second
	serveCmdConfig.RateLimit = viper.GetFloat64("rate-limit")
	serveCmdConfig.RateBurst = viper.GetInt("rate-burst")
	serveCmdConfig.NATSUrl = viper.GetString("nats-url")
	serveCmdConfig.NATSSubject = viper.GetString("nats-subject")

	if serveCmdConfig.RateLimit > 0 && serveCmdConfig.RateBurst < 1 {
		return fmt.Errorf("rate-burst must be at least 1 when rate-limit is set")
	}

	// database configuration
	storeOpts = smartstore.DefaultOptions(viper.GetString("data-dir"))
	storeOpts.CacheCapacity = viper.GetInt("cache-capacity")
	storeOpts.BufferSize = viper.GetInt("buffer-size")
	storeOpts.SweepInterval = time.Duration(viper.GetInt("sweep-interval")) * time.Second
	storeOpts.LockTimeout = time.Duration(viper.GetInt("lock-timeout")) * time.Second
	storeOpts.StrictOpen = viper.GetBool("strict-open")

	c, err := cmdUtil.GetCodec()
	if err != nil {
		return err
	}
	storeOpts.Codec = c

	return nil
}

// run opens the embedded database and serves the REST API until the
// process receives SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	logger, err := cmdUtil.GetLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	// print the effective configuration
	fmt.Println(serveCmdConfig.String())

	// open the database (recovery runs here if needed)
	storeOpts.Logger = logger
	db, err := smartstore.New(storeOpts)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close database", zap.Error(err))
		}
	}()

	srv, err := server.NewServer(db, serveCmdConfig, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx)
}
