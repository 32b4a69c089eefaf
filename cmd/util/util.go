package util

import (
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/sKV/client"
	"github.com/ValentinKolb/sKV/lib/codec"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("skv")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// GetCodec creates a snapshot codec based on configuration
func GetCodec() (codec.ICodec, error) {
	return codec.ForName(viper.GetString("codec"))
}

// GetLogger creates a zap logger at the configured log level. Each
// command defines its own log-level flag default, so interactive
// commands can start quieter than the server.
func GetLogger() (*zap.Logger, error) {
	levelStr := viper.GetString("log-level")

	level, err := zapcore.ParseLevel(levelStr)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q (expected one of: debug, info, warn, error)", levelStr)
	}

	conf := zap.NewProductionConfig()
	conf.Level = zap.NewAtomicLevelAt(level)
	conf.Encoding = "console"
	conf.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	conf.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	return conf.Build()
}

// SetupClientFlags adds common REST client flags to a command
func SetupClientFlags(cmd *cobra.Command) {
	key := "server-url"
	cmd.PersistentFlags().String(key, "http://localhost:8080", WrapString("The base URL of the sKV server"))

	key = "timeout"
	cmd.PersistentFlags().Int(key, 30, WrapString("The timeout in seconds for requests to the server"))
}

// GetClient creates a REST client based on configuration
func GetClient() (*client.Client, error) {
	return client.New(client.Config{
		BaseURL: viper.GetString("server-url"),
		Timeout: time.Duration(viper.GetInt("timeout")) * time.Second,
	})
}
