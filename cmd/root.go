package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/ValentinKolb/sKV/cmd/bench"
	"github.com/ValentinKolb/sKV/cmd/kv"
	"github.com/ValentinKolb/sKV/cmd/serve"
	"github.com/ValentinKolb/sKV/cmd/shell"
	"github.com/ValentinKolb/sKV/cmd/util"
	"github.com/ValentinKolb/sKV/server"
	"github.com/spf13/cobra"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "skv",
		Short: "self-managing key-value store",
		Long: fmt.Sprintf(`sKV (v%s)

An embedded, self-managing key-value store written in Go, with
write-ahead-log recovery, predictive caching, anomaly detection
and compressed archival.`, server.Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of sKV",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sKV v%s\n", server.Version)
		},
	}

	// upgradeCmd represents the upgrade command
	upgradeCmd = &cobra.Command{
		Use:   "upgrade",
		Short: "Upgrade sKV to the latest version",
		Long:  `Upgrade sKV to the latest version by downloading and running the installation script.`,
		Run: func(cmd *cobra.Command, args []string) {
			if runtime.GOOS == "windows" {
				fmt.Println("Windows is not supported.")
				os.Exit(1)
			}

			fmt.Println("Upgrading sKV to the latest version...")

			// Get installation flags
			installPath, _ := cmd.Flags().GetString("path")
			fromSource, _ := cmd.Flags().GetBool("source")

			// Base command to download and execute the script
			scriptURL := "https://raw.githubusercontent.com/ValentinKolb/sKV/refs/heads/main/install.sh"
			cmdStr := fmt.Sprintf("curl -s %s | bash", scriptURL)

			// Add options if specified
			var options []string
			if installPath != "" {
				options = append(options, fmt.Sprintf("--path=%s", installPath))
			}
			if fromSource {
				options = append(options, "--source")
			}
			if len(options) > 0 {
				cmdStr += " -- " + strings.Join(options, " ")
			}

			// Create and run the command
			shellCmd := exec.Command("bash", "-c", cmdStr)
			shellCmd.Stdout = os.Stdout
			shellCmd.Stderr = os.Stderr

			fmt.Println("Executing:", cmdStr)
			if err := shellCmd.Run(); err != nil {
				fmt.Printf("Error upgrading sKV: %v\n", err)
				os.Exit(1)
			}

			fmt.Println("sKV has been successfully upgraded!")
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(shell.ShellCmd)
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(bench.BenchCmd)
	RootCmd.AddCommand(versionCmd)
	RootCmd.AddCommand(upgradeCmd)

	// Add Flags for upgrade command
	upgradeCmd.Flags().String("path", "", "Installation path for the upgraded version")
	upgradeCmd.Flags().Bool("source", false, "Install from source instead of using pre-compiled binaries")

	// Add Flags
	key := "codec"
	RootCmd.PersistentFlags().String(key, "binary", util.WrapString("snapshot codec for the store file, checkpoints and archive (binary, gob, json)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
