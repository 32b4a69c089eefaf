package kv

import (
	"github.com/ValentinKolb/sKV/client"
	"github.com/ValentinKolb/sKV/cmd/util"
	"github.com/spf13/cobra"
)

var (
	apiClient *client.Client

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:               "kv",
		Short:             "Perform key-value operations against a running sKV server",
		PersistentPreRunE: setupKVClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common client flags to the KV command
	util.SetupClientFlags(KeyValueCommands)

	// Add subcommands
	KeyValueCommands.AddCommand(setCmd)
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(delCmd)
	KeyValueCommands.AddCommand(keysCmd)
	KeyValueCommands.AddCommand(statsCmd)
	KeyValueCommands.AddCommand(healthCmd)
}

// setupKVClient initializes the REST client
func setupKVClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	// Create the REST client
	var err error
	apiClient, err = util.GetClient()

	return err
}
