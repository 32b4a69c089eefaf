package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/spf13/cobra"
)

var (
	setTTL      int64
	setDataType string

	setCmd = &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Sets the value for a key (creates or updates)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			value, err := store.ParseLiteral(setDataType, args[1])
			if err != nil {
				return err
			}
			ttl := time.Duration(setTTL) * time.Second
			if err := apiClient.Set(context.Background(), key, value, ttl); err != nil {
				return err
			}
			fmt.Println("set successfully")
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			value, found, err := apiClient.Get(context.Background(), key)
			if err != nil {
				return err
			}
			if !found {
				fmt.Printf("key=%s, found=false\n", key)
				return nil
			}
			fmt.Printf("key=%s, found=true, type=%s, value=%s\n", key, value.Kind, value.Text())
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key]",
		Short: "Deletes a key value pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			deleted, err := apiClient.Delete(context.Background(), key)
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, deleted=%t\n", key, deleted)
			return nil
		},
	}
	keysCmd = &cobra.Command{
		Use:   "keys",
		Short: "Lists all keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			keys, err := apiClient.Keys(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("%d keys\n", len(keys))
			for _, key := range keys {
				fmt.Println(key)
			}
			return nil
		},
	}
	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Prints the aggregated system statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats, err := apiClient.Stats(context.Background())
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(stats, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Probes the health of the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			health, err := apiClient.Health(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("status=%s, keys=%d, cache_hit_rate=%.2f%%\n",
				health.Status, health.Database.TotalKeys, health.Cache.HitRate)
			return nil
		},
	}
)

func init() {
	setCmd.Flags().Int64Var(&setTTL, "ttl", 0, "Time to live in seconds (0 for no expiry)")
	setCmd.Flags().StringVar(&setDataType, "type", "string", "Data type of the value (string, number, json, list)")
}
