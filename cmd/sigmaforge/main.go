package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	forge "github.com/sigmanauts/sigmaforge/pkg"
)

func main() {
	var configPath string
	var config forge.Config

	rootCmd := &cobra.Command{
		Use:   "sigmaforge",
		Short: "Keyless transaction-forging gateway for Ergo protocols",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if path == "" {
				path = os.Getenv("FORGE_CONFIG")
			}
			c, err := forge.LoadConfig(path)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			config = c
			applyFlagOverrides(cmd, &config)
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
			os.Exit(0)
		},
	}

	// Flags override whatever the config file and environment said.
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (TOML, JSON or YAML)")
	rootCmd.PersistentFlags().String("network", "", "Ledger network: mainnet or testnet")
	rootCmd.PersistentFlags().String("node-url", "", "Node REST API base URL")
	rootCmd.PersistentFlags().String("node-apikey", "", "Node api_key header value")
	rootCmd.PersistentFlags().String("webapi-bind", "", "Public API bind address")
	rootCmd.PersistentFlags().String("webapi-port", "", "Public API port")
	rootCmd.PersistentFlags().String("store-db-file", "", "Store path: sqlite file or postgres URL")
	rootCmd.PersistentFlags().String("store-db-driver", "", "Store driver: sqlite3 or postgres")

	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Start the SigmaForge server",
		Run: func(cmd *cobra.Command, args []string) {
			Server(config)
		},
	}

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(showConfCmd(&config))
	rootCmd.AddCommand(decodeCmd(&config))

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// applyFlagOverrides copies any flag the user actually set over the
// loaded config; unset flags leave the file and env values alone.
func applyFlagOverrides(cmd *cobra.Command, config *forge.Config) {
	set := func(name string, target *string) {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			*target = f.Value.String()
		}
	}
	set("network", &config.SigmaForge.Network)
	set("node-url", &config.Node.RestURL)
	set("node-apikey", &config.Node.APIKey)
	set("webapi-bind", &config.WebAPI.PubBind)
	set("webapi-port", &config.WebAPI.PubPort)
	set("store-db-file", &config.Store.DBFile)
	set("store-db-driver", &config.Store.DBDriver)
}
