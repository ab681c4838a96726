package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	forge "github.com/sigmanauts/sigmaforge/pkg"
	"github.com/sigmanauts/sigmaforge/pkg/ergo"
)

// showConfCmd prints the fully resolved config: file, environment and
// flag overrides applied, so a deployment can be checked at a glance.
func showConfCmd(config *forge.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "showconf",
		Short: "Print the resolved config state and exit",
		Run: func(cmd *cobra.Command, args []string) {
			o, _ := json.MarshalIndent(config, "", "  ")
			fmt.Println(string(o))
		},
	}
}

// decodeCmd decodes an unsigned transaction payload offline and prints
// the same summary a signer wallet would be shown. Accepts the
// base64url payload from an envelope, or raw hex.
func decodeCmd(config *forge.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "decode <payload>",
		Short: "Decode an unsigned transaction payload and print its summary",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			network, err := ergo.ParseNetwork(config.SigmaForge.Network)
			if err != nil {
				fmt.Println(err)
				os.Exit(1)
			}

			raw, err := forge.DecodeTxPayload(args[0])
			if err != nil {
				if raw, err = ergo.HexDecode(args[0]); err != nil {
					fmt.Println("payload is neither base64url nor hex")
					os.Exit(1)
				}
			}

			tx, err := ergo.DecodeUnsignedTransaction(raw)
			if err != nil {
				fmt.Println(err)
				os.Exit(1)
			}
			summary, err := forge.SummarizeTx(tx, network)
			if err != nil {
				fmt.Println(err)
				os.Exit(1)
			}
			o, _ := json.MarshalIndent(summary, "", "  ")
			fmt.Println(string(o))
		},
	}
}
