package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(whoamiCmd)
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Print the account id this node signs events with",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		kp, err := nodeKeypair()
		if err != nil {
			return err
		}
		fmt.Println(kp.PublicKeyHex())
		return nil
	},
}
