package cmd

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Generate an API token",
	Long: `Generate a random API token suitable for MCP_INSPECTOR_API_TOKEN.

The broker generates its own token at startup when none is configured;
this command is for provisioning a stable token up front.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return fmt.Errorf("generate token: %w", err)
		}
		fmt.Println(hex.EncodeToString(b))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}
