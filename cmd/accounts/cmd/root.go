package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "accounts",
	Short: "User account service: registration, login and JWT sessions",
	Long: `accounts serves the /api/v1/users API: registration with avatar uploads,
login and logout, access/refresh token rotation, password changes and profile updates.

Configuration is read from the environment, .env.local and .env.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
