package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "dormd",
		Short:         "Dormitory housing application and room allocation service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("config", "", "path to the YAML config (default $CONFIG_PATH or ./config/config.yaml)")

	rootCmd.AddCommand(
		ServeCmd(),
		ExportCmd(),
		ImportCmd(),
		AllocateAutoCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
