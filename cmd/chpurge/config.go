package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/platformbuilds/chpurge/internal/config"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configExampleCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configExampleCmd = &cobra.Command{
	Use:   "example",
	Short: "Print an example configuration file",
	Run: func(cmd *cobra.Command, args []string) {
		out, err := yaml.Marshal(config.Example())
		if err != nil {
			fmt.Fprintf(os.Stderr, "chpurge: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(string(out))
	},
}
