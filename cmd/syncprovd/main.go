package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "syncprovd",
	Short: "syncprovd - sync-provider daemon",
	Long: `syncprovd embeds the sync-provider core (CSN clock, session log,
event matcher, refresh engine) against a SQLite entry store and serves
consumer sync searches over WebSocket.`,
}

var configFile string

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to an explicit config file")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
