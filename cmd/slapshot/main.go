package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "slapshot",
	Short: "Slapshot Snapshot team media sharing backend",
	Long:  "Slapshot Snapshot is the backend for a youth hockey team media-sharing app: accounts, teams with join codes, rosters with roles, invite tracking, and shared photos and videos.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: configs/slapshot.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
