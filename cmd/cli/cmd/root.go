package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "coordctl",
	Short: "Coordctl is the command line tool for the coordplane coordination root",
	Long: `coordctl is the command-line interface for coordplane, a filesystem-backed
coordination core for fleets of autonomous agents sharing one directory tree.

Everything lives under a single coordination root (default .coordplane):
content-addressed task records, advisory scope locks, agent presence and
messaging, the orchestrator mailbox, and a durable job queue.

Common workflows:

  Inspect and fulfill suspended tasks:
    coordctl task list
    coordctl task prompt <task-id>
    coordctl task complete <task-id> --file result.txt

  Declare an advisory lock before touching shared files:
    coordctl lock create --mode exclusive --scope "configs/**" --ttl 30m

  Talk to the orchestrator:
    coordctl orch send rebalance --wait 10s
    coordctl orch status

  Manage the job queue:
    coordctl job add my-channel my-video --max-retries 2
    coordctl job list --status failed
    coordctl job retry <job-id>

Configuration:
  Set the coordination root and agent identity via flags, environment
  variables, or a config file:
    COORDPLANE_ROOT     coordination root directory (default: .coordplane)
    COORDPLANE_AGENT    agent name (default: hostname)`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".coordctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".coordctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "COORDPLANE_VARNAME"
	viper.SetEnvPrefix("COORDPLANE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.coordctl.yaml)")

	rootCmd.PersistentFlags().String("root", "", "coordination root directory (default .coordplane)")
	viper.BindPFlag("root", rootCmd.PersistentFlags().Lookup("root"))

	rootCmd.PersistentFlags().StringP("agent", "a", "", "agent name used for claims, locks and notes")
	viper.BindPFlag("agent", rootCmd.PersistentFlags().Lookup("agent"))
}
