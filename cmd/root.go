/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>

*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "routine-gin",
	Short: "Routine scheduling and execution API server",
	Long: `Routine Gin is a REST API server for recurring operational routines.
It evaluates recurrence rules, tracks execution lifecycles with pause/resume
and durable elapsed-time checkpoints, enforces checklist completion gates,
and aggregates planned versus executed counts per organizational scope.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// GetRootCmd 返回根命令（用于测试）
func GetRootCmd() *cobra.Command {
	return rootCmd
}
