package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/xuperchain/xupergraph/cmd/xgraph/cmd"
)

func main() {
	rootCmd, err := NewServiceCommand()
	if err != nil {
		log.Fatalf("start service failed.err:%v", err)
	}

	if err = rootCmd.Execute(); err != nil {
		log.Fatalf("xgraph exit with error.err:%v", err)
	}
}

func NewServiceCommand() (*cobra.Command, error) {
	rootCmd := &cobra.Command{
		Use:           "xgraph <command> [arguments]",
		Short:         "xgraph runs a delegated proof of stake chain node.",
		Long:          "xgraph runs a delegated proof of stake chain node with Lua contracts.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Example:       "xgraph startup --conf /home/rd/xgraph/conf/env.yaml",
	}

	rootCmd.AddCommand(cmd.GetStartupCmd().GetCmd())
	rootCmd.AddCommand(cmd.GetReindexCmd().GetCmd())
	rootCmd.AddCommand(cmd.GetStatusCmd().GetCmd())
	rootCmd.AddCommand(cmd.GetVersionCmd().GetCmd())
	return rootCmd, nil
}
