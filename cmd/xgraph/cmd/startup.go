package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

type StartupCmd struct {
	BaseCmd
}

func GetStartupCmd() *StartupCmd {
	startupCmdIns := new(StartupCmd)

	var envCfgPath string

	startupCmdIns.cmd = &cobra.Command{
		Use:           "startup",
		Short:         "Start up the chain node.",
		Example:       "xgraph startup --conf /home/rd/xgraph/conf/env.yaml",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Startup(envCfgPath)
		},
	}
	startupCmdIns.cmd.Flags().StringVarP(&envCfgPath, "conf", "c", "",
		"engine environment config file path")

	return startupCmdIns
}

// Startup runs the engine until it exits or the process is signalled.
func Startup(envCfgPath string) error {
	engine, err := createEngine(envCfgPath)
	if err != nil {
		return err
	}

	engChan := make(chan struct{})
	go func() {
		engine.Run()
		close(engChan)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(sigChan)
	select {
	case <-engChan:
	case sig := <-sigChan:
		engine.GetEngineCtx().XLog.Info("receive exit signal", "signal", sig.String())
		// 退出调用幂等
		engine.Exit()
		<-engChan
	}
	return nil
}
