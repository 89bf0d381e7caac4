package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// 通过编译参数设置
var (
	Version   = "0.0.0"
	CommitID  = "default"
	BuildTime = "default"
)

type versionCmd struct {
	BaseCmd
}

func GetVersionCmd() *versionCmd {
	versionCmdIns := new(versionCmd)

	versionCmdIns.cmd = &cobra.Command{
		Use:     "version",
		Short:   "view process version information.",
		Example: "xgraph version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), versionString())
		},
	}

	return versionCmdIns
}

func versionString() string {
	return fmt.Sprintf("%s-%s %s %s", Version, CommitID, BuildTime, runtime.Version())
}
