package cmd

import (
	"github.com/spf13/cobra"

	xconf "github.com/xuperchain/xupergraph/kernel/common/xconfig"
	"github.com/xuperchain/xupergraph/kernel/engines"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/def"
)

type BaseCmd struct {
	// cobra command
	cmd *cobra.Command
}

func (t *BaseCmd) SetCmd(cmd *cobra.Command) {
	t.cmd = cmd
}

func (t *BaseCmd) GetCmd() *cobra.Command {
	return t.cmd
}

// createEngine loads the env config and opens every chain of the node.
func createEngine(envCfgPath string) (*xuperos.XuperOSEngine, error) {
	envConf, err := xconf.LoadEnvConf(envCfgPath)
	if err != nil {
		return nil, err
	}
	engine, err := engines.CreateBCEngine(def.BCEngineName, envConf)
	if err != nil {
		return nil, err
	}
	return xuperos.EngineConvert(engine)
}
