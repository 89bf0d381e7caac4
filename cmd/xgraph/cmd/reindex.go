package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

type ReindexCmd struct {
	BaseCmd
}

func GetReindexCmd() *ReindexCmd {
	reindexCmdIns := new(ReindexCmd)

	var (
		envCfgPath string
		chainName  string
	)

	reindexCmdIns.cmd = &cobra.Command{
		Use:           "reindex",
		Short:         "Rebuild the chain state by replaying the stored blocks.",
		Example:       "xgraph reindex --conf /home/rd/xgraph/conf/env.yaml --chain xgraph",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Reindex(envCfgPath, chainName)
		},
	}
	flags := reindexCmdIns.cmd.Flags()
	flags.StringVarP(&envCfgPath, "conf", "c", "", "engine environment config file path")
	flags.StringVarP(&chainName, "chain", "n", "", "chain to reindex, the root chain when empty")

	return reindexCmdIns
}

// Reindex wipes the object store of chainName and replays its blocks.
func Reindex(envCfgPath, chainName string) error {
	engine, err := createEngine(envCfgPath)
	if err != nil {
		return err
	}
	defer engine.Exit()

	if chainName == "" {
		chainName = engine.GetEngineCtx().EngCfg.RootChain
	}
	chain, err := engine.Get(chainName)
	if err != nil {
		return fmt.Errorf("reindex chain %s failed: %v", chainName, err)
	}
	if err := chain.Reindex(); err != nil {
		return fmt.Errorf("reindex chain %s failed: %v", chainName, err)
	}
	fmt.Printf("chain %s reindexed, head %d\n", chainName, chain.HeadBlockNum())
	return nil
}
