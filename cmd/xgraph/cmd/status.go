package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/reader"
)

type StatusCmd struct {
	BaseCmd
}

func GetStatusCmd() *StatusCmd {
	statusCmdIns := new(StatusCmd)

	var (
		envCfgPath string
		chainName  string
		slots      uint32
	)

	statusCmdIns.cmd = &cobra.Command{
		Use:           "status",
		Short:         "Print the head and the upcoming witness slots of a stored chain.",
		Example:       "xgraph status --conf /home/rd/xgraph/conf/env.yaml --chain xgraph --slots 5",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Status(cmd.OutOrStdout(), envCfgPath, chainName, slots)
		},
	}
	flags := statusCmdIns.cmd.Flags()
	flags.StringVarP(&envCfgPath, "conf", "c", "", "engine environment config file path")
	flags.StringVarP(&chainName, "chain", "n", "", "chain to inspect, the root chain when empty")
	flags.Uint32VarP(&slots, "slots", "s", 3, "upcoming slots to list")

	return statusCmdIns
}

type chainStatus struct {
	Chain     string                 `json:"chain"`
	Head      *reader.ChainStatus    `json:"head"`
	Witnesses []string               `json:"active_witnesses"`
	Upcoming  []reader.ScheduledSlot `json:"upcoming_slots"`
}

// Status opens the node's chains without starting them and prints the state
// of chainName.
func Status(out io.Writer, envCfgPath, chainName string, slots uint32) error {
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
		return fmt.Errorf("status of chain %s failed: %v", chainName, err)
	}
	return writeStatus(out, chainName, chain.Reader(), slots)
}

func writeStatus(out io.Writer, chainName string, r reader.Reader, slots uint32) error {
	head, err := r.GetChainStatus()
	if err != nil {
		return err
	}
	cons, err := r.GetConsStatus()
	if err != nil {
		return err
	}
	upcoming, err := r.GetUpcomingSlots(slots)
	if err != nil {
		return err
	}
	st := chainStatus{Chain: chainName, Head: head, Upcoming: upcoming}
	for _, w := range cons.ActiveWitnesses {
		st.Witnesses = append(st.Witnesses, w.String())
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}
