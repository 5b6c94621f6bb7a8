package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/cuemby/rdctrack/pkg/server"
)

var showEnvCmd = &cobra.Command{
	Use:   "show-env",
	Short: "Print the worker environment dictionary a launcher would export",
	Long: `show-env resolves the host IP the same way run does and prints the
RDC_* environment variables a job launcher hands to each worker process
(spec.md §6), without starting a listener.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		nworker, _ := cmd.Flags().GetInt("num-workers")
		hostIPMode, _ := cmd.Flags().GetString("host-ip-mode")
		restart, _ := cmd.Flags().GetBool("restart")
		pendingNodes, _ := cmd.Flags().GetInt("pending-nodes")

		hostIP, err := server.ResolveHostIP(server.HostIPMode(hostIPMode))
		if err != nil {
			return fmt.Errorf("resolve host ip: %w", err)
		}
		if port == 0 {
			port, err = server.ProbePort(hostIP)
			if err != nil {
				return fmt.Errorf("probe free port: %w", err)
			}
		}

		env := server.BuildEnv(hostIP, port, nworker)
		if restart {
			env = env.WithRestart(pendingNodes)
		}

		keys := make([]string, 0)
		m := env.ToMap()
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("%s=%s\n", k, m[k])
		}
		return nil
	},
}

func init() {
	showEnvCmd.Flags().Int("port", 0, "tracker port to advertise; 0 probes a free port")
	showEnvCmd.Flags().Int("num-workers", 1, "world size to advertise")
	showEnvCmd.Flags().String("host-ip-mode", string(server.HostIPAuto), "host IP resolution mode: auto, ip, or dns")
	showEnvCmd.Flags().Bool("restart", false, "add RDC_RESTART/RDC_PENDING_NODES as if joining an in-progress job")
	showEnvCmd.Flags().Int("pending-nodes", 0, "value for RDC_PENDING_NODES when --restart is set")
}
