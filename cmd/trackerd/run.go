package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/rdctrack/pkg/log"
	"github.com/cuemby/rdctrack/pkg/server"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the tracker server for one collective job",
	Long: `run starts a single tracker server: it binds the listen address,
waits for nworker worker connections to complete the start rendezvous, and
then continues brokering barriers, the named exclusive-section mutex,
heartbeats, and checkpoints until the process receives SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		listenAddr, _ := cmd.Flags().GetString("listen")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		nworker, _ := cmd.Flags().GetInt("num-workers")
		hostIPMode, _ := cmd.Flags().GetString("host-ip-mode")

		hostIP, err := server.ResolveHostIP(server.HostIPMode(hostIPMode))
		if err != nil {
			return fmt.Errorf("resolve host ip: %w", err)
		}

		srv := server.New(server.Config{
			ListenAddr:  listenAddr,
			MetricsAddr: metricsAddr,
			NWorker:     nworker,
		})

		log.WithComponent("trackerd").Info().
			Str("host_ip", hostIP).
			Int("num_workers", nworker).
			Str("listen_addr", listenAddr).
			Msg("starting tracker")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return srv.ListenAndServe(ctx)
	},
}

func init() {
	runCmd.Flags().String("listen", ":9091", "TCP address the tracker binds for worker connections")
	runCmd.Flags().String("metrics-addr", "", "address to expose /metrics on, empty disables it")
	runCmd.Flags().Int("num-workers", 1, "initial world size for this job")
	runCmd.Flags().String("host-ip-mode", string(server.HostIPAuto), "host IP resolution mode: auto, ip, or dns")
}
