package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	mortar "github.com/rphilander/mortar/core"
)

func serveCmd(g *globalFlags) *cobra.Command {
	var sockPath, modSockPath, dir, metricsAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a persistent session over a unix socket.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			interp, done, err := g.interpreter()
			if err != nil {
				return err
			}
			defer done()

			srv, err := mortar.NewServer(interp, sockPath, modSockPath, dir)
			if err != nil {
				return err
			}

			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(srv.Registry(), promhttp.HandlerOpts{}))
				go func() {
					if err := http.ListenAndServe(metricsAddr, mux); err != nil {
						log.Printf("metrics server: %v", err)
					}
				}()
			}

			// Handle shutdown signals
			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigs
				log.Println("shutting down...")
				srv.Shutdown()
				done()
				os.Exit(0)
			}()

			log.Printf("mortar listening (socket: %s, modules: %q, session dir: %q, metrics: %q)", sockPath, modSockPath, dir, metricsAddr)
			srv.Run()
			return nil
		},
	}
	cmd.Flags().StringVar(&sockPath, "sock", envOr("MORTAR_SOCK", "/tmp/mortar.sock"), "Unix socket to listen on")
	cmd.Flags().StringVar(&modSockPath, "mod-sock", envOr("MORTAR_MOD_SOCK", "/tmp/mortar-mod.sock"), "Unix socket modules connect to; disabled if empty")
	cmd.Flags().StringVar(&dir, "dir", os.Getenv("MORTAR_DIR"), "Directory for the session log; in memory if empty")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
