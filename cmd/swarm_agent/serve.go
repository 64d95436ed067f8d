package main

import (
	"github.com/spf13/cobra"

	"github.com/jonathan/content-swarm/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long:  `Start an HTTP server exposing task progress, scheduling queries, rankings and cancellation.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (default: config port or 8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	rt, err := openRuntime(cmd.Context(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()

	port := rt.cfg.Port
	if servePort != 0 {
		port = servePort
	}
	srv := server.New(server.Config{Port: port}, rt.svc, rt.logger)
	return srv.Start()
}
