package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cmcintosh36/grumpy/cache"
	"github.com/cmcintosh36/grumpy/server"
)

var (
	servePort     int
	serveGRPCPort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the compile service over Connect (HTTP/JSON) and gRPC",
	Long: `Serve grumpy.v1.CompileService.

Connect (HTTP/JSON) listens on --port and native gRPC on --grpc-port; both
default to the manifest's [server] section. Builds go through the build
cache when [cache] is enabled.

Example:
  curl -H 'Content-Type: application/json' -d '"% (+ 1 2)"' \
    http://localhost:8080/grumpy.v1.CompileService/Run`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := loadManifest()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			m.Server.Port = servePort
		}
		if cmd.Flags().Changed("grpc-port") {
			m.Server.GRPCPort = serveGRPCPort
		}

		opts := []server.Option{
			server.WithMaxDepth(m.Build.MaxDepth),
			server.WithLimits(m.Run.MaxSteps, m.Run.MaxStack, m.Run.MaxHeap),
		}
		if m.Cache.Enabled {
			c, err := cache.Open(m.CachePath())
			if err != nil {
				return err
			}
			defer c.Close()
			opts = append(opts, server.WithCache(c))
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv := server.New(opts...)
		return srv.ListenAndServe(ctx,
			fmt.Sprintf(":%d", m.Server.Port),
			fmt.Sprintf(":%d", m.Server.GRPCPort),
		)
	},
}

var lspCmd = &cobra.Command{
	Use:   "lsp",
	Short: "Run the language server on stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := loadManifest()
		if err != nil {
			return err
		}
		return server.NewLSP(m.Build.MaxDepth).Run()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Connect HTTP port (default from manifest)")
	serveCmd.Flags().IntVar(&serveGRPCPort, "grpc-port", 0, "gRPC port (default from manifest)")

	rootCmd.AddCommand(serveCmd, lspCmd)
}
