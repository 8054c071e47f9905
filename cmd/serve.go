package cmd

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stribert/striberts-quaaxtm-sub002/internal/mcpserver"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/metrics"
)

var metricsAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the topic map as MCP tools over stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := open(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		if metricsAddr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					s.log.Error("metrics server failed", zap.Error(err))
				}
			}()
			defer func() { _ = srv.Close() }()
			s.log.Info("serving metrics", zap.String("addr", metricsAddr))
		}

		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		tools := mcpserver.NewTools(s.tm, osfs.New(wd), s.log)
		s.log.Info("serving MCP over stdio", zap.String("topic_map", s.tm.Locator()))
		return mcpserver.ServeStdio(mcpserver.New(tools))
	},
}

func init() {
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Address for the Prometheus /metrics endpoint (disabled when empty)")
	rootCmd.AddCommand(serveCmd)
}
