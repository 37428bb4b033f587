// Command proxy launches a single reverse proxy server instance from
// one route configuration file. It is a thin launcher: it starts one
// Server, wires OS signals to a graceful Stop, and exits.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/StartiOne/upstream-proxy/internal/dial"
	"github.com/StartiOne/upstream-proxy/internal/domain"
	"github.com/StartiOne/upstream-proxy/internal/httpmsg"
	"github.com/StartiOne/upstream-proxy/internal/interface/connection"
	"github.com/StartiOne/upstream-proxy/internal/interface/handler"
	"github.com/StartiOne/upstream-proxy/internal/interface/repository/logger"
	"github.com/StartiOne/upstream-proxy/internal/interface/repository/routetable"
	"github.com/StartiOne/upstream-proxy/internal/usecase"
)

const (
	defaultListenAddr  = ":10080"
	defaultRoutesFile  = "./configs/routes.yaml"
	defaultLogDir      = "./logs"
	defaultDialTimeout = dial.DefaultTimeout
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		listenAddr  string
		routesFile  string
		logDir      string
		dialTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Host-based reverse proxy with HTTP-level interception",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(listenAddr, routesFile, logDir, dialTimeout)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&listenAddr, "listen", defaultListenAddr, "address to accept client connections on")
	flags.StringVar(&routesFile, "routes", defaultRoutesFile, "path to the route table YAML file")
	flags.StringVar(&logDir, "log-dir", defaultLogDir, "directory for rotated log files")
	flags.DurationVar(&dialTimeout, "dial-timeout", defaultDialTimeout, "backend dial timeout")

	return cmd
}

func run(listenAddr, routesFile, logDir string, dialTimeout time.Duration) error {
	loggerRepo, err := logger.New(logDir, "proxy.log", logger.DefaultRotationConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer loggerRepo.Close()

	routes, err := routetable.New(routesFile, loggerRepo)
	if err != nil {
		return fmt.Errorf("failed to load route config: %w", err)
	}
	defer routes.Close()

	tracker := connection.New()
	dialer := &dial.Dialer{Timeout: dialTimeout}

	server := usecase.New(tracker, dialer, loggerRepo)
	// The resolver defers to routes.Table() on every lookup rather than
	// a one-time snapshot, so fsnotify-driven reloads take effect
	// immediately without the server ever calling SetConfig again.
	server.SetRouteResolver(func(msg *httpmsg.Message) (domain.Endpoint, bool) {
		return routes.Table().Lookup(msg.Host())
	})
	server.Start()

	proxyHandler := handler.NewProxyHandler(server, loggerRepo)

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		loggerRepo.Info("starting proxy server", map[string]interface{}{"listen": listenAddr})
		serveErr <- proxyHandler.ListenAndServe(listenAddr)
	}()

	select {
	case <-signalChan:
		loggerRepo.Info("shutdown signal received", nil)
	case err := <-serveErr:
		return err
	}

	server.Stop()
	loggerRepo.Info("shutdown complete", nil)
	return nil
}
