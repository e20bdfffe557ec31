// Command mcpgateway supervises a fleet of MCP servers behind one HTTP
// control plane, and doubles as a CLI client for that control plane
// (spec.md §6), built as a cobra command tree.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mcpgateway/internal/config"
	"mcpgateway/internal/fleet"
	"mcpgateway/internal/httpapi"
)

var (
	flagHost            string
	flagPort            int
	flagFleetConfigPath string
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "mcpgateway",
		Short: "Supervises and fronts a fleet of MCP servers",
	}
	root.PersistentFlags().StringVar(&flagHost, "host", "127.0.0.1", "gateway host for CLI subcommands")
	root.PersistentFlags().IntVar(&flagPort, "port", config.DefaultPort, "gateway port")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the supervisor and HTTP control plane",
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&flagFleetConfigPath, "config", "", "path to the fleet config JSON (default: "+config.DefaultFleetConfigPath+")")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Print the fleet's current status",
		RunE:  runStatus,
	}
	toolsCmd := &cobra.Command{
		Use:   "tools",
		Short: "Print the tools exposed by every running child",
		RunE:  runTools,
	}
	startCmd := &cobra.Command{
		Use:   "start <name|all>",
		Short: "Start a child, or every configured child",
		Args:  cobra.ExactArgs(1),
		RunE:  runStart,
	}
	stopCmd := &cobra.Command{
		Use:   "stop <name|all>",
		Short: "Stop a child, or every configured child",
		Args:  cobra.ExactArgs(1),
		RunE:  runStop,
	}
	killCmd := &cobra.Command{
		Use:   "kill",
		Short: "Stop every child and terminate the gateway process",
		RunE:  runKill,
	}

	root.AddCommand(serveCmd, statusCmd, toolsCmd, startCmd, stopCmd, killCmd)
	return root
}

func runServe(cmd *cobra.Command, args []string) error {
	appCfg := config.LoadAppConfig()
	if flagPort != config.DefaultPort {
		appCfg.Server.Port = flagPort
	}
	if flagFleetConfigPath != "" {
		appCfg.FleetConfigPath = flagFleetConfigPath
	}

	logger, cleanup := httpapi.SetupLogger(appCfg)
	defer cleanup()
	slog.SetDefault(logger)
	logger.Info("gateway starting", "port", appCfg.Server.Port, "fleet_config", appCfg.FleetConfigPath)

	fleetCfg := config.LoadFleetConfig(appCfg.FleetConfigPath)
	f := fleet.New(fleetCfg)
	f.Start(fleet.All)

	server := httpapi.New(appCfg, f)

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.ListenAndServe() }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("server failed", "error", err)
			return err
		}
	case <-sig:
		logger.Info("signal received, shutting down")
	case <-server.KillRequested():
		logger.Info("kill requested over http, shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("http shutdown forced", "error", err)
	}

	fleetCtx, fleetCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer fleetCancel()
	f.Shutdown(fleetCtx)

	logger.Info("gateway stopped")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	out, err := httpapi.NewClient(flagHost, flagPort).Status()
	printResult(out, err)
	return err
}

func runTools(cmd *cobra.Command, args []string) error {
	out, err := httpapi.NewClient(flagHost, flagPort).Tools()
	printResult(out, err)
	return err
}

func runStart(cmd *cobra.Command, args []string) error {
	out, err := httpapi.NewClient(flagHost, flagPort).Start(args[0])
	printResult(out, err)
	return err
}

func runStop(cmd *cobra.Command, args []string) error {
	out, err := httpapi.NewClient(flagHost, flagPort).Stop(args[0])
	printResult(out, err)
	return err
}

func runKill(cmd *cobra.Command, args []string) error {
	out, err := httpapi.NewClient(flagHost, flagPort).Kill()
	printResult(out, err)
	return err
}

func printResult(out []byte, err error) {
	if len(out) > 0 {
		fmt.Println(string(out))
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}
