package cli

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/weftmesh/weft/internal/api"
	"github.com/weftmesh/weft/internal/daemon"
	"github.com/weftmesh/weft/internal/domain"
	"github.com/weftmesh/weft/internal/infra/transport"
)

func init() {
	rootCmd.AddCommand(nodeCmd)
	nodeCmd.AddCommand(nodeStartCmd)
}

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Run and inspect a gossip membership node",
}

var nodeStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the node's membership engine, transport, and debug API",
	RunE:  runNodeStart,
}

func runNodeStart(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.Load(configPath)
	if err != nil {
		return err
	}

	listenAddr, err := transport.ParseAddr(cfg.Transport.ListenAddr)
	if err != nil {
		return fmt.Errorf("node start: %w", err)
	}
	localID := domain.PeerId(listenAddr)

	node, err := daemon.NewNode(cfg, localID, listenAddr)
	if err != nil {
		return err
	}
	defer node.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := api.NewServer(node.Engine(), node.Identities(), node.Registry())
	go serveDebugAPI(ctx, cfg.API.Host, cfg.API.Port, server)

	return node.Run(ctx)
}

func serveDebugAPI(ctx context.Context, host string, port int, server *api.Server) {
	addr := fmt.Sprintf("%s:%d", host, port)
	srv := &http.Server{Addr: addr, Handler: server.Handler()}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	_ = srv.ListenAndServe()
}
