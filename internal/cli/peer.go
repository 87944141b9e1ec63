package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/weftmesh/weft/internal/daemon"
)

func init() {
	rootCmd.AddCommand(peerCmd)
	peerCmd.AddCommand(peerListCmd)
}

var peerCmd = &cobra.Command{
	Use:   "peer",
	Short: "Inspect a running node's peer view",
}

var peerListCmd = &cobra.Command{
	Use:   "ls",
	Short: "List the active peers a running node is connected to",
	RunE:  runPeerList,
}

func runPeerList(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.Load(configPath)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 5 * time.Second}
	url := fmt.Sprintf("http://%s:%d/debug/peers", cfg.API.Host, cfg.API.Port)
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("peer ls: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		Active []string `json:"active"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("peer ls: decode response: %w", err)
	}
	for _, p := range out.Active {
		fmt.Fprintln(cmd.OutOrStdout(), p)
	}
	return nil
}
