package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AgentIsComing/live-screen-share-releases/internal/config"
	"github.com/AgentIsComing/live-screen-share-releases/internal/rendezvous"
	"github.com/AgentIsComing/live-screen-share-releases/internal/ui"
)

const healthTimeout = 6 * time.Second

var (
	healthOpts  config.Options
	healthStats bool
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the signaling server is reachable",
	Long: `Query the signaling server's /health endpoint.

Examples:
  livescreen health
  livescreen health -s wss://signal.example.com
  livescreen health --stats`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(healthOpts)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), healthTimeout)
		defer cancel()

		stop := ui.RunConnectionSpinner("Checking " + cfg.HealthURL)
		var body struct {
			OK bool `json:"ok"`
		}
		err = getJSON(ctx, cfg.HealthURL, &body)
		stop()
		if err != nil {
			return fmt.Errorf("signaling server unreachable: %w", err)
		}
		if !body.OK {
			return fmt.Errorf("signaling server at %s reported not ok", cfg.HealthURL)
		}
		ui.PrintSuccessf("Signaling server is healthy (%s)", cfg.HealthURL)

		if !healthStats {
			return nil
		}
		var stats rendezvous.Stats
		statsURL := strings.TrimSuffix(cfg.HealthURL, "/health") + "/stats"
		if err := getJSON(ctx, statsURL, &stats); err != nil {
			return fmt.Errorf("fetch stats: %w", err)
		}
		rows := make([]ui.RoomRow, 0, len(stats.Detail))
		for _, r := range stats.Detail {
			rows = append(rows, ui.RoomRow{RoomID: r.ID, HostID: r.HostID, State: r.State, Viewers: len(r.Viewers)})
		}
		fmt.Fprintln(ui.Output, ui.RoomTableView(rows))
		ui.PrintInfof("%d connected client(s)", stats.Clients)
		return nil
	},
}

func getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func init() {
	config.BindFlags(healthCmd.Flags(), &healthOpts)
	healthCmd.Flags().BoolVar(&healthStats, "stats", false, "also list rooms")
	rootCmd.AddCommand(healthCmd)
}
