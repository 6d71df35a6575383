package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/netlog/cli/tui"
	"github.com/pithecene-io/netlog/observer"
)

// WatchCommand returns the watch command. It attaches to a running
// netlogd's stats endpoint and renders a live terminal dashboard. Read-only:
// it never touches the write path.
func WatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Attach to a running netlogd and render a live stats dashboard",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "Daemon stats endpoint", Value: "http://localhost:9090/stats"},
			&cli.IntFlag{Name: "chunk-count", Usage: "Chunk ring size, for occupancy display", Value: 0},
			&cli.DurationFlag{Name: "timeout", Usage: "Per-request timeout", Value: 2 * time.Second},
		},
		Action: watchAction,
	}
}

func watchAction(c *cli.Context) error {
	addr := c.String("addr")
	client := &http.Client{Timeout: c.Duration("timeout")}

	fetch := tui.StatsFunc(func() observer.Stats {
		stats, err := fetchStats(client, addr)
		if err != nil {
			return observer.Stats{}
		}
		return stats
	})

	if err := tui.RunWatch(fetch, c.Int("chunk-count")); err != nil {
		return cli.Exit(fmt.Sprintf("watch: %v", err), 1)
	}
	return nil
}

func fetchStats(client *http.Client, addr string) (observer.Stats, error) {
	resp, err := client.Get(addr)
	if err != nil {
		return observer.Stats{}, fmt.Errorf("fetch stats from %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return observer.Stats{}, fmt.Errorf("fetch stats from %s: unexpected status %d", addr, resp.StatusCode)
	}

	var stats observer.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return observer.Stats{}, fmt.Errorf("decode stats from %s: %w", addr, err)
	}
	return stats, nil
}
