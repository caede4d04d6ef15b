package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/konvergen/voicegate/internal/config"
	"github.com/konvergen/voicegate/internal/version"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show voicegate status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("voicegate %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Printf("Config:  %s\n", paths.Config)
			fmt.Printf("Data:    %s\n", paths.Data)
			fmt.Printf("Logs:    %s\n", paths.Logs)
			fmt.Println()

			// Load swallows a missing file and returns defaults, so the
			// absence has to be reported from a stat.
			if _, statErr := os.Stat(paths.Config); os.IsNotExist(statErr) {
				fmt.Println("Config:  not found (using defaults)")
			}

			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Printf("Config:  error loading: %v\n", err)
				return nil
			}

			fmt.Printf("Server:  port=%d bind=%s\n", cfg.Server.Port, cfg.Server.Bind)
			fmt.Printf("Session: store=%s idle=%dm sweep=%dm\n",
				cfg.Session.Store, cfg.Session.IdleMinutes, cfg.Session.SweepMinutes)
			fmt.Printf("Emotion: backend=%s ttl=%dm\n",
				cfg.Emotion.BackendURL, cfg.Emotion.CacheTTLMinutes)

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Printf("\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Printf("  - %s: %s\n", issue.Path, issue.Message)
				}
			}

			// Try the live server; absence is not an error.
			client := &http.Client{Timeout: 2 * time.Second}
			resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/status", cfg.Server.Port))
			if err != nil {
				fmt.Println("\nServer:  not running")
				return nil
			}
			defer resp.Body.Close()

			var live struct {
				ActiveSessions int    `json:"activeSessions"`
				Connections    int    `json:"connections"`
				Uptime         string `json:"uptime"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&live); err != nil {
				fmt.Println("\nServer:  running (unreadable status)")
				return nil
			}
			fmt.Printf("\nServer:  running uptime=%s sessions=%d connections=%d\n",
				live.Uptime, live.ActiveSessions, live.Connections)
			return nil
		},
	}
}
