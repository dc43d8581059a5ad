package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

// healthCmd represents the health command
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check worker health",
	Long: `Probe the worker's /healthz endpoint.

Example:
  smithctl health --worker localhost:8083`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := &http.Client{Timeout: timeout}
		start := time.Now()
		resp, err := client.Get(fmt.Sprintf("http://%s/healthz", workerAddr))
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		defer resp.Body.Close()

		var status struct {
			OK       bool   `json:"ok"`
			Message  string `json:"message,omitempty"`
			Database bool   `json:"database,omitempty"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			return fmt.Errorf("failed to decode health response: %w", err)
		}

		if outputJSON {
			printOutput(status)
			return nil
		}

		fmt.Printf("Worker %s: ok=%v db=%v (%s, %d)\n",
			workerAddr, status.OK, status.Database, time.Since(start).Round(time.Millisecond), resp.StatusCode)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
