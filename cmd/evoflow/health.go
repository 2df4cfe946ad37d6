package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/BaSui01/evoflow/internal/tlsutil"
	"github.com/spf13/cobra"
)

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func healthCmd() *cobra.Command {
	var addr string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the readiness of a running stream server",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := tlsutil.HTTPClient(timeout)
			resp, err := client.Get(addr + "/ready")
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("health check failed: status %d", resp.StatusCode)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8090", "Stream server address")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Request timeout")
	return cmd
}
