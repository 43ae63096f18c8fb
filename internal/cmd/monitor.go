package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/avtomon/wsChat/internal/monitor"
)

func newMonitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Live terminal dashboard of connections and routing activity",
		RunE:  runMonitor,
	}
	cmd.Flags().String("url", "", "base URL of the relay (default: derived from server.addr)")
	cmd.Flags().String("token", "", "admin API token (default: $WSCHAT_TOKEN, or minted from auth.jwt_secret)")
	cmd.Flags().Duration("interval", 2*time.Second, "poll interval")
	return cmd
}

func runMonitor(cmd *cobra.Command, args []string) error {
	baseURL, _ := cmd.Flags().GetString("url")
	token, _ := cmd.Flags().GetString("token")
	interval, _ := cmd.Flags().GetDuration("interval")

	if token == "" {
		token = os.Getenv("WSCHAT_TOKEN")
	}

	if baseURL == "" || token == "" {
		cfg, _, err := loadConfig(cmd, nil)
		if err != nil {
			return err
		}
		if baseURL == "" {
			baseURL = baseURLFromAddr(cfg.Server.Addr, cfg.Server.TLSCert != "")
		}
		if token == "" {
			resp, err := issueToken(cfg, "wschat-monitor", cfg.Auth.AdminRole, time.Hour)
			if err != nil {
				return fmt.Errorf("no --token given: %w", err)
			}
			token = resp.Token
		}
	}

	return monitor.Run(baseURL, token, interval)
}

// baseURLFromAddr turns a listen address such as ":8080" into a local URL.
func baseURLFromAddr(addr string, tls bool) string {
	scheme := "http"
	if tls {
		scheme = "https"
	}
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	addr = strings.Replace(addr, "0.0.0.0:", "localhost:", 1)
	return scheme + "://" + addr
}
