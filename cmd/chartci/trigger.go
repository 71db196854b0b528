package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"chartci/internal/config"
	"chartci/internal/security"
)

func newTriggerCmd(opts *rootOptions) *cobra.Command {
	ev := &eventFlags{}
	var serverURL string
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Send an event to a running chartci server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret := os.Getenv(config.EnvWebhookSecret)
			if secret == "" {
				return fmt.Errorf("%s must be set to sign events", config.EnvWebhookSecret)
			}
			body, err := json.Marshal(ev.payload())
			if err != nil {
				return err
			}

			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost,
				strings.TrimRight(serverURL, "/")+"/events", bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("X-Hub-Signature-256", security.SignWebhook([]byte(secret), body))

			client := &http.Client{Timeout: 30 * time.Second}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("failed to send event: %w", err)
			}
			defer resp.Body.Close()

			out, _ := io.ReadAll(resp.Body)
			if resp.StatusCode != http.StatusAccepted {
				return fmt.Errorf("server rejected event (%s): %s", resp.Status, strings.TrimSpace(string(out)))
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	addEventFlags(cmd, ev)
	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Base URL of the chartci server")
	return cmd
}
