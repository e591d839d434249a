package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"go-notification-realtime/internal/infrastructure/config"
)

type eventRequest struct {
	Type    string         `json:"type"`
	Data    map[string]any `json:"data,omitempty"`
	UserID  string         `json:"user_id,omitempty"`
	Channel string         `json:"channel,omitempty"`
}

func publishCmd(cfg *config.Config) *cobra.Command {
	var (
		serverURL string
		userID    string
		channel   string
		fields    []string
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "publish <type>",
		Short: "Publish an event",
		Long: `Publish an event through the push server API.

Payload fields are given as key=value; values that parse as JSON keep
their type, anything else is sent as a string:

  notifyctl publish stock_alert -u u1 -d product_name="iPhone 14" -d current_stock=2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := parseFields(fields)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			req := eventRequest{Type: args[0], Data: data, UserID: userID, Channel: channel}
			if err := postEvent(ctx, http.DefaultClient, serverURL, req); err != nil {
				return err
			}
			success("published %s", req.Type)
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", defaultServerURL(cfg.HTTPAddr), "Push server base URL")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "Target user (all users when empty)")
	cmd.Flags().StringVarP(&channel, "channel", "c", "", "Target channel (all channels when empty)")
	cmd.Flags().StringArrayVarP(&fields, "data", "d", nil, "Payload field as key=value (repeatable)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")

	return cmd
}

func defaultServerURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func parseFields(fields []string) (map[string]any, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	data := make(map[string]any, len(fields))
	for _, f := range fields {
		key, raw, ok := strings.Cut(f, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q: expected key=value", f)
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		data[key] = value
	}
	return data, nil
}

func postEvent(ctx context.Context, client *http.Client, serverURL string, event eventRequest) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(serverURL, "/")+"/api/v1/events", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("publish %s: server answered %s: %s", event.Type, resp.Status, strings.TrimSpace(string(msg)))
	}
	return nil
}
