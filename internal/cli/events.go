package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"contest-settlement/internal/app"
	"contest-settlement/internal/config"
	"contest-settlement/internal/infra/rabbitmq"
)

// NewEventsCmd tails the settlement event queue.
func NewEventsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "Print settlement events as they arrive",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.RabbitMQ.URL == "" {
				return fmt.Errorf("rabbitmq url not configured")
			}
			out := cmd.OutOrStdout()
			return rabbitmq.Consume(cmd.Context(), cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue, func(e app.Event, payload json.RawMessage) error {
				_, err := fmt.Fprintf(out, "%s %s contest=%s id=%s %s\n",
					e.OccurredAt.Format("2006-01-02T15:04:05Z07:00"), e.Type, e.ContestID, e.ID, payload)
				return err
			})
		},
	}
}
