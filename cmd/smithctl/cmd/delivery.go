package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"
	"github.com/spf13/cobra"

	"github.com/hooksmith/hooksmith/internal/delivery"
)

// deliveryCmd represents the delivery command
var deliveryCmd = &cobra.Command{
	Use:   "delivery",
	Short: "Manage webhook deliveries",
	Long:  `Check delivery status, replay deliveries, and inspect the dead letter queue.`,
}

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status [delivery-id]",
	Short: "Show attempt history for a delivery",
	Long: `Show the current state and attempt history of a delivery.

Example:
  smithctl delivery status 3e0c1b62-6f24-4ef1-9b53-8b2f0a3d7c11`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deliveryID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid delivery id: %w", err)
		}
		limit, _ := cmd.Flags().GetInt("limit")

		st, cleanup, err := getStore(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		del, hook, err := st.DeliveryForDispatch(ctx, deliveryID)
		if err != nil {
			return fmt.Errorf("failed to load delivery: %w", err)
		}
		attempts, err := st.ListAttempts(ctx, deliveryID, limit)
		if err != nil {
			return fmt.Errorf("failed to list attempts: %w", err)
		}

		if outputJSON {
			printOutput(map[string]any{
				"delivery_id": del.ID,
				"webhook_id":  hook.ID,
				"target_url":  hook.TargetURL,
				"event_type":  del.EventType,
				"status":      del.Status,
				"attempt":     del.Attempt,
				"attempts":    attempts,
			})
			return nil
		}

		fmt.Printf("Delivery %s:\n", del.ID)
		fmt.Printf("  Webhook: %s (%s)\n", hook.ID, hook.TargetURL)
		fmt.Printf("  Event type: %s\n", del.EventType)
		fmt.Printf("  Status: %s after %d attempt(s)\n", del.Status, del.Attempt)
		if len(attempts) == 0 {
			fmt.Println("  No attempts recorded")
			return nil
		}
		for _, att := range attempts {
			fmt.Printf("\n  Attempt %d:\n", att.Seq)
			fmt.Printf("    Status: %s\n", att.Status)
			if att.StatusCode != nil {
				fmt.Printf("    HTTP Status: %d\n", *att.StatusCode)
			}
			fmt.Printf("    Duration: %s\n", att.Duration)
			if att.Response != "" {
				fmt.Printf("    Response: %s\n", att.Response)
			}
			fmt.Printf("    At: %s\n", att.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

// replayCmd represents the replay command
var replayCmd = &cobra.Command{
	Use:   "replay [delivery-id]",
	Short: "Replay a failed delivery",
	Long: `Reset a delivery to pending and publish a fresh task for it.

Example:
  smithctl delivery replay 3e0c1b62-6f24-4ef1-9b53-8b2f0a3d7c11`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deliveryID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid delivery id: %w", err)
		}

		st, cleanup, err := getStore(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		del, hook, err := st.DeliveryForDispatch(ctx, deliveryID)
		if err != nil {
			return fmt.Errorf("failed to load delivery: %w", err)
		}
		if err := st.MarkPending(ctx, deliveryID); err != nil {
			return fmt.Errorf("failed to reset delivery: %w", err)
		}

		task := delivery.Task{
			DeliveryID:  del.ID.String(),
			WebhookID:   hook.ID.String(),
			EventType:   del.EventType,
			Attempt:     del.Attempt,
			PublishedAt: time.Now().Format(time.RFC3339),
		}
		body, err := json.Marshal(task)
		if err != nil {
			return fmt.Errorf("failed to marshal task: %w", err)
		}

		producer, err := nsq.NewProducer(nsqdAddr, nsq.NewConfig())
		if err != nil {
			return fmt.Errorf("failed to create NSQ producer: %w", err)
		}
		defer producer.Stop()

		topic, _ := cmd.Flags().GetString("topic")
		if err := producer.Publish(topic, body); err != nil {
			return fmt.Errorf("failed to publish replay task: %w", err)
		}

		fmt.Printf("Replayed delivery %s (attempt %d so far) to topic %q\n", del.ID, del.Attempt, topic)
		return nil
	},
}

// dlqCmd represents the dlq command
var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "List dead letter queue entries",
	Long: `List deliveries that exhausted their retry budget.

Example:
  smithctl delivery dlq --limit 20`,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		st, cleanup, err := getStore(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		dead, err := st.ListDeadLetters(ctx, limit)
		if err != nil {
			return fmt.Errorf("failed to list DLQ: %w", err)
		}

		if outputJSON {
			printOutput(dead)
			return nil
		}

		fmt.Println("Dead Letter Queue entries:")
		if len(dead) == 0 {
			fmt.Println("  No entries found")
			return nil
		}
		for i, row := range dead {
			fmt.Printf("\n  Entry %d:\n", i+1)
			fmt.Printf("    Delivery ID: %s\n", row.DeliveryID)
			fmt.Printf("    Reason: %s\n", row.Reason)
			fmt.Printf("    At: %s\n", row.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deliveryCmd)
	deliveryCmd.AddCommand(statusCmd)
	deliveryCmd.AddCommand(replayCmd)
	deliveryCmd.AddCommand(dlqCmd)

	statusCmd.Flags().Int("limit", 10, "maximum number of attempts to show")
	replayCmd.Flags().String("topic", "deliveries", "NSQ topic to publish the replay task to")
	dlqCmd.Flags().Int("limit", 10, "maximum number of results")
}
