package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/lanternchat/sdk-go/pkg/api/commands"
	"github.com/lanternchat/sdk-go/pkg/driver"
	"github.com/lanternchat/sdk-go/pkg/models"
)

var (
	messagesLimit  uint8
	messagesBefore string
	messagesAfter  string
	messagesPinned bool
	messagesJSON   bool
)

var messagesCmd = &cobra.Command{
	Use:     "messages <room-id>",
	Aliases: []string{"history"},
	Short:   "Print recent messages in a room",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		room, err := models.ParseSnowflake(args[0])
		if err != nil {
			return fmt.Errorf("room id: %w", err)
		}
		q := commands.GetMessagesQuery{Limit: messagesLimit, Pinned: messagesPinned}
		if q.Before, err = optionalSnowflake(messagesBefore); err != nil {
			return fmt.Errorf("--before: %w", err)
		}
		if q.After, err = optionalSnowflake(messagesAfter); err != nil {
			return fmt.Errorf("--after: %w", err)
		}

		d, err := newDriver(app.cfg, app.logger, nil)
		if err != nil {
			return err
		}
		if err := requireAuth(d); err != nil {
			return err
		}
		msgs, err := fetchMessages(cmd.Context(), d, room, q)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if messagesJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(msgs)
		}
		if len(msgs) == 0 {
			fmt.Fprintln(out, "No messages.")
			return nil
		}
		for i := range msgs {
			fmt.Fprintln(out, formatMessage(&msgs[i]))
		}
		return nil
	},
}

func init() {
	messagesCmd.Flags().Uint8Var(&messagesLimit, "limit", 50, "Number of messages (1-100)")
	messagesCmd.Flags().StringVar(&messagesBefore, "before", "", "Only messages before this ID")
	messagesCmd.Flags().StringVar(&messagesAfter, "after", "", "Only messages after this ID")
	messagesCmd.Flags().BoolVar(&messagesPinned, "pinned", false, "Only pinned messages")
	messagesCmd.Flags().BoolVar(&messagesJSON, "json", false, "Print as JSON")
}

// fetchMessages returns the page oldest first. A missing room is an error
// here even though the driver maps 404 to an empty result.
func fetchMessages(ctx context.Context, d *driver.Driver, room models.Snowflake, q commands.GetMessagesQuery) ([]models.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	start := time.Now()
	page, err := driver.ExecuteOpt(ctx, d, commands.GetMessages{RoomID: room, Query: q})
	recordREST(app.cfg, "GetMessages", restScope{room: room}, start, err)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	if page == nil {
		return nil, fmt.Errorf("room %s not found", room)
	}
	msgs := slices.Clone(*page)
	slices.Reverse(msgs)
	return msgs, nil
}

func optionalSnowflake(raw string) (models.Snowflake, error) {
	if raw == "" {
		return 0, nil
	}
	return models.ParseSnowflake(raw)
}
