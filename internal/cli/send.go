package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lanternchat/sdk-go/pkg/api/commands"
	"github.com/lanternchat/sdk-go/pkg/driver"
	"github.com/lanternchat/sdk-go/pkg/models"
)

var (
	sendReply  string
	sendTTS    bool
	sendAttach []string
	sendJSON   bool
)

var sendCmd = &cobra.Command{
	Use:   "send <room-id> <text...>",
	Short: "Post a message to a room",
	Long: `Post a message to a room. Use "-" as the text to read it from stdin.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		room, err := models.ParseSnowflake(args[0])
		if err != nil {
			return fmt.Errorf("room id: %w", err)
		}
		content := strings.Join(args[1:], " ")
		if content == "-" {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}
			content = strings.TrimRight(string(data), "\n")
		}
		body, err := buildMessage(content, sendReply, sendAttach, sendTTS)
		if err != nil {
			return err
		}

		d, err := newDriver(app.cfg, app.logger, nil)
		if err != nil {
			return err
		}
		if err := requireAuth(d); err != nil {
			return err
		}
		msg, err := postMessage(cmd.Context(), d, room, body)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if sendJSON {
			return json.NewEncoder(out).Encode(msg)
		}
		printSuccess(out, "Sent "+msg.ID.String())
		return nil
	},
}

func init() {
	sendCmd.Flags().StringVar(&sendReply, "reply", "", "Reply to this message ID")
	sendCmd.Flags().BoolVar(&sendTTS, "tts", false, "Text-to-speech")
	sendCmd.Flags().StringSliceVar(&sendAttach, "attach", nil, "Attach uploaded file IDs")
	sendCmd.Flags().BoolVar(&sendJSON, "json", false, "Print the created message as JSON")
}

func buildMessage(content, reply string, attach []string, tts bool) (commands.CreateMessageBody, error) {
	body := commands.CreateMessageBody{Content: content, TTS: tts}
	if reply != "" {
		id, err := models.ParseSnowflake(reply)
		if err != nil {
			return body, fmt.Errorf("--reply: %w", err)
		}
		body.Parent = id
	}
	for _, raw := range attach {
		id, err := models.ParseSnowflake(raw)
		if err != nil {
			return body, fmt.Errorf("--attach: %w", err)
		}
		body.Attachments = append(body.Attachments, id)
	}
	if strings.TrimSpace(body.Content) == "" && len(body.Attachments) == 0 {
		return body, errors.New("message needs content or an attachment")
	}
	return body, nil
}

// postMessage sends and journals a CreateMessage.
func postMessage(ctx context.Context, d *driver.Driver, room models.Snowflake, body commands.CreateMessageBody) (*models.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	start := time.Now()
	msg, err := driver.Execute(ctx, d, commands.CreateMessage{RoomID: room, Msg: body})
	scope := restScope{room: room}
	if msg != nil {
		scope.party = msg.PartyID
	}
	recordREST(app.cfg, "CreateMessage", scope, start, err)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return msg, nil
}
