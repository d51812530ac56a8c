package commands

import (
	"net/http"

	"github.com/lanternchat/sdk-go/pkg/api/command"
	"github.com/lanternchat/sdk-go/pkg/models"
)

var (
	createMessageSpec = command.Define[CreateMessage](http.MethodPost, "room/{room_id}/messages",
		command.Permissions(models.Permissions{Room: models.RoomViewRoom | models.RoomSendMessages}))
	editMessageSpec = command.Define[EditMessage](http.MethodPatch, "room/{room_id}/messages/{msg_id}",
		command.Permissions(models.Permissions{Room: models.RoomViewRoom | models.RoomSendMessages}))
	getMessageSpec = command.Define[GetMessage](http.MethodGet, "room/{room_id}/messages/{msg_id}",
		command.Permissions(models.Permissions{Room: models.RoomViewRoom | models.RoomReadMessageHistory}))
	getMessagesSpec = command.Define[GetMessages](http.MethodGet, "room/{room_id}/messages",
		command.Permissions(models.Permissions{Room: models.RoomViewRoom | models.RoomReadMessageHistory}))
	deleteMessageSpec = command.Define[DeleteMessage](http.MethodDelete, "room/{room_id}/messages/{msg_id}",
		command.Permissions(models.Permissions{Room: models.RoomViewRoom | models.RoomManageMessages}))
	startTypingSpec = command.Define[StartTyping](http.MethodPost, "room/{room_id}/typing",
		command.Permissions(models.Permissions{Room: models.RoomViewRoom | models.RoomSendMessages}))
	putReactionSpec = command.Define[PutReaction](http.MethodPut, "room/{room_id}/messages/{msg_id}/reactions/{emote_id}/@me",
		command.Permissions(models.Permissions{Room: models.RoomViewRoom | models.RoomAddReactions}))
)

// CreateMessageBody is the new message. Defaulted fields are left off the wire.
type CreateMessageBody struct {
	Content     string             `json:"content" cbor:"content"`
	Parent      models.Snowflake   `json:"parent,omitempty" cbor:"parent,omitempty"`
	Attachments []models.Snowflake `json:"attachments,omitempty" cbor:"attachments,omitempty"`
	TTS         bool               `json:"tts,omitempty" cbor:"tts,omitempty"`
}

// CreateMessage posts a message to a room.
type CreateMessage struct {
	command.Returns[models.Message]
	RoomID models.Snowflake
	Msg    CreateMessageBody
}

func (CreateMessage) Spec() *command.Spec     { return createMessageSpec }
func (c CreateMessage) PathValues() []string { return []string{c.RoomID.String()} }
func (c CreateMessage) Body() any            { return &c.Msg }

// EditMessageBody carries the replacement content.
type EditMessageBody struct {
	Content     string             `json:"content" cbor:"content"`
	Attachments []models.Snowflake `json:"attachments,omitempty" cbor:"attachments,omitempty"`
}

// EditMessage replaces a message's content.
type EditMessage struct {
	command.Returns[models.Message]
	RoomID models.Snowflake
	MsgID  models.Snowflake
	Edit   EditMessageBody
}

func (EditMessage) Spec() *command.Spec { return editMessageSpec }
func (c EditMessage) PathValues() []string {
	return []string{c.RoomID.String(), c.MsgID.String()}
}
func (c EditMessage) Body() any { return &c.Edit }

// GetMessage fetches one message.
type GetMessage struct {
	command.Returns[models.Message]
	RoomID models.Snowflake
	MsgID  models.Snowflake
}

func (GetMessage) Spec() *command.Spec { return getMessageSpec }
func (c GetMessage) PathValues() []string {
	return []string{c.RoomID.String(), c.MsgID.String()}
}

// GetMessagesQuery selects a page of history. It is sent as a query string.
type GetMessagesQuery struct {
	Before models.Snowflake `url:"before,omitempty" json:"before,omitempty" cbor:"before,omitempty"`
	After  models.Snowflake `url:"after,omitempty" json:"after,omitempty" cbor:"after,omitempty"`
	Limit  uint8            `url:"limit,omitempty" json:"limit,omitempty" cbor:"limit,omitempty"`
	Pinned bool             `url:"pinned,omitempty" json:"pinned,omitempty" cbor:"pinned,omitempty"`
}

// GetMessages lists messages in a room.
type GetMessages struct {
	command.Returns[[]models.Message]
	RoomID models.Snowflake
	Query  GetMessagesQuery
}

func (GetMessages) Spec() *command.Spec     { return getMessagesSpec }
func (c GetMessages) PathValues() []string { return []string{c.RoomID.String()} }
func (c GetMessages) Body() any            { return &c.Query }

// DeleteMessage removes a message.
type DeleteMessage struct {
	command.Returns[command.Empty]
	RoomID models.Snowflake
	MsgID  models.Snowflake
	Reason string
}

func (DeleteMessage) Spec() *command.Spec { return deleteMessageSpec }
func (c DeleteMessage) PathValues() []string {
	return []string{c.RoomID.String(), c.MsgID.String()}
}

// Headers attaches the audit log reason, if any.
func (c DeleteMessage) Headers(h http.Header) error {
	addAuditReason(h, c.Reason)
	return nil
}

// StartTyping broadcasts a typing indicator.
type StartTyping struct {
	command.Returns[command.Empty]
	RoomID models.Snowflake
}

func (StartTyping) Spec() *command.Spec     { return startTypingSpec }
func (c StartTyping) PathValues() []string { return []string{c.RoomID.String()} }

// PutReaction adds the user's reaction.
type PutReaction struct {
	command.Returns[command.Empty]
	RoomID models.Snowflake
	MsgID  models.Snowflake
	Emote  string
}

func (PutReaction) Spec() *command.Spec { return putReactionSpec }
func (c PutReaction) PathValues() []string {
	return []string{c.RoomID.String(), c.MsgID.String(), c.Emote}
}
