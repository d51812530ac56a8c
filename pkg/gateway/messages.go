package gateway

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/lanternchat/sdk-go/pkg/driver"
	"github.com/lanternchat/sdk-go/pkg/models"
)

// ServerOp identifies a server-to-client message.
type ServerOp uint8

const (
	OpHello ServerOp = iota
	OpHeartbeatAck
	OpReady
	OpInvalidSession
	OpPartyCreate
	OpPartyUpdate
	OpPartyDelete
	OpMessageCreate
	OpMessageUpdate
	OpMessageDelete
	OpTypingStart
	OpPresenceUpdate
	OpUserUpdate
)

var serverOpNames = [...]string{
	"Hello", "HeartbeatAck", "Ready", "InvalidSession",
	"PartyCreate", "PartyUpdate", "PartyDelete",
	"MessageCreate", "MessageUpdate", "MessageDelete",
	"TypingStart", "PresenceUpdate", "UserUpdate",
}

func (op ServerOp) String() string {
	if int(op) < len(serverOpNames) {
		return serverOpNames[op]
	}
	return fmt.Sprintf("ServerOp(%d)", uint8(op))
}

// ClientOp identifies a client-to-server message.
type ClientOp uint8

const (
	OpHeartbeat ClientOp = iota
	OpIdentify
	OpResume
	OpSetPresence
	OpSubscribe
	OpUnsubscribe
)

var clientOpNames = [...]string{
	"Heartbeat", "Identify", "Resume", "SetPresence", "Subscribe", "Unsubscribe",
}

func (op ClientOp) String() string {
	if int(op) < len(clientOpNames) {
		return clientOpNames[op]
	}
	return fmt.Sprintf("ClientOp(%d)", uint8(op))
}

// ServerMsg is implemented by every server message payload.
type ServerMsg interface {
	ServerOp() ServerOp
}

// ClientMsg is implemented by every client message payload.
type ClientMsg interface {
	ClientOp() ClientOp
}

// Server messages.
type (
	// Hello is the first message on every connection. The interval is in
	// milliseconds.
	Hello struct {
		HeartbeatInterval uint32 `json:"heartbeat_interval" cbor:"heartbeat_interval"`
	}

	HeartbeatAck struct{}

	// Ready answers Identify.
	Ready struct {
		User    models.User      `json:"user" cbor:"user"`
		Parties []models.Party   `json:"parties,omitempty" cbor:"parties,omitempty"`
		Session models.Snowflake `json:"session,omitempty" cbor:"session,omitempty"`
	}

	// InvalidSession means Resume was refused; identify again.
	InvalidSession struct{}

	PartyCreate struct{ models.Party }
	PartyUpdate struct{ models.Party }

	PartyDelete struct {
		ID models.Snowflake `json:"id" cbor:"id"`
	}

	MessageCreate struct{ models.Message }
	MessageUpdate struct{ models.Message }

	MessageDelete struct {
		ID      models.Snowflake `json:"id" cbor:"id"`
		RoomID  models.Snowflake `json:"room_id" cbor:"room_id"`
		PartyID models.Snowflake `json:"party_id,omitempty" cbor:"party_id,omitempty"`
	}

	TypingStart struct {
		RoomID  models.Snowflake `json:"room_id" cbor:"room_id"`
		PartyID models.Snowflake `json:"party_id,omitempty" cbor:"party_id,omitempty"`
		UserID  models.Snowflake `json:"user_id" cbor:"user_id"`
	}

	PresenceUpdate struct {
		PartyID  models.Snowflake `json:"party_id,omitempty" cbor:"party_id,omitempty"`
		User     models.User      `json:"user" cbor:"user"`
		Presence models.Presence  `json:"presence" cbor:"presence"`
	}

	UserUpdate struct {
		User models.User `json:"user" cbor:"user"`
	}
)

func (*Hello) ServerOp() ServerOp          { return OpHello }
func (*HeartbeatAck) ServerOp() ServerOp   { return OpHeartbeatAck }
func (*Ready) ServerOp() ServerOp          { return OpReady }
func (*InvalidSession) ServerOp() ServerOp { return OpInvalidSession }
func (*PartyCreate) ServerOp() ServerOp    { return OpPartyCreate }
func (*PartyUpdate) ServerOp() ServerOp    { return OpPartyUpdate }
func (*PartyDelete) ServerOp() ServerOp    { return OpPartyDelete }
func (*MessageCreate) ServerOp() ServerOp  { return OpMessageCreate }
func (*MessageUpdate) ServerOp() ServerOp  { return OpMessageUpdate }
func (*MessageDelete) ServerOp() ServerOp  { return OpMessageDelete }
func (*TypingStart) ServerOp() ServerOp    { return OpTypingStart }
func (*PresenceUpdate) ServerOp() ServerOp { return OpPresenceUpdate }
func (*UserUpdate) ServerOp() ServerOp     { return OpUserUpdate }

// Intent selects which event groups the server delivers.
type Intent uint32

const (
	IntentParties Intent = 1 << iota
	IntentPartyMembers
	IntentPresence
	IntentMessages
	IntentMessageReactions
	IntentMessageTyping
	IntentDirectMessages

	IntentAll = IntentParties | IntentPartyMembers | IntentPresence | IntentMessages |
		IntentMessageReactions | IntentMessageTyping | IntentDirectMessages
)

// Client messages.
type (
	Heartbeat struct{}

	Identify struct {
		Auth   *models.Authorization `json:"auth" cbor:"auth"`
		Intent Intent                `json:"intent" cbor:"intent"`
	}

	Resume struct {
		Session models.Snowflake `json:"session" cbor:"session"`
	}

	SetPresence struct {
		Presence models.Presence `json:"presence" cbor:"presence"`
	}

	Subscribe struct {
		PartyID models.Snowflake `json:"party_id" cbor:"party_id"`
	}

	Unsubscribe struct {
		PartyID models.Snowflake `json:"party_id" cbor:"party_id"`
	}
)

func (*Heartbeat) ClientOp() ClientOp   { return OpHeartbeat }
func (*Identify) ClientOp() ClientOp    { return OpIdentify }
func (*Resume) ClientOp() ClientOp      { return OpResume }
func (*SetPresence) ClientOp() ClientOp { return OpSetPresence }
func (*Subscribe) ClientOp() ClientOp   { return OpSubscribe }
func (*Unsubscribe) ClientOp() ClientOp { return OpUnsubscribe }

func newServerMsg(op ServerOp) ServerMsg {
	switch op {
	case OpHello:
		return &Hello{}
	case OpHeartbeatAck:
		return &HeartbeatAck{}
	case OpReady:
		return &Ready{}
	case OpInvalidSession:
		return &InvalidSession{}
	case OpPartyCreate:
		return &PartyCreate{}
	case OpPartyUpdate:
		return &PartyUpdate{}
	case OpPartyDelete:
		return &PartyDelete{}
	case OpMessageCreate:
		return &MessageCreate{}
	case OpMessageUpdate:
		return &MessageUpdate{}
	case OpMessageDelete:
		return &MessageDelete{}
	case OpTypingStart:
		return &TypingStart{}
	case OpPresenceUpdate:
		return &PresenceUpdate{}
	case OpUserUpdate:
		return &UserUpdate{}
	}
	return nil
}

func newClientMsg(op ClientOp) ClientMsg {
	switch op {
	case OpHeartbeat:
		return &Heartbeat{}
	case OpIdentify:
		return &Identify{}
	case OpResume:
		return &Resume{}
	case OpSetPresence:
		return &SetPresence{}
	case OpSubscribe:
		return &Subscribe{}
	case OpUnsubscribe:
		return &Unsubscribe{}
	}
	return nil
}

// envelope is the outbound wire shape. P stays nil when the payload is its
// zero value so the field is left off.
type envelope struct {
	Op uint8 `json:"op" cbor:"op"`
	P  any   `json:"p,omitempty" cbor:"p,omitempty"`
}

type jsonEnvelope struct {
	Op *uint8          `json:"op"`
	P  json.RawMessage `json:"p"`
}

type cborEnvelope struct {
	Op *uint8          `cbor:"op"`
	P  cbor.RawMessage `cbor:"p"`
}

func marshalEnvelope(enc driver.Encoding, op uint8, payload any) ([]byte, error) {
	env := envelope{Op: op}
	if v := reflect.ValueOf(payload); v.IsValid() && !(v.Kind() == reflect.Pointer && v.IsNil()) {
		if !reflect.Indirect(v).IsZero() {
			env.P = payload
		}
	}
	return enc.Marshal(env)
}

func unmarshalEnvelope(enc driver.Encoding, data []byte) (uint8, []byte, error) {
	var (
		op  *uint8
		raw []byte
	)
	switch enc {
	case driver.EncodingCBOR:
		var env cborEnvelope
		if err := enc.Unmarshal(data, &env); err != nil {
			return 0, nil, err
		}
		op, raw = env.Op, env.P
	default:
		var env jsonEnvelope
		if err := enc.Unmarshal(data, &env); err != nil {
			return 0, nil, err
		}
		op, raw = env.Op, env.P
	}
	if op == nil {
		return 0, nil, fmt.Errorf("envelope has no opcode")
	}
	return *op, raw, nil
}

// MarshalServer serializes a server message; used by fake servers and tests.
func MarshalServer(enc driver.Encoding, msg ServerMsg) ([]byte, error) {
	return marshalEnvelope(enc, uint8(msg.ServerOp()), msg)
}

// UnmarshalServer parses a server message. A missing payload decodes to the
// payload's zero value.
func UnmarshalServer(enc driver.Encoding, data []byte) (ServerMsg, error) {
	op, raw, err := unmarshalEnvelope(enc, data)
	if err != nil {
		return nil, err
	}
	msg := newServerMsg(ServerOp(op))
	if msg == nil {
		return nil, fmt.Errorf("unknown server opcode %d", op)
	}
	if len(raw) > 0 {
		if err := enc.Unmarshal(raw, msg); err != nil {
			return nil, fmt.Errorf("%s payload: %w", ServerOp(op), err)
		}
	}
	return msg, nil
}

// MarshalClient serializes a client message.
func MarshalClient(enc driver.Encoding, msg ClientMsg) ([]byte, error) {
	return marshalEnvelope(enc, uint8(msg.ClientOp()), msg)
}

// UnmarshalClient parses a client message; used by fake servers and tests.
func UnmarshalClient(enc driver.Encoding, data []byte) (ClientMsg, error) {
	op, raw, err := unmarshalEnvelope(enc, data)
	if err != nil {
		return nil, err
	}
	msg := newClientMsg(ClientOp(op))
	if msg == nil {
		return nil, fmt.Errorf("unknown client opcode %d", op)
	}
	if len(raw) > 0 {
		if err := enc.Unmarshal(raw, msg); err != nil {
			return nil, fmt.Errorf("%s payload: %w", ClientOp(op), err)
		}
	}
	return msg, nil
}
