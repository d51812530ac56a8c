package models

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTokenByLength(t *testing.T) {
	bearer := strings.Repeat("a", BearerTokenLength)
	bot := strings.Repeat("B", BotTokenLength)

	tests := []struct {
		name   string
		token  string
		kind   AuthKind
		header string
		err    bool
	}{
		{name: "bearer", token: bearer, kind: AuthBearer, header: "Bearer " + bearer},
		{name: "bot", token: bot, kind: AuthBot, header: "Bot " + bot},
		{name: "trimmed", token: "  " + bearer + "\n", kind: AuthBearer, header: "Bearer " + bearer},
		{name: "too_short", token: "abc", err: true},
		{name: "bad_chars", token: strings.Repeat("!", BearerTokenLength), err: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			auth, err := ParseToken(tc.token)
			if tc.err {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidToken))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.kind, auth.Kind())
			assert.Equal(t, tc.header, auth.Header())
			assert.NotContains(t, auth.String(), auth.Token())
		})
	}
}

func TestParseAuthHeaderRejectsMismatchedPrefix(t *testing.T) {
	bot := strings.Repeat("x", BotTokenLength)
	_, err := ParseAuthHeader("Bearer " + bot)
	require.ErrorIs(t, err, ErrInvalidToken)

	auth, err := ParseAuthHeader("bot " + bot)
	require.NoError(t, err)
	assert.Equal(t, AuthBot, auth.Kind())
}

func TestAuthorizationCodecs(t *testing.T) {
	auth, err := ParseToken(strings.Repeat("t", BearerTokenLength))
	require.NoError(t, err)

	data, err := json.Marshal(auth)
	require.NoError(t, err)
	var fromJSON Authorization
	require.NoError(t, json.Unmarshal(data, &fromJSON))
	assert.Equal(t, *auth, fromJSON)

	data, err = cbor.Marshal(auth)
	require.NoError(t, err)
	var fromCBOR Authorization
	require.NoError(t, cbor.Unmarshal(data, &fromCBOR))
	assert.Equal(t, *auth, fromCBOR)
}

func TestSnowflakeJSON(t *testing.T) {
	data, err := json.Marshal(Snowflake(42))
	require.NoError(t, err)
	assert.Equal(t, `"42"`, string(data))

	var s Snowflake
	require.NoError(t, json.Unmarshal([]byte(`"123"`), &s))
	assert.Equal(t, Snowflake(123), s)
	require.NoError(t, json.Unmarshal([]byte(`456`), &s))
	assert.Equal(t, Snowflake(456), s)
	assert.Error(t, json.Unmarshal([]byte(`"x"`), &s))
}

func TestSnowflakeTimestamp(t *testing.T) {
	id := Snowflake(uint64(1000) << 22)
	assert.Equal(t, Epoch+1000, id.Timestamp().UnixMilli())
}

func TestApiErrorCode(t *testing.T) {
	assert.Equal(t, "NotFound", CodeNotFound.String())
	assert.Equal(t, 404, CodeNotFound.HTTPStatus())
	assert.Equal(t, "Unknown(12345)", ApiErrorCode(12345).String())
	assert.False(t, ApiErrorCode(12345).Known())

	var apiErr ApiError
	require.NoError(t, json.Unmarshal([]byte(`{"code":40404,"message":"Not Found"}`), &apiErr))
	assert.True(t, apiErr.IsNotFound())
	assert.Contains(t, apiErr.Error(), "Not Found")
}

func TestPermissions(t *testing.T) {
	send := Permissions{Room: RoomViewRoom | RoomSendMessages}
	granted := Permissions{Room: RoomViewRoom | RoomSendMessages | RoomAddReactions}

	assert.True(t, granted.Contains(send))
	assert.False(t, send.Contains(granted))
	assert.True(t, Permissions{Party: PartyAdministrator}.Contains(AllPermissions))
	assert.Equal(t, granted, send.Union(Permissions{Room: RoomAddReactions}))
	assert.Equal(t, "room:VIEW_ROOM|SEND_MESSAGES", send.String())
	assert.Equal(t, "none", NoPermissions.String())
}
