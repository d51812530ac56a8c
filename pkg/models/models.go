package models

import "time"

// UserFlags carries account state bits.
type UserFlags uint32

const (
	UserBot UserFlags = 1 << iota
	UserSystem
	UserVerified
	UserMFAEnabled
)

// User is a public user profile.
type User struct {
	ID            Snowflake    `json:"id" cbor:"id"`
	Username      string       `json:"username" cbor:"username"`
	Discriminator uint16       `json:"discriminator" cbor:"discriminator"`
	Flags         UserFlags    `json:"flags,omitempty" cbor:"flags,omitempty"`
	Email         string       `json:"email,omitempty" cbor:"email,omitempty"`
	Avatar        string       `json:"avatar,omitempty" cbor:"avatar,omitempty"`
	Biography     string       `json:"bio,omitempty" cbor:"bio,omitempty"`
	Preferences   *Preferences `json:"prefs,omitempty" cbor:"prefs,omitempty"`
}

// IsBot reports whether the account is a bot.
func (u *User) IsBot() bool { return u.Flags&UserBot != 0 }

// Preferences holds client preferences stored server-side.
type Preferences struct {
	Locale     string `json:"locale,omitempty" cbor:"locale,omitempty"`
	Theme      string `json:"theme,omitempty" cbor:"theme,omitempty"`
	CompactUI  bool   `json:"compact,omitempty" cbor:"compact,omitempty"`
	Use24Hour  bool   `json:"24h,omitempty" cbor:"24h,omitempty"`
	ShowTyping bool   `json:"typing,omitempty" cbor:"typing,omitempty"`
}

// Presence describes a user's status.
type Presence struct {
	Status   PresenceStatus `json:"status" cbor:"status"`
	Activity string         `json:"activity,omitempty" cbor:"activity,omitempty"`
}

// PresenceStatus is the online state.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceAway    PresenceStatus = "away"
	PresenceBusy    PresenceStatus = "busy"
	PresenceOffline PresenceStatus = "offline"
)

// Party is a community (server) of rooms and members.
type Party struct {
	ID          Snowflake `json:"id" cbor:"id"`
	OwnerID     Snowflake `json:"owner" cbor:"owner"`
	Name        string    `json:"name" cbor:"name"`
	Description string    `json:"desc,omitempty" cbor:"desc,omitempty"`
	Avatar      string    `json:"avatar,omitempty" cbor:"avatar,omitempty"`
	DefaultRoom Snowflake `json:"default_room" cbor:"default_room"`
}

// Room is a channel inside a party, or a direct-message room.
type Room struct {
	ID       Snowflake   `json:"id" cbor:"id"`
	PartyID  Snowflake   `json:"party_id,omitempty" cbor:"party_id,omitempty"`
	Name     string      `json:"name" cbor:"name"`
	Topic    string      `json:"topic,omitempty" cbor:"topic,omitempty"`
	Position int16       `json:"position" cbor:"position"`
	Perms    Permissions `json:"perms,omitempty" cbor:"perms,omitempty"`
}

// MessageFlags carries message state bits.
type MessageFlags uint32

const (
	MessageTTS MessageFlags = 1 << iota
	MessageMentionsEveryone
	MessagePinned
	MessageSuppressEmbeds
)

// Message is a chat message.
type Message struct {
	ID          Snowflake    `json:"id" cbor:"id"`
	RoomID      Snowflake    `json:"room_id" cbor:"room_id"`
	PartyID     Snowflake    `json:"party_id,omitempty" cbor:"party_id,omitempty"`
	Author      User         `json:"author" cbor:"author"`
	Content     string       `json:"content,omitempty" cbor:"content,omitempty"`
	Flags       MessageFlags `json:"flags,omitempty" cbor:"flags,omitempty"`
	EditedAt    *time.Time   `json:"edited_at,omitempty" cbor:"edited_at,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty" cbor:"attachments,omitempty"`
	Reactions   []Reaction   `json:"reactions,omitempty" cbor:"reactions,omitempty"`
}

// Attachment references an uploaded file.
type Attachment struct {
	ID       Snowflake `json:"id" cbor:"id"`
	Filename string    `json:"filename" cbor:"filename"`
	Size     int64     `json:"size" cbor:"size"`
	Mime     string    `json:"mime,omitempty" cbor:"mime,omitempty"`
}

// Reaction aggregates one emote on a message.
type Reaction struct {
	Emote string `json:"emote" cbor:"emote"`
	Count int    `json:"count" cbor:"count"`
	Me    bool   `json:"me,omitempty" cbor:"me,omitempty"`
}

// ServerConfig is the public server configuration.
type ServerConfig struct {
	CDN           string `json:"cdn" cbor:"cdn"`
	MinAge        uint8  `json:"min_age" cbor:"min_age"`
	Secure        bool   `json:"secure" cbor:"secure"`
	Camo          bool   `json:"camo" cbor:"camo"`
	Limits        Limits `json:"limits" cbor:"limits"`
	HCaptchaSite  string `json:"hcaptcha_sitekey,omitempty" cbor:"hcaptcha_sitekey,omitempty"`
	PushPublicKey string `json:"push_key,omitempty" cbor:"push_key,omitempty"`
}

// Limits are server-imposed size limits.
type Limits struct {
	MaxUploadSize    int64 `json:"max_upload_size" cbor:"max_upload_size"`
	MaxMessageLength int   `json:"max_message_len" cbor:"max_message_len"`
	MaxUploadChunk   int64 `json:"max_upload_chunk_size" cbor:"max_upload_chunk_size"`
	MaxAvatarSize    int64 `json:"max_avatar_size" cbor:"max_avatar_size"`
	MaxAvatarPixels  int   `json:"max_avatar_pixels" cbor:"max_avatar_pixels"`
	MaxBannerPixels  int   `json:"max_banner_pixels" cbor:"max_banner_pixels"`
	MaxRoomsPerParty int   `json:"max_rooms_per_party" cbor:"max_rooms_per_party"`
}

// Session is returned by login.
type Session struct {
	Auth    string    `json:"auth" cbor:"auth"`
	Expires time.Time `json:"expires" cbor:"expires"`
}

// FileStatus reports the progress of a resumable upload.
type FileStatus struct {
	Offset int64 `json:"offset" cbor:"offset"`
	Length int64 `json:"length" cbor:"length"`
}
