package models

import "strings"

// PartyPermissions are party-wide capabilities.
type PartyPermissions uint64

const (
	PartyAdministrator PartyPermissions = 1 << iota
	PartyCreateInvite
	PartyKickMembers
	PartyBanMembers
	PartyViewAuditLog
	PartyViewStatistics
	PartyManageParty
	PartyManageRooms
	PartyManageNicknames
	PartyManageRoles
	PartyManageWebhooks
	PartyManageEmojis
	PartyMoveMembers
	PartyChangeNickname
	PartyManagePerms
)

// RoomPermissions are capabilities within a single room.
type RoomPermissions uint64

const (
	RoomViewRoom RoomPermissions = 1 << iota
	RoomReadMessageHistory
	RoomSendMessages
	RoomManageMessages
	RoomMuteMembers
	RoomDeafenMembers
	RoomMentionEveryone
	RoomUseExternalEmotes
	RoomAddReactions
	RoomEmbedLinks
	RoomAttachFiles
	RoomUseSlashCommands
	RoomSendTTSMessages
	RoomEditNewAttachment
)

// StreamPermissions are voice/video capabilities.
type StreamPermissions uint64

const (
	StreamStream StreamPermissions = 1 << iota
	StreamConnect
	StreamSpeak
	StreamPrioritySpeaker
)

// Permissions combines the three permission sets.
type Permissions struct {
	Party  PartyPermissions  `json:"party,omitempty" cbor:"party,omitempty"`
	Room   RoomPermissions   `json:"room,omitempty" cbor:"room,omitempty"`
	Stream StreamPermissions `json:"stream,omitempty" cbor:"stream,omitempty"`
}

// NoPermissions requires nothing.
var NoPermissions Permissions

// AllPermissions grants everything.
var AllPermissions = Permissions{Party: ^PartyPermissions(0), Room: ^RoomPermissions(0), Stream: ^StreamPermissions(0)}

// Union returns p | o.
func (p Permissions) Union(o Permissions) Permissions {
	return Permissions{Party: p.Party | o.Party, Room: p.Room | o.Room, Stream: p.Stream | o.Stream}
}

// Contains reports whether every bit of o is set in p. Administrators
// contain everything.
func (p Permissions) Contains(o Permissions) bool {
	if p.Party&PartyAdministrator != 0 {
		return true
	}
	return p.Party&o.Party == o.Party && p.Room&o.Room == o.Room && p.Stream&o.Stream == o.Stream
}

// IsEmpty reports whether no bit is set.
func (p Permissions) IsEmpty() bool { return p == NoPermissions }

var roomPermissionNames = []string{
	"VIEW_ROOM", "READ_MESSAGE_HISTORY", "SEND_MESSAGES", "MANAGE_MESSAGES", "MUTE_MEMBERS",
	"DEAFEN_MEMBERS", "MENTION_EVERYONE", "USE_EXTERNAL_EMOTES", "ADD_REACTIONS", "EMBED_LINKS",
	"ATTACH_FILES", "USE_SLASH_COMMANDS", "SEND_TTS_MESSAGES", "EDIT_NEW_ATTACHMENT",
}

var partyPermissionNames = []string{
	"ADMINISTRATOR", "CREATE_INVITE", "KICK_MEMBERS", "BAN_MEMBERS", "VIEW_AUDIT_LOG",
	"VIEW_STATISTICS", "MANAGE_PARTY", "MANAGE_ROOMS", "MANAGE_NICKNAMES", "MANAGE_ROLES",
	"MANAGE_WEBHOOKS", "MANAGE_EMOJIS", "MOVE_MEMBERS", "CHANGE_NICKNAME", "MANAGE_PERMS",
}

var streamPermissionNames = []string{"STREAM", "CONNECT", "SPEAK", "PRIORITY_SPEAKER"}

// String lists the set flags, e.g. "room:VIEW_ROOM|SEND_MESSAGES".
func (p Permissions) String() string {
	if p.IsEmpty() {
		return "none"
	}
	var parts []string
	if s := flagNames(uint64(p.Party), partyPermissionNames); s != "" {
		parts = append(parts, "party:"+s)
	}
	if s := flagNames(uint64(p.Room), roomPermissionNames); s != "" {
		parts = append(parts, "room:"+s)
	}
	if s := flagNames(uint64(p.Stream), streamPermissionNames); s != "" {
		parts = append(parts, "stream:"+s)
	}
	return strings.Join(parts, " ")
}

func flagNames(bits uint64, names []string) string {
	var out []string
	for i, name := range names {
		if bits&(1<<i) != 0 {
			out = append(out, name)
		}
	}
	return strings.Join(out, "|")
}
