package commands

import (
	"net/http"

	"github.com/lanternchat/sdk-go/pkg/api/command"
	"github.com/lanternchat/sdk-go/pkg/models"
)

var (
	getPartySpec      = command.Define[GetParty](http.MethodGet, "party/{party_id}")
	getPartyRoomsSpec = command.Define[GetPartyRooms](http.MethodGet, "party/{party_id}/rooms")
	getRoomSpec       = command.Define[GetRoom](http.MethodGet, "room/{room_id}",
		command.Permissions(models.Permissions{Room: models.RoomViewRoom}))
)

// GetParty fetches a party the user is a member of.
type GetParty struct {
	command.Returns[models.Party]
	PartyID models.Snowflake
}

func (GetParty) Spec() *command.Spec     { return getPartySpec }
func (c GetParty) PathValues() []string { return []string{c.PartyID.String()} }

// GetPartyRooms lists the rooms visible to the user.
type GetPartyRooms struct {
	command.Returns[[]models.Room]
	PartyID models.Snowflake
}

func (GetPartyRooms) Spec() *command.Spec     { return getPartyRoomsSpec }
func (c GetPartyRooms) PathValues() []string { return []string{c.PartyID.String()} }

// GetRoom fetches a single room.
type GetRoom struct {
	command.Returns[models.Room]
	RoomID models.Snowflake
}

func (GetRoom) Spec() *command.Spec     { return getRoomSpec }
func (c GetRoom) PathValues() []string { return []string{c.RoomID.String()} }
