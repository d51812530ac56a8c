package command

import (
	"net/http"
	"testing"

	"github.com/lanternchat/sdk-go/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noBody struct {
	Returns[Empty]
}

func (noBody) Spec() *Spec          { return nil }
func (noBody) PathValues() []string { return nil }

type withBody struct {
	Returns[Empty]
}

func (withBody) Spec() *Spec          { return nil }
func (withBody) PathValues() []string { return nil }
func (withBody) Body() any            { return struct{}{} }

func TestDefineDetectsBody(t *testing.T) {
	assert.False(t, Define[noBody](http.MethodGet, "config").HasBody)
	assert.True(t, Define[withBody](http.MethodPost, "room/{room_id}/messages").HasBody)
}

func TestDefineOptions(t *testing.T) {
	perms := models.Permissions{Room: models.RoomSendMessages}
	s := Define[noBody]("post", "/room/{room_id}/typing/", Permissions(perms))
	assert.Equal(t, http.MethodPost, s.Method)
	assert.Equal(t, "room/{room_id}/typing", s.Path)
	assert.Equal(t, perms, s.Perms)
	assert.True(t, s.Authorized)
	assert.Equal(t, 1, s.Params())

	assert.False(t, Define[noBody](http.MethodGet, "config", Unauthorized()).Authorized)
}

func TestDefinePanicsOnBadTemplate(t *testing.T) {
	for _, tmpl := range []string{"", "room//x", "room/{}", "room/{a}/{a}", "room/x{id}"} {
		assert.Panics(t, func() { Define[noBody](http.MethodGet, tmpl) }, tmpl)
	}
}

func TestFormatPath(t *testing.T) {
	s := Define[noBody](http.MethodGet, "room/{room_id}/messages/{msg_id}")

	path, err := s.FormatPath([]string{"42", "7"})
	require.NoError(t, err)
	assert.Equal(t, "room/42/messages/7", path)

	path, err = s.FormatPath([]string{"a/b", "50%"})
	require.NoError(t, err)
	assert.Equal(t, "room/a%2Fb/messages/50%25", path)

	_, err = s.FormatPath([]string{"42"})
	assert.Error(t, err)
}

func TestReadOnlyMethods(t *testing.T) {
	for method, want := range map[string]bool{
		http.MethodGet: true, http.MethodHead: true, http.MethodOptions: true,
		http.MethodConnect: true, http.MethodTrace: true,
		http.MethodPost: false, http.MethodPatch: false, http.MethodPut: false, http.MethodDelete: false,
	} {
		assert.Equal(t, want, Define[noBody](method, "x").ReadOnly(), method)
	}
}
