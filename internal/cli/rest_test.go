package cli

import (
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanternchat/sdk-go/internal/journal"
	"github.com/lanternchat/sdk-go/internal/testserver"
	"github.com/lanternchat/sdk-go/pkg/api/commands"
	"github.com/lanternchat/sdk-go/pkg/driver"
	"github.com/lanternchat/sdk-go/pkg/models"
)

func journalEntries(t *testing.T, q journal.Query) []journal.Entry {
	t.Helper()
	store, err := journal.Open(app.cfg.JournalPath())
	require.NoError(t, err)
	defer store.Close()
	entries, _, err := store.List(q)
	require.NoError(t, err)
	return entries
}

func TestPostMessageRecordsJournal(t *testing.T) {
	testApp(t)
	srv := testserver.New()
	defer srv.Close()

	var got commands.CreateMessageBody
	srv.Handle(http.MethodPost, "/room/:room_id/messages", func(c *gin.Context) {
		require.NoError(t, c.ShouldBindJSON(&got))
		c.JSON(http.StatusOK, models.Message{ID: 500, RoomID: 20, PartyID: 10, Content: got.Content})
	})

	d := srv.Driver(driver.WithAuth(bearer(t, 'a')))
	msg, err := postMessage(context.Background(), d, 20, commands.CreateMessageBody{
		Content:     "hello",
		Attachments: []models.Snowflake{77},
	})
	require.NoError(t, err)
	assert.Equal(t, models.Snowflake(500), msg.ID)
	assert.Equal(t, "hello", got.Content)
	assert.Equal(t, []models.Snowflake{77}, got.Attachments)

	req, ok := srv.LastRequest()
	require.True(t, ok)
	assert.Equal(t, "/api/v1/room/20/messages", req.Path)

	entries := journalEntries(t, journal.Query{Kind: journal.KindREST})
	require.Len(t, entries, 1)
	assert.Equal(t, "CreateMessage", entries[0].Op)
	assert.Equal(t, "20", entries[0].RoomID)
	assert.Equal(t, "10", entries[0].PartyID)
	assert.Equal(t, "ok", entries[0].Status)
}

func TestPostMessageErrorIsJournaled(t *testing.T) {
	testApp(t)
	srv := testserver.New()
	defer srv.Close()
	srv.Handle(http.MethodPost, "/room/:room_id/messages", testserver.JSON(http.StatusForbidden,
		gin.H{"code": 40300, "message": "missing permissions"}))

	d := srv.Driver(driver.WithAuth(bearer(t, 'a')))
	_, err := postMessage(context.Background(), d, 20, commands.CreateMessageBody{Content: "x"})
	require.Error(t, err)

	entries := journalEntries(t, journal.Query{Status: "error"})
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Error, "missing permissions")
}

func TestJournalDisabled(t *testing.T) {
	cfg := testApp(t)
	cfg.Journal.Enabled = false
	recordREST(cfg, "GetSelf", restScope{}, time.Now(), nil)
	assert.NoFileExists(t, cfg.JournalPath())
}

func TestFetchMessagesOldestFirst(t *testing.T) {
	testApp(t)
	srv := testserver.New()
	defer srv.Close()
	srv.Handle(http.MethodGet, "/room/:room_id/messages", func(c *gin.Context) {
		if c.Param("room_id") == "404" {
			c.Status(http.StatusNotFound)
			return
		}
		c.JSON(http.StatusOK, []models.Message{
			{ID: 3, RoomID: 20, Content: "third"},
			{ID: 2, RoomID: 20, Content: "second"},
		})
	})

	d := srv.Driver(driver.WithAuth(bearer(t, 'a')))
	msgs, err := fetchMessages(context.Background(), d, 20, commands.GetMessagesQuery{Limit: 2, Before: 9})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.Snowflake(2), msgs[0].ID)
	assert.Equal(t, models.Snowflake(3), msgs[1].ID)

	req, _ := srv.LastRequest()
	assert.Contains(t, req.RawQuery, "limit=2")
	assert.Contains(t, req.RawQuery, "before=9")

	_, err = fetchMessages(context.Background(), d, 404, commands.GetMessagesQuery{})
	assert.ErrorContains(t, err, "room 404 not found")
}

func TestDescribeFile(t *testing.T) {
	dir := t.TempDir()

	pngPath := filepath.Join(dir, "pixel.png")
	f, err := os.Create(pngPath)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, 3, 2))))
	require.NoError(t, f.Close())

	body := describe(t, pngPath, "")
	assert.Equal(t, "pixel.png", body.Filename)
	assert.Equal(t, "image/png", body.Mime)
	assert.Equal(t, 3, body.Width)
	assert.Equal(t, 2, body.Height)
	assert.Positive(t, body.Size)

	plain := filepath.Join(dir, "README")
	require.NoError(t, os.WriteFile(plain, []byte("hello there"), 0o600))
	body = describe(t, plain, "")
	assert.Equal(t, "text/plain; charset=utf-8", body.Mime)
	assert.Zero(t, body.Width)

	body = describe(t, plain, "application/x-custom")
	assert.Equal(t, "application/x-custom", body.Mime)
}

func describe(t *testing.T, path, mimeType string) commands.CreateFileBody {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	info, err := f.Stat()
	require.NoError(t, err)
	body, err := describeFile(f, info, mimeType)
	require.NoError(t, err)
	return body
}

func TestPrepareUpload(t *testing.T) {
	testApp(t)
	srv := testserver.New()
	defer srv.Close()

	var created commands.CreateFileBody
	srv.Handle(http.MethodPost, "/file", func(c *gin.Context) {
		require.NoError(t, c.ShouldBindJSON(&created))
		c.JSON(http.StatusCreated, "77")
	})
	srv.Handle(http.MethodHead, "/file/:file_id", func(c *gin.Context) {
		c.Header(driver.UploadOffsetHeader, "4")
		c.Header(driver.UploadLengthHeader, "10")
		c.Status(http.StatusOK)
	})

	d := srv.Driver(driver.WithAuth(bearer(t, 'a')))
	ctx := context.Background()
	body := commands.CreateFileBody{Filename: "digits.txt", Size: 10}

	id, offset, err := prepareUpload(ctx, d, body, "")
	require.NoError(t, err)
	assert.Equal(t, models.Snowflake(77), id)
	assert.Zero(t, offset)
	assert.Equal(t, "digits.txt", created.Filename)

	id, offset, err = prepareUpload(ctx, d, body, "77")
	require.NoError(t, err)
	assert.Equal(t, models.Snowflake(77), id)
	assert.EqualValues(t, 4, offset)

	_, _, err = prepareUpload(ctx, d, commands.CreateFileBody{Filename: "other", Size: 11}, "77")
	assert.ErrorContains(t, err, "created with 10 bytes")

	_, _, err = prepareUpload(ctx, d, body, "nope")
	assert.ErrorContains(t, err, "--resume")
}

func TestRecordUpload(t *testing.T) {
	testApp(t)
	recordUpload(77, commands.CreateFileBody{Filename: "a.bin", Size: 10}, 10, time.Now(), nil)

	entries := journalEntries(t, journal.Query{Kind: journal.KindUpload})
	require.Len(t, entries, 1)
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(entries[0].Payload), &payload))
	assert.Equal(t, "77", payload["file"])
	assert.Equal(t, "a.bin", payload["filename"])
	assert.EqualValues(t, 10, payload["sent"])
}
