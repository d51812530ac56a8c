package driver_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"hash/crc32"
	"net/http"
	"strconv"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/lanternchat/sdk-go/internal/testserver"
	"github.com/lanternchat/sdk-go/pkg/api/commands"
	"github.com/lanternchat/sdk-go/pkg/driver"
	"github.com/lanternchat/sdk-go/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// uploadStore accepts chunks the way the server does: offsets must line up
// and checksums must match.
type uploadStore struct {
	mu   sync.Mutex
	data bytes.Buffer
	skew int64
}

func (u *uploadStore) patch(c *gin.Context) {
	u.mu.Lock()
	defer u.mu.Unlock()

	offset, err := strconv.ParseInt(c.GetHeader(driver.UploadOffsetHeader), 10, 64)
	if err != nil || offset != int64(u.data.Len()) {
		c.JSON(http.StatusConflict, gin.H{"code": 40900, "message": "offset mismatch"})
		return
	}
	chunk, _ := c.GetRawData()
	if c.GetHeader(driver.UploadChecksumHeader) != driver.Checksum(chunk) {
		c.JSON(http.StatusBadRequest, gin.H{"code": 40000, "message": "checksum mismatch"})
		return
	}
	u.data.Write(chunk)
	c.Header(driver.UploadOffsetHeader, strconv.FormatInt(int64(u.data.Len())+u.skew, 10))
	c.Status(http.StatusNoContent)
}

func TestChecksumFormat(t *testing.T) {
	chunk := []byte("hello world")
	var sum [4]byte
	binary.BigEndian.PutUint32(sum[:], crc32.ChecksumIEEE(chunk))
	assert.Equal(t, "crc32 "+base64.StdEncoding.EncodeToString(sum[:]), driver.Checksum(chunk))
	assert.Equal(t, "crc32 DUoRhQ==", driver.Checksum(chunk))
}

func TestUploadStream(t *testing.T) {
	srv := testserver.New()
	defer srv.Close()
	store := &uploadStore{}
	srv.Handle(http.MethodPost, "/file", testserver.JSON(http.StatusCreated, "77"))
	srv.Handle(http.MethodPatch, "/file/:file_id", store.patch)

	d := srv.Driver(driver.WithAuth(bearer(t, "a")))
	ctx := context.Background()

	payload := []byte("0123456789")
	id, err := driver.Execute(ctx, d, commands.CreateFile{File: commands.CreateFileBody{
		Filename: "digits.txt",
		Size:     int64(len(payload)),
	}})
	require.NoError(t, err)
	assert.Equal(t, models.Snowflake(77), *id)

	var progress []int64
	sent, err := d.UploadStream(ctx, *id, bytes.NewReader(payload), driver.UploadOptions{
		ChunkSize: 4,
		Progress:  func(n int64) { progress = append(progress, n) },
	})
	require.NoError(t, err)
	assert.EqualValues(t, len(payload), sent)
	assert.Equal(t, []int64{4, 8, 10}, progress)
	assert.Equal(t, payload, store.data.Bytes())

	var patches int
	for _, req := range srv.Requests() {
		if req.Method != http.MethodPatch {
			continue
		}
		patches++
		assert.Equal(t, "/api/v1/file/77", req.Path)
		assert.Equal(t, "application/offset+octet-stream", req.Header.Get("Content-Type"))
		assert.NotEmpty(t, req.Header.Get("Authorization"))
	}
	assert.Equal(t, 3, patches)
}

func TestUploadResume(t *testing.T) {
	srv := testserver.New()
	defer srv.Close()
	store := &uploadStore{}
	store.data.WriteString("01234")
	srv.Handle(http.MethodPatch, "/file/:file_id", store.patch)

	d := srv.Driver(driver.WithAuth(bearer(t, "a")))
	sent, err := d.UploadBuffer(context.Background(), 9, []byte("56789"), driver.UploadOptions{Offset: 5})
	require.NoError(t, err)
	assert.EqualValues(t, 10, sent)
	assert.Equal(t, "0123456789", store.data.String())
}

func TestUploadDesync(t *testing.T) {
	srv := testserver.New()
	defer srv.Close()
	store := &uploadStore{skew: 1}
	srv.Handle(http.MethodPatch, "/file/:file_id", store.patch)

	d := srv.Driver(driver.WithAuth(bearer(t, "a")))
	sent, err := d.UploadBuffer(context.Background(), 9, []byte("abcdefgh"), driver.UploadOptions{ChunkSize: 4})

	var upErr *driver.UploadError
	require.ErrorAs(t, err, &upErr)
	assert.EqualValues(t, 4, upErr.Expected)
	assert.EqualValues(t, 5, upErr.Got)
	assert.EqualValues(t, 0, sent)
	assert.Len(t, srv.Requests(), 1)
}

func TestUploadServerRejects(t *testing.T) {
	srv := testserver.New()
	defer srv.Close()
	store := &uploadStore{}
	store.data.WriteString("xx")
	srv.Handle(http.MethodPatch, "/file/:file_id", store.patch)

	d := srv.Driver(driver.WithAuth(bearer(t, "a")))
	_, err := d.UploadBuffer(context.Background(), 9, []byte("abc"), driver.UploadOptions{})
	var apiErr *models.ApiError
	require.ErrorAs(t, err, &apiErr)
	assert.EqualValues(t, 40900, apiErr.Code)
}

func TestUploadRequiresAuth(t *testing.T) {
	srv := testserver.New()
	defer srv.Close()

	d := srv.Driver()
	_, err := d.UploadBuffer(context.Background(), 9, []byte("abc"), driver.UploadOptions{})
	require.ErrorIs(t, err, driver.ErrMissingAuthorization)
	assert.Empty(t, srv.Requests())
}

func TestFileStatus(t *testing.T) {
	srv := testserver.New()
	defer srv.Close()
	srv.Handle(http.MethodHead, "/file/:file_id", func(c *gin.Context) {
		c.Header(driver.UploadOffsetHeader, "512")
		c.Header(driver.UploadLengthHeader, "2048")
		c.Status(http.StatusOK)
	})

	d := srv.Driver(driver.WithAuth(bearer(t, "a")))
	status, err := d.FileStatus(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, &models.FileStatus{Offset: 512, Length: 2048}, status)

	req, _ := srv.LastRequest()
	assert.Equal(t, http.MethodHead, req.Method)
	assert.Equal(t, "/api/v1/file/3", req.Path)
}
