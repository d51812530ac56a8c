package driver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"net/http"
	"strconv"

	"github.com/lanternchat/sdk-go/pkg/api/commands"
	"github.com/lanternchat/sdk-go/pkg/models"
)

// Upload protocol headers.
const (
	UploadOffsetHeader   = "Upload-Offset"
	UploadLengthHeader   = "Upload-Length"
	UploadChecksumHeader = "Upload-Checksum"

	uploadContentType = "application/offset+octet-stream"
)

// DefaultChunkSize is used when UploadOptions.ChunkSize is zero.
const DefaultChunkSize = 8 << 20

// UploadOptions tunes UploadStream.
type UploadOptions struct {
	// ChunkSize is the number of bytes sent per PATCH request.
	ChunkSize int
	// Offset resumes an upload the server already holds this many bytes of.
	Offset int64
	// Progress is called after every accepted chunk with the running total.
	Progress func(sent int64)
}

// Checksum returns the Upload-Checksum value for a chunk.
func Checksum(chunk []byte) string {
	var sum [4]byte
	binary.BigEndian.PutUint32(sum[:], crc32.ChecksumIEEE(chunk))
	return "crc32 " + base64.StdEncoding.EncodeToString(sum[:])
}

// UploadStream sends r to a file created with commands.CreateFile, one chunk
// per request. The server must echo the running offset after every chunk;
// any disagreement aborts the upload with an *UploadError.
func (d *Driver) UploadStream(ctx context.Context, fileID models.Snowflake, r io.Reader, opts UploadOptions) (int64, error) {
	size := opts.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	buf := make([]byte, size)
	offset := opts.Offset

	for {
		n, readErr := io.ReadFull(r, buf)
		if n > 0 {
			next, err := d.uploadChunk(ctx, fileID, offset, buf[:n])
			if err != nil {
				return offset, err
			}
			offset = next
			if opts.Progress != nil {
				opts.Progress(offset)
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
				return offset, nil
			}
			return offset, fmt.Errorf("read upload source: %w", readErr)
		}
	}
}

// UploadBuffer is UploadStream over an in-memory buffer.
func (d *Driver) UploadBuffer(ctx context.Context, fileID models.Snowflake, data []byte, opts UploadOptions) (int64, error) {
	return d.UploadStream(ctx, fileID, bytes.NewReader(data), opts)
}

func (d *Driver) uploadChunk(ctx context.Context, fileID models.Snowflake, offset int64, chunk []byte) (int64, error) {
	s := d.Settings()
	if s.Auth == nil {
		return offset, ErrMissingAuthorization
	}

	target := s.APIBase() + "/file/" + fileID.String()
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, target, bytes.NewReader(chunk))
	if err != nil {
		return offset, &RequestError{Op: "build", Err: err}
	}
	req.Header.Set("User-Agent", s.UserAgent)
	req.Header.Set("Authorization", s.Auth.Header())
	req.Header.Set("Content-Type", uploadContentType)
	req.Header.Set(UploadOffsetHeader, strconv.FormatInt(offset, 10))
	req.Header.Set(UploadChecksumHeader, Checksum(chunk))

	resp, err := d.client.Do(req)
	if err != nil {
		return offset, &RequestError{Op: "send", Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return offset, &RequestError{Op: "read", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return offset, decodeError(resp, body)
	}

	expected := offset + int64(len(chunk))
	raw := resp.Header.Get(UploadOffsetHeader)
	got, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return offset, &UploadError{Expected: expected, Header: raw}
	}
	if got != expected {
		return offset, &UploadError{Expected: expected, Got: got}
	}

	d.logger.Debug("upload chunk accepted", "file", fileID, "offset", got, "chunk", len(chunk))
	return got, nil
}

// FileStatus asks the server how far an upload has progressed.
func (d *Driver) FileStatus(ctx context.Context, fileID models.Snowflake) (*models.FileStatus, error) {
	cmd := commands.GetFileStatus{FileID: fileID}
	resp, body, err := d.roundTrip(ctx, cmd.Spec(), cmd.PathValues(), cmd)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(resp, body)
	}

	status := &models.FileStatus{}
	if status.Offset, err = strconv.ParseInt(resp.Header.Get(UploadOffsetHeader), 10, 64); err != nil {
		return nil, &RequestError{Op: "header", Err: fmt.Errorf("parse %s: %w", UploadOffsetHeader, err)}
	}
	if raw := resp.Header.Get(UploadLengthHeader); raw != "" {
		if status.Length, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return nil, &RequestError{Op: "header", Err: fmt.Errorf("parse %s: %w", UploadLengthHeader, err)}
		}
	}
	return status, nil
}
