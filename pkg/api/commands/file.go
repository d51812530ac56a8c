package commands

import (
	"net/http"

	"github.com/lanternchat/sdk-go/pkg/api/command"
	"github.com/lanternchat/sdk-go/pkg/models"
)

var (
	createFileSpec    = command.Define[CreateFile](http.MethodPost, "file")
	getFileStatusSpec = command.Define[GetFileStatus](http.MethodHead, "file/{file_id}")
)

// CreateFileBody declares an upload before any bytes are sent.
type CreateFileBody struct {
	Filename string `json:"filename" cbor:"filename"`
	Size     int64  `json:"size" cbor:"size"`
	Mime     string `json:"mime,omitempty" cbor:"mime,omitempty"`
	Width    int    `json:"width,omitempty" cbor:"width,omitempty"`
	Height   int    `json:"height,omitempty" cbor:"height,omitempty"`
	Preview  string `json:"preview,omitempty" cbor:"preview,omitempty"`
}

// CreateFile reserves a file ID for a chunked upload.
type CreateFile struct {
	command.Returns[models.Snowflake]
	File CreateFileBody
}

func (CreateFile) Spec() *command.Spec   { return createFileSpec }
func (CreateFile) PathValues() []string { return nil }
func (c CreateFile) Body() any          { return &c.File }

// GetFileStatus asks how many bytes of an upload the server holds. The answer
// arrives in headers, which driver.Driver.FileStatus reads.
type GetFileStatus struct {
	command.Returns[command.Empty]
	FileID models.Snowflake
}

func (GetFileStatus) Spec() *command.Spec     { return getFileStatusSpec }
func (c GetFileStatus) PathValues() []string { return []string{c.FileID.String()} }
