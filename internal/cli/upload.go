package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/spf13/cobra"

	"github.com/lanternchat/sdk-go/internal/journal"
	"github.com/lanternchat/sdk-go/internal/metrics"
	"github.com/lanternchat/sdk-go/pkg/api/commands"
	"github.com/lanternchat/sdk-go/pkg/driver"
	"github.com/lanternchat/sdk-go/pkg/models"
)

var (
	uploadMime    string
	uploadResume  string
	uploadRoom    string
	uploadMessage string
	uploadChunk   int
	uploadQuiet   bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload <path>",
	Short: "Upload a file, optionally posting it to a room",
	Long: `Upload a file in checksummed chunks. An interrupted upload can be
continued with --resume <file-id>; the server is asked how many bytes it
already holds.`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().StringVar(&uploadMime, "mime", "", "Content type (detected when empty)")
	uploadCmd.Flags().StringVar(&uploadResume, "resume", "", "Continue the upload with this file ID")
	uploadCmd.Flags().StringVar(&uploadRoom, "room", "", "Post the file to this room when done")
	uploadCmd.Flags().StringVarP(&uploadMessage, "message", "m", "", "Message text to post with the file")
	uploadCmd.Flags().IntVar(&uploadChunk, "chunk-size", 0, "Bytes per request (default from config)")
	uploadCmd.Flags().BoolVarP(&uploadQuiet, "quiet", "q", false, "No progress bar")
}

func runUpload(cmd *cobra.Command, args []string) error {
	cfg := app.cfg
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", args[0])
	}

	var room models.Snowflake
	if uploadRoom != "" {
		if room, err = models.ParseSnowflake(uploadRoom); err != nil {
			return fmt.Errorf("--room: %w", err)
		}
	}

	var m *metrics.Metrics
	if cfg.Metrics.Addr != "" {
		m = metrics.New()
		mctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := m.Serve(mctx, cfg.Metrics.Addr, app.logger); err != nil {
				app.logger.Warn("metrics listener failed", "err", err)
			}
		}()
	}

	d, err := newDriver(cfg, app.logger, m)
	if err != nil {
		return err
	}
	if err := requireAuth(d); err != nil {
		return err
	}

	body, err := describeFile(f, info, uploadMime)
	if err != nil {
		return err
	}

	id, offset, err := prepareUpload(ctx, d, body, uploadResume)
	if err != nil {
		return err
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return err
	}

	chunk := uploadChunk
	if chunk <= 0 {
		chunk = cfg.Upload.ChunkSize
	}
	bar := newUploadBar(cmd.ErrOrStderr(), body.Size, uploadQuiet)

	start := time.Now()
	last := offset
	sent, err := d.UploadStream(ctx, id, f, driver.UploadOptions{
		ChunkSize: chunk,
		Offset:    offset,
		Progress: func(total int64) {
			if m != nil {
				m.Uploaded(total - last)
			}
			last = total
			bar.update(total)
		},
	})
	bar.done()
	recordUpload(id, body, sent, start, err)
	if err != nil {
		var ue *driver.UploadError
		if errors.As(err, &ue) || sent > offset {
			printNote(cmd.ErrOrStderr(), fmt.Sprintf("resume with: lantern upload %s --resume %s", args[0], id), "")
		}
		return fmt.Errorf("upload: %w", err)
	}
	printSuccess(out, fmt.Sprintf("Uploaded %s (%s) as %s", body.Filename, humanBytes(sent), id))

	if room != 0 {
		msg, err := postMessage(ctx, d, room, commands.CreateMessageBody{
			Content:     uploadMessage,
			Attachments: []models.Snowflake{id},
		})
		if err != nil {
			return err
		}
		printSuccess(out, "Posted "+msg.ID.String())
	}
	return nil
}

// describeFile builds the CreateFile body: name, size, type and image size.
func describeFile(f *os.File, info os.FileInfo, mimeType string) (commands.CreateFileBody, error) {
	body := commands.CreateFileBody{
		Filename: filepath.Base(info.Name()),
		Size:     info.Size(),
		Mime:     mimeType,
	}
	if body.Mime == "" {
		body.Mime = mime.TypeByExtension(strings.ToLower(filepath.Ext(body.Filename)))
	}
	if body.Mime == "" {
		head := make([]byte, 512)
		n, err := f.ReadAt(head, 0)
		if err != nil && !errors.Is(err, io.EOF) {
			return body, err
		}
		body.Mime = http.DetectContentType(head[:n])
	}
	if strings.HasPrefix(body.Mime, "image/") {
		if cfg, _, err := image.DecodeConfig(io.NewSectionReader(f, 0, body.Size)); err == nil {
			body.Width, body.Height = cfg.Width, cfg.Height
		}
	}
	return body, nil
}

// prepareUpload creates the file, or asks where a resumed upload stands.
func prepareUpload(ctx context.Context, d *driver.Driver, body commands.CreateFileBody, resume string) (models.Snowflake, int64, error) {
	rctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if resume != "" {
		id, err := models.ParseSnowflake(resume)
		if err != nil {
			return 0, 0, fmt.Errorf("--resume: %w", err)
		}
		status, err := d.FileStatus(rctx, id)
		if err != nil {
			return 0, 0, fmt.Errorf("file status: %w", err)
		}
		if status.Length != 0 && status.Length != body.Size {
			return 0, 0, fmt.Errorf("file %s was created with %d bytes, local file has %d", id, status.Length, body.Size)
		}
		if status.Offset > body.Size {
			return 0, 0, fmt.Errorf("server holds %d bytes, local file has %d", status.Offset, body.Size)
		}
		return id, status.Offset, nil
	}

	start := time.Now()
	id, err := driver.Execute(rctx, d, commands.CreateFile{File: body})
	recordREST(app.cfg, "CreateFile", restScope{}, start, err)
	if err != nil {
		return 0, 0, fmt.Errorf("create file: %w", err)
	}
	return *id, 0, nil
}

func recordUpload(id models.Snowflake, body commands.CreateFileBody, sent int64, start time.Time, err error) {
	payload, _ := json.Marshal(map[string]any{
		"file":     id.String(),
		"filename": body.Filename,
		"size":     body.Size,
		"sent":     sent,
	})
	record(app.cfg, &journal.Entry{
		Kind:       journal.KindUpload,
		Op:         "UploadStream",
		Payload:    string(payload),
		DurationMs: time.Since(start).Milliseconds(),
		Error:      errString(err),
	})
}

// uploadBar draws a progress bar on w. Quiet mode or an empty file draws nothing.
type uploadBar struct {
	w     io.Writer
	bar   progress.Model
	total int64
	drawn bool
	quiet bool
}

func newUploadBar(w io.Writer, total int64, quiet bool) *uploadBar {
	return &uploadBar{
		w:     w,
		bar:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		total: total,
		quiet: quiet || total <= 0,
	}
}

func (b *uploadBar) update(sent int64) {
	if b.quiet {
		return
	}
	b.drawn = true
	fmt.Fprintf(b.w, "\r%s %s/%s", b.bar.ViewAs(float64(sent)/float64(b.total)), humanBytes(sent), humanBytes(b.total))
}

func (b *uploadBar) done() {
	if b.drawn {
		fmt.Fprintln(b.w)
	}
}
