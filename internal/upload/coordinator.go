package upload

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Atropina/Falai-Arizona/internal/bus"
	"github.com/Atropina/Falai-Arizona/internal/store"
)

// Coordinator runs attachment uploads. Each upload streams the file to the
// storage backend, publishing progress on the bus, and appends the media
// message only once the backend has accepted the whole object. A failed
// transfer leaves no trace in the conversation.
type Coordinator struct {
	db      *store.DB
	storage ObjectStorage
	bus     *bus.Bus
	logger  *zap.Logger
}

// NewCoordinator wires a coordinator over the given storage backend.
func NewCoordinator(db *store.DB, storage ObjectStorage, b *bus.Bus, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{db: db, storage: storage, bus: b, logger: logger}
}

// Upload transfers one attachment from sender to receiver and records it as
// a media message. filename only contributes its extension, for the object
// key and content type. Returns the appended message, or ErrUploadFailed
// with no message recorded.
func (c *Coordinator) Upload(ctx context.Context, sender, receiver, filename string, r io.Reader, size int64) (*store.Message, error) {
	uploadID := uuid.NewString()
	ext := filepath.Ext(filename)
	key := fmt.Sprintf("media/%s%s", uploadID, ext)
	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	pr := &progressReader{r: r, bus: c.bus, uploadID: uploadID, total: size}
	url, err := c.storage.Put(ctx, key, contentType, pr, size)
	if err != nil {
		c.logger.Warn("upload failed",
			zap.String("upload", uploadID),
			zap.String("file", filename),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	msg := &store.Message{
		Sender:    sender,
		Receiver:  receiver,
		Timestamp: time.Now().UnixMilli(),
		Kind:      store.KindMedia,
		MediaURL:  url,
		MediaType: contentType,
	}
	if _, err := c.db.Append(msg); err != nil {
		return nil, err
	}
	c.logger.Info("upload complete",
		zap.String("upload", uploadID),
		zap.String("url", url),
		zap.Int64("bytes", pr.sent))
	return msg, nil
}

// progressReader counts bytes as the storage backend pulls them and
// publishes progress events.
type progressReader struct {
	r        io.Reader
	bus      *bus.Bus
	uploadID string
	sent     int64
	total    int64
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		if p.bus != nil {
			p.bus.Publish(bus.Event{
				Kind:      bus.KindUploadProgress,
				Timestamp: time.Now(),
				Payload:   bus.UploadProgress{UploadID: p.uploadID, Sent: p.sent, Total: p.total},
			})
		}
	}
	return n, err
}
