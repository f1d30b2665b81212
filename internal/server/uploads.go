package server

import (
	"errors"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/campusconnect/backend/internal/messages"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	uploadsRoute          = "/uploads"
	defaultMaxUploadBytes = 10 << 20
	maxExtensionLength    = 10
)

var errUploadsDisabled = errors.New("uploads directory is not configured")

// uploadStore keeps message attachments on local disk under random names.
type uploadStore struct {
	dir      string
	maxBytes int64
}

func newUploadStore(dir string, maxBytes int64) uploadStore {
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	return uploadStore{dir: strings.TrimSpace(dir), maxBytes: maxBytes}
}

func (s uploadStore) enabled() bool {
	return s.dir != ""
}

// save writes the file and returns the media reference served under /uploads.
func (s uploadStore) save(c *gin.Context, file *multipart.FileHeader) (messages.Media, string, error) {
	if !s.enabled() {
		return messages.Media{}, "", errUploadsDisabled
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return messages.Media{}, "", err
	}
	name := uuid.NewString() + safeExtension(file.Filename)
	destination := filepath.Join(s.dir, name)
	if err := c.SaveUploadedFile(file, destination); err != nil {
		return messages.Media{}, "", err
	}
	return messages.Media{
		URL:  uploadsRoute + "/" + name,
		Kind: mediaKindFor(file.Header.Get("Content-Type")),
	}, destination, nil
}

func safeExtension(filename string) string {
	extension := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if len(extension) < 2 || len(extension) > maxExtensionLength {
		return ""
	}
	for _, r := range extension[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return extension
}

func mediaKindFor(contentType string) messages.MediaKind {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return messages.MediaKindImage
	case strings.HasPrefix(contentType, "video/"):
		return messages.MediaKindVideo
	case strings.HasPrefix(contentType, "audio/"):
		return messages.MediaKindAudio
	default:
		return messages.MediaKindFile
	}
}
