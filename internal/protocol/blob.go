package protocol

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// Blob is an opaque binary payload with a name and a byte size.
type Blob interface {
	Name() string
	Size() int64
	MediaType() string
	Open() (io.ReadCloser, error)
}

// FileBlob is a Blob backed by a file on disk.
type FileBlob struct {
	path string
	size int64
}

// NewFileBlob stats path and returns a blob referencing it.
func NewFileBlob(path string) (*FileBlob, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat input: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("input %s is a directory", path)
	}
	return &FileBlob{path: path, size: info.Size()}, nil
}

func (b *FileBlob) Name() string { return filepath.Base(b.path) }

func (b *FileBlob) Size() int64 { return b.size }

func (b *FileBlob) Path() string { return b.path }

func (b *FileBlob) MediaType() string { return MediaTypeForName(b.path) }

func (b *FileBlob) Open() (io.ReadCloser, error) { return os.Open(b.path) }

// BytesBlob is an in-memory Blob. Engine outputs are returned as BytesBlobs.
type BytesBlob struct {
	name      string
	mediaType string
	data      []byte
}

// NewBytesBlob wraps data. An empty mediaType is derived from the name.
func NewBytesBlob(name, mediaType string, data []byte) *BytesBlob {
	if strings.TrimSpace(mediaType) == "" {
		mediaType = MediaTypeForName(name)
	}
	return &BytesBlob{name: name, mediaType: mediaType, data: data}
}

func (b *BytesBlob) Name() string { return b.name }

func (b *BytesBlob) Size() int64 { return int64(len(b.data)) }

func (b *BytesBlob) MediaType() string { return b.mediaType }

func (b *BytesBlob) Bytes() []byte { return b.data }

func (b *BytesBlob) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.data)), nil
}

// ReadAll drains a blob into memory.
func ReadAll(b Blob) ([]byte, error) {
	if bb, ok := b.(*BytesBlob); ok {
		return bb.data, nil
	}
	rc, err := b.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

var mediaTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".ogg":  "audio/ogg",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".avi":  "video/x-msvideo",
	".srt":  "application/x-subrip",
	".txt":  "text/plain; charset=utf-8",
	".json": "application/json",
}

// MediaTypeForName guesses a media type from the file extension.
func MediaTypeForName(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if mt, ok := mediaTypes[ext]; ok {
		return mt
	}
	if mt := mime.TypeByExtension(ext); mt != "" {
		return mt
	}
	return "application/octet-stream"
}
