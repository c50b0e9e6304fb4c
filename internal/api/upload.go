package api

import (
	"io"
	"mime/multipart"
	"strings"

	"mediadesk/internal/protocol"
)

// uploadBlob exposes a multipart file part as a protocol.Blob.
type uploadBlob struct {
	header *multipart.FileHeader
}

func (b uploadBlob) Name() string { return b.header.Filename }

func (b uploadBlob) Size() int64 { return b.header.Size }

func (b uploadBlob) Open() (io.ReadCloser, error) { return b.header.Open() }

func (b uploadBlob) MediaType() string {
	if ct := strings.TrimSpace(b.header.Header.Get("Content-Type")); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	return protocol.MediaTypeForName(b.header.Filename)
}
