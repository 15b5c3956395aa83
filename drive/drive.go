// Package drive uploads finished workbooks to a Drive folder.
package drive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	drivev3 "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// XLSXContentType is the media type of workbooks.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ErrUpload wraps every upload failure.
var ErrUpload = errors.New("upload failed")

// Uploader stores a local file remotely and returns its remote id.
type Uploader interface {
	Upload(ctx context.Context, localPath, folderID string) (string, error)
}

// Client uploads through the Drive v3 API.
type Client struct {
	files *drivev3.FilesService
}

// NewClient creates a client. Authorization comes from opts, usually
// option.WithTokenSource.
func NewClient(ctx context.Context, opts ...option.ClientOption) (*Client, error) {
	svc, err := drivev3.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create drive service: %w", ErrUpload, err)
	}
	return &Client{files: svc.Files}, nil
}

// Upload sends the file at localPath into folderID. An empty folderID
// uploads to the root of the account's drive.
func (c *Client) Upload(ctx context.Context, localPath, folderID string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read %s: %w", ErrUpload, localPath, err)
	}
	defer f.Close()

	meta := &drivev3.File{
		Name:     filepath.Base(localPath),
		MimeType: contentType(localPath),
	}
	if folderID != "" {
		meta.Parents = []string{folderID}
	}

	file, err := c.files.Create(meta).
		Media(f, googleapi.ContentType(meta.MimeType)).
		SupportsAllDrives(true).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUpload, err)
	}
	if file.Id == "" {
		return "", fmt.Errorf("%w: response has no file id", ErrUpload)
	}
	return file.Id, nil
}

func contentType(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return XLSXContentType
	}
	return "application/octet-stream"
}
