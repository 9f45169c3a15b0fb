package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

var ErrUploadsDisabled = errors.New("image uploads are not configured")

// Uploader stores a local file and returns its public URL.
type Uploader interface {
	UploadFile(ctx context.Context, path string) (string, error)
}

type CloudinaryUploader struct {
	cld    *cloudinary.Cloudinary
	folder string
}

func NewCloudinaryUploader(cloudName, apiKey, apiSecret, folder string) (*CloudinaryUploader, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("init cloudinary: %w", err)
	}
	return &CloudinaryUploader{cld: cld, folder: folder}, nil
}

func (u *CloudinaryUploader) UploadFile(ctx context.Context, path string) (string, error) {
	res, err := u.cld.Upload.Upload(ctx, path, uploader.UploadParams{Folder: u.folder})
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	if res.Error.Message != "" {
		return "", fmt.Errorf("upload image: %s", res.Error.Message)
	}
	return res.SecureURL, nil
}

// disabledUploader is used when Cloudinary credentials are missing.
type disabledUploader struct{}

func Disabled() Uploader { return disabledUploader{} }

func (disabledUploader) UploadFile(context.Context, string) (string, error) {
	return "", ErrUploadsDisabled
}

// UploadStream spools r to a temp file, uploads it, and removes the file on every path.
func UploadStream(ctx context.Context, u Uploader, r io.Reader, filename string) (string, error) {
	tmp, err := os.CreateTemp("", "upload-*"+filepath.Ext(filename))
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := io.Copy(tmp, r); err != nil {
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return u.UploadFile(ctx, tmp.Name())
}
