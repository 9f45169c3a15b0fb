package media

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingUploader struct {
	path    string
	content string
	err     error
}

func (r *recordingUploader) UploadFile(_ context.Context, path string) (string, error) {
	r.path = path
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	r.content = string(data)
	if r.err != nil {
		return "", r.err
	}
	return "https://res.cloudinary.com/demo/" + path, nil
}

func TestUploadStream_RemovesTempFileOnSuccess(t *testing.T) {
	u := &recordingUploader{}
	url, err := UploadStream(context.Background(), u, strings.NewReader("png-bytes"), "gecko.png")
	require.NoError(t, err)
	assert.Contains(t, url, "https://res.cloudinary.com/demo/")
	assert.Equal(t, "png-bytes", u.content)
	assert.True(t, strings.HasSuffix(u.path, ".png"))

	_, statErr := os.Stat(u.path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestUploadStream_RemovesTempFileOnFailure(t *testing.T) {
	u := &recordingUploader{err: errors.New("cloudinary down")}
	_, err := UploadStream(context.Background(), u, strings.NewReader("x"), "gecko.jpg")
	require.Error(t, err)

	_, statErr := os.Stat(u.path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDisabledUploader(t *testing.T) {
	_, err := UploadStream(context.Background(), Disabled(), strings.NewReader("x"), "a.png")
	assert.ErrorIs(t, err, ErrUploadsDisabled)
}
