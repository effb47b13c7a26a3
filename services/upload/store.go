package uploadsvc

import (
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/beerxchange/core"
)

// MaxImageSize is the largest accepted image, in bytes.
const MaxImageSize = 10 << 20

var (
	ErrTooLarge = core.NewValidationError(nil, core.FieldError{Field: "image", Error: "image must not exceed 10 MB"})
	ErrNotImage = core.NewValidationError(nil, core.FieldError{Field: "image", Error: "only image files are allowed"})
)

// ImageStore saves uploaded images on disk, under unique names.
type ImageStore struct {
	dir     string
	baseURL string
}

// NewImageStore stores images in dir; they are served under baseURL (e.g. "/uploads").
func NewImageStore(dir, baseURL string) *ImageStore {
	return &ImageStore{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (s *ImageStore) Dir() string { return s.dir }

// Save validates and stores the uploaded file, and returns its public URL.
func (s *ImageStore) Save(fh *multipart.FileHeader) (string, error) {
	if fh.Size > MaxImageSize {
		return "", ErrTooLarge
	}
	if !strings.HasPrefix(fh.Header.Get("Content-Type"), "image/") {
		return "", ErrNotImage
	}

	src, err := fh.Open()
	if err != nil {
		return "", errors.Wrap(err, "opening upload")
	}
	defer func() { _ = src.Close() }()

	if err = os.MkdirAll(s.dir, 0o755); err != nil {
		return "", errors.Wrap(err, "creating upload dir")
	}
	name := uuid.NewString() + strings.ToLower(filepath.Ext(fh.Filename))
	path := filepath.Join(s.dir, name)
	dst, err := os.Create(path)
	if err != nil {
		return "", errors.Wrap(err, "creating image file")
	}

	written, err := io.Copy(dst, io.LimitReader(src, MaxImageSize+1))
	if cErr := dst.Close(); err == nil {
		err = cErr
	}
	if err != nil || written > MaxImageSize {
		_ = os.Remove(path)
		if err != nil {
			return "", errors.Wrap(err, "writing image file")
		}
		return "", ErrTooLarge
	}
	return s.baseURL + "/" + name, nil
}
