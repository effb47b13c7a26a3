package uploadsvc

import (
	"bytes"
	"mime/multipart"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileHeader(t *testing.T, filename, contentType string, content []byte) *multipart.FileHeader {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(32<<20))
	return req.MultipartForm.File["image"][0]
}

func TestImageStore_Save(t *testing.T) {
	dir := t.TempDir()
	store := NewImageStore(dir, "/uploads/")

	url, err := store.Save(fileHeader(t, "Logo.PNG", "image/png", []byte("\x89PNG fake")))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "/uploads/"))
	assert.True(t, strings.HasSuffix(url, ".png"))

	data, err := os.ReadFile(filepath.Join(dir, strings.TrimPrefix(url, "/uploads/")))
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG fake"), data)
}

func TestImageStore_SaveRejects(t *testing.T) {
	store := NewImageStore(t.TempDir(), "/uploads")

	_, err := store.Save(fileHeader(t, "notes.txt", "text/plain", []byte("hello")))
	assert.Equal(t, ErrNotImage, err)

	fh := fileHeader(t, "big.jpg", "image/jpeg", []byte("x"))
	fh.Size = MaxImageSize + 1
	_, err = store.Save(fh)
	assert.Equal(t, ErrTooLarge, err)
}
