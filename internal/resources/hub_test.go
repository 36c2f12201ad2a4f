package resources

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dusk-indust/lessonforge/internal/store"
	"github.com/dusk-indust/lessonforge/internal/validate"
)

func newTestHub(t *testing.T, records store.ResourceStore) *Hub {
	t.Helper()
	return NewHub("mem://localhost/"+strings.ReplaceAll(t.Name(), "/", "_"), records, zap.NewNop())
}

func leafUpload() Upload {
	return Upload{
		Title:      "Leaf diagram",
		Subject:    "Science",
		GradeLevel: "JHS 2",
		FileName:   "leaf parts.md",
	}
}

func TestHub_UploadListDownload(t *testing.T) {
	records := store.NewMemory()
	h := newTestHub(t, records)
	ctx := context.Background()

	res, err := h.Upload(ctx, "teacher-1", leafUpload(), strings.NewReader("# Parts of a leaf\n"))
	require.NoError(t, err)
	assert.Equal(t, "teacher-1", res.UserID)
	assert.Contains(t, res.FilePath, "/teacher-1/")
	assert.True(t, strings.HasSuffix(res.FilePath, "-leaf_parts.md"), res.FilePath)
	assert.Equal(t, "leaf_parts.md", FileName(res))
	assert.NotEmpty(t, res.FileType)

	page, err := h.List(ctx, "teacher-1", store.ListOptions{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, res.ID, page.Items[0].ID)

	got, err := h.Get(ctx, "teacher-1", res.ID)
	require.NoError(t, err)
	data, err := h.Open(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, "# Parts of a leaf\n", string(data))

	_, err = h.Get(ctx, "teacher-2", res.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHub_UploadValidation(t *testing.T) {
	h := newTestHub(t, store.NewMemory())
	_, err := h.Upload(context.Background(), "teacher-1", Upload{Title: "ab", Subject: "S"}, strings.NewReader("x"))
	require.ErrorIs(t, err, validate.ErrInvalid)

	var verr *validate.Error
	require.ErrorAs(t, err, &verr)
	fields := map[string]bool{}
	for _, f := range verr.Fields {
		fields[f.Field] = true
	}
	assert.Equal(t, map[string]bool{"title": true, "subject": true, "gradeLevel": true, "fileName": true}, fields)
}

func TestHub_UploadTooLarge(t *testing.T) {
	h := newTestHub(t, store.NewMemory()).WithMaxSize(4)
	_, err := h.Upload(context.Background(), "teacher-1", leafUpload(), strings.NewReader("12345"))
	assert.ErrorIs(t, err, ErrTooLarge)
}

type failingResources struct{ store.ResourceStore }

func (failingResources) InsertResource(context.Context, store.Resource) (store.Resource, error) {
	return store.Resource{}, errors.New("insert failed")
}

func TestHub_RecordFailureRemovesObject(t *testing.T) {
	h := newTestHub(t, failingResources{store.NewMemory()})
	ctx := context.Background()
	_, err := h.Upload(ctx, "teacher-1", leafUpload(), strings.NewReader("data"))
	require.Error(t, err)

	objects, err := h.fs.List(ctx, h.root+"/teacher-1")
	if err == nil {
		for _, o := range objects {
			assert.True(t, o.IsDir(), "unexpected object %s", o.URL())
		}
	}
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "notes.pdf", safeName("../../etc/notes.pdf"))
	assert.Equal(t, "my_file.txt", safeName(`C:\Users\ama\my file.txt`))
	assert.Equal(t, "file", safeName(".."))
	assert.Equal(t, "file", safeName(""))
}

func TestFileType(t *testing.T) {
	assert.Equal(t, "application/pdf", fileType("application/pdf", "x.bin", nil))
	assert.Equal(t, "image/png", fileType("", "leaf.png", nil))
	assert.Equal(t, "text/plain; charset=utf-8", fileType("application/octet-stream", "README", []byte("hello")))
}
