package storage_test

import (
	"testing"

	"github.com/mautops/routine-gin/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLocalBlobStore_PutGet 写入后可按引用读回
func TestLocalBlobStore_PutGet(t *testing.T) {
	store := storage.NewLocalBlobStore(t.TempDir())

	content := []byte("fake image bytes")
	reference, err := store.Put("photo.jpg", content)
	require.NoError(t, err)
	assert.NotEmpty(t, reference)
	assert.Contains(t, reference, "photo.jpg")

	got, err := store.Get(reference)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

// TestLocalBlobStore_UniqueReferences 同名文件互不覆盖
func TestLocalBlobStore_UniqueReferences(t *testing.T) {
	store := storage.NewLocalBlobStore(t.TempDir())

	first, err := store.Put("photo.jpg", []byte("one"))
	require.NoError(t, err)
	second, err := store.Put("photo.jpg", []byte("two"))
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	got, err := store.Get(first)
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), got)
}

// TestLocalBlobStore_RejectsTraversal 越出存储目录的引用被拒绝
func TestLocalBlobStore_RejectsTraversal(t *testing.T) {
	store := storage.NewLocalBlobStore(t.TempDir())

	_, err := store.Get("../../etc/passwd")
	assert.Error(t, err)
}

// TestLocalBlobStore_MissingReference 不存在的引用报错
func TestLocalBlobStore_MissingReference(t *testing.T) {
	store := storage.NewLocalBlobStore(t.TempDir())

	_, err := store.Get("20250602/nothing_here.jpg")
	assert.Error(t, err)
}
