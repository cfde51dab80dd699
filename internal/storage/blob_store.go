package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// BlobStore 不透明的附件内容存储
// 引擎只保存返回的引用,不关心存储机制
type BlobStore interface {
	Put(filename string, data []byte) (string, error)
	Get(reference string) ([]byte, error)
}

// LocalBlobStore 本地磁盘 blob 存储实现
type LocalBlobStore struct {
	baseDir string
}

// NewLocalBlobStore 创建本地 blob 存储
func NewLocalBlobStore(baseDir string) *LocalBlobStore {
	// 确保存储目录存在
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		// 如果创建失败,使用临时目录
		baseDir = os.TempDir()
	}

	return &LocalBlobStore{baseDir: baseDir}
}

// Put 存储 blob 并返回引用
// 引用格式: 日期前缀/uuid_原文件名,避免同名覆盖
func (s *LocalBlobStore) Put(filename string, data []byte) (string, error) {
	prefix := time.Now().UTC().Format("20060102")
	name := fmt.Sprintf("%s_%s", uuid.New().String(), filepath.Base(filename))
	reference := filepath.Join(prefix, name)

	dir := filepath.Join(s.baseDir, prefix)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create blob directory: %w", err)
	}

	path := filepath.Join(s.baseDir, reference)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write blob: %w", err)
	}

	return reference, nil
}

// Get 根据引用读取 blob 内容
func (s *LocalBlobStore) Get(reference string) ([]byte, error) {
	// 拒绝越出存储目录的引用
	path := filepath.Join(s.baseDir, filepath.Clean(reference))
	rel, err := filepath.Rel(s.baseDir, path)
	if err != nil || rel == ".." || filepath.IsAbs(rel) || len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator) {
		return nil, fmt.Errorf("invalid blob reference: %s", reference)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}
