package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/neighbr/backend-go/internal/errors"
)

// LocalStore 本地文件系统存储
type LocalStore struct {
	basePath string
}

// NewLocalStore 创建本地存储，目录不存在时自动创建
func NewLocalStore(basePath string) (*LocalStore, error) {
	if basePath == "" {
		basePath = "./uploads"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory %s: %w", basePath, err)
	}
	return &LocalStore{basePath: basePath}, nil
}

// BasePath 存储根目录
func (s *LocalStore) BasePath() string {
	return s.basePath
}

func (s *LocalStore) resolve(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" {
		return "", apperrors.NewInvalidInputError("key", "empty storage key")
	}
	return filepath.Join(s.basePath, strings.TrimPrefix(clean, "/")), nil
}

// Save 写入文件，已存在时覆盖
func (s *LocalStore) Save(ctx context.Context, key string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", key, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Load 读取文件
func (s *LocalStore) Load(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.NewNotFoundError("document").WithDetail("key", key).WithCause(err)
		}
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

// Delete 不存在的文件视为已删除
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// DeletePrefix 删除目录下全部文件
func (s *LocalStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	root, err := s.resolve(prefix)
	if err != nil {
		return 0, err
	}
	count := 0
	walkErr := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	if walkErr != nil {
		if errors.Is(walkErr, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to list %s: %w", prefix, walkErr)
	}
	if err := os.RemoveAll(root); err != nil {
		return 0, fmt.Errorf("failed to delete %s: %w", prefix, err)
	}
	return count, nil
}
