package problem

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"hsoj/internal/common/cache"
	"hsoj/internal/common/storage"
	appErr "hsoj/pkg/errors"
	"hsoj/pkg/utils/logger"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

const (
	packKeyPrefix  = "problems/"
	packKeySuffix  = ".tar.zst"
	packLockPrefix = "judge:datapack:lock:"

	defaultLockTTL  = 5 * time.Minute
	defaultLockWait = 30 * time.Second
	pollInterval    = 200 * time.Millisecond
)

// PackSyncer materializes problem directories from zstd-compressed tar packs
// stored under problems/<id>.tar.zst.
type PackSyncer struct {
	storage  storage.ObjectStorage
	lock     cache.LockOps
	bucket   string
	lockTTL  time.Duration
	lockWait time.Duration
}

// NewPackSyncer creates a syncer. lock may be nil on a single worker.
func NewPackSyncer(objects storage.ObjectStorage, lock cache.LockOps, bucket string, lockWait time.Duration) *PackSyncer {
	if lockWait <= 0 {
		lockWait = defaultLockWait
	}
	return &PackSyncer{
		storage:  objects,
		lock:     lock,
		bucket:   bucket,
		lockTTL:  defaultLockTTL,
		lockWait: lockWait,
	}
}

// PackKey returns the object key of a problem pack.
func PackKey(id int64) string {
	return fmt.Sprintf("%s%d%s", packKeyPrefix, id, packKeySuffix)
}

// Sync downloads and extracts the pack of problem id into dst unless another
// worker already did.
func (s *PackSyncer) Sync(ctx context.Context, id int64, dst string) error {
	if s.storage == nil {
		return appErr.New(appErr.StorageError).WithMessage("storage client is not initialized")
	}
	key := PackKey(id)
	token := uuid.NewString()
	lockKey := packLockPrefix + key

	if s.lock != nil {
		locked, err := s.lock.TryLock(ctx, lockKey, token, s.lockTTL)
		if err != nil {
			return appErr.Wrapf(err, appErr.LockFailed, "acquire data pack lock failed")
		}
		if !locked {
			return s.waitForPack(ctx, dst)
		}
		defer func() {
			if err := s.lock.Unlock(context.WithoutCancel(ctx), lockKey, token); err != nil {
				logger.Warn(ctx, "release data pack lock failed", zap.String("key", lockKey), zap.Error(err))
			}
		}()
	}

	if packReady(dst) {
		return nil
	}

	if _, err := s.storage.StatObject(ctx, s.bucket, key); err != nil {
		if storage.IsNotFound(err) {
			return appErr.New(appErr.ProblemNotFound).WithMessagef("problem %d not found", id)
		}
		return appErr.Wrapf(err, appErr.DataPackSyncFailed, "stat data pack failed")
	}
	reader, err := s.storage.GetObject(ctx, s.bucket, key)
	if err != nil {
		return appErr.Wrapf(err, appErr.DataPackSyncFailed, "download data pack failed")
	}
	defer reader.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return appErr.Wrapf(err, appErr.DataPackSyncFailed, "create problems dir failed")
	}
	staging, err := os.MkdirTemp(filepath.Dir(dst), filepath.Base(dst)+".sync-")
	if err != nil {
		return appErr.Wrapf(err, appErr.DataPackSyncFailed, "create staging dir failed")
	}
	defer os.RemoveAll(staging)

	if err := extractPack(reader, staging); err != nil {
		return err
	}
	if !packReady(staging) {
		return appErr.Newf(appErr.ProblemInvalid, "data pack %s has no %s", key, InfoFileName)
	}
	if err := os.RemoveAll(dst); err != nil {
		return appErr.Wrapf(err, appErr.DataPackSyncFailed, "cleanup problem dir failed")
	}
	if err := os.Rename(staging, dst); err != nil {
		return appErr.Wrapf(err, appErr.DataPackSyncFailed, "install problem dir failed")
	}
	logger.Info(ctx, "data pack synced", zap.Int64("problem_id", id), zap.String("dir", dst))
	return nil
}

func (s *PackSyncer) waitForPack(ctx context.Context, dst string) error {
	deadline := time.Now().Add(s.lockWait)
	for {
		if packReady(dst) {
			return nil
		}
		if time.Now().After(deadline) {
			return appErr.New(appErr.Timeout).WithMessage("wait for data pack timeout")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func packReady(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, InfoFileName))
	return err == nil && info.Mode().IsRegular()
}

func extractPack(src io.Reader, dstDir string) error {
	zr, err := zstd.NewReader(src)
	if err != nil {
		return appErr.Wrapf(err, appErr.DataPackSyncFailed, "create zstd reader failed")
	}
	defer zr.Close()

	root := filepath.Clean(dstDir) + string(filepath.Separator)
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return appErr.Wrapf(err, appErr.DataPackSyncFailed, "read tar entry failed")
		}
		name := filepath.Clean(hdr.Name)
		if name == "." || name == "" {
			continue
		}
		if filepath.IsAbs(name) || strings.HasPrefix(name, "..") {
			return appErr.Newf(appErr.DataPackSyncFailed, "invalid tar entry path %q", hdr.Name)
		}
		target := filepath.Join(dstDir, name)
		if !strings.HasPrefix(target, root) {
			return appErr.Newf(appErr.DataPackSyncFailed, "tar entry escapes pack: %q", hdr.Name)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return appErr.Wrapf(err, appErr.DataPackSyncFailed, "create dir failed")
			}
		case tar.TypeReg:
			if err := writeEntry(target, tr, fs.FileMode(hdr.Mode).Perm()|0400); err != nil {
				return err
			}
		}
	}
}

func writeEntry(target string, r io.Reader, mode fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return appErr.Wrapf(err, appErr.DataPackSyncFailed, "create parent dir failed")
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return appErr.Wrapf(err, appErr.DataPackSyncFailed, "create file failed")
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return appErr.Wrapf(err, appErr.DataPackSyncFailed, "write file failed")
	}
	return f.Close()
}
