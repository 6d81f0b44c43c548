package docstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/collabdocs/trackd/internal/fileutil"
)

// FileMeta is the creation record of a document: who uploaded it and when.
type FileMeta struct {
	Created  time.Time
	UserID   string
	UserName string
}

const metaTimeLayout = "2006-01-02 15:04:05"

// MetaBackend persists FileMeta records. Implementations: filesystem
// (record file beside the history tree) and Postgres.
type MetaBackend interface {
	Save(ctx context.Context, address, fileName string, meta FileMeta) error
	Load(ctx context.Context, address, fileName string) (FileMeta, error)
	Rename(ctx context.Context, address, oldName, newName string) error
}

// FilesystemMetaBackend stores each record as a one-line CSV file named
// after the document, inside its history directory.
type FilesystemMetaBackend struct {
	manager *Manager
}

func NewFilesystemMetaBackend(manager *Manager) *FilesystemMetaBackend {
	return &FilesystemMetaBackend{manager: manager}
}

func (b *FilesystemMetaBackend) recordPath(address, fileName string, create bool) (string, error) {
	historyDir, err := b.manager.HistoryDir(fileName, address, true)
	if err != nil {
		return "", err
	}
	if create {
		if err := os.MkdirAll(historyDir, 0o755); err != nil {
			return "", err
		}
	}
	return filepath.Join(historyDir, fileutil.FileName(fileName)+".txt"), nil
}

func (b *FilesystemMetaBackend) Save(_ context.Context, address, fileName string, meta FileMeta) error {
	recordPath, err := b.recordPath(address, fileName, true)
	if err != nil {
		return err
	}
	record := fmt.Sprintf("%s,%s,%s", meta.Created.Format(metaTimeLayout), meta.UserID, meta.UserName)
	return os.WriteFile(recordPath, []byte(record), 0o644)
}

func (b *FilesystemMetaBackend) Load(_ context.Context, address, fileName string) (FileMeta, error) {
	recordPath, err := b.recordPath(address, fileName, false)
	if err != nil {
		return FileMeta{}, err
	}
	data, err := os.ReadFile(recordPath)
	if errors.Is(err, os.ErrNotExist) {
		return FileMeta{}, ErrNotFound
	}
	if err != nil {
		return FileMeta{}, err
	}
	parts := strings.SplitN(strings.TrimSpace(string(data)), ",", 3)
	if len(parts) != 3 {
		return FileMeta{}, fmt.Errorf("%w: malformed meta record %s", ErrInvalidInput, recordPath)
	}
	created, err := time.ParseInLocation(metaTimeLayout, parts[0], time.Local)
	if err != nil {
		return FileMeta{}, err
	}
	return FileMeta{Created: created, UserID: parts[1], UserName: parts[2]}, nil
}

// Rename is handled by Manager.RenameHistory for the filesystem backend,
// which moves the record together with the history tree.
func (b *FilesystemMetaBackend) Rename(context.Context, string, string, string) error {
	return nil
}
