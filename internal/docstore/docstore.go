// Package docstore owns the on-disk document layout: current content per
// (fileName, clientAddress) key, the per-document version history tree, and
// the force-save slot.
package docstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/collabdocs/trackd/internal/fileutil"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrCorruptHistory = errors.New("version probe bound exceeded")
)

const (
	historySuffix = "-history"

	// maxVersionProbe bounds the sequential existence scan of CountVersion
	// so corrupted trees cannot stall a callback.
	maxVersionProbe = 10000
)

var addressUnsafe = regexp.MustCompile(`[^0-9a-zA-Z.=]`)

// SanitizeAddress produces the directory-safe shard name for a client
// address.
func SanitizeAddress(address string) string {
	return addressUnsafe.ReplaceAllString(address, "_")
}

type Manager struct {
	root  string
	locks keyedMutex
}

type Options struct {
	Root string
}

func NewManager(opts Options) (*Manager, error) {
	root := strings.TrimSpace(opts.Root)
	if root == "" {
		return nil, ErrInvalidInput
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &Manager{
		root:  abs,
		locks: newKeyedMutex(),
	}, nil
}

func (m *Manager) Root() string {
	return m.root
}

func (m *Manager) clientDir(address string) string {
	return filepath.Join(m.root, SanitizeAddress(address))
}

// StoragePath resolves the current-content path of a document, creating the
// client shard directory when missing. The file name is reduced to its last
// path segment first.
func (m *Manager) StoragePath(fileName, address string) (string, error) {
	fileName = fileutil.FileName(fileName)
	if fileName == "" {
		return "", ErrInvalidInput
	}
	dir := m.clientDir(address)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName), nil
}

// DocumentExists reports whether current content is stored for the key.
func (m *Manager) DocumentExists(fileName, address string) bool {
	storagePath, err := m.StoragePath(fileName, address)
	if err != nil {
		return false
	}
	return exists(storagePath)
}

// CreateDocument writes current content for a document, creating the file
// when absent and overwriting it otherwise.
func (m *Manager) CreateDocument(fileName, address string, content []byte) error {
	storagePath, err := m.StoragePath(fileName, address)
	if err != nil {
		return err
	}
	return os.WriteFile(storagePath, content, 0o644)
}

// ReadDocument returns a document's current content.
func (m *Manager) ReadDocument(fileName, address string) ([]byte, error) {
	storagePath, err := m.StoragePath(fileName, address)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(storagePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// CorrectName resolves name collisions by appending " (n)" to the base name
// until the resulting path is unclaimed for the client address.
func (m *Manager) CorrectName(fileName, address string) (string, error) {
	base := fileutil.BaseName(fileName)
	ext := fileutil.Ext(fileName)
	name := base + ext
	for index := 1; ; index++ {
		storagePath, err := m.StoragePath(name, address)
		if err != nil {
			return "", err
		}
		if !exists(storagePath) {
			return name, nil
		}
		name = fmt.Sprintf("%s (%d)%s", base, index, ext)
	}
}

// DeleteDocument removes a document's current content and its whole
// history tree.
func (m *Manager) DeleteDocument(fileName, address string) error {
	storagePath, err := m.StoragePath(fileName, address)
	if err != nil {
		return err
	}
	unlock := m.locks.lock(docKey(fileName, address))
	defer unlock()
	if err := os.Remove(storagePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return os.RemoveAll(storagePath + historySuffix)
}

// ClearClient removes every document stored for the client address,
// keeping the shard directory itself.
func (m *Manager) ClearClient(address string) error {
	dir := m.clientDir(address)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

// RenameHistory moves a document's history tree and metadata record to a
// new file name; the current-content file itself is the caller's business
// (conversion writes the converted copy before dropping the original).
func (m *Manager) RenameHistory(oldName, newName, address string) error {
	oldDir, err := m.HistoryDir(oldName, address, true)
	if err != nil {
		return err
	}
	newDir, err := m.HistoryDir(newName, address, true)
	if err != nil {
		return err
	}
	if !exists(oldDir) {
		return nil
	}
	if err := os.Rename(oldDir, newDir); err != nil {
		return err
	}
	oldMeta := filepath.Join(newDir, fileutil.FileName(oldName)+".txt")
	if exists(oldMeta) {
		return os.Rename(oldMeta, filepath.Join(newDir, fileutil.FileName(newName)+".txt"))
	}
	return nil
}

func docKey(fileName, address string) string {
	return SanitizeAddress(address) + "/" + fileutil.FileName(fileName)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
