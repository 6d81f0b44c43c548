package docstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/collabdocs/trackd/internal/fileutil"
)

// HistoryDir resolves the history directory of a document. When create is
// false and no version 1 exists yet, it returns "" to signal "no history",
// matching how callers distinguish fresh documents. The directory itself is
// not created here; commits create it on demand.
func (m *Manager) HistoryDir(fileName, address string, create bool) (string, error) {
	fileName = fileutil.FileName(fileName)
	if fileName == "" {
		return "", ErrInvalidInput
	}
	clientDir := m.clientDir(address)
	if !exists(clientDir) {
		if !create {
			return "", nil
		}
		if err := os.MkdirAll(clientDir, 0o755); err != nil {
			return "", err
		}
	}
	dir := filepath.Join(clientDir, fileName+historySuffix)
	if !create && !exists(filepath.Join(dir, "1")) {
		return "", nil
	}
	return dir, nil
}

// CountVersion reports the highest contiguous version number in a history
// directory by probing for integer-named subdirectories starting at 1. The
// probe tolerates unrelated files in the directory; a gap terminates it.
func (m *Manager) CountVersion(historyDir string) (int, error) {
	if historyDir == "" {
		return 0, nil
	}
	for i := 0; i < maxVersionProbe; i++ {
		if !exists(filepath.Join(historyDir, strconv.Itoa(i+1))) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrCorruptHistory, historyDir)
}

// VersionDir resolves the directory of one version; it does not create it.
func (m *Manager) VersionDir(fileName, address string, version int) (string, error) {
	historyDir, err := m.HistoryDir(fileName, address, true)
	if err != nil {
		return "", err
	}
	return filepath.Join(historyDir, strconv.Itoa(version)), nil
}

// PrevPath is the snapshot of the content the version overwrote; its
// extension follows the document's stored extension.
func (m *Manager) PrevPath(fileName, address string, version int) (string, error) {
	dir, err := m.VersionDir(fileName, address, version)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "prev"+fileutil.Ext(fileName)), nil
}

func (m *Manager) DiffPath(fileName, address string, version int) (string, error) {
	dir, err := m.VersionDir(fileName, address, version)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "diff.zip"), nil
}

func (m *Manager) ChangesPath(fileName, address string, version int) (string, error) {
	dir, err := m.VersionDir(fileName, address, version)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "changes.txt"), nil
}

func (m *Manager) KeyPath(fileName, address string, version int) (string, error) {
	dir, err := m.VersionDir(fileName, address, version)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "key.txt"), nil
}

// VersionKey reads the revision key record of a committed version. A
// missing record means the version was never fully committed and is
// reported as ErrNotFound.
func (m *Manager) VersionKey(fileName, address string, version int) (string, error) {
	keyPath, err := m.KeyPath(fileName, address, version)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(keyPath)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ForceSavePath resolves the force-save slot. When create is false it
// returns "" unless the slot file already exists; when create is true the
// containing history directory is created so the slot can be written.
func (m *Manager) ForceSavePath(fileName, address string, create bool) (string, error) {
	fileName = fileutil.FileName(fileName)
	if fileName == "" {
		return "", ErrInvalidInput
	}
	clientDir := m.clientDir(address)
	if !exists(clientDir) {
		return "", nil
	}
	dir := filepath.Join(clientDir, fileName+historySuffix)
	if !create && !exists(dir) {
		return "", nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	slot := filepath.Join(dir, fileName)
	if !create && !exists(slot) {
		return "", nil
	}
	return slot, nil
}
