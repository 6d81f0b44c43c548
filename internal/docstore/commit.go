package docstore

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/collabdocs/trackd/internal/logger"
)

// CommitInput carries everything a version commit persists. Content is the
// document's new current content; Diff and Changes are optional artifacts.
type CommitInput struct {
	FileName string
	Address  string
	Key      string
	Content  []byte
	Diff     []byte
	Changes  []byte
}

// CommitVersion appends an immutable version for the document and installs
// the new current content. The whole count-then-create sequence runs under
// a per-document lock, so concurrent commits for one document cannot mint
// the same sequence number. Artifact writes after the version directory
// exists are best effort: failures are logged, not rolled back; readers
// treat a version without its key record as not yet committed.
func (m *Manager) CommitVersion(input CommitInput) (int, error) {
	storagePath, err := m.StoragePath(input.FileName, input.Address)
	if err != nil {
		return 0, err
	}

	unlock := m.locks.lock(docKey(input.FileName, input.Address))
	defer unlock()

	if !exists(storagePath) {
		return 0, ErrNotFound
	}
	historyDir, err := m.HistoryDir(input.FileName, input.Address, true)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(historyDir, 0o755); err != nil {
		return 0, err
	}
	count, err := m.CountVersion(historyDir)
	if err != nil {
		return 0, err
	}
	version := count + 1
	versionDir := filepath.Join(historyDir, strconv.Itoa(version))
	if err := os.MkdirAll(versionDir, 0o755); err != nil {
		return 0, err
	}

	if len(input.Diff) > 0 {
		if diffPath, err := m.DiffPath(input.FileName, input.Address, version); err == nil {
			warnOnErr("diff archive", os.WriteFile(diffPath, input.Diff, 0o644))
		}
	}
	if len(input.Changes) > 0 {
		if changesPath, err := m.ChangesPath(input.FileName, input.Address, version); err == nil {
			warnOnErr("change log", os.WriteFile(changesPath, input.Changes, 0o644))
		}
	}
	if keyPath, err := m.KeyPath(input.FileName, input.Address, version); err == nil {
		warnOnErr("revision key", os.WriteFile(keyPath, []byte(input.Key), 0o644))
	}

	if prev, err := os.ReadFile(storagePath); err != nil {
		logger.Warn("commit %s: snapshot read failed: %v", docKey(input.FileName, input.Address), err)
	} else if prevPath, err := m.PrevPath(input.FileName, input.Address, version); err == nil {
		warnOnErr("prev snapshot", os.WriteFile(prevPath, prev, 0o644))
	}

	warnOnErr("current content", os.WriteFile(storagePath, input.Content, 0o644))

	slot, err := m.ForceSavePath(input.FileName, input.Address, false)
	if err == nil && slot != "" {
		warnOnErr("force-save slot removal", os.Remove(slot))
	}
	return version, nil
}

// WriteForceSave stores an interim snapshot in the document's force-save
// slot, creating the slot when absent. Version numbering is untouched.
func (m *Manager) WriteForceSave(fileName, address string, content []byte) error {
	slot, err := m.ForceSavePath(fileName, address, false)
	if err != nil {
		return err
	}
	if slot == "" {
		slot, err = m.ForceSavePath(fileName, address, true)
		if err != nil {
			return err
		}
		if slot == "" {
			return ErrNotFound
		}
	}
	return os.WriteFile(slot, content, 0o644)
}

func warnOnErr(what string, err error) {
	if err != nil {
		logger.Warn("commit: %s write failed: %v", what, err)
	}
}
