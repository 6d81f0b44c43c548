package docstore

import (
	"errors"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/collabdocs/trackd/internal/fileutil"
)

// StoredFile describes one document in a client's shard.
type StoredFile struct {
	Name     string                `json:"name"`
	Type     fileutil.DocumentType `json:"type"`
	Version  int                   `json:"version"`
	Modified time.Time             `json:"modified"`
}

// StoredFiles lists the documents stored for an address, newest first.
// History directories and meta records are skipped; Version is the number
// of committed versions plus one, so a fresh document reports 1.
func (m *Manager) StoredFiles(address string) ([]StoredFile, error) {
	entries, err := os.ReadDir(m.clientDir(address))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var files []StoredFile
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), historySuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		historyDir, err := m.HistoryDir(entry.Name(), address, false)
		if err != nil {
			return nil, err
		}
		count, err := m.CountVersion(historyDir)
		if err != nil {
			return nil, err
		}
		files = append(files, StoredFile{
			Name:     entry.Name(),
			Type:     fileutil.Type(entry.Name()),
			Version:  count + 1,
			Modified: info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Modified.After(files[j].Modified) })
	return files, nil
}
