package docstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Options{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func mustCreate(t *testing.T, m *Manager, fileName, address, content string) {
	t.Helper()
	if err := m.CreateDocument(fileName, address, []byte(content)); err != nil {
		t.Fatalf("CreateDocument(%s): %v", fileName, err)
	}
}

func TestSanitizeAddress(t *testing.T) {
	cases := map[string]string{
		"192.168.0.1":  "192.168.0.1",
		"fe80::1%eth0": "fe80__1_eth0",
		"user@host":    "user_host",
		"a b/c":        "a_b_c",
	}
	for input, want := range cases {
		if got := SanitizeAddress(input); got != want {
			t.Errorf("SanitizeAddress(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestCorrectName(t *testing.T) {
	m := newTestManager(t)
	const addr = "10.0.0.1"

	name, err := m.CorrectName("report.docx", addr)
	if err != nil {
		t.Fatalf("CorrectName: %v", err)
	}
	if name != "report.docx" {
		t.Fatalf("fresh name = %q", name)
	}

	mustCreate(t, m, "report.docx", addr, "a")
	name, err = m.CorrectName("report.docx", addr)
	if err != nil {
		t.Fatalf("CorrectName: %v", err)
	}
	if name != "report (1).docx" {
		t.Fatalf("first collision = %q", name)
	}

	mustCreate(t, m, "report (1).docx", addr, "b")
	name, err = m.CorrectName("report.docx", addr)
	if err != nil {
		t.Fatalf("CorrectName: %v", err)
	}
	if name != "report (2).docx" {
		t.Fatalf("second collision = %q", name)
	}
}

func TestHistoryDirAbsentWithoutVersions(t *testing.T) {
	m := newTestManager(t)
	const addr = "10.0.0.1"
	mustCreate(t, m, "a.docx", addr, "x")

	dir, err := m.HistoryDir("a.docx", addr, false)
	if err != nil {
		t.Fatalf("HistoryDir: %v", err)
	}
	if dir != "" {
		t.Fatalf("expected empty dir for fresh document, got %q", dir)
	}
}

func TestCountVersion(t *testing.T) {
	m := newTestManager(t)
	const addr = "10.0.0.1"
	mustCreate(t, m, "a.docx", addr, "x")

	historyDir, err := m.HistoryDir("a.docx", addr, true)
	if err != nil {
		t.Fatalf("HistoryDir: %v", err)
	}
	count, err := m.CountVersion(historyDir)
	if err != nil || count != 0 {
		t.Fatalf("fresh count = %d, err %v", count, err)
	}

	for _, v := range []string{"1", "2"} {
		if err := os.MkdirAll(filepath.Join(historyDir, v), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	// Unrelated entries and a gap past the contiguous range must not count.
	if err := os.MkdirAll(filepath.Join(historyDir, "4"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(historyDir, "a.docx.txt"), []byte("meta"), 0o644); err != nil {
		t.Fatal(err)
	}
	count, err = m.CountVersion(historyDir)
	if err != nil || count != 2 {
		t.Fatalf("count = %d, err %v, want 2", count, err)
	}

	if _, err := m.CountVersion(""); err != nil {
		t.Fatalf("empty dir should count 0, got %v", err)
	}
}

func TestCommitVersion(t *testing.T) {
	m := newTestManager(t)
	const addr = "10.0.0.1"
	mustCreate(t, m, "a.docx", addr, "original")

	// Stage a force-save snapshot that the commit must clear.
	if err := m.WriteForceSave("a.docx", addr, []byte("interim")); err != nil {
		t.Fatalf("WriteForceSave: %v", err)
	}

	version, err := m.CommitVersion(CommitInput{
		FileName: "a.docx",
		Address:  addr,
		Key:      "rev-key-1",
		Content:  []byte("updated"),
		Diff:     []byte("zipbytes"),
		Changes:  []byte(`{"changes":[]}`),
	})
	if err != nil {
		t.Fatalf("CommitVersion: %v", err)
	}
	if version != 1 {
		t.Fatalf("version = %d, want 1", version)
	}

	current, err := m.ReadDocument("a.docx", addr)
	if err != nil || string(current) != "updated" {
		t.Fatalf("current content = %q, err %v", current, err)
	}

	key, err := m.VersionKey("a.docx", addr, 1)
	if err != nil || key != "rev-key-1" {
		t.Fatalf("version key = %q, err %v", key, err)
	}

	prevPath, err := m.PrevPath("a.docx", addr, 1)
	if err != nil {
		t.Fatalf("PrevPath: %v", err)
	}
	prev, err := os.ReadFile(prevPath)
	if err != nil || string(prev) != "original" {
		t.Fatalf("prev snapshot = %q, err %v", prev, err)
	}
	if filepath.Ext(prevPath) != ".docx" {
		t.Fatalf("prev extension = %q", filepath.Ext(prevPath))
	}

	diffPath, err := m.DiffPath("a.docx", addr, 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(diffPath); err != nil {
		t.Fatalf("diff archive missing: %v", err)
	}

	slot, err := m.ForceSavePath("a.docx", addr, false)
	if err != nil {
		t.Fatalf("ForceSavePath: %v", err)
	}
	if slot != "" {
		t.Fatalf("force-save slot survived the commit: %q", slot)
	}

	version, err = m.CommitVersion(CommitInput{
		FileName: "a.docx",
		Address:  addr,
		Key:      "rev-key-2",
		Content:  []byte("updated again"),
	})
	if err != nil || version != 2 {
		t.Fatalf("second commit version = %d, err %v", version, err)
	}
}

func TestCommitVersionMissingDocument(t *testing.T) {
	m := newTestManager(t)
	_, err := m.CommitVersion(CommitInput{
		FileName: "ghost.docx",
		Address:  "10.0.0.1",
		Key:      "k",
		Content:  []byte("x"),
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCommitVersionConcurrent(t *testing.T) {
	m := newTestManager(t)
	const addr = "10.0.0.1"
	mustCreate(t, m, "a.docx", addr, "v0")

	const commits = 8
	var wg sync.WaitGroup
	versions := make([]int, commits)
	for i := 0; i < commits; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := m.CommitVersion(CommitInput{
				FileName: "a.docx",
				Address:  addr,
				Key:      fmt.Sprintf("key-%d", i),
				Content:  []byte(fmt.Sprintf("content-%d", i)),
			})
			if err != nil {
				t.Errorf("commit %d: %v", i, err)
				return
			}
			versions[i] = v
		}(i)
	}
	wg.Wait()

	seen := map[int]bool{}
	for _, v := range versions {
		if seen[v] {
			t.Fatalf("duplicate version %d", v)
		}
		seen[v] = true
	}
	for v := 1; v <= commits; v++ {
		if !seen[v] {
			t.Fatalf("missing version %d", v)
		}
	}
}

func TestForceSaveDoesNotAdvanceVersions(t *testing.T) {
	m := newTestManager(t)
	const addr = "10.0.0.1"
	mustCreate(t, m, "a.docx", addr, "v0")

	if err := m.WriteForceSave("a.docx", addr, []byte("interim")); err != nil {
		t.Fatalf("WriteForceSave: %v", err)
	}
	historyDir, err := m.HistoryDir("a.docx", addr, true)
	if err != nil {
		t.Fatal(err)
	}
	count, err := m.CountVersion(historyDir)
	if err != nil || count != 0 {
		t.Fatalf("count after force save = %d, err %v", count, err)
	}
	slot, err := m.ForceSavePath("a.docx", addr, false)
	if err != nil || slot == "" {
		t.Fatalf("slot = %q, err %v", slot, err)
	}
	data, err := os.ReadFile(slot)
	if err != nil || string(data) != "interim" {
		t.Fatalf("slot content = %q, err %v", data, err)
	}
}

func TestDeleteDocument(t *testing.T) {
	m := newTestManager(t)
	const addr = "10.0.0.1"
	mustCreate(t, m, "a.docx", addr, "v0")
	if _, err := m.CommitVersion(CommitInput{FileName: "a.docx", Address: addr, Key: "k", Content: []byte("v1")}); err != nil {
		t.Fatal(err)
	}

	if err := m.DeleteDocument("a.docx", addr); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if m.DocumentExists("a.docx", addr) {
		t.Fatal("document survived deletion")
	}
	dir, err := m.HistoryDir("a.docx", addr, false)
	if err != nil || dir != "" {
		t.Fatalf("history survived deletion: %q, err %v", dir, err)
	}
}

func TestStoredFiles(t *testing.T) {
	m := newTestManager(t)
	const addr = "10.0.0.1"
	mustCreate(t, m, "old.docx", addr, "a")
	mustCreate(t, m, "new.xlsx", addr, "b")
	if _, err := m.CommitVersion(CommitInput{FileName: "new.xlsx", Address: addr, Key: "k", Content: []byte("b2")}); err != nil {
		t.Fatal(err)
	}

	files, err := m.StoredFiles(addr)
	if err != nil {
		t.Fatalf("StoredFiles: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("len = %d, want 2", len(files))
	}
	byName := map[string]StoredFile{}
	for _, f := range files {
		byName[f.Name] = f
	}
	if byName["old.docx"].Version != 1 {
		t.Fatalf("old.docx version = %d", byName["old.docx"].Version)
	}
	if byName["new.xlsx"].Version != 2 {
		t.Fatalf("new.xlsx version = %d", byName["new.xlsx"].Version)
	}
	if byName["new.xlsx"].Type != "spreadsheet" {
		t.Fatalf("new.xlsx type = %q", byName["new.xlsx"].Type)
	}

	if files, err := m.StoredFiles("unknown-address"); err != nil || len(files) != 0 {
		t.Fatalf("unknown address: %v files, err %v", files, err)
	}
}

func TestFilesystemMetaBackend(t *testing.T) {
	m := newTestManager(t)
	const addr = "10.0.0.1"
	mustCreate(t, m, "a.docx", addr, "x")

	backend := NewFilesystemMetaBackend(m)
	ctx := context.Background()
	created := time.Date(2026, 3, 14, 9, 30, 0, 0, time.Local)
	in := FileMeta{Created: created, UserID: "uid-7", UserName: "Kim Doe"}
	if err := backend.Save(ctx, addr, "a.docx", in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	out, err := backend.Load(ctx, addr, "a.docx")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !out.Created.Equal(created) || out.UserID != "uid-7" || out.UserName != "Kim Doe" {
		t.Fatalf("roundtrip mismatch: %+v", out)
	}

	if _, err := backend.Load(ctx, addr, "missing.docx"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing record err = %v", err)
	}
}

func TestRenameHistoryMovesMetaRecord(t *testing.T) {
	m := newTestManager(t)
	const addr = "10.0.0.1"
	mustCreate(t, m, "a.doc", addr, "x")

	backend := NewFilesystemMetaBackend(m)
	ctx := context.Background()
	if err := backend.Save(ctx, addr, "a.doc", FileMeta{Created: time.Now(), UserID: "u", UserName: "n"}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.CommitVersion(CommitInput{FileName: "a.doc", Address: addr, Key: "k", Content: []byte("y")}); err != nil {
		t.Fatal(err)
	}

	if err := m.RenameHistory("a.doc", "a.docx", addr); err != nil {
		t.Fatalf("RenameHistory: %v", err)
	}
	if key, err := m.VersionKey("a.docx", addr, 1); err != nil || key != "k" {
		t.Fatalf("moved version key = %q, err %v", key, err)
	}
	if _, err := backend.Load(ctx, addr, "a.docx"); err != nil {
		t.Fatalf("moved meta record: %v", err)
	}
}
