package track

import (
	"context"
	"fmt"
	"strings"

	"github.com/collabdocs/trackd/internal/cache"
	"github.com/collabdocs/trackd/internal/docservice"
	"github.com/collabdocs/trackd/internal/docstore"
	"github.com/collabdocs/trackd/internal/fileutil"
	"github.com/collabdocs/trackd/internal/logger"
)

type HandlerOptions struct {
	Store   *docstore.Manager
	Service *docservice.Client
	// Cache deduplicates redelivered save events; optional.
	Cache cache.Cache
	// OnEvent receives a notification after each processed save; optional.
	OnEvent func(Notification)
}

// Handler processes callback events. Every failure is absorbed: the
// editing service retries an unacknowledged event indefinitely and blocks
// the editor meanwhile, so processing errors are logged and the event is
// acknowledged regardless.
type Handler struct {
	store   *docstore.Manager
	svc     *docservice.Client
	cache   cache.Cache
	onEvent func(Notification)
}

func NewHandler(opts HandlerOptions) *Handler {
	return &Handler{
		store:   opts.Store,
		svc:     opts.Service,
		cache:   opts.Cache,
		onEvent: opts.OnEvent,
	}
}

// Handle dispatches one callback event for the document identified by
// fileName and address. The returned ack always carries error 0;
// authentication is the transport layer's business.
func (h *Handler) Handle(ctx context.Context, ev CallbackEvent, fileName, address string) Ack {
	switch ev.Status {
	case StatusEditing:
		h.handleEditing(ctx, ev)
	case StatusMustSave, StatusCorrupted:
		if !h.redelivered(ctx, ev) {
			h.handleSave(ctx, ev, fileName, address)
		}
	case StatusMustForceSave, StatusCorruptedForceSave:
		if !h.redelivered(ctx, ev) {
			h.handleForceSave(ctx, ev, fileName, address)
		}
	default:
		logger.Debug("track: ignoring status %d for %s", ev.Status, fileName)
	}
	return Ack{Error: 0}
}

// handleEditing requests a force save when the last action reports a user
// who left the session and no longer appears among the connected users.
func (h *Handler) handleEditing(ctx context.Context, ev CallbackEvent) {
	if len(ev.Actions) == 0 || ev.Actions[0].Type != 0 {
		return
	}
	gone := ev.Actions[0].UserID
	for _, user := range ev.Users {
		if user == gone {
			return
		}
	}
	if err := h.svc.Command(ctx, "forcesave", ev.Key); err != nil {
		logger.Warn("track: forcesave command for key %s: %v", ev.Key, err)
	}
}

func (h *Handler) handleSave(ctx context.Context, ev CallbackEvent, fileName, address string) {
	uri, name, err := h.reconcileExtension(ctx, ev, fileName, address)
	if err != nil {
		logger.Error("track: save %s/%s: %v", address, fileName, err)
		return
	}
	content, err := h.svc.Download(ctx, uri)
	if err != nil {
		logger.Error("track: save %s/%s: download: %v", address, fileName, err)
		return
	}
	var diff []byte
	if ev.ChangesURL != "" {
		diff, err = h.svc.Download(ctx, ev.ChangesURL)
		if err != nil {
			logger.Warn("track: save %s/%s: change archive: %v", address, fileName, err)
			diff = nil
		}
	}
	changes := []byte(ev.ChangesHistory)
	if len(changes) == 0 {
		changes = []byte(ev.History)
	}

	if name != fileutil.FileName(fileName) {
		// The content kept its foreign extension, so the commit targets a
		// freshly minted name. Seed it with the superseded bytes so they
		// survive as the version's snapshot.
		old, err := h.store.ReadDocument(fileName, address)
		if err != nil {
			logger.Warn("track: save %s/%s: superseded content: %v", address, fileName, err)
		}
		if err := h.store.CreateDocument(name, address, old); err != nil {
			logger.Error("track: save %s/%s: seed %s: %v", address, fileName, name, err)
			return
		}
	}

	version, err := h.store.CommitVersion(docstore.CommitInput{
		FileName: name,
		Address:  address,
		Key:      ev.Key,
		Content:  content,
		Diff:     diff,
		Changes:  changes,
	})
	if err != nil {
		logger.Error("track: save %s/%s: commit: %v", address, name, err)
		return
	}
	logger.Info("track: saved %s/%s version %d (status %d)", address, name, version, ev.Status)
	h.publish(Notification{Address: address, FileName: name, Status: ev.Status, Version: version})
}

func (h *Handler) handleForceSave(ctx context.Context, ev CallbackEvent, fileName, address string) {
	uri, name, err := h.reconcileExtension(ctx, ev, fileName, address)
	if err != nil {
		logger.Error("track: force save %s/%s: %v", address, fileName, err)
		return
	}
	content, err := h.svc.Download(ctx, uri)
	if err != nil {
		logger.Error("track: force save %s/%s: download: %v", address, fileName, err)
		return
	}
	if name != fileutil.FileName(fileName) {
		// A force save that changed format becomes a standalone document;
		// the original keeps its slot and history untouched.
		if err := h.store.CreateDocument(name, address, content); err != nil {
			logger.Error("track: force save %s/%s: create %s: %v", address, fileName, name, err)
		}
		return
	}
	if err := h.store.WriteForceSave(fileName, address, content); err != nil {
		logger.Error("track: force save %s/%s: %v", address, fileName, err)
		return
	}
	logger.Info("track: force saved %s/%s (status %d)", address, fileName, ev.Status)
	h.publish(Notification{Address: address, FileName: fileName, Status: ev.Status, ForceSaved: true})
}

// reconcileExtension restores the stored format when the service delivers
// content in a different one. Conversion failures are not retried; the
// content is kept as delivered under a collision-free name carrying its
// actual extension.
func (h *Handler) reconcileExtension(ctx context.Context, ev CallbackEvent, fileName, address string) (uri, name string, err error) {
	uri = ev.URL
	name = fileutil.FileName(fileName)
	curExt := fileutil.Ext(name)
	downloadExt := normalizeExt(ev.FileType)
	if downloadExt == "" {
		downloadExt = fileutil.Ext(ev.URL)
	}
	if downloadExt == "" || downloadExt == curExt {
		return uri, name, nil
	}
	converted, convErr := h.svc.ConvertSync(ctx, uri, downloadExt, curExt, ev.Key+uri)
	if convErr == nil {
		return converted, name, nil
	}
	logger.Warn("track: %s/%s: conversion %s to %s failed, keeping delivered format: %v",
		address, name, downloadExt, curExt, convErr)
	minted, err := h.store.CorrectName(fileutil.BaseName(name)+downloadExt, address)
	if err != nil {
		return "", "", err
	}
	return uri, minted, nil
}

// redelivered reports whether the same save event was already accepted
// recently. Cache failures degrade to processing the event again; commits
// are idempotent enough for that to be safe.
func (h *Handler) redelivered(ctx context.Context, ev CallbackEvent) bool {
	if h.cache == nil {
		return false
	}
	key := fmt.Sprintf("track:%d:%s:%s", ev.Status, ev.Key, ev.URL)
	_, found, err := h.cache.Get(ctx, key)
	if err != nil {
		logger.Warn("track: dedup lookup: %v", err)
		return false
	}
	if found {
		logger.Debug("track: duplicate event for key %s dropped", ev.Key)
		return true
	}
	if err := h.cache.Put(ctx, key, "1"); err != nil {
		logger.Warn("track: dedup store: %v", err)
	}
	return false
}

func (h *Handler) publish(n Notification) {
	if h.onEvent != nil {
		h.onEvent(n)
	}
}

func normalizeExt(fileType string) string {
	if fileType == "" {
		return ""
	}
	fileType = strings.ToLower(fileType)
	if fileType[0] == '.' {
		return fileType
	}
	return "." + fileType
}
