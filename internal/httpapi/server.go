// Package httpapi is the HTTP surface of the tracker: the callback
// endpoint, document transfer routes, and the websocket event feed.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/collabdocs/trackd/internal/docservice"
	"github.com/collabdocs/trackd/internal/docstore"
	"github.com/collabdocs/trackd/internal/fileutil"
	"github.com/collabdocs/trackd/internal/logger"
	"github.com/collabdocs/trackd/internal/track"
)

type ServerOptions struct {
	Store   *docstore.Manager
	Service *docservice.Client
	Tracker *track.Handler
	Meta    docstore.MetaBackend
	// Tokens, when set, verifies inbound callback tokens. TokenForRequest
	// additionally guards document transfer routes.
	Tokens          *docservice.TokenManager
	TokenForRequest bool
	Hub             *Hub
	// PublicURL is this service's externally reachable base URL; the
	// document server downloads content through it during conversion.
	PublicURL      string
	UploadExts     []string
	ConvertedExts  []string
	MaxBodyBytes   int64
	MaxUploadBytes int64
}

type Server struct {
	store           *docstore.Manager
	svc             *docservice.Client
	tracker         *track.Handler
	meta            docstore.MetaBackend
	tokens          *docservice.TokenManager
	tokenForRequest bool
	hub             *Hub
	publicURL       string
	uploadExts      []string
	convertedExts   []string
	maxBodyBytes    int64
	maxUploadBytes  int64
}

func NewServer(opts ServerOptions) *Server {
	maxBodyBytes := opts.MaxBodyBytes
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 20
	}
	maxUploadBytes := opts.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 1 << 26
	}
	uploadExts := opts.UploadExts
	if len(uploadExts) == 0 {
		uploadExts = append(append(append([]string{}, fileutil.DocumentExts...),
			fileutil.SpreadsheetExts...), fileutil.PresentationExts...)
	}
	return &Server{
		store:           opts.Store,
		svc:             opts.Service,
		tracker:         opts.Tracker,
		meta:            opts.Meta,
		tokens:          opts.Tokens,
		tokenForRequest: opts.TokenForRequest,
		hub:             opts.Hub,
		publicURL:       strings.TrimRight(opts.PublicURL, "/"),
		uploadExts:      uploadExts,
		convertedExts:   opts.ConvertedExts,
		maxBodyBytes:    maxBodyBytes,
		maxUploadBytes:  maxUploadBytes,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/storage/") && r.Method == http.MethodGet {
		s.handleStorage(w, r)
		return
	}
	switch {
	case r.URL.Path == "/health" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case r.URL.Path == "/track" && r.Method == http.MethodPost:
		s.handleTrack(w, r)
	case r.URL.Path == "/download" && r.Method == http.MethodGet:
		s.handleDownload(w, r)
	case r.URL.Path == "/upload" && r.Method == http.MethodPost:
		s.handleUpload(w, r)
	case r.URL.Path == "/convert" && (r.Method == http.MethodGet || r.Method == http.MethodPost):
		s.handleConvert(w, r)
	case r.URL.Path == "/file" && r.Method == http.MethodDelete:
		s.handleDelete(w, r)
	case r.URL.Path == "/files" && r.Method == http.MethodGet:
		s.handleFiles(w, r)
	case r.URL.Path == "/events/ws" && r.Method == http.MethodGet:
		s.handleEventsWS(w, r)
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	}
}

// handleTrack receives a callback event. Everything past authentication is
// absorbed: the editing service blocks the document until it sees error 0,
// so a processing failure must not surface as a protocol error.
func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	fileName := fileutil.FileName(r.URL.Query().Get("filename"))
	address := s.clientAddress(r)

	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Warn("track %s/%s: body read: %v", address, fileName, err)
		writeJSON(w, http.StatusOK, track.Ack{Error: 0})
		return
	}
	if err := track.ValidateCallback(body); err != nil {
		logger.Warn("track %s/%s: callback body rejected by schema: %v", address, fileName, err)
		writeJSON(w, http.StatusOK, track.Ack{Error: 0})
		return
	}

	var ev track.CallbackEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		logger.Warn("track %s/%s: malformed body: %v", address, fileName, err)
		writeJSON(w, http.StatusOK, track.Ack{Error: 0})
		return
	}

	if s.tokens != nil {
		authoritative, err := s.verifyCallbackToken(r, ev)
		if err != nil {
			logger.Warn("track %s/%s: authentication failed: %v", address, fileName, err)
			writeJSON(w, http.StatusOK, track.Ack{Error: 1})
			return
		}
		ev = authoritative
	}

	ack := s.tracker.Handle(r.Context(), ev, fileName, address)
	writeJSON(w, http.StatusOK, ack)
}

// verifyCallbackToken validates the event's signature and returns the
// token's embedded event, which is authoritative over the plain body. The
// body-level token carries the event directly; the header token wraps it
// under a payload key.
func (s *Server) verifyCallbackToken(r *http.Request, ev track.CallbackEvent) (track.CallbackEvent, error) {
	if ev.Token != "" {
		claims, err := s.tokens.Verify(ev.Token)
		if err != nil {
			return track.CallbackEvent{}, err
		}
		return eventFromClaims(claims)
	}
	claims, err := s.tokens.VerifyHeader(r)
	if err != nil {
		return track.CallbackEvent{}, err
	}
	payload, ok := claims["payload"].(map[string]any)
	if !ok {
		return track.CallbackEvent{}, docservice.ErrInvalidToken
	}
	return eventFromClaims(payload)
}

func eventFromClaims(claims map[string]any) (track.CallbackEvent, error) {
	raw, err := json.Marshal(claims)
	if err != nil {
		return track.CallbackEvent{}, err
	}
	var ev track.CallbackEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return track.CallbackEvent{}, err
	}
	return ev, nil
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeTransfer(w, r) {
		return
	}
	fileName := fileutil.FileName(r.URL.Query().Get("fileName"))
	if fileName == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing fileName query")
		return
	}
	address := s.clientAddress(r)

	versionRaw := strings.TrimSpace(r.URL.Query().Get("version"))
	if versionRaw == "" {
		// A pending force save is newer than the last committed content.
		if slot, err := s.store.ForceSavePath(fileName, address, false); err == nil && slot != "" {
			if data, err := os.ReadFile(slot); err == nil {
				serveAttachment(w, fileName, data)
				return
			}
		}
		data, err := s.store.ReadDocument(fileName, address)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		serveAttachment(w, fileName, data)
		return
	}

	version, err := strconv.Atoi(versionRaw)
	if err != nil || version < 1 {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid version query")
		return
	}
	var path string
	switch kind := r.URL.Query().Get("type"); kind {
	case "", "prev":
		path, err = s.store.PrevPath(fileName, address, version)
	case "diff":
		path, err = s.store.DiffPath(fileName, address, version)
	case "changes":
		path, err = s.store.ChangesPath(fileName, address, version)
	default:
		writeError(w, http.StatusBadRequest, "bad_request", "invalid type query")
		return
	}
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		writeError(w, http.StatusNotFound, "not_found", "version artifact not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	serveAttachment(w, fileutil.FileName(path), data)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	address := s.clientAddress(r)
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "missing file part")
		return
	}
	defer file.Close()

	fileName := fileutil.FileName(header.Filename)
	if !fileutil.HasExt(s.uploadExts, fileutil.Ext(fileName)) {
		writeError(w, http.StatusBadRequest, "unsupported_type", "file type is not supported")
		return
	}
	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read file part")
		return
	}

	name, err := s.store.CorrectName(fileName, address)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if err := s.store.CreateDocument(name, address, content); err != nil {
		s.writeStoreError(w, err)
		return
	}
	if s.meta != nil {
		meta := docstore.FileMeta{
			Created:  time.Now(),
			UserID:   defaultString(r.URL.Query().Get("userid"), "anonymous"),
			UserName: defaultString(r.URL.Query().Get("username"), "anonymous"),
		}
		if err := s.meta.Save(r.Context(), address, name, meta); err != nil {
			logger.Warn("upload %s/%s: meta record: %v", address, name, err)
		}
	}
	writeJSON(w, http.StatusCreated, map[string]string{"filename": name})
}

// handleConvert converts a stored document to its editable OOXML format
// and replaces the original, carrying the history tree and meta record
// over to the new name.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	fileName := fileutil.FileName(r.URL.Query().Get("filename"))
	if fileName == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing filename query")
		return
	}
	address := s.clientAddress(r)
	ext := fileutil.Ext(fileName)
	internalExt := fileutil.InternalExt(fileutil.Type(fileName))
	if len(s.convertedExts) > 0 && !fileutil.HasExt(s.convertedExts, ext) {
		writeError(w, http.StatusBadRequest, "unsupported_type", "file type is not convertible")
		return
	}
	if ext == internalExt {
		writeJSON(w, http.StatusOK, map[string]string{"filename": fileName})
		return
	}
	if !s.store.DocumentExists(fileName, address) {
		writeError(w, http.StatusNotFound, "not_found", "document not found")
		return
	}

	downloadURI := s.documentURL(fileName, address)
	key := fileName + "/" + address
	convertedURI, err := s.svc.ConvertSync(r.Context(), downloadURI, ext, internalExt, key)
	if err != nil {
		var convErr *docservice.ConversionError
		if errors.As(err, &convErr) {
			writeError(w, http.StatusBadGateway, "conversion_failed", convErr.Error())
			return
		}
		writeError(w, http.StatusBadGateway, "conversion_failed", err.Error())
		return
	}
	content, err := s.svc.Download(r.Context(), convertedURI)
	if err != nil {
		writeError(w, http.StatusBadGateway, "conversion_failed", err.Error())
		return
	}

	newName, err := s.store.CorrectName(fileutil.BaseName(fileName)+internalExt, address)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if err := s.store.CreateDocument(newName, address, content); err != nil {
		s.writeStoreError(w, err)
		return
	}
	if err := s.store.RenameHistory(fileName, newName, address); err != nil {
		logger.Warn("convert %s/%s: history move: %v", address, fileName, err)
	}
	if s.meta != nil {
		if err := s.meta.Rename(r.Context(), address, fileName, newName); err != nil {
			logger.Warn("convert %s/%s: meta move: %v", address, fileName, err)
		}
	}
	if err := s.store.DeleteDocument(fileName, address); err != nil {
		logger.Warn("convert %s/%s: source removal: %v", address, fileName, err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"filename": newName})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	address := s.clientAddress(r)
	fileName := fileutil.FileName(r.URL.Query().Get("filename"))
	var err error
	if fileName == "" {
		err = s.store.ClearClient(address)
	} else {
		err = s.store.DeleteDocument(fileName, address)
	}
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.store.StoredFiles(s.clientAddress(r))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if files == nil {
		files = []docstore.StoredFile{}
	}
	writeJSON(w, http.StatusOK, files)
}

// handleStorage serves raw files from the storage tree; the document
// server fetches current content through it.
func (s *Server) handleStorage(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeTransfer(w, r) {
		return
	}
	rel := strings.TrimPrefix(r.URL.Path, "/storage/")
	if rel == "" || strings.Contains(rel, "..") {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid path")
		return
	}
	http.ServeFile(w, r, s.store.Root()+"/"+rel)
}

// authorizeTransfer guards transfer routes when request signing is on.
func (s *Server) authorizeTransfer(w http.ResponseWriter, r *http.Request) bool {
	if s.tokens == nil || !s.tokenForRequest {
		return true
	}
	if _, err := s.tokens.VerifyHeader(r); err != nil {
		writeError(w, http.StatusForbidden, "forbidden", "invalid or missing token")
		return false
	}
	return true
}

// clientAddress shards storage by the useraddress query parameter, falling
// back to the caller's host.
func (s *Server) clientAddress(r *http.Request) string {
	if address := strings.TrimSpace(r.URL.Query().Get("useraddress")); address != "" {
		return address
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// documentURL is the public download URL the document server uses to
// fetch a stored file.
func (s *Server) documentURL(fileName, address string) string {
	query := url.Values{}
	query.Set("fileName", fileName)
	query.Set("useraddress", address)
	return s.publicURL + "/download?" + query.Encode()
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, docstore.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func serveAttachment(w http.ResponseWriter, fileName string, data []byte) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+url.PathEscape(fileName)+"\"")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

func defaultString(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}
