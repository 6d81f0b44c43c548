// Package track implements the editing service's callback protocol: it
// receives status events for open documents and turns the save-bearing ones
// into version commits or force-save snapshots.
package track

import "encoding/json"

// Status is the editing service's document lifecycle code.
type Status int

const (
	StatusEditing            Status = 1
	StatusMustSave           Status = 2
	StatusCorrupted          Status = 3
	StatusClosed             Status = 4
	StatusMustForceSave      Status = 6
	StatusCorruptedForceSave Status = 7
)

// Action describes a user connecting to (type 1) or disconnecting from
// (type 0) the editing session.
type Action struct {
	Type   int    `json:"type"`
	UserID string `json:"userid"`
}

// CallbackEvent is the body the editing service posts to the tracker.
type CallbackEvent struct {
	Key            string          `json:"key"`
	Status         Status          `json:"status"`
	URL            string          `json:"url,omitempty"`
	ChangesURL     string          `json:"changesurl,omitempty"`
	FileType       string          `json:"filetype,omitempty"`
	Users          []string        `json:"users,omitempty"`
	Actions        []Action        `json:"actions,omitempty"`
	History        json.RawMessage `json:"history,omitempty"`
	ChangesHistory json.RawMessage `json:"changeshistory,omitempty"`
	ForceSaveType  int             `json:"forcesavetype,omitempty"`
	UserData       string          `json:"userdata,omitempty"`
	Token          string          `json:"token,omitempty"`
}

// Ack is the only response shape the editing service accepts. Error is 0
// for every processed event and 1 solely when authentication fails.
type Ack struct {
	Error int `json:"error"`
}

// Notification announces a processed save, or a raw storage change when
// Op is set, to event feed subscribers.
type Notification struct {
	Address    string `json:"address"`
	FileName   string `json:"fileName"`
	Status     Status `json:"status,omitempty"`
	Version    int    `json:"version,omitempty"`
	ForceSaved bool   `json:"forceSaved,omitempty"`
	Op         string `json:"op,omitempty"`
}
