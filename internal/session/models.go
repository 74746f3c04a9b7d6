package session

import (
	"strings"
	"time"
)

type State string

const (
	StateOffline  State = "offline"
	StateChecking State = "checking"
	StateOnline   State = "online"
	StateError    State = "error"
)

// Context is the value object each controller transition consumes and
// returns; there is no ambient "current session" global.
type Context struct {
	State        State     `json:"state"`
	RiderID      string    `json:"rider_id,omitempty"`
	RiderName    string    `json:"rider_name,omitempty"`
	SessionTag   string    `json:"session_tag,omitempty"`
	SessionDocID string    `json:"session_doc_id,omitempty"`
	StartedAt    time.Time `json:"started_at,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
}

// RiderIDFromName derives the stable store key: lower-cased display name
// with whitespace runs collapsed to underscores.
func RiderIDFromName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "_")
}

// GoOnlineCommand is the duty-on request payload.
type GoOnlineCommand struct {
	Name string `json:"name" validate:"required,max=64"`
}
