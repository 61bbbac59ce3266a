package session

import (
	"encoding/json"
	"errors"
)

// SchemaVersion is bumped whenever the record layout changes. Decoding
// rejects unknown versions instead of guessing.
const SchemaVersion = 1

// Record is the authoritative server-side state of one refresh token.
// A record exists iff its refresh token is currently valid; deleting it is
// the sole revocation mechanism.
type Record struct {
	Version   int    `json:"v"`
	UserID    string `json:"uid"`
	Email     string `json:"eml"`
	Role      string `json:"rol"`
	SessionID string `json:"sid"`
	CreatedAt int64  `json:"cat"`
	LastUsed  int64  `json:"lus"`
}

// ErrRecordCorrupt is returned when a stored blob does not decode.
var ErrRecordCorrupt = errors.New("session record corrupt")

// Encode serializes a record for storage.
func Encode(rec *Record) ([]byte, error) {
	if rec == nil {
		return nil, ErrRecordCorrupt
	}
	if rec.Version == 0 {
		rec.Version = SchemaVersion
	}
	return json.Marshal(rec)
}

// Decode deserializes a stored blob.
func Decode(data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, ErrRecordCorrupt
	}
	if rec.Version != SchemaVersion {
		return nil, ErrRecordCorrupt
	}
	if rec.UserID == "" {
		return nil, ErrRecordCorrupt
	}
	return &rec, nil
}
