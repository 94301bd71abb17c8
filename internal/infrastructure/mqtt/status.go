package mqtt

import (
	"encoding/json"
	"time"
)

// Status states published on the status topic.
const (
	StateOnline  = "online"
	StateOffline = "offline"
)

// Reasons attached to offline status messages.
const (
	ReasonShutdown       = "graceful_shutdown"
	ReasonConnectionLost = "unexpected_disconnect"
)

// Identity describes the uplink instance behind a connection. It is
// repeated in every status message so a dashboard can tell which site and
// target went quiet, and whether the uplink was switched on at the time.
type Identity struct {
	Site    string
	Target  string
	Active  bool
	Version string
}

// Status is the retained message on the status topic.
type Status struct {
	State     string    `json:"status"`
	ClientID  string    `json:"client_id"`
	Site      string    `json:"site"`
	Target    string    `json:"target"`
	Active    bool      `json:"active"`
	Version   string    `json:"version,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (id Identity) status(clientID, state, reason string, at time.Time) Status {
	return Status{
		State:     state,
		ClientID:  clientID,
		Site:      id.Site,
		Target:    id.Target,
		Active:    id.Active,
		Version:   id.Version,
		Reason:    reason,
		Timestamp: at.UTC().Truncate(time.Second),
	}
}

// statusPayload encodes a status message. Status holds only plain fields,
// so encoding cannot fail.
func statusPayload(s Status) []byte {
	b, _ := json.Marshal(s) //nolint:errcheck // plain struct
	return b
}
