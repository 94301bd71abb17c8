package uplink

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nerrad567/logix-uplink/internal/reading"
)

// Payload is the claim set signed for one submission.
type Payload struct {
	UID  string           `json:"uid"`
	Data []map[string]any `json:"data"`
}

// BuildPayload lists the configured fields of every reading, renaming
// fields to their upstream wire names. Missing values are sent as null.
func BuildPayload(uid string, fields []string, readings []reading.Reading) Payload {
	data := make([]map[string]any, 0, len(readings))
	for _, r := range readings {
		item := make(map[string]any, len(fields))
		for _, f := range fields {
			if v, ok := r.Values[f]; ok {
				item[reading.WireName(f)] = v
			} else {
				item[reading.WireName(f)] = nil
			}
		}
		data = append(data, item)
	}
	return Payload{UID: uid, Data: data}
}

// Sign encodes the payload as a compact HS256 JWT keyed by credential.
func (p Payload) Sign(credential string) (string, error) {
	claims := jwt.MapClaims{
		"uid":  p.UID,
		"data": p.Data,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(credential))
	if err != nil {
		return "", fmt.Errorf("signing payload: %w", err)
	}
	return signed, nil
}

// submitRequest is the body posted to the submission endpoint.
type submitRequest struct {
	Token string `json:"token"`
}

// submitResponse is the API reply. Status is loosely typed upstream.
type submitResponse struct {
	Status json.RawMessage   `json:"status"`
	Desc   json.RawMessage   `json:"desc"`
	Data   []json.RawMessage `json:"data"`
}

// defaultDesc is used when a failed response carries no usable desc.
const defaultDesc = "unknown error"

// accepted reports whether status is truthy: true, a non-zero number, or
// a non-empty string, array or object.
func (r submitResponse) accepted() bool {
	raw := bytes.TrimSpace(r.Status)
	if len(raw) == 0 {
		return false
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}

	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	default:
		return false
	}
}

// description returns desc as text, defaulting when absent or null.
func (r submitResponse) description() string {
	raw := bytes.TrimSpace(r.Desc)
	if len(raw) == 0 || string(raw) == "null" {
		return defaultDesc
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return defaultDesc
		}
		return s
	}
	return string(raw)
}

// isDuplicate reports whether a failure description signals a duplicate conflict.
func isDuplicate(desc string) bool {
	return strings.Contains(strings.ToLower(desc), "duplikasi")
}

// duplicateLayouts are tried in order when parsing reported timestamps.
var duplicateLayouts = []string{
	reading.TimeLayout,
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04",
}

// duplicateTimestamps parses the data array of a duplicate response.
// Entries that are not parseable timestamps are returned separately.
func (r submitResponse) duplicateTimestamps(loc *time.Location) (stamps []time.Time, skipped []string) {
	for _, raw := range r.Data {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			skipped = append(skipped, string(raw))
			continue
		}
		ts, ok := parseTimestamp(strings.TrimSpace(s), loc)
		if !ok {
			skipped = append(skipped, s)
			continue
		}
		stamps = append(stamps, ts)
	}
	return stamps, skipped
}

func parseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	for _, layout := range duplicateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.In(loc), true
		}
	}
	return time.Time{}, false
}
