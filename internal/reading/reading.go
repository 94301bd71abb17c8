package reading

import (
	"time"
)

// Outcome is the submission state of a staged reading.
type Outcome string

// Outcome values. The stored text is what the dashboard reads from the
// status column; OutcomeUnset is stored as NULL.
const (
	OutcomeUnset               Outcome = ""
	OutcomeSent                Outcome = "terkirim"
	OutcomeRetry               Outcome = "retry"
	OutcomeDuplicateUnresolved Outcome = "Duplikasi"
)

// Notes written to the keterangan column.
const (
	NoteSent                = "sukses"
	NoteAuthFailure         = "Gagal dapat token JWT"
	NoteDuplicateUnresolved = "Duplikasi tidak teratasi, lakukan manual check"
)

// TimeLayout is the wall-clock layout used for the date and dateterkirim columns.
const TimeLayout = "2006-01-02 15:04:05"

// ParseOutcome maps a stored status value to an Outcome.
// Unknown values are returned unchanged so operators can still see them.
func ParseOutcome(s string) Outcome {
	switch s {
	case "", "null", "NULL":
		return OutcomeUnset
	default:
		return Outcome(s)
	}
}

// String returns the stored representation, "unset" for the NULL state.
func (o Outcome) String() string {
	if o == OutcomeUnset {
		return "unset"
	}
	return string(o)
}

// Eligible reports whether rows with this outcome are picked up by a pass.
// Only unset rows are; every other outcome is terminal for the uplink.
func (o Outcome) Eligible() bool {
	return o == OutcomeUnset
}

// Reading is one row of the staging or permanent table.
type Reading struct {
	ID     int64
	Device string

	// Date is the reading timestamp in the site timezone.
	Date time.Time

	// Values holds the configured parameters that were non-NULL, keyed by
	// canonical column name.
	Values map[string]float64

	Outcome     Outcome
	Note        string
	DeliveredAt *time.Time
}

// Value returns a parameter value and whether it was present.
func (r Reading) Value(field string) (float64, bool) {
	v, ok := r.Values[field]
	return v, ok
}
