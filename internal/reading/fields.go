package reading

import (
	"fmt"
	"strings"
)

// Column names that are not measured parameters.
const (
	ColumnID          = "id"
	ColumnDevice      = "device"
	ColumnDate        = "date"
	ColumnDatetime    = "datetime"
	ColumnStatus      = "status"
	ColumnNote        = "keterangan"
	ColumnDeliveredAt = "dateterkirim"
)

// Parameters lists every measured parameter column, in schema order.
var Parameters = []string{
	"pH", "orp", "tds", "conduct", "do", "salinity", "nh3n", "battery",
	"depth", "flow", "tflow", "turb", "tss", "cod", "bod", "no3",
	"temp", "press", "hum", "wspeed", "wdir", "rain", "srad",
}

// Columns is the column list shared by the staging and permanent tables,
// excluding the row id. Copies between the tables always use this list.
var Columns = func() []string {
	cols := []string{ColumnDevice, ColumnDate, ColumnDatetime}
	cols = append(cols, Parameters...)
	return append(cols, ColumnStatus, ColumnNote, ColumnDeliveredAt)
}()

// wireNames holds the upstream names that differ from the column name.
var wireNames = map[string]string{
	"flow": "debit",
}

// canonical maps lower-cased names to the schema spelling.
var canonical = func() map[string]string {
	m := make(map[string]string, len(Parameters)+1)
	for _, p := range Parameters {
		m[strings.ToLower(p)] = p
	}
	m[ColumnDatetime] = ColumnDatetime
	return m
}()

// WireName returns the name a field is submitted under upstream.
func WireName(field string) string {
	if w, ok := wireNames[field]; ok {
		return w
	}
	return field
}

// ValidateFields checks configured submission fields against the allow-list
// and returns them in canonical spelling, de-duplicated, in input order.
//
// Only measured parameters and the datetime column are accepted. Anything
// else fails with ErrUnknownField before it can reach a query.
func ValidateFields(fields []string) ([]string, error) {
	if len(fields) == 0 {
		return nil, ErrNoFields
	}

	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		name, ok := canonical[strings.ToLower(strings.TrimSpace(f))]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownField, f)
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out, nil
}
