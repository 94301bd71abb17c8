package reading

import (
	"errors"
	"testing"
)

func TestValidateFields(t *testing.T) {
	tests := []struct {
		name    string
		fields  []string
		want    []string
		wantErr error
	}{
		{
			name:   "klhk defaults",
			fields: []string{"pH", "tss", "cod", "flow", "nh3n"},
			want:   []string{"pH", "tss", "cod", "flow", "nh3n"},
		},
		{
			name:   "case and whitespace normalised",
			fields: []string{"PH", " Tss ", "DATETIME"},
			want:   []string{"pH", "tss", "datetime"},
		},
		{
			name:   "duplicates dropped",
			fields: []string{"cod", "COD", "cod"},
			want:   []string{"cod"},
		},
		{
			name:    "injection attempt rejected",
			fields:  []string{"pH", "pH FROM tmp; DROP TABLE data; --"},
			wantErr: ErrUnknownField,
		},
		{
			name:    "status column is not submittable",
			fields:  []string{"status"},
			wantErr: ErrUnknownField,
		},
		{
			name:    "empty",
			fields:  nil,
			wantErr: ErrNoFields,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateFields(tt.fields)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ValidateFields() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateFields() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ValidateFields() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("field[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestWireName(t *testing.T) {
	if got := WireName("flow"); got != "debit" {
		t.Errorf("WireName(flow) = %q, want debit", got)
	}
	if got := WireName("tss"); got != "tss" {
		t.Errorf("WireName(tss) = %q, want tss", got)
	}
}

func TestColumns(t *testing.T) {
	if len(Columns) != len(Parameters)+6 {
		t.Fatalf("len(Columns) = %d, want %d", len(Columns), len(Parameters)+6)
	}
	if Columns[0] != ColumnDevice || Columns[len(Columns)-1] != ColumnDeliveredAt {
		t.Errorf("Columns order = %v", Columns)
	}
	for _, c := range Columns {
		if c == ColumnID {
			t.Error("Columns must not include the row id")
		}
	}
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		stored   string
		want     Outcome
		eligible bool
	}{
		{"", OutcomeUnset, true},
		{"retry", OutcomeRetry, false},
		{"terkirim", OutcomeSent, false},
		{"Duplikasi", OutcomeDuplicateUnresolved, false},
	}

	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			got := ParseOutcome(tt.stored)
			if got != tt.want {
				t.Errorf("ParseOutcome(%q) = %q, want %q", tt.stored, got, tt.want)
			}
			if got.Eligible() != tt.eligible {
				t.Errorf("%s.Eligible() = %v, want %v", got, got.Eligible(), tt.eligible)
			}
		})
	}
}
