package mqtt

import (
	"errors"
	"testing"
)

func TestDecodeCommand(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
		wantErr bool
	}{
		{"run", `{"action":"run"}`, ActionRun, false},
		{"case and spaces", `{"action":" RUN "}`, ActionRun, false},
		{"unknown", `{"action":"purge"}`, "", true},
		{"missing", `{}`, "", true},
		{"not json", `run`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := DecodeCommand([]byte(tt.payload))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidCommand) {
					t.Errorf("DecodeCommand() error = %v, want ErrInvalidCommand", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeCommand() error = %v", err)
			}
			if cmd.Action != tt.want {
				t.Errorf("Action = %q, want %q", cmd.Action, tt.want)
			}
		})
	}
}
