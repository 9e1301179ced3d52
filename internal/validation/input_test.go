package validation

import (
	"errors"
	"testing"
)

func TestParseStarsAmount(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr error
	}{
		{name: "minimum", input: "50", want: 50},
		{name: "maximum", input: "1000000", want: 1000000},
		{name: "with spaces", input: " 100 ", want: 100},
		{name: "below range", input: "49", wantErr: ErrOutOfRange},
		{name: "above range", input: "1000001", wantErr: ErrOutOfRange},
		{name: "not a number", input: "сто", wantErr: ErrNotANumber},
		{name: "float", input: "50.5", wantErr: ErrNotANumber},
		{name: "empty", input: "", wantErr: ErrNotANumber},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStarsAmount(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParseExchangeAmount(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    float64
		wantErr error
	}{
		{name: "minimum", input: "100", want: 100},
		{name: "decimal", input: "250.50", want: 250.5},
		{name: "comma decimal", input: "250,50", want: 250.5},
		{name: "below minimum", input: "99.99", wantErr: ErrOutOfRange},
		{name: "not a number", input: "деньги", wantErr: ErrNotANumber},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseExchangeAmount(tt.input, 100)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizeRecipient(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "plain", input: "alice", want: "alice"},
		{name: "with at", input: "@alice", want: "alice"},
		{name: "with spaces", input: "  @alice  ", want: "alice"},
		{name: "only at", input: "@", wantErr: ErrEmptyRecipient},
		{name: "empty", input: "   ", wantErr: ErrEmptyRecipient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeRecipient(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}
