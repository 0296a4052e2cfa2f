package money

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    int64
		wantErr error
	}{
		{in: "10", want: 1_000},
		{in: "10.5", want: 1_050},
		{in: "10.05", want: 1_005},
		{in: " 0.01 ", want: 1},
		{in: "1000000.00", want: 100_000_000},
		{in: "-2.50", want: -250},
		{in: "0", want: 0},
		{in: "1.005", wantErr: ErrPrecision},
		{in: "", wantErr: ErrInvalid},
		{in: "abc", wantErr: ErrInvalid},
		{in: "1,000", wantErr: ErrInvalid},
		{in: "99999999999999999999", wantErr: ErrRange},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			got, err := Parse(tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Parse(%q) error = %v, want %v", tt.in, err, tt.wantErr)
				}

				return
			}

			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Fatalf("Parse(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()

	tests := map[int64]string{
		0:           "0.00",
		1:           "0.01",
		1_050:       "10.50",
		100_000_000: "1000000.00",
		-250:        "-2.50",
	}

	for in, want := range tests {
		if got := Format(in); got != want {
			t.Fatalf("Format(%d) = %q, want %q", in, got, want)
		}
	}
}
