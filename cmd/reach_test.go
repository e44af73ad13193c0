package cmd

import (
	"testing"

	"github.com/matrixise/survey-gate/internal/bracket"
	"github.com/matrixise/survey-gate/internal/eligibility"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReachRule(t *testing.T) {
	tests := []struct {
		name      string
		countries []string
		brackets  []string
		want      eligibility.Rule
		wantErr   bool
	}{
		{
			name: "no flags is open",
			want: eligibility.Open(),
		},
		{
			name:      "countries only",
			countries: []string{"FR", "BE"},
			want:      eligibility.Rule{Country: eligibility.CountrySet("FR", "BE"), Balance: eligibility.AllBalances()},
		},
		{
			name:     "brackets are parsed case-insensitively",
			brackets: []string{"Fish", "non_zero"},
			want:     eligibility.Rule{Country: eligibility.AllUsers(), Balance: eligibility.BracketSet(bracket.Fish, bracket.NonZero)},
		},
		{
			name:     "unknown bracket",
			brackets: []string{"kraken"},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := reachRule(tt.countries, tt.brackets)
			if tt.wantErr {
				assert.ErrorIs(t, err, bracket.ErrUnknownBracket)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
