package auth0

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/discordbuilder/builder/bot/testutil"
)

func TestParseExpiry(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		want    int64
		wantErr bool
	}{
		{
			name:  "raw url payload",
			token: testutil.RawToken(`{"exp": 1700000000}`),
			want:  1700000000,
		},
		{
			name:  "padded payload",
			token: "h." + base64.URLEncoding.EncodeToString([]byte(`{"exp":1700000001,"sub":"x"}`)) + ".s",
			want:  1700000001,
		},
		{
			name:  "exp absent defaults to zero",
			token: testutil.RawToken(`{"sub":"bot@clients"}`),
			want:  0,
		},
		{
			name:  "null payload defaults to zero",
			token: testutil.RawToken(`null`),
			want:  0,
		},
		{
			name:    "two segments",
			token:   "header.payload",
			wantErr: true,
		},
		{
			name:    "opaque token",
			token:   "opaque-token",
			wantErr: true,
		},
		{
			name:    "payload not base64",
			token:   "h.!!!.s",
			wantErr: true,
		},
		{
			name:    "payload not json",
			token:   testutil.RawToken(`exp=1700000000`),
			wantErr: true,
		},
		{
			name:    "exp of wrong type",
			token:   testutil.RawToken(`{"exp":"tomorrow"}`),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseExpiry(tt.token)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedToken) {
					t.Fatalf("ParseExpiry() error = %v, want ErrMalformedToken", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseExpiry() unexpected error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseExpiry() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParseExpirySignedToken(t *testing.T) {
	tok := testutil.SignedToken(t, 1800000000, 1)
	got, err := ParseExpiry(tok)
	if err != nil {
		t.Fatalf("ParseExpiry() error = %v", err)
	}
	if got != 1800000000 {
		t.Errorf("ParseExpiry() = %d, want 1800000000", got)
	}
}
