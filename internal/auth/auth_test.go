package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

func TestNewJWT_RequiresSecret(t *testing.T) {
	if _, err := NewJWT(nil); err == nil {
		t.Error("NewJWT(nil) error = nil, want error")
	}
}

func TestJWT_Authenticate(t *testing.T) {
	j, err := NewJWT([]byte("s3cret"))
	if err != nil {
		t.Fatalf("NewJWT() error = %v", err)
	}
	valid, _ := j.Issue("user-1", time.Minute)
	expired, _ := j.Issue("user-1", -time.Minute)

	other, _ := NewJWT([]byte("other"))
	foreign, _ := other.Issue("user-1", time.Minute)

	noExp, _ := gojwt.NewWithClaims(gojwt.SigningMethodHS256, gojwt.RegisteredClaims{Subject: "x"}).
		SignedString([]byte("s3cret"))

	hs512, _ := gojwt.NewWithClaims(gojwt.SigningMethodHS512, gojwt.RegisteredClaims{
		Subject:   "x",
		ExpiresAt: gojwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte("s3cret"))

	tests := []struct {
		name        string
		header      string
		query       string
		wantSubject string
		wantErr     error
	}{
		{name: "bearer header", header: "Bearer " + valid, wantSubject: "user-1"},
		{name: "lowercase scheme", header: "bearer " + valid, wantSubject: "user-1"},
		{name: "query param", query: valid, wantSubject: "user-1"},
		{name: "missing", wantErr: ErrMissingToken},
		{name: "non-bearer header", header: "Basic abc", wantErr: ErrMissingToken},
		{name: "expired", header: "Bearer " + expired, wantErr: ErrInvalidToken},
		{name: "wrong secret", header: "Bearer " + foreign, wantErr: ErrInvalidToken},
		{name: "no expiry", header: "Bearer " + noExp, wantErr: ErrInvalidToken},
		{name: "wrong algorithm", header: "Bearer " + hs512, wantErr: ErrInvalidToken},
		{name: "garbage", query: "not-a-jwt", wantErr: ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/ws/monitors"
			if tt.query != "" {
				target += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			subject, err := j.Authenticate(req)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Authenticate() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Authenticate() error = %v", err)
			}
			if subject != tt.wantSubject {
				t.Errorf("Authenticate() subject = %q, want %q", subject, tt.wantSubject)
			}
		})
	}
}

func TestAnonymous(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws/monitors", nil)
	subject, err := Anonymous{}.Authenticate(req)
	if err != nil || subject != "" {
		t.Errorf("Authenticate() = %q, %v; want empty, nil", subject, err)
	}
}
