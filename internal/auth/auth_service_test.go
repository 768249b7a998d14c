package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"testing"
	"time"
)

func generateKeyPEMs(t *testing.T) ([]byte, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return privPEM, pubPEM
}

func TestIssueAndValidateAccessToken(t *testing.T) {
	privPEM, pubPEM := generateKeyPEMs(t)
	svc, err := NewAuthService(privPEM, pubPEM, time.Minute)
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}

	token, err := svc.IssueAccessToken(42)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	claims, err := svc.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}
	if claims.UserID != 42 || claims.Subject != "42" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	privPEM, pubPEM := generateKeyPEMs(t)
	svc, err := NewAuthService(privPEM, pubPEM, time.Minute)
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	issuedAt := time.Now().Add(-time.Hour)
	svc.now = func() time.Time { return issuedAt }
	token, err := svc.IssueAccessToken(1)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	svc.now = time.Now
	if _, err := svc.ValidateAccessToken(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestVerifyOnlyServiceCannotSign(t *testing.T) {
	_, pubPEM := generateKeyPEMs(t)
	svc, err := NewAuthService(nil, pubPEM, time.Minute)
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	if svc.CanSign() {
		t.Fatal("verify-only service must not report signing")
	}
	if _, err := svc.IssueAccessToken(1); !errors.Is(err, ErrSigningDisabled) {
		t.Fatalf("expected ErrSigningDisabled, got %v", err)
	}
	if _, err := svc.ValidateAccessToken(""); err == nil {
		t.Fatalf("expected empty token to be rejected")
	}
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPasswordHash("s3cret", hash) {
		t.Fatalf("expected password to match")
	}
	if CheckPasswordHash("wrong", hash) {
		t.Fatalf("expected mismatch")
	}
}
