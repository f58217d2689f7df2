package auth

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/polybacker/polybacker/internal/domain"
)

func siweMessage(address, nonce string) string {
	return fmt.Sprintf(`localhost:8000 wants you to sign in with your Ethereum account:
%s

Sign in to polybacker.

URI: http://localhost:8000
Version: 1
Chain ID: 137
Nonce: %s
Issued At: 2026-08-24T10:00:00Z`, address, nonce)
}

func signPersonal(t *testing.T, keyHex, message string) string {
	t.Helper()

	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	sig, err := ethcrypto.Sign(personalSignHash(message), pk)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sig[64] += 27 // wallet-style v
	return "0x" + hex.EncodeToString(sig)
}

func TestParseSIWE(t *testing.T) {
	t.Parallel()

	addr := "0x8ba1f109551bD432803012645Ac136ddd64DBA72"
	m, err := ParseSIWE(siweMessage(addr, "abc123"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m.Domain != "localhost:8000" {
		t.Errorf("domain = %q", m.Domain)
	}
	if m.Address != addr {
		t.Errorf("address = %q", m.Address)
	}
	if m.ChainID != 137 || m.Nonce != "abc123" || m.Version != "1" {
		t.Errorf("parsed = %+v", m)
	}
	want := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	if !m.IssuedAt.Equal(want) {
		t.Errorf("issued at = %v", m.IssuedAt)
	}
}

func TestParseSIWERejectsMalformed(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		msg  string
	}{
		{"empty", ""},
		{"no preamble", "hello\n0x8ba1f109551bD432803012645Ac136ddd64DBA72"},
		{"bad address", "x wants you to sign in with your Ethereum account:\nnot-an-address\n\nNonce: n"},
		{"no nonce", "x wants you to sign in with your Ethereum account:\n0x8ba1f109551bD432803012645Ac136ddd64DBA72\n\nVersion: 1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ParseSIWE(tc.msg); !errors.Is(err, domain.ErrInvalid) {
				t.Errorf("err = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestVerifySIWERoundTrip(t *testing.T) {
	t.Parallel()

	pk, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	keyHex := hex.EncodeToString(ethcrypto.FromECDSA(pk))
	addr := ethcrypto.PubkeyToAddress(pk.PublicKey)

	msg := siweMessage(addr.Hex(), "nonce-1")
	sig := signPersonal(t, keyHex, msg)

	m, err := VerifySIWE(msg, sig)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if m.Address != strings.ToLower(addr.Hex()) {
		t.Errorf("address = %q, want lower-cased %q", m.Address, addr.Hex())
	}
	if m.Nonce != "nonce-1" {
		t.Errorf("nonce = %q", m.Nonce)
	}
}

func TestVerifySIWERejectsWrongSigner(t *testing.T) {
	t.Parallel()

	signerKey, _ := ethcrypto.GenerateKey()
	otherKey, _ := ethcrypto.GenerateKey()
	claimed := ethcrypto.PubkeyToAddress(otherKey.PublicKey)

	msg := siweMessage(claimed.Hex(), "nonce-2")
	sig := signPersonal(t, hex.EncodeToString(ethcrypto.FromECDSA(signerKey)), msg)

	if _, err := VerifySIWE(msg, sig); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

func TestVerifySIWERejectsTamperedMessage(t *testing.T) {
	t.Parallel()

	pk, _ := ethcrypto.GenerateKey()
	addr := ethcrypto.PubkeyToAddress(pk.PublicKey)
	keyHex := hex.EncodeToString(ethcrypto.FromECDSA(pk))

	msg := siweMessage(addr.Hex(), "nonce-3")
	sig := signPersonal(t, keyHex, msg)
	tampered := strings.Replace(msg, "nonce-3", "nonce-4", 1)

	if _, err := VerifySIWE(tampered, sig); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

func TestTokenIssueAndVerify(t *testing.T) {
	t.Parallel()

	issuer := NewTokenIssuer("secret", time.Hour)
	token, expires, err := issuer.Issue("0xabc", domain.RoleOwner)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if time.Until(expires) < 59*time.Minute {
		t.Errorf("expiry too soon: %v", expires)
	}

	claims, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Address != "0xabc" || claims.Role != string(domain.RoleOwner) {
		t.Errorf("claims = %+v", claims)
	}
}

func TestTokenVerifyRejectsWrongSecret(t *testing.T) {
	t.Parallel()

	token, _, err := NewTokenIssuer("secret-a", time.Hour).Issue("0xabc", domain.RoleUser)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := NewTokenIssuer("secret-b", time.Hour).Verify(token); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

func TestTokenVerifyRejectsExpired(t *testing.T) {
	t.Parallel()

	issuer := NewTokenIssuer("secret", time.Nanosecond)
	token, _, err := issuer.Issue("0xabc", domain.RoleUser)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	if _, err := issuer.Verify(token); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

func TestTokenVerifyRejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := NewTokenIssuer("secret", time.Hour).Verify("not-a-token"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}
