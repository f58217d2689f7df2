// Package auth implements Sign-In with Ethereum (EIP-4361) verification and
// JWT session tokens.
package auth

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/polybacker/polybacker/internal/domain"
)

// SIWEMessage is a parsed EIP-4361 sign-in message. Only the fields this
// server checks are retained.
type SIWEMessage struct {
	Domain   string
	Address  string // checksummed as sent by the client
	URI      string
	Version  string
	ChainID  int
	Nonce    string
	IssuedAt time.Time
}

// ParseSIWE parses the plain-text EIP-4361 message format:
//
//	<domain> wants you to sign in with your Ethereum account:
//	<address>
//
//	<optional statement>
//
//	URI: ...
//	Version: 1
//	Chain ID: 137
//	Nonce: ...
//	Issued At: ...
func ParseSIWE(message string) (SIWEMessage, error) {
	lines := strings.Split(strings.ReplaceAll(message, "\r\n", "\n"), "\n")
	if len(lines) < 2 {
		return SIWEMessage{}, fmt.Errorf("auth: siwe message too short: %w", domain.ErrInvalid)
	}

	const marker = " wants you to sign in with your Ethereum account:"
	if !strings.HasSuffix(lines[0], marker) {
		return SIWEMessage{}, fmt.Errorf("auth: malformed siwe preamble: %w", domain.ErrInvalid)
	}

	m := SIWEMessage{
		Domain:  strings.TrimSuffix(lines[0], marker),
		Address: strings.TrimSpace(lines[1]),
	}
	if !common.IsHexAddress(m.Address) {
		return SIWEMessage{}, fmt.Errorf("auth: invalid address %q: %w", m.Address, domain.ErrInvalid)
	}

	for _, line := range lines[2:] {
		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		switch key {
		case "URI":
			m.URI = value
		case "Version":
			m.Version = value
		case "Chain ID":
			id, err := strconv.Atoi(value)
			if err != nil {
				return SIWEMessage{}, fmt.Errorf("auth: bad chain id %q: %w", value, domain.ErrInvalid)
			}
			m.ChainID = id
		case "Nonce":
			m.Nonce = value
		case "Issued At":
			ts, err := time.Parse(time.RFC3339, value)
			if err != nil {
				return SIWEMessage{}, fmt.Errorf("auth: bad issued-at %q: %w", value, domain.ErrInvalid)
			}
			m.IssuedAt = ts
		}
	}

	if m.Nonce == "" {
		return SIWEMessage{}, fmt.Errorf("auth: siwe message has no nonce: %w", domain.ErrInvalid)
	}
	return m, nil
}

// RecoverSigner recovers the address that produced an EIP-191 personal-sign
// signature over message.
func RecoverSigner(message, signature string) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("auth: signature not hex: %w", domain.ErrInvalid)
	}
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("auth: signature length %d: %w", len(sig), domain.ErrInvalid)
	}

	// Wallets emit v as 27/28; go-ethereum expects 0/1.
	sigCopy := make([]byte, 65)
	copy(sigCopy, sig)
	if sigCopy[64] >= 27 {
		sigCopy[64] -= 27
	}

	digest := personalSignHash(message)
	pub, err := ethcrypto.SigToPub(digest, sigCopy)
	if err != nil {
		return common.Address{}, fmt.Errorf("auth: recover signer: %w", domain.ErrUnauthorized)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// VerifySIWE parses message, checks the recovered signer against the claimed
// address, and returns the parsed message with the address lower-cased for
// storage.
func VerifySIWE(message, signature string) (SIWEMessage, error) {
	m, err := ParseSIWE(message)
	if err != nil {
		return SIWEMessage{}, err
	}

	signer, err := RecoverSigner(message, signature)
	if err != nil {
		return SIWEMessage{}, err
	}
	if signer != common.HexToAddress(m.Address) {
		return SIWEMessage{}, fmt.Errorf("auth: signature from %s does not match %s: %w",
			signer.Hex(), m.Address, domain.ErrUnauthorized)
	}

	m.Address = strings.ToLower(m.Address)
	return m, nil
}

// personalSignHash computes the EIP-191 digest:
// keccak256("\x19Ethereum Signed Message:\n" + len(message) + message).
func personalSignHash(message string) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return ethcrypto.Keccak256([]byte(prefixed))
}
