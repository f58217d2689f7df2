package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Pre-computed keccak256 hashes of the canonical EIP-712 type strings.
var (
	// EIP712Domain(string name,string version,uint256 chainId)
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId)"),
	)

	// ClobAuth(address address,uint256 timestamp,uint256 nonce)
	clobAuthTypeHash = ethcrypto.Keccak256(
		[]byte("ClobAuth(address address,uint256 timestamp,uint256 nonce)"),
	)

	// Order(uint256 salt,address maker,address signer,address taker,uint256 tokenId,uint256 makerAmount,uint256 takerAmount,uint256 expiration,uint256 nonce,uint256 feeRateBps,uint8 side,uint8 signatureType)
	orderTypeHash = ethcrypto.Keccak256(
		[]byte("Order(uint256 salt,address maker,address signer,address taker,uint256 tokenId,uint256 makerAmount,uint256 takerAmount,uint256 expiration,uint256 nonce,uint256 feeRateBps,uint8 side,uint8 signatureType)"),
	)
)

// OrderPayload holds the 12 signed fields of a CLOB order. Addresses and
// large numbers are strings to preserve precision across JSON boundaries.
type OrderPayload struct {
	Salt          string `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          int    `json:"side"`          // 0 = BUY, 1 = SELL
	SignatureType int    `json:"signatureType"` // 0 = EOA, 1 = POLY_PROXY, 2 = POLY_GNOSIS_SAFE
}

// Signer provides EIP-712 signing for the Polymarket CLOB API.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    int
	authDomain []byte // cached ClobAuth domain separator
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key and
// the target chain ID (137 for Polygon mainnet).
func NewSigner(privateKeyHex string, chainID int) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}

	s := &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		chainID:    chainID,
	}
	s.authDomain = buildDomainSeparator("ClobAuthDomain", "1", chainID)

	return s, nil
}

// Address returns the Ethereum address derived from the signer's key.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignAuthMessage signs the ClobAuth EIP-712 message used to derive an API
// key. The returned string is a hex-encoded 65-byte signature.
func (s *Signer) SignAuthMessage(address string, timestamp, nonce int64) (string, error) {
	addr := common.HexToAddress(address)

	structHash := ethcrypto.Keccak256(
		concatBytes(
			clobAuthTypeHash,
			common.LeftPadBytes(addr.Bytes(), 32),
			bigIntTo32Bytes(big.NewInt(timestamp)),
			bigIntTo32Bytes(big.NewInt(nonce)),
		),
	)

	return s.signDigest(eip712Hash(s.authDomain, structHash))
}

// SignOrder signs an Order EIP-712 struct for submission to the CLOB.
func (s *Signer) SignOrder(order OrderPayload) (string, error) {
	domainSep := buildDomainSeparator("Polymarket CTF Exchange", "1", s.chainID)

	structHash, err := orderStructHash(order)
	if err != nil {
		return "", err
	}

	return s.signDigest(eip712Hash(domainSep, structHash))
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// buildDomainSeparator returns keccak256(abi.encode(typeHash, nameHash,
// versionHash, chainId)).
func buildDomainSeparator(name, version string, chainID int) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			eip712DomainTypeHash,
			ethcrypto.Keccak256([]byte(name)),
			ethcrypto.Keccak256([]byte(version)),
			bigIntTo32Bytes(big.NewInt(int64(chainID))),
		),
	)
}

// eip712Hash computes keccak256("\x19\x01" || domainSeparator || structHash).
func eip712Hash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256(
		concatBytes([]byte{0x19, 0x01}, domainSep, structHash),
	)
}

// signDigest signs a 32-byte digest and returns the hex-encoded signature
// (r || s || v, 65 bytes) with v normalized to {27, 28}.
func (s *Signer) signDigest(digest []byte) (string, error) {
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// orderStructHash encodes and hashes an OrderPayload according to EIP-712.
func orderStructHash(o OrderPayload) ([]byte, error) {
	bigFields := make([]*big.Int, 0, 5)
	for _, f := range []struct {
		name, val string
	}{
		{"salt", o.Salt},
		{"makerAmount", o.MakerAmount},
		{"takerAmount", o.TakerAmount},
		{"expiration", o.Expiration},
		{"nonce", o.Nonce},
	} {
		n, ok := new(big.Int).SetString(f.val, 10)
		if !ok {
			return nil, fmt.Errorf("crypto/signer: invalid %s %q", f.name, f.val)
		}
		bigFields = append(bigFields, n)
	}
	tokenID, ok := new(big.Int).SetString(o.TokenID, 10)
	if !ok {
		return nil, fmt.Errorf("crypto/signer: invalid tokenId %q", o.TokenID)
	}
	feeRate, ok := new(big.Int).SetString(o.FeeRateBps, 10)
	if !ok {
		return nil, fmt.Errorf("crypto/signer: invalid feeRateBps %q", o.FeeRateBps)
	}

	return ethcrypto.Keccak256(
		concatBytes(
			orderTypeHash,
			bigIntTo32Bytes(bigFields[0]), // salt
			common.LeftPadBytes(common.HexToAddress(o.Maker).Bytes(), 32),
			common.LeftPadBytes(common.HexToAddress(o.Signer).Bytes(), 32),
			common.LeftPadBytes(common.HexToAddress(o.Taker).Bytes(), 32),
			bigIntTo32Bytes(tokenID),
			bigIntTo32Bytes(bigFields[1]), // makerAmount
			bigIntTo32Bytes(bigFields[2]), // takerAmount
			bigIntTo32Bytes(bigFields[3]), // expiration
			bigIntTo32Bytes(bigFields[4]), // nonce
			bigIntTo32Bytes(feeRate),
			bigIntTo32Bytes(big.NewInt(int64(o.Side))),
			bigIntTo32Bytes(big.NewInt(int64(o.SignatureType))),
		),
	), nil
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n.
func bigIntTo32Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
