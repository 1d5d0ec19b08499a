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

// Pre-computed keccak256 of the canonical EIP-712 type strings.
var (
	// EIP712Domain(string name,string version,uint256 chainId)
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId)"),
	)

	// ApiAuth(address address,uint256 timestamp,uint256 nonce)
	apiAuthTypeHash = ethcrypto.Keccak256(
		[]byte("ApiAuth(address address,uint256 timestamp,uint256 nonce)"),
	)

	// FillOrder(bytes32 marketHash,address baseToken,uint256 totalBetSize,uint256 percentageOdds,uint256 expiry,uint256 salt,address maker,address executor,bool isTakerBettingOutcomeOne)
	fillOrderTypeHash = ethcrypto.Keccak256(
		[]byte("FillOrder(bytes32 marketHash,address baseToken,uint256 totalBetSize,uint256 percentageOdds,uint256 expiry,uint256 salt,address maker,address executor,bool isTakerBettingOutcomeOne)"),
	)
)

// FillOrderPayload is the EIP-712 struct signed when taking an order on the
// blockchain-settled exchange. Large numbers travel as decimal strings to
// preserve precision across JSON boundaries.
type FillOrderPayload struct {
	MarketHash               string `json:"marketHash"` // 0x-prefixed bytes32
	BaseToken                string `json:"baseToken"`
	TotalBetSize             string `json:"totalBetSize"`
	PercentageOdds           string `json:"percentageOdds"`
	Expiry                   string `json:"expiry"`
	Salt                     string `json:"salt"`
	Maker                    string `json:"maker"`
	Executor                 string `json:"executor"`
	IsTakerBettingOutcomeOne bool   `json:"isTakerBettingOutcomeOne"`
}

// Signer signs API auth handshakes and fill orders with a secp256k1 key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    int
	domainSep  []byte // cached domain separator hash
}

// NewSigner creates a Signer from a hex-encoded private key and the target
// chain ID.
func NewSigner(privateKeyHex string, chainID int) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}

	s := &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		chainID:    chainID,
	}
	s.domainSep = buildDomainSeparator("SX Bet", "6.0", chainID)
	return s, nil
}

// Address returns the Ethereum address derived from the signer's key.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignAuthMessage signs the API-key handshake message. The returned string
// is a hex-encoded 65-byte signature with recovery byte.
func (s *Signer) SignAuthMessage(timestamp, nonce int64) (string, error) {
	structHash := ethcrypto.Keccak256(
		concatBytes(
			apiAuthTypeHash,
			common.LeftPadBytes(s.address.Bytes(), 32),
			bigIntTo32Bytes(big.NewInt(timestamp)),
			bigIntTo32Bytes(big.NewInt(nonce)),
		),
	)
	return s.signDigest(eip712Hash(s.domainSep, structHash))
}

// SignFillOrder signs a FillOrder struct for order submission, returning a
// hex-encoded 65-byte signature.
func (s *Signer) SignFillOrder(order FillOrderPayload) (string, error) {
	structHash, err := fillOrderStructHash(order)
	if err != nil {
		return "", err
	}
	return s.signDigest(eip712Hash(s.domainSep, structHash))
}

// buildDomainSeparator returns keccak256(abi.encode(typeHash, nameHash, versionHash, chainId)).
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

// signDigest signs a 32-byte digest and returns hex(r || s || v), with v
// normalized to {27,28} as EIP-712 verifiers expect.
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

func fillOrderStructHash(o FillOrderPayload) ([]byte, error) {
	marketHash, err := hex.DecodeString(strings.TrimPrefix(o.MarketHash, "0x"))
	if err != nil || len(marketHash) != 32 {
		return nil, fmt.Errorf("crypto/signer: invalid marketHash %q", o.MarketHash)
	}

	betSize, ok := new(big.Int).SetString(o.TotalBetSize, 10)
	if !ok {
		return nil, fmt.Errorf("crypto/signer: invalid totalBetSize %q", o.TotalBetSize)
	}
	odds, ok := new(big.Int).SetString(o.PercentageOdds, 10)
	if !ok {
		return nil, fmt.Errorf("crypto/signer: invalid percentageOdds %q", o.PercentageOdds)
	}
	expiry, ok := new(big.Int).SetString(o.Expiry, 10)
	if !ok {
		return nil, fmt.Errorf("crypto/signer: invalid expiry %q", o.Expiry)
	}
	salt, ok := new(big.Int).SetString(o.Salt, 10)
	if !ok {
		return nil, fmt.Errorf("crypto/signer: invalid salt %q", o.Salt)
	}

	outcomeOne := big.NewInt(0)
	if o.IsTakerBettingOutcomeOne {
		outcomeOne = big.NewInt(1)
	}

	return ethcrypto.Keccak256(
		concatBytes(
			fillOrderTypeHash,
			marketHash,
			common.LeftPadBytes(common.HexToAddress(o.BaseToken).Bytes(), 32),
			bigIntTo32Bytes(betSize),
			bigIntTo32Bytes(odds),
			bigIntTo32Bytes(expiry),
			bigIntTo32Bytes(salt),
			common.LeftPadBytes(common.HexToAddress(o.Maker).Bytes(), 32),
			common.LeftPadBytes(common.HexToAddress(o.Executor).Bytes(), 32),
			bigIntTo32Bytes(outcomeOne),
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

// concatBytes concatenates multiple byte slices into one.
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
