package relaysim

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// SigningAlgo is recorded with every verification the simulator submits.
const SigningAlgo = "ecdsa"

// ErrSignatureMismatch reports a signature that does not recover to the
// claimed address.
var ErrSignatureMismatch = errors.New("signature does not match signing address")

// Signer signs request/response hash pairs as EIP-191 personal messages.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner loads a hex encoded secp256k1 private key, with or without 0x.
func NewSigner(hexKey string) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "converting hex to ECDSA key")
	}
	return newSigner(key), nil
}

// GenerateSigner creates a signer with a fresh random key.
func GenerateSigner() (*Signer, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, errors.Wrap(err, "generating ECDSA key")
	}
	return newSigner(key), nil
}

func newSigner(key *ecdsa.PrivateKey) *Signer {
	return &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

// PrivateKeyHex returns the 0x-prefixed private key.
func (s *Signer) PrivateKeyHex() string { return hexutil.Encode(crypto.FromECDSA(s.key)) }

// Address returns the checksummed signing address.
func (s *Signer) Address() string { return s.address.Hex() }

// Sign signs "requestHash:responseHash" and returns the 0x-prefixed
// 65-byte signature with v in {27, 28}.
func (s *Signer) Sign(requestHash, responseHash string) (string, error) {
	text := SignedText(requestHash, responseHash)
	sig, err := crypto.Sign(accounts.TextHash([]byte(text)), s.key)
	if err != nil {
		return "", errors.Wrap(err, "signing")
	}
	if sig[64] == 0 || sig[64] == 1 {
		sig[64] += 27
	}
	return hexutil.Encode(sig), nil
}

// SignedText is the message the relay signs for a request/response pair.
func SignedText(requestHash, responseHash string) string {
	return fmt.Sprintf("%s:%s", requestHash, responseHash)
}

// VerifySignature checks that signature over text recovers to address.
func VerifySignature(text, signature, address string) error {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return errors.Wrap(err, "decoding signature")
	}
	if len(sig) != crypto.SignatureLength {
		return errors.Errorf("signature is %d bytes, want %d", len(sig), crypto.SignatureLength)
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(text)), sig)
	if err != nil {
		return errors.Wrap(err, "recovering public key")
	}
	if !common.IsHexAddress(address) || crypto.PubkeyToAddress(*pub) != common.HexToAddress(address) {
		return ErrSignatureMismatch
	}
	return nil
}

// HashHex returns the hex sha256 of b.
func HashHex(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}
