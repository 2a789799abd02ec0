// Package notice seals shipment notices for a single recipient. The escrow
// engine stores the sealed blobs verbatim; only the holder of the matching
// private key can read them.
package notice

import (
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/crypto/ecies"

	"orderchain/native/orders"
)

var ErrUnsupportedKey = errors.New("notice: unsupported public key encoding")

// ParsePublicKey accepts a compressed (33 byte) or uncompressed (65 byte)
// secp256k1 public key.
func ParsePublicKey(raw []byte) (*ecdsa.PublicKey, error) {
	switch len(raw) {
	case 33:
		return ethcrypto.DecompressPubkey(raw)
	case 65:
		return ethcrypto.UnmarshalPubkey(raw)
	default:
		return nil, fmt.Errorf("%w: %d bytes", ErrUnsupportedKey, len(raw))
	}
}

// PublicKeyBytes returns the compressed form of the key, the encoding order
// notices are registered with.
func PublicKeyBytes(key *ecdsa.PrivateKey) []byte {
	return ethcrypto.CompressPubkey(&key.PublicKey)
}

// Seal encrypts plaintext for the holder of pub.
func Seal(pub []byte, plaintext []byte) ([]byte, error) {
	key, err := ParsePublicKey(pub)
	if err != nil {
		return nil, err
	}
	return ecies.Encrypt(rand.Reader, ecies.ImportECDSAPublic(key), plaintext, nil, nil)
}

// Open decrypts a blob produced by Seal.
func Open(priv *ecdsa.PrivateKey, blob []byte) ([]byte, error) {
	if priv == nil {
		return nil, errors.New("notice: private key required")
	}
	return ecies.ImportECDSA(priv).Decrypt(blob, nil, nil)
}

// SealShipment seals plaintext once per party of the order. The arbiter
// notice is left empty when the order carries no arbiter key.
func SealShipment(order *orders.Order, plaintext []byte) (orders.Shipment, error) {
	var shipment orders.Shipment
	if order == nil {
		return shipment, errors.New("notice: order required")
	}
	var err error
	if shipment.Buyer, err = Seal(order.BuyerNotice, plaintext); err != nil {
		return orders.Shipment{}, fmt.Errorf("seal buyer notice: %w", err)
	}
	if len(order.ReporterNotice) > 0 {
		if shipment.Reporter, err = Seal(order.ReporterNotice, plaintext); err != nil {
			return orders.Shipment{}, fmt.Errorf("seal reporter notice: %w", err)
		}
	}
	if len(order.ArbiterNotice) > 0 {
		if shipment.Arbiter, err = Seal(order.ArbiterNotice, plaintext); err != nil {
			return orders.Shipment{}, fmt.Errorf("seal arbiter notice: %w", err)
		}
	}
	return shipment, nil
}
