package nostr

import (
	"fmt"
	"strings"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip04"
	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/puzpuzpuz/xsync/v3"
)

// KeySigner signs and encrypts with a private key held in memory
type KeySigner struct {
	sk     string
	pk     string
	shared *xsync.MapOf[string, []byte]
}

// NewKeySigner accepts a private key as nsec or hex
func NewKeySigner(key string) (*KeySigner, error) {
	sk := strings.TrimSpace(key)
	if strings.HasPrefix(sk, "nsec1") {
		prefix, value, err := nip19.Decode(sk)
		if err != nil {
			return nil, fmt.Errorf("failed to decode nsec: %w", err)
		}
		if prefix != "nsec" {
			return nil, fmt.Errorf("expected nsec, got %s", prefix)
		}
		sk = value.(string)
	}
	if !nostr.IsValid32ByteHex(sk) {
		return nil, fmt.Errorf("invalid private key")
	}

	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key: %w", err)
	}
	return &KeySigner{sk: sk, pk: pk, shared: xsync.NewMapOf[string, []byte]()}, nil
}

// PubKey returns the hex public key
func (s *KeySigner) PubKey() string { return s.pk }

// Sign fills in pubkey, id and signature
func (s *KeySigner) Sign(ev *nostr.Event) error {
	return ev.Sign(s.sk)
}

// Encrypt encrypts plaintext to counterparty with NIP-04
func (s *KeySigner) Encrypt(plaintext, counterparty string) (string, error) {
	key, err := s.sharedKey(counterparty)
	if err != nil {
		return "", err
	}
	return nip04.Encrypt(plaintext, key)
}

// Decrypt decrypts NIP-04 ciphertext exchanged with counterparty
func (s *KeySigner) Decrypt(ciphertext, counterparty string) (string, error) {
	key, err := s.sharedKey(counterparty)
	if err != nil {
		return "", err
	}
	return nip04.Decrypt(ciphertext, key)
}

func (s *KeySigner) sharedKey(counterparty string) ([]byte, error) {
	if key, ok := s.shared.Load(counterparty); ok {
		return key, nil
	}
	key, err := nip04.ComputeSharedSecret(counterparty, s.sk)
	if err != nil {
		return nil, fmt.Errorf("failed to compute shared secret: %w", err)
	}
	s.shared.Store(counterparty, key)
	return key, nil
}

// ParsePubKey accepts a public key as npub, nprofile or hex
func ParsePubKey(s string) (string, error) {
	s = strings.TrimSpace(s)
	if nostr.IsValid32ByteHex(s) {
		return strings.ToLower(s), nil
	}

	prefix, value, err := nip19.Decode(s)
	if err != nil {
		return "", fmt.Errorf("invalid public key %q: %w", s, err)
	}
	switch prefix {
	case "npub":
		return value.(string), nil
	case "nprofile":
		return value.(nostr.ProfilePointer).PublicKey, nil
	default:
		return "", fmt.Errorf("expected npub or nprofile, got %s", prefix)
	}
}
