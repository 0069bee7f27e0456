package providers

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"

	"github.com/google/uuid"
)

// CryptoApp is the app key of the crypto provider.
const CryptoApp = "crypto"

// CryptoProvider hashes, signs and mints identifiers. The hmac action takes
// its key from config "key" or, failing that, the credential's "secret".
type CryptoProvider struct{}

func (CryptoProvider) Describe() Info {
	return Info{
		AppID:       CryptoApp,
		Description: "Hashes, HMAC signatures and v4 UUIDs.",
		Actions:     []string{"hash", "hmac", "uuid"},
	}
}

func (CryptoProvider) Execute(_ context.Context, in Input) (any, error) {
	switch in.ActionID {
	case "hash":
		data, ok := in.Config["data"].(string)
		if !ok {
			return nil, providerError(CryptoApp, in.ActionID, "'data' must be a string")
		}
		algorithm := stringParam(in.Config, "algorithm", "sha256")
		newHash, err := hashFunc(algorithm)
		if err != nil {
			return nil, providerError(CryptoApp, in.ActionID, "%v", err)
		}
		h := newHash()
		h.Write([]byte(data))
		return map[string]any{"hash": hex.EncodeToString(h.Sum(nil)), "algorithm": algorithm}, nil

	case "hmac":
		data, ok := in.Config["data"].(string)
		if !ok {
			return nil, providerError(CryptoApp, in.ActionID, "'data' must be a string")
		}
		key := stringParam(in.Config, "key", stringParam(in.Credential, "secret", ""))
		if key == "" {
			return nil, providerError(CryptoApp, in.ActionID, "a 'key' or a credential 'secret' is required")
		}
		algorithm := stringParam(in.Config, "algorithm", "sha256")
		newHash, err := hashFunc(algorithm)
		if err != nil {
			return nil, providerError(CryptoApp, in.ActionID, "%v", err)
		}
		mac := hmac.New(newHash, []byte(key))
		mac.Write([]byte(data))
		return map[string]any{"hmac": hex.EncodeToString(mac.Sum(nil)), "algorithm": algorithm}, nil

	case "uuid":
		return map[string]any{"uuid": uuid.NewString()}, nil

	default:
		return unsupportedAction(CryptoApp, in.ActionID), nil
	}
}

func hashFunc(algorithm string) (func() hash.Hash, error) {
	switch algorithm {
	case "sha256":
		return sha256.New, nil
	case "sha512":
		return sha512.New, nil
	case "sha384":
		return sha512.New384, nil
	case "md5":
		return md5.New, nil
	case "sha1":
		return sha1.New, nil
	default:
		return nil, errUnsupportedAlgorithm(algorithm)
	}
}

type errUnsupportedAlgorithm string

func (e errUnsupportedAlgorithm) Error() string {
	return "unsupported hash algorithm: " + string(e)
}
