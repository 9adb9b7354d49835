package node

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/crypto/scrypt"

	"github.com/kma-coin/kmacoin/crypto"
)

// scrypt parameters follow the geth/klaytn "light" keystore profile: weak
// enough to unlock quickly on a miner's own machine, strong enough to
// resist casual offline brute force of a stolen keystore file.
const (
	scryptN = 1 << 12
	scryptR = 8
	scryptP = 1
	keyLen  = 32
)

// encryptedKey is the on-disk JSON shape of a keystore file.
type encryptedKey struct {
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	CipherText []byte `json:"ciphertext"`
}

// SaveKeystore encrypts priv under passphrase and writes it to path,
// creating parent directories as needed.
func SaveKeystore(path, passphrase string, priv *crypto.PrivateKey) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return err
	}
	derived, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return errors.Wrap(err, "node: deriving keystore key")
	}
	block, err := aes.NewCipher(derived)
	if err != nil {
		return err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return err
	}
	plain := crypto.PrivateKeyToBytes(priv)
	ct := gcm.Seal(nil, nonce, plain, nil)

	enc := encryptedKey{Salt: salt, Nonce: nonce, CipherText: ct}
	data, err := json.Marshal(enc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// LoadKeystore decrypts the private key stored at path under passphrase.
func LoadKeystore(path, passphrase string) (*crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var enc encryptedKey
	if err := json.Unmarshal(data, &enc); err != nil {
		return nil, errors.Wrap(err, "node: malformed keystore file")
	}
	derived, err := scrypt.Key([]byte(passphrase), enc.Salt, scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, enc.Nonce, enc.CipherText, nil)
	if err != nil {
		return nil, errors.Wrap(err, "node: wrong passphrase or corrupt keystore")
	}
	return crypto.BytesToPrivateKey(plain)
}

// LoadOrCreateKeystore loads the keystore at path, or generates a fresh
// identity and persists it there if no file exists yet — the path a fresh
// data directory takes on the node's first start.
func LoadOrCreateKeystore(path, passphrase string) (*crypto.PrivateKey, error) {
	if _, err := os.Stat(path); err == nil {
		return LoadKeystore(path, passphrase)
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	priv, _, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := SaveKeystore(path, passphrase, priv); err != nil {
		return nil, err
	}
	return priv, nil
}
