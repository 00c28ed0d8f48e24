// Package trustseed persists the light client's initial trust anchor — the
// height/hash pair and trusting period an operator pins as the root of
// trust — behind the same encryption envelope the teacher uses for
// validator keys. A trust anchor isn't a secret, but pinning it against
// on-disk tampering is worth the same treatment.
package trustseed

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"os"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"github.com/tolelom/tmlight/types"
)

// TrustOptions is the initial trust anchor a supervisor is bootstrapped
// from: a height, the hash its signed header must produce, and how long a
// trusted state derived from it remains usable before it expires.
type TrustOptions struct {
	Height         types.Height  `json:"height"`
	Hash           types.Hash    `json:"hash"`
	TrustingPeriod time.Duration `json:"trusting_period"`
}

type seedFile struct {
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	CipherText string `json:"cipher_text"`
}

// Save encrypts opts with password and writes it to path.
func Save(path, password string, opts TrustOptions) error {
	plain, err := json.Marshal(opts)
	if err != nil {
		return err
	}

	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return err
	}
	key := deriveKey(password, salt)

	block, err := aes.NewCipher(key)
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
	cipherText := gcm.Seal(nil, nonce, plain, nil)

	sf := seedFile{
		Salt:       hex.EncodeToString(salt),
		Nonce:      hex.EncodeToString(nonce),
		CipherText: hex.EncodeToString(cipherText),
	}
	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Load decrypts the trust seed at path using password.
func Load(path, password string) (TrustOptions, error) {
	var opts TrustOptions
	data, err := os.ReadFile(path)
	if err != nil {
		return opts, err
	}
	var sf seedFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return opts, err
	}
	salt, err := hex.DecodeString(sf.Salt)
	if err != nil {
		return opts, err
	}
	nonce, err := hex.DecodeString(sf.Nonce)
	if err != nil {
		return opts, err
	}
	cipherText, err := hex.DecodeString(sf.CipherText)
	if err != nil {
		return opts, err
	}

	key := deriveKey(password, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return opts, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return opts, err
	}
	plain, err := gcm.Open(nil, nonce, cipherText, nil)
	if err != nil {
		return opts, errors.New("wrong password or corrupted trust seed")
	}
	if err := json.Unmarshal(plain, &opts); err != nil {
		return opts, err
	}
	return opts, nil
}

func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, 210_000, 32, sha256.New)
}
