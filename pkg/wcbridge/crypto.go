package wcbridge

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"moff.io/moff-wallet/pkg/errors"
)

// KeySize is the length of a session symmetric key (AES-256).
const KeySize = 256 / 8

var (
	ErrInvalidPadding = errors.New("invalid pkcs7 padding")
	ErrHmacMismatch   = errors.New("inconsistent session message hmac")
)

// EncryptedPayload is the bridge encoding of an encrypted JSON-RPC message.
type EncryptedPayload struct {
	Data string `json:"data"`
	Hmac string `json:"hmac"`
	IV   string `json:"iv"`
}

// Seal encrypts plaintext with key under a fresh IV and authenticates data||iv.
func Seal(plaintext, key []byte) (*EncryptedPayload, error) {
	iv, err := GenerateRandomBytes(aes.BlockSize)
	if err != nil {
		return nil, errors.Wrap(err, "generate iv")
	}
	data, err := Aes256Encrypt(plaintext, key, iv)
	if err != nil {
		return nil, err
	}
	return &EncryptedPayload{
		Data: hex.EncodeToString(data),
		IV:   hex.EncodeToString(iv),
		Hmac: hex.EncodeToString(HmacSha256(append(append([]byte{}, data...), iv...), key)),
	}, nil
}

// Open verifies and decrypts a payload produced by Seal.
func Open(p *EncryptedPayload, key []byte) ([]byte, error) {
	iv, err := hex.DecodeString(p.IV)
	if err != nil {
		return nil, errors.Wrap(err, "decode iv hex")
	}
	data, err := hex.DecodeString(p.Data)
	if err != nil {
		return nil, errors.Wrap(err, "decode cipher hex")
	}
	mac, err := hex.DecodeString(p.Hmac)
	if err != nil {
		return nil, errors.Wrap(err, "decode hmac hex")
	}
	if !hmac.Equal(mac, HmacSha256(append(append([]byte{}, data...), iv...), key)) {
		return nil, ErrHmacMismatch
	}
	return Aes256Decrypt(data, key, iv)
}

func Aes256Encrypt(content, encryptionKey, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, errors.Wrap(err, "create new cipher block")
	}
	plaintext := pkcs7Pad(content, aes.BlockSize)
	ciphertext := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, plaintext)
	return ciphertext, nil
}

func Aes256Decrypt(cipherText, encryptionKey, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, errors.Wrap(err, "create new cipher block")
	}
	if len(cipherText) == 0 || len(cipherText)%aes.BlockSize != 0 {
		return nil, errors.New("cipher text is not a multiple of the block size")
	}
	plaintext := make([]byte, len(cipherText))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, cipherText)
	return pkcs7Unpad(plaintext, aes.BlockSize)
}

func pkcs7Pad(src []byte, blockSize int) []byte {
	padding := blockSize - len(src)%blockSize
	return append(append([]byte{}, src...), bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func pkcs7Unpad(src []byte, blockSize int) ([]byte, error) {
	n := len(src)
	if n == 0 {
		return nil, ErrInvalidPadding
	}
	padding := int(src[n-1])
	if padding == 0 || padding > blockSize || padding > n {
		return nil, ErrInvalidPadding
	}
	for _, b := range src[n-padding:] {
		if int(b) != padding {
			return nil, ErrInvalidPadding
		}
	}
	return src[:n-padding], nil
}

func GenerateRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

func HmacSha256(data, secret []byte) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write(data)
	return h.Sum(nil)
}
