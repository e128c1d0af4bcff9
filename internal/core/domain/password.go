package domain

import (
	"crypto/rand"
	"math/big"
)

// passwordCharset omits characters that are easy to misread (0/O, 1/l/I).
const passwordCharset = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789"

// PasswordLength is the length of generated passwords.
const PasswordLength = 16

// GeneratePassword returns a random password drawn from passwordCharset.
func GeneratePassword() string {
	max := big.NewInt(int64(len(passwordCharset)))
	b := make([]byte, PasswordLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("crypto/rand unavailable: " + err.Error())
		}
		b[i] = passwordCharset[n.Int64()]
	}
	return string(b)
}
