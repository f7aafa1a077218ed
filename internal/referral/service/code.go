package service

import (
	"crypto/rand"
	"math/big"
	"regexp"
)

const (
	codeLetters = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	codeDigits  = "0123456789"
)

var codePattern = regexp.MustCompile(`^[A-Z]{3}-[0-9]{3}$`)

// generateCode returns a shareable code shaped like "ABC-123".
func generateCode() (string, error) {
	out := make([]byte, 0, 7)
	for i := 0; i < 3; i++ {
		c, err := pick(codeLetters)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	out = append(out, '-')
	for i := 0; i < 3; i++ {
		c, err := pick(codeDigits)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	return string(out), nil
}

func pick(alphabet string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
	if err != nil {
		return 0, err
	}
	return alphabet[n.Int64()], nil
}

func validCode(code string) bool {
	return codePattern.MatchString(code)
}
