/*
Package randx provides functions for generating cryptographically secure random strings.

It is used to generate the operator API signing secret when none is configured in development.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	// Base62Chars defines the character set used for Base62 encoding (0-9, A-Z, a-z).
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// Base62Len is the total number of characters in the Base62 character set (62).
	Base62Len = int64(len(Base62Chars))

	// SecretLength is the length of secrets generated by Secret.
	SecretLength = 48
)

// Base62 generates a Base62 string of the given length using crypto/rand.
func Base62(length int) (string, error) {
	result := make([]byte, length)

	for i := range length {
		num, err := rand.Int(rand.Reader, big.NewInt(Base62Len))
		if err != nil {
			return "", fmt.Errorf("failed to generate random number: %v", err)
		}

		result[i] = Base62Chars[num.Int64()]
	}

	return string(result), nil
}

// Secret generates a SecretLength Base62 string suitable as an HMAC signing key.
func Secret() (string, error) {
	return Base62(SecretLength)
}

// IsBase62 checks that s is non-empty and consists only of Base62 characters.
func IsBase62(s string) bool {
	if s == "" {
		return false
	}

	for _, char := range s {
		if !strings.ContainsRune(Base62Chars, char) {
			return false
		}
	}

	return true
}
