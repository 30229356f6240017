// Package reference mints short public booking references.
package reference

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	Length  = 8
	charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var charsetSize = big.NewInt(int64(len(charset)))

// Generator produces candidate references. Candidates are not guaranteed to
// be unique; callers enforce uniqueness against storage.
type Generator interface {
	Generate() (string, error)
}

// Random draws every character uniformly from [A-Z0-9].
type Random struct{}

func (Random) Generate() (string, error) {
	const op = "reference.Random.Generate"

	ref := make([]byte, Length)
	for i := range ref {
		n, err := rand.Int(rand.Reader, charsetSize)
		if err != nil {
			return "", fmt.Errorf("%s:%w", op, err)
		}
		ref[i] = charset[n.Int64()]
	}

	return string(ref), nil
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func() (string, error)

func (f GeneratorFunc) Generate() (string, error) { return f() }

// Valid reports whether ref has the shape of a generated reference.
func Valid(ref string) bool {
	if len(ref) != Length {
		return false
	}
	for i := 0; i < len(ref); i++ {
		c := ref[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
