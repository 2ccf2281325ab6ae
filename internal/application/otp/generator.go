package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Generator produces fixed-width numeric codes, uniformly distributed over
// [0, 10^digits) and drawn from crypto/rand.
type Generator struct {
	digits int
	max    *big.Int
}

func NewGenerator(digits int) *Generator {
	return &Generator{
		digits: digits,
		max:    new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil),
	}
}

func (g *Generator) Generate() (string, error) {
	n, err := rand.Int(rand.Reader, g.max)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", g.digits, n.Int64()), nil
}
