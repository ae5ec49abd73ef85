package utils

import (
	"crypto/rand"
	"math/big"
)

const partnerCodeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const partnerCodeLength = 8

// GeneratePartnerCode generates a referral code for a new partner.
func GeneratePartnerCode() string {
	b := make([]byte, partnerCodeLength)
	max := big.NewInt(int64(len(partnerCodeCharset)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			b[i] = partnerCodeCharset[0]
			continue
		}
		b[i] = partnerCodeCharset[n.Int64()]
	}
	return string(b)
}
