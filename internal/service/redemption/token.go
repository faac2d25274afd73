package redemption

import "math/rand"

// Token format: a fixed prefix plus five characters from an alphabet with
// the lookalikes (0/O, 1/I) removed, so staff can read codes over a counter.
const (
	tokenPrefix   = "WB-"
	tokenAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	tokenLength   = 5
)

// NewToken generates a redemption code.
func NewToken(rng *rand.Rand) string {
	buf := make([]byte, tokenLength)
	for i := range buf {
		buf[i] = tokenAlphabet[rng.Intn(len(tokenAlphabet))]
	}
	return tokenPrefix + string(buf)
}
