package common

import (
	"fmt"
	"math/rand"
	"time"
)

const codeCharacters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomCode(length int) string {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	result := make([]byte, length)
	for i := range result {
		result[i] = codeCharacters[r.Intn(len(codeCharacters))]
	}
	return string(result)
}

// GenerateTrxNo returns a short random code used as a ledger transaction number.
func GenerateTrxNo() string {
	return randomCode(7)
}

// GenerateReference returns a globally unique, human-shareable withdrawal
// tracking code: a timestamp prefix followed by a random suffix.
func GenerateReference() string {
	return fmt.Sprintf("WD-%s-%s", time.Now().Format("20060102150405"), randomCode(6))
}
