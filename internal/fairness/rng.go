package fairness

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
)

// Delimiter joins serverSeed, clientSeed and nonce, in that order, before
// hashing. Changing it breaks every published verification.
const Delimiter = "-"

// drawDivisor normalizes the leading 32 bits of the digest. A digest that
// starts with ffffffff maps to exactly 1.0; engines clamp for that case.
const drawDivisor = 0xFFFFFFFF

// GenerateSeed creates a 256-bit cryptographically secure server seed
func GenerateSeed() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// HashCommitment creates the SHA256 hash published before any bet uses the seed
func HashCommitment(seed string) string {
	h := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(h[:])
}

// CheckCommitment reports whether a revealed seed matches the hash that was
// published for it.
func CheckCommitment(serverSeed, publishedHash string) bool {
	calculated := HashCommitment(serverSeed)
	return subtle.ConstantTimeCompare([]byte(calculated), []byte(publishedHash)) == 1
}

// Message is the exact preimage hashed by Draw.
func Message(serverSeed, clientSeed string, nonce int64) string {
	return serverSeed + Delimiter + clientSeed + Delimiter + strconv.FormatInt(nonce, 10)
}

// DrawHash returns the hex SHA256 digest of Message.
func DrawHash(serverSeed, clientSeed string, nonce int64) string {
	h := sha256.Sum256([]byte(Message(serverSeed, clientSeed, nonce)))
	return hex.EncodeToString(h[:])
}

// Draw derives the uniform value every game consumes. It takes the first 8
// hex characters of DrawHash as a uint32 and divides by 0xFFFFFFFF.
func Draw(serverSeed, clientSeed string, nonce int64) float64 {
	v, err := strconv.ParseUint(DrawHash(serverSeed, clientSeed, nonce)[:8], 16, 32)
	if err != nil {
		// hex.EncodeToString only emits [0-9a-f]
		panic(fmt.Sprintf("fairness: bad digest prefix: %v", err))
	}
	return float64(v) / drawDivisor
}
