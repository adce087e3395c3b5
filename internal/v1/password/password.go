// Package password implements controlled-room name derivation/verification
// and the random salt and room-password generators.
//
// Grounded on original_source/syncplay/utils.go's RoomPasswordProvider and
// RandomStringGenerator.
package password

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"regexp"
)

// ControlledRoomRegex matches a controlled room's wire name: "+base:HASH"
// where HASH is the 12 character uppercase hex room hash. The upstream
// Python source matches the trailing group case-insensitively with \w{12}
// but always *produces* an upper-hex digest — this implementation follows
// what it produces, not what it also happens to accept.
var ControlledRoomRegex = regexp.MustCompile(`^\+(.*):([0-9A-F]{12})$`)

// PasswordFormat matches a room controller password: two letters, a dash,
// three digits, a dash, three digits (e.g. "AA-123-456").
var PasswordFormat = regexp.MustCompile(`^[A-Z]{2}-\d{3}-\d{3}$`)

// ErrNotControlledRoom is returned when a room name doesn't match the
// controlled-room shape.
var ErrNotControlledRoom = errors.New("password: not a controlled room name")

// ErrBadPasswordFormat is returned when a supplied password fails
// PasswordFormat.
var ErrBadPasswordFormat = errors.New("password: malformed controller password")

// IsControlledRoom reports whether roomName has the "+base:HASH" shape.
func IsControlledRoom(roomName string) bool {
	return ControlledRoomRegex.MatchString(roomName)
}

// Check verifies that password unlocks roomName under salt. It returns
// ErrBadPasswordFormat if password doesn't match PasswordFormat, and
// ErrNotControlledRoom if roomName isn't a controlled-room name.
func Check(roomName, pass, salt string) (bool, error) {
	if pass == "" || !PasswordFormat.MatchString(pass) {
		return false, ErrBadPasswordFormat
	}
	if roomName == "" {
		return false, ErrNotControlledRoom
	}
	match := ControlledRoomRegex.FindStringSubmatch(roomName)
	if match == nil {
		return false, ErrNotControlledRoom
	}
	base, roomHash := match[1], match[2]
	return roomHash == computeRoomHash(base, pass, salt), nil
}

// ControlledRoomName returns the "+base:HASH" wire name for base under
// password and salt.
func ControlledRoomName(base, pass, salt string) string {
	return fmt.Sprintf("+%s:%s", base, computeRoomHash(base, pass, salt))
}

// computeRoomHash implements:
//
//	saltHex  = SHA256(salt)
//	provHex  = SHA256(base || saltHex)
//	hash12   = SHA1(provHex || saltHex || password)[:12].upper()
func computeRoomHash(base, pass, salt string) string {
	saltSum := sha256.Sum256([]byte(salt))
	saltHex := hexDigest(saltSum[:])
	provSum := sha256.Sum256([]byte(base + saltHex))
	provHex := hexDigest(provSum[:])
	fullSum := sha1.Sum([]byte(provHex + saltHex + pass))
	full := hexDigest(fullSum[:])
	return upper(full[:12])
}

func hexDigest(sum []byte) string {
	return hex.EncodeToString(sum)
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'f' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}

const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
const digits = "0123456789"

// GenerateRoomPassword returns a random controller password matching
// PasswordFormat, e.g. "AA-123-456".
func GenerateRoomPassword() (string, error) {
	l, err := randomLetters(2)
	if err != nil {
		return "", err
	}
	d1, err := randomDigits(3)
	if err != nil {
		return "", err
	}
	d2, err := randomDigits(3)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%s", l, d1, d2), nil
}

// GenerateServerSalt returns 10 random uppercase letters, used as the
// server-wide salt when none is configured.
func GenerateServerSalt() (string, error) {
	return randomLetters(10)
}

func randomLetters(n int) (string, error) {
	return randomFrom(letters, n)
}

// randomDigits generates n independent cryptographically-random digits.
//
// The original RandomStringGenerator._get_random_numbers called
// random.choice(string.digits, k=quantity) — random.choice takes no k=
// keyword, so read literally that call raises TypeError. Read as intent
// (mirroring _get_random_letters immediately above it, which does use
// random.choices(..., k=quantity)), it meant to draw quantity independent
// digits. This implementation does that, with a CSPRNG instead of the
// Mersenne Twister besides.
func randomDigits(n int) (string, error) {
	return randomFrom(digits, n)
}

func randomFrom(alphabet string, n int) (string, error) {
	out := make([]byte, n)
	max := big.NewInt(int64(len(alphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = alphabet[idx.Int64()]
	}
	return string(out), nil
}
