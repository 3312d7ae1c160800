package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// argonCost is the work factor for new hashes, following the OWASP
// Argon2id baseline of 64 MiB, three passes and one lane.
var argonCost = argonParams{memory: 64 * 1024, time: 3, threads: 1}

const (
	argonKeyLen  = 32
	argonSaltLen = 16
)

var (
	b64                = base64.RawStdEncoding
	errUnsupportedHash = errors.New("unsupported hash format")
)

type argonParams struct {
	memory  uint32 // KiB
	time    uint32
	threads uint8
}

// weakerThan reports whether p falls short of q on memory or passes.
func (p argonParams) weakerThan(q argonParams) bool {
	return p.memory < q.memory || p.time < q.time
}

// argonHash is a decoded $argon2id$ PHC string.
type argonHash struct {
	params argonParams
	salt   []byte
	key    []byte
}

func (h argonHash) String() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.params.memory, h.params.time, h.params.threads,
		b64.EncodeToString(h.salt), b64.EncodeToString(h.key))
}

func (h argonHash) derive(password string) []byte {
	return argon2.IDKey([]byte(password), h.salt, h.params.time, h.params.memory, h.params.threads,
		uint32(len(h.key))) //nolint:gosec // key length is small
}

// HashPassword derives an Argon2id key from password with a fresh salt and
// returns it in PHC form, e.g. $argon2id$v=19$m=65536,t=3,p=1$<salt>$<key>.
func HashPassword(password string) (string, error) {
	h := argonHash{params: argonCost, salt: make([]byte, argonSaltLen), key: make([]byte, argonKeyLen)}
	if _, err := rand.Read(h.salt); err != nil {
		return "", fmt.Errorf("reading salt: %w", err)
	}
	h.key = h.derive(password)
	return h.String(), nil
}

// VerifyPassword reports whether password matches stored, which is either
// an Argon2id PHC string or a bcrypt hash carried over from the previous
// system. Anything unparseable never matches.
func VerifyPassword(password, stored string) bool {
	if isBcrypt(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	}
	h, err := parseArgonHash(stored)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(h.key, h.derive(password)) == 1
}

// NeedsRehash reports whether stored should be replaced after a successful
// login: bcrypt, unparseable, or Argon2id weaker than the current cost.
func NeedsRehash(stored string) bool {
	if isBcrypt(stored) {
		return true
	}
	h, err := parseArgonHash(stored)
	if err != nil {
		return true
	}
	return h.params.weakerThan(argonCost) || len(h.key) < argonKeyLen
}

func isBcrypt(stored string) bool {
	_, err := bcrypt.Cost([]byte(stored))
	return err == nil
}

func parseArgonHash(s string) (argonHash, error) {
	var h argonHash

	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	fields := strings.Split(s, "$")
	if len(fields) != 6 || fields[0] != "" { //nolint:mnd // PHC field count
		return h, errUnsupportedHash
	}
	if fields[1] != "argon2id" {
		return h, fmt.Errorf("%w: algorithm %q", errUnsupportedHash, fields[1])
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil || version != argon2.Version {
		return h, fmt.Errorf("%w: version %q", errUnsupportedHash, fields[2])
	}

	p := &h.params
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return h, fmt.Errorf("%w: parameters %q", errUnsupportedHash, fields[3])
	}
	if p.memory == 0 || p.time == 0 || p.threads == 0 {
		return h, fmt.Errorf("%w: zero cost parameter", errUnsupportedHash)
	}

	var err error
	if h.salt, err = b64.DecodeString(fields[4]); err != nil {
		return h, fmt.Errorf("%w: salt: %w", errUnsupportedHash, err)
	}
	if h.key, err = b64.DecodeString(fields[5]); err != nil || len(h.key) == 0 {
		return h, fmt.Errorf("%w: key", errUnsupportedHash)
	}
	return h, nil
}
