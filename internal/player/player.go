// Package player holds username rules and the offline-mode UUID derivation
// used by Minecraft servers running without online authentication.
package player

import (
	"crypto/md5"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,16}$`)

// ValidUsername reports whether name, after trimming surrounding whitespace,
// is 3 to 16 characters of ASCII letters, digits or underscore.
func ValidUsername(name string) bool {
	return usernamePattern.MatchString(strings.TrimSpace(name))
}

// SanitizeUsername trims surrounding whitespace. Case is preserved.
func SanitizeUsername(name string) string {
	return strings.TrimSpace(name)
}

// OfflineUUID derives the identifier the server assigns to name in offline mode:
// MD5 of "OfflinePlayer:"+name with version 3 and the RFC 4122 variant stamped in.
func OfflineUUID(name string) uuid.UUID {
	sum := md5.Sum([]byte("OfflinePlayer:" + name))
	sum[6] = sum[6]&0x0f | 0x30
	sum[8] = sum[8]&0x3f | 0x80
	return uuid.UUID(sum)
}
