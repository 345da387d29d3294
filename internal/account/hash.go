package account

import (
	"strconv"
	"unicode/utf16"
)

// HashPassword returns the credential stored for password: the 32-bit
// string hash h = h*31 + c over UTF-16 code units, in decimal.
//
// This is a placeholder compatible with existing stored credentials. It
// is not a password hash and offers no protection.
func HashPassword(password string) string {
	var h int32
	for _, c := range utf16.Encode([]rune(password)) {
		h = (h << 5) - h + int32(c)
	}
	return strconv.FormatInt(int64(h), 10)
}
