package common

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// NormalizeCardCode приводит код карты к каноническому виду:
// без пробелов и дефисов, в верхнем регистре.
func NormalizeCardCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	return strings.NewReplacer("-", "", " ", "").Replace(code)
}

// CardFingerprint - короткий отпечаток кода карты для логов.
// Сам код - это деньги, в логи он попадать не должен.
func CardFingerprint(code string) string {
	sum := blake2b.Sum256([]byte(NormalizeCardCode(code)))
	return hex.EncodeToString(sum[:6])
}
