// Package keyhash derives deterministic cache-key digests from call arguments.
//
// Only scalar arguments (non-empty strings and non-zero integers) participate
// in a digest. Everything else is silently excluded, so two calls that differ
// only in non-scalar arguments share a key. Callers that need to distinguish
// such calls must fold the distinguishing data into a string argument.
package keyhash

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
)

// Digest returns a content digest over the scalar arguments.
//
// Eligible arguments are canonicalized to strings with any "-" removed,
// sorted, and joined with "," behind a leading ":" before hashing. Sorting
// makes the digest independent of argument order. md5 is used for
// content-addressing, not security.
func Digest(args ...any) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		s, ok := scalarString(arg)
		if !ok {
			continue
		}
		parts = append(parts, strings.ReplaceAll(s, "-", ""))
	}
	sort.Strings(parts)
	sum := md5.Sum([]byte(":" + strings.Join(parts, ",")))
	return hex.EncodeToString(sum[:])
}

// Signature returns a content digest over the concatenation of parts,
// or the empty string when no parts are given. Used to content-address
// multi-part inputs (e.g. HyperLogLog elements) before storage.
func Signature(parts ...string) string {
	if len(parts) == 0 {
		return ""
	}
	sum := md5.Sum([]byte(strings.Join(parts, "")))
	return hex.EncodeToString(sum[:])
}

// scalarString converts an eligible scalar argument to its canonical string
// form. Empty strings and zero integers are not eligible: they canonicalize
// to nothing and would only pad the digest. Booleans are deliberately not
// integers here.
func scalarString(arg any) (string, bool) {
	switch v := arg.(type) {
	case string:
		return v, v != ""
	case int:
		return strconv.FormatInt(int64(v), 10), v != 0
	case int8:
		return strconv.FormatInt(int64(v), 10), v != 0
	case int16:
		return strconv.FormatInt(int64(v), 10), v != 0
	case int32:
		return strconv.FormatInt(int64(v), 10), v != 0
	case int64:
		return strconv.FormatInt(v, 10), v != 0
	case uint:
		return strconv.FormatUint(uint64(v), 10), v != 0
	case uint8:
		return strconv.FormatUint(uint64(v), 10), v != 0
	case uint16:
		return strconv.FormatUint(uint64(v), 10), v != 0
	case uint32:
		return strconv.FormatUint(uint64(v), 10), v != 0
	case uint64:
		return strconv.FormatUint(v, 10), v != 0
	default:
		return "", false
	}
}
