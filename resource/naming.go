package resource

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"strings"
)

// KeyFunc derives the object key for a filename. A Bucket applies its
// KeyFunc to every filename and listing prefix, which pins all of a
// project's objects under one layout rule.
type KeyFunc func(filename string) string

// Flat stores objects under their filename as-is.
func Flat(filename string) string { return filename }

// Prefix returns a KeyFunc that places every object under the fixed
// prefix p.
func Prefix(p string) KeyFunc {
	if p != "" && !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return func(filename string) string { return p + filename }
}

// HashFanout spreads objects across a three-level directory fan-out
// derived from the sha256 of the filename:
//
//	HashFanout("report.json") → "ab/c1/23/report.json"
//
// This supports billion-scale storage by distributing objects across
// 256^3 = 16M directories.
func HashFanout(filename string) string {
	if filename == "" {
		return filename
	}
	sum := sha256.Sum256([]byte(filename))
	digest := hex.EncodeToString(sum[:3])
	return path.Join(digest[0:2], digest[2:4], digest[4:6], filename)
}

// Chain composes KeyFuncs left to right: each one's output feeds the
// next.
func Chain(fns ...KeyFunc) KeyFunc {
	return func(filename string) string {
		for _, fn := range fns {
			filename = fn(filename)
		}
		return filename
	}
}
