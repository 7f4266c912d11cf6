// Package randutil generates the opaque random tokens SIP scatters
// throughout a dialog and its transactions: Via branches, tags, and
// Call-IDs. It is backed by google/uuid rather than a hand-rolled
// random-string generator, matching how the broader example corpus
// (arzzra-soft_phone, cloudwebrtc-go-sip-ua) sources these tokens.
package randutil

import (
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
)

// BranchMagicCookie is the RFC 3261 marker that identifies an
// RFC 3261-compliant Via branch.
const BranchMagicCookie = "z9hG4bK"

// Branch returns a fresh RFC 3261 branch token, magic-cookie-prefixed.
func Branch() string {
	return BranchMagicCookie + compact(uuid.NewString())
}

// Tag returns a fresh From/To tag.
func Tag() string {
	return compact(uuid.NewString())
}

// CallID returns a fresh Call-ID local part; callers typically append
// "@host" themselves.
func CallID() string {
	return compact(uuid.NewString())
}

// Seq16 returns a random 16-bit integer, the seed a dialog's CSeq
// counter lazily initializes to on its first local request (RFC 3261
// S. 12.1, Dialog::GetNewLocalSequence in the original UA).
func Seq16() uint32 {
	return rand.Uint32() & 0xffff
}

func compact(s string) string {
	return strings.ReplaceAll(s, "-", "")
}
