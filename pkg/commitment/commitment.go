// Package commitment canonicalizes resurrection commitment inputs into the
// fixed 32-byte values stored on the ledger.
//
// The rule is deliberately simple so that any submitter and any verifier
// derive identical bytes:
//
//   - "0x" followed by exactly 64 hex digits is decoded literally;
//   - any other string is hashed with Keccak-256 over its UTF-8 bytes.
//
// Surrounding whitespace is trimmed before either rule applies. A value that
// has the fixed-length shape but contains non-hex digits is rejected, never
// truncated or padded.
package commitment

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"

	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/contracts"
)

// Size is the commitment length in bytes.
const Size = 32

const hexLiteralLen = 2 + 2*Size

// Encode derives the commitment for a raw string input.
func Encode(value string) (common.Hash, error) {
	v := strings.TrimSpace(value)
	if strings.HasPrefix(v, "0x") && len(v) == hexLiteralLen {
		raw, err := hex.DecodeString(v[2:])
		if err != nil {
			return common.Hash{}, contracts.Errorf(contracts.KindInvalidInput, "commitment.encode",
				"fixed-length hex commitment %q is malformed: %v", v, err)
		}
		return common.BytesToHash(raw), nil
	}
	return Keccak256([]byte(v)), nil
}

// EncodeValue accepts the input kinds a caller may hold: a string, a 32-byte
// array, a common.Hash, or a byte slice of exactly 32 bytes. Anything else
// fails with InvalidInputKind.
func EncodeValue(value any) (common.Hash, error) {
	switch v := value.(type) {
	case string:
		return Encode(v)
	case common.Hash:
		return v, nil
	case [Size]byte:
		return common.Hash(v), nil
	case []byte:
		if len(v) != Size {
			return common.Hash{}, contracts.Errorf(contracts.KindInvalidInput, "commitment.encode",
				"byte commitment must be %d bytes, got %d", Size, len(v))
		}
		return common.BytesToHash(v), nil
	default:
		return common.Hash{}, contracts.Errorf(contracts.KindInvalidInput, "commitment.encode",
			"unsupported commitment input type %T", value)
	}
}

// MustEncode is Encode for inputs known to be valid (tests, fixtures).
func MustEncode(value string) common.Hash {
	h, err := Encode(value)
	if err != nil {
		panic(err)
	}
	return h
}

// EncodePacket encodes both commitments of p. The error names the field that failed.
func EncodePacket(p contracts.ResurrectionPacket) (contracts.EncodedPacket, error) {
	identity, err := Encode(p.IdentityCommitment)
	if err != nil {
		return contracts.EncodedPacket{}, fmt.Errorf("identityCommitment: %w", err)
	}
	mission, err := Encode(p.MissionCommitment)
	if err != nil {
		return contracts.EncodedPacket{}, fmt.Errorf("missionCommitment: %w", err)
	}
	return contracts.EncodedPacket{
		AgentID:            p.AgentID,
		SourceEmbodimentID: p.SourceEmbodimentID,
		TargetEmbodimentID: p.TargetEmbodimentID,
		IdentityCommitment: identity,
		MissionCommitment:  mission,
		Jurisdiction:       p.Jurisdiction,
	}, nil
}

// Keccak256 is the ledger-native hash (legacy Keccak, not NIST SHA3-256).
func Keccak256(data []byte) common.Hash {
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write(data)
	var out common.Hash
	h.Sum(out[:0])
	return out
}
