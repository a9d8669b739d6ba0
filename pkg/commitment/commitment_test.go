package commitment

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/contracts"
)

func TestEncode_HashesPlainText(t *testing.T) {
	got, err := Encode("abc")
	require.NoError(t, err)
	assert.Equal(t, "0x4e03657aea45a94fc7d47ba826c8d667c0d1e6e33a64a036ec44f58fa12d6c45", got.Hex())

	empty, err := Encode("")
	require.NoError(t, err)
	assert.Equal(t, "0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470", empty.Hex())
}

func TestEncode_DecodesHexLiteral(t *testing.T) {
	lit := "0x" + strings.Repeat("ab", 32)
	got, err := Encode(lit)
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash(lit), got)

	upper := "0x" + strings.Repeat("AB", 32)
	got, err = Encode(upper)
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash(lit), got, "hex digits are case-insensitive")
}

func TestEncode_TrimsWhitespace(t *testing.T) {
	a, err := Encode("  mission_v1\n")
	require.NoError(t, err)
	b, err := Encode("mission_v1")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEncode_ShortHexIsHashed(t *testing.T) {
	got, err := Encode("0x1234")
	require.NoError(t, err)
	assert.Equal(t, Keccak256([]byte("0x1234")), got)
}

func TestEncode_RejectsMalformedFixedLengthHex(t *testing.T) {
	bad := "0x" + strings.Repeat("zz", 32)
	_, err := Encode(bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, contracts.ErrInvalidInput)
}

func TestEncodeValue_Kinds(t *testing.T) {
	var arr [32]byte
	arr[31] = 7

	h, err := EncodeValue(arr)
	require.NoError(t, err)
	assert.Equal(t, byte(7), h[31])

	h, err = EncodeValue(arr[:])
	require.NoError(t, err)
	assert.Equal(t, byte(7), h[31])

	_, err = EncodeValue([]byte{1, 2, 3})
	assert.ErrorIs(t, err, contracts.ErrInvalidInput)

	_, err = EncodeValue(42)
	assert.ErrorIs(t, err, contracts.ErrInvalidInput)

	h, err = EncodeValue("agent_nova-001")
	require.NoError(t, err)
	assert.Equal(t, MustEncode("agent_nova-001"), h)
}

func TestEncodePacket_NamesFailingField(t *testing.T) {
	p := contracts.ResurrectionPacket{
		AgentID:            "nova-001",
		IdentityCommitment: "agent_nova-001",
		MissionCommitment:  "0x" + strings.Repeat("g", 64),
	}
	_, err := EncodePacket(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missionCommitment")
	assert.Equal(t, contracts.KindInvalidInput, contracts.KindOf(err))
}

func TestEncodePacket_Deterministic(t *testing.T) {
	p := contracts.ResurrectionPacket{
		AgentID:            "nova-001",
		SourceEmbodimentID: "edge-A",
		TargetEmbodimentID: "cloud-B",
		IdentityCommitment: "agent_nova-001",
		MissionCommitment:  "mission_v1",
		Jurisdiction:       contracts.DefaultJurisdiction,
	}
	a, err := EncodePacket(p)
	require.NoError(t, err)
	b, err := EncodePacket(p)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, contracts.DefaultJurisdiction, a.Jurisdiction)
}
