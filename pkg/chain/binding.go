package chain

import (
	"bytes"
	_ "embed"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/contracts"
)

//go:embed abi/AnchorChain.json
var minimalABI []byte

const (
	MethodRecord  = "recordResurrection"
	EventRecorded = "ResurrectionRecorded"

	recordSig = "recordResurrection(string,string,string,bytes32,bytes32,string)"
	eventSig  = "ResurrectionRecorded(string,string,string,bytes32,bytes32,string,address,uint256)"
)

// Binding ties the AnchorChain contract interface to a deployed address.
type Binding struct {
	address common.Address
	abi     abi.ABI
	method  abi.Method
	event   abi.Event
}

// MinimalABI returns the built-in contract interface used when a descriptor carries none.
func MinimalABI() []byte {
	return bytes.Clone(minimalABI)
}

// NewBinding parses abiJSON (or the built-in ABI when empty) and checks that
// it exposes the record method and event with the expected shapes.
func NewBinding(address common.Address, abiJSON []byte) (*Binding, error) {
	if len(bytes.TrimSpace(abiJSON)) == 0 {
		abiJSON = minimalABI
	}
	parsed, err := abi.JSON(bytes.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("parse contract abi: %w", err)
	}
	method, ok := parsed.Methods[MethodRecord]
	if !ok {
		return nil, fmt.Errorf("contract abi has no %s method", MethodRecord)
	}
	if method.Sig != recordSig {
		return nil, fmt.Errorf("contract abi method %s does not match %s", method.Sig, recordSig)
	}
	event, ok := parsed.Events[EventRecorded]
	if !ok {
		return nil, fmt.Errorf("contract abi has no %s event", EventRecorded)
	}
	if event.Sig != eventSig {
		return nil, fmt.Errorf("contract abi event %s does not match %s", event.Sig, eventSig)
	}
	if len(event.Inputs) != 8 || !event.Inputs[6].Indexed {
		return nil, fmt.Errorf("contract abi event %s must index only the caller", EventRecorded)
	}
	for i, in := range event.Inputs {
		if i != 6 && in.Indexed {
			return nil, fmt.Errorf("contract abi event %s must index only the caller", EventRecorded)
		}
	}
	return &Binding{address: address, abi: parsed, method: method, event: event}, nil
}

// BindDescriptor builds a Binding from a deployment descriptor.
func BindDescriptor(d *Descriptor) (*Binding, error) {
	return NewBinding(d.ContractAddress(), d.ABI)
}

func (b *Binding) Address() common.Address { return b.address }

// EventID is the topic0 of ResurrectionRecorded logs.
func (b *Binding) EventID() common.Hash { return b.event.ID }

// Selector is the 4-byte method selector of recordResurrection.
func (b *Binding) Selector() []byte { return bytes.Clone(b.method.ID) }

// PackRecord ABI-encodes a recordResurrection call.
func (b *Binding) PackRecord(p contracts.EncodedPacket) ([]byte, error) {
	data, err := b.abi.Pack(MethodRecord,
		p.AgentID,
		p.SourceEmbodimentID,
		p.TargetEmbodimentID,
		[32]byte(p.IdentityCommitment),
		[32]byte(p.MissionCommitment),
		p.Jurisdiction,
	)
	if err != nil {
		return nil, contracts.E(contracts.KindInvalidInput, "chain.pack", err)
	}
	return data, nil
}

// UnpackRecord decodes recordResurrection calldata back into a packet.
func (b *Binding) UnpackRecord(data []byte) (contracts.EncodedPacket, error) {
	if len(data) < 4 || !bytes.Equal(data[:4], b.method.ID) {
		return contracts.EncodedPacket{}, contracts.Errorf(contracts.KindDecode, "chain.unpack", "calldata is not a %s call", MethodRecord)
	}
	vals, err := b.method.Inputs.Unpack(data[4:])
	if err != nil {
		return contracts.EncodedPacket{}, contracts.E(contracts.KindDecode, "chain.unpack", err)
	}
	var (
		out  contracts.EncodedPacket
		ok   = len(vals) == 6
		id   [32]byte
		mssn [32]byte
	)
	if ok {
		out.AgentID, ok = vals[0].(string)
	}
	if ok {
		out.SourceEmbodimentID, ok = vals[1].(string)
	}
	if ok {
		out.TargetEmbodimentID, ok = vals[2].(string)
	}
	if ok {
		id, ok = vals[3].([32]byte)
	}
	if ok {
		mssn, ok = vals[4].([32]byte)
	}
	if ok {
		out.Jurisdiction, ok = vals[5].(string)
	}
	if !ok {
		return contracts.EncodedPacket{}, contracts.Errorf(contracts.KindDecode, "chain.unpack", "unexpected %s argument types", MethodRecord)
	}
	out.IdentityCommitment = common.Hash(id)
	out.MissionCommitment = common.Hash(mssn)
	return out, nil
}

// DecodeLog decodes a ResurrectionRecorded log. Failures carry DecodeError kind.
func (b *Binding) DecodeLog(l types.Log) (contracts.NotarizationEvent, error) {
	const op = "chain.decode_log"
	if len(l.Topics) == 0 || l.Topics[0] != b.event.ID {
		return contracts.NotarizationEvent{}, contracts.Errorf(contracts.KindDecode, op, "log %s#%d is not a %s event", l.TxHash.Hex(), l.Index, EventRecorded)
	}
	if len(l.Topics) < 2 {
		return contracts.NotarizationEvent{}, contracts.Errorf(contracts.KindDecode, op, "log %s#%d is missing the caller topic", l.TxHash.Hex(), l.Index)
	}
	vals, err := b.event.Inputs.Unpack(l.Data)
	if err != nil {
		return contracts.NotarizationEvent{}, contracts.E(contracts.KindDecode, op, fmt.Errorf("log %s#%d: %w", l.TxHash.Hex(), l.Index, err))
	}

	ev := contracts.NotarizationEvent{
		Caller:      common.BytesToAddress(l.Topics[1].Bytes()),
		BlockNumber: l.BlockNumber,
		TxHash:      l.TxHash,
		LogIndex:    l.Index,
	}
	var (
		ok        = len(vals) == 7
		id, mssn  [32]byte
		blockTime *big.Int
	)
	if ok {
		ev.AgentID, ok = vals[0].(string)
	}
	if ok {
		ev.SourceEmbodimentID, ok = vals[1].(string)
	}
	if ok {
		ev.TargetEmbodimentID, ok = vals[2].(string)
	}
	if ok {
		id, ok = vals[3].([32]byte)
	}
	if ok {
		mssn, ok = vals[4].([32]byte)
	}
	if ok {
		ev.Jurisdiction, ok = vals[5].(string)
	}
	if ok {
		blockTime, ok = vals[6].(*big.Int)
	}
	if !ok || blockTime == nil || !blockTime.IsUint64() {
		return contracts.NotarizationEvent{}, contracts.Errorf(contracts.KindDecode, op, "log %s#%d has unexpected field types", l.TxHash.Hex(), l.Index)
	}
	ev.IdentityCommitment = common.Hash(id)
	ev.MissionCommitment = common.Hash(mssn)
	ev.BlockTime = blockTime.Uint64()
	return ev, nil
}

// EncodeEvent produces the topics and data the contract emits for a record
// call by caller at blockTime.
func (b *Binding) EncodeEvent(p contracts.EncodedPacket, caller common.Address, blockTime uint64) ([]common.Hash, []byte, error) {
	data, err := b.event.Inputs.NonIndexed().Pack(
		p.AgentID,
		p.SourceEmbodimentID,
		p.TargetEmbodimentID,
		[32]byte(p.IdentityCommitment),
		[32]byte(p.MissionCommitment),
		p.Jurisdiction,
		new(big.Int).SetUint64(blockTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("pack %s: %w", EventRecorded, err)
	}
	topics := []common.Hash{b.event.ID, common.BytesToHash(caller.Bytes())}
	return topics, data, nil
}
