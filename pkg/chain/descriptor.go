package chain

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed abi/descriptor.schema.json
var descriptorSchema string

const descriptorSchemaURL = "https://anchorchain.schemas.local/deployment.schema.json"

// SupportedDescriptorVersions is the schema_version range this build reads.
const SupportedDescriptorVersions = "^1"

// Descriptor is the deployment artifact written when the contract is deployed:
// at minimum the contract address, usually the ABI.
type Descriptor struct {
	Address       string          `json:"address,omitempty"`
	LegacyAddress string          `json:"contract_address,omitempty"`
	ABI           json.RawMessage `json:"abi,omitempty"`
	ChainID       int64           `json:"chain_id,omitempty"`
	BlockNumber   uint64          `json:"block_number,omitempty"`
	TxHash        string          `json:"tx_hash,omitempty"`
	RPCURL        string          `json:"rpc_url,omitempty"`
	SchemaVersion string          `json:"schema_version,omitempty"`
}

// ContractAddress returns the deployed address, preferring "address" over the
// legacy "contract_address" key.
func (d *Descriptor) ContractAddress() common.Address {
	if d.Address != "" {
		return common.HexToAddress(d.Address)
	}
	return common.HexToAddress(d.LegacyAddress)
}

// LoadDescriptor reads and validates a descriptor file.
func LoadDescriptor(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("read deployment descriptor: %w", err)
	}
	d, err := ParseDescriptor(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// ParseDescriptor validates data against the descriptor schema and decodes it.
func ParseDescriptor(data []byte) (*Descriptor, error) {
	schema, err := compileDescriptorSchema()
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("descriptor is not valid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("descriptor schema validation failed: %w", err)
	}

	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode descriptor: %w", err)
	}

	if d.SchemaVersion != "" {
		constraint, err := semver.NewConstraint(SupportedDescriptorVersions)
		if err != nil {
			return nil, err
		}
		v, err := semver.NewVersion(d.SchemaVersion)
		if err != nil {
			return nil, fmt.Errorf("invalid descriptor schema_version %s: %w", d.SchemaVersion, err)
		}
		if !constraint.Check(v) {
			return nil, fmt.Errorf("descriptor schema_version %s is not supported (want %s)", d.SchemaVersion, SupportedDescriptorVersions)
		}
	}
	return &d, nil
}

func compileDescriptorSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(descriptorSchemaURL, strings.NewReader(descriptorSchema)); err != nil {
		return nil, fmt.Errorf("descriptor schema load failed: %w", err)
	}
	compiled, err := c.Compile(descriptorSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("descriptor schema compile failed: %w", err)
	}
	return compiled, nil
}
