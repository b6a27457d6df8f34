package ledger

import (
	"encoding/base64"
	"fmt"
)

// FTMetadataSpec é a única versão de metadados aceita
const FTMetadataSpec = "ft-1.0.0"

// Metadata descreve o token (NEP-148)
type Metadata struct {
	Spec          string  `json:"spec"`
	Name          string  `json:"name"`
	Symbol        string  `json:"symbol"`
	Icon          *string `json:"icon,omitempty"`
	Reference     *string `json:"reference,omitempty"`
	ReferenceHash *string `json:"reference_hash,omitempty"` // base64 de 32 bytes
	Decimals      uint8   `json:"decimals"`
}

// Validate confere spec, e a consistência entre reference e reference_hash
func (m Metadata) Validate() error {
	if m.Spec != FTMetadataSpec {
		return fmt.Errorf("%w: spec must be %s", ErrInvalidMetadata, FTMetadataSpec)
	}
	if (m.Reference == nil) != (m.ReferenceHash == nil) {
		return fmt.Errorf("%w: reference and reference_hash must be set together", ErrInvalidMetadata)
	}
	if m.ReferenceHash != nil {
		raw, err := base64.StdEncoding.DecodeString(*m.ReferenceHash)
		if err != nil || len(raw) != 32 {
			return fmt.Errorf("%w: reference_hash has to be 32 bytes", ErrInvalidMetadata)
		}
	}
	return nil
}
