package codec

import "fmt"

// VariantState is the state of the per-context protocol variant machine.
type VariantState int

const (
	// VariantUnknown decodes everything as the standard grammar.
	VariantUnknown VariantState = iota
	// VariantLearned is reached on the first successful characteristic
	// response and kept until the context is discarded.
	VariantLearned
)

func (s VariantState) String() string {
	if s == VariantLearned {
		return "learned"
	}
	return "unknown"
}

// ProtocolVariant is what a context has learned about its peer's dialect.
type ProtocolVariant struct {
	State   VariantState
	Version uint8
	Vendor  uint8

	// ExtendedMeterDigits decodes meter totals with all eight BCD digits.
	ExtendedMeterDigits bool
	// OrdinalModeTable decodes the ventilation mode byte as an ordinal.
	OrdinalModeTable bool
}

// Learned reports whether the variant has left the unknown state.
func (v ProtocolVariant) Learned() bool { return v.State == VariantLearned }

func (v ProtocolVariant) String() string {
	return fmt.Sprintf("%s v%d vendor 0x%02X", v.State, v.Version, v.Vendor)
}
