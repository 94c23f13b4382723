// Package vectorindex retrieves historical line items by embedding
// similarity.
package vectorindex

import (
	"context"

	"github.com/carlosmorenolosa/corsam-pricing/pkg/robust"
)

// Metadata is the unit-economics bag attached to an indexed historical
// item. Numeric dimensions are optional: the index stores 0 for "no
// data", so 0, absent and unparseable all become nil here and stay out
// of the aggregation.
type Metadata struct {
	Code     string
	DescPre  string
	DescPpy  string
	Supplier string

	Hours         *float64 // horas_unit
	Material      *float64 // material_unit
	Subcontract   *float64 // contrata_unit
	Labor         *float64 // mano_obra_unit
	Cost          *float64 // coste_unit
	Sale          *float64 // venta_unit
	Profitability *float64 // rentabilidad
}

// Match is one similarity hit, score in [0,1], highest first.
type Match struct {
	Score    float64
	Metadata Metadata
}

// Index answers nearest-neighbor queries over the historical corpus.
// Implementations return at most topK matches sorted by descending
// score.
type Index interface {
	Query(ctx context.Context, vector []float64, topK int) ([]Match, error)
}

// ParseMetadata converts a raw metadata object from the wire into
// Metadata, absorbing malformed values as missing.
func ParseMetadata(raw map[string]any) Metadata {
	return Metadata{
		Code:          asString(raw["code"]),
		DescPre:       asString(raw["desc_pre"]),
		DescPpy:       asString(raw["desc_ppy"]),
		Supplier:      asString(raw["supplier"]),
		Hours:         optional(raw["horas_unit"]),
		Material:      optional(raw["material_unit"]),
		Subcontract:   optional(raw["contrata_unit"]),
		Labor:         optional(raw["mano_obra_unit"]),
		Cost:          optional(raw["coste_unit"]),
		Sale:          optional(raw["venta_unit"]),
		Profitability: optional(raw["rentabilidad"]),
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// optional maps "0 or absent or garbage" to nil once, at ingestion,
// so downstream code never re-checks falsiness.
func optional(v any) *float64 {
	f := robust.Num(v)
	if f == 0 {
		return nil
	}
	return &f
}

// Value unwraps an optional dimension, with 0 for missing.
func Value(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
