// Package api defines the request, response and domain types shared by
// the pricing service and its clients.
package api

import (
	"encoding/json"
)

// LineItem is one budget line as submitted by the client. Fields the
// service does not know about are kept in Extra and echoed back
// untouched, so the frontend can round-trip its own columns.
type LineItem struct {
	Description  string
	Quantity     float64
	CurrentPrice float64
	Extra        map[string]json.RawMessage
}

// UnmarshalJSON splits the known fields from the pass-through ones.
func (li *LineItem) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	li.fromMap(raw)
	return nil
}

// fromMap consumes the known keys from raw and keeps the rest as
// pass-through fields.
func (li *LineItem) fromMap(raw map[string]json.RawMessage) {
	if v, ok := raw["description"]; ok {
		_ = json.Unmarshal(v, &li.Description)
		delete(raw, "description")
	}
	if v, ok := raw["quantity"]; ok {
		li.Quantity = asFloat(v)
		delete(raw, "quantity")
	}
	if v, ok := raw["currentPrice"]; ok {
		li.CurrentPrice = asFloat(v)
		delete(raw, "currentPrice")
	}
	if len(raw) > 0 {
		li.Extra = raw
	}
}

// MarshalJSON re-merges the pass-through fields with the known ones.
func (li LineItem) MarshalJSON() ([]byte, error) {
	return json.Marshal(li.asMap())
}

func (li LineItem) asMap() map[string]any {
	out := make(map[string]any, len(li.Extra)+3)
	for k, v := range li.Extra {
		out[k] = v
	}
	out["description"] = li.Description
	out["quantity"] = li.Quantity
	out["currentPrice"] = li.CurrentPrice
	return out
}

// asFloat decodes a JSON value as a number, tolerating quoted numerics.
// Unparseable values become 0 rather than failing the request.
func asFloat(raw json.RawMessage) float64 {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if err := json.Unmarshal([]byte(s), &f); err == nil {
			return f
		}
	}
	return 0
}

// MatchView exposes one retrieved historical item with its own derived
// economics, for transparency next to the aggregate estimate. Wire keys
// match the historical index metadata.
type MatchView struct {
	Code          string  `json:"code"`
	Desc          string  `json:"desc"`
	HoursUnit     float64 `json:"horas_unit"`
	MaterialUnit  float64 `json:"material_unit"`
	ContrataUnit  float64 `json:"contrata_unit"`
	ManoObraUnit  float64 `json:"mano_obra_unit"`
	CosteUnit     float64 `json:"coste_unit"`
	VentaUnit     float64 `json:"venta_unit"`
	Supplier      string  `json:"supplier,omitempty"`
	CalcPrice     float64 `json:"calc_price"`
	ProfitUnit    float64 `json:"profit_unit"`
	RentHour      float64 `json:"rentab_hora"`
	SimilarityPct float64 `json:"similarityPct"`
}

// EnrichedItem is a LineItem plus everything the estimator derived for
// it. The embedded LineItem (including pass-through fields) is
// flattened into the JSON object.
type EnrichedItem struct {
	LineItem

	OptimizedPrice float64     `json:"optimizedPrice"`
	HoursUnit      float64     `json:"hoursUnit"`
	MaterialUnit   float64     `json:"materialUnit"`
	ContrataUnit   float64     `json:"contrataUnit"`
	ManoObraUnit   float64     `json:"manoObraUnit"`
	CostTotalUnit  float64     `json:"costTotalUnit"`
	VentaHistUnit  float64     `json:"ventaHistUnit"`
	BenefHistUnit  float64     `json:"benefHistUnit"`
	ProfitUnit     float64     `json:"profitUnit"`
	RentHour       float64     `json:"rentHour"`
	PriceStdDev    float64     `json:"priceStdDev"`
	Savings        float64     `json:"savings"`
	Supplier       string      `json:"supplier"`
	Similar        []MatchView `json:"similar"`
	KUsed          int         `json:"k_used"`
}

// MarshalJSON flattens the line item and the derived fields into a
// single object. Map marshalling sorts keys, so output is stable.
func (e EnrichedItem) MarshalJSON() ([]byte, error) {
	out := e.LineItem.asMap()
	out["optimizedPrice"] = e.OptimizedPrice
	out["hoursUnit"] = e.HoursUnit
	out["materialUnit"] = e.MaterialUnit
	out["contrataUnit"] = e.ContrataUnit
	out["manoObraUnit"] = e.ManoObraUnit
	out["costTotalUnit"] = e.CostTotalUnit
	out["ventaHistUnit"] = e.VentaHistUnit
	out["benefHistUnit"] = e.BenefHistUnit
	out["profitUnit"] = e.ProfitUnit
	out["rentHour"] = e.RentHour
	out["priceStdDev"] = e.PriceStdDev
	out["savings"] = e.Savings
	out["supplier"] = e.Supplier
	similar := e.Similar
	if similar == nil {
		similar = []MatchView{}
	}
	out["similar"] = similar
	out["k_used"] = e.KUsed
	return json.Marshal(out)
}

// UnmarshalJSON restores the derived fields and leaves only genuine
// pass-through keys in Extra, so marshal and unmarshal round-trip.
func (e *EnrichedItem) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	derived := map[string]*float64{
		"optimizedPrice": &e.OptimizedPrice,
		"hoursUnit":      &e.HoursUnit,
		"materialUnit":   &e.MaterialUnit,
		"contrataUnit":   &e.ContrataUnit,
		"manoObraUnit":   &e.ManoObraUnit,
		"costTotalUnit":  &e.CostTotalUnit,
		"ventaHistUnit":  &e.VentaHistUnit,
		"benefHistUnit":  &e.BenefHistUnit,
		"profitUnit":     &e.ProfitUnit,
		"rentHour":       &e.RentHour,
		"priceStdDev":    &e.PriceStdDev,
		"savings":        &e.Savings,
	}
	for key, dst := range derived {
		if v, ok := raw[key]; ok {
			*dst = asFloat(v)
			delete(raw, key)
		}
	}
	if v, ok := raw["supplier"]; ok {
		_ = json.Unmarshal(v, &e.Supplier)
		delete(raw, "supplier")
	}
	if v, ok := raw["similar"]; ok {
		_ = json.Unmarshal(v, &e.Similar)
		delete(raw, "similar")
	}
	if v, ok := raw["k_used"]; ok {
		e.KUsed = int(asFloat(v))
		delete(raw, "k_used")
	}
	e.LineItem.fromMap(raw)
	return nil
}

// UsageInfo reports monthly quota consumption; present only when a
// usage counter is configured.
type UsageInfo struct {
	Current int `json:"current"`
	Max     int `json:"max"`
}

// BatchResult is the quantity-weighted roll-up over all items.
type BatchResult struct {
	Items          []EnrichedItem `json:"items"`
	TotalOriginal  float64        `json:"totalOriginal"`
	TotalOptimized float64        `json:"totalOptimized"`
	TotalSavings   float64        `json:"totalSavings"`
	SavingsPercent float64        `json:"savingsPercent"`
	TotalHours     float64        `json:"totalHours"`
	TotalProfit    float64        `json:"totalProfit"`
	ProfitPerHour  float64        `json:"profitPerHour"`
	ElapsedSec     float64        `json:"elapsedSec"`
	Usage          *UsageInfo     `json:"usage,omitempty"`
}

// EstimateRequest is the body of POST /api/v1/estimate. Rate and margin
// are pointers so "absent" can fall back to server defaults.
type EstimateRequest struct {
	Items           []LineItem `json:"items"`
	TargetRate      *float64   `json:"targetRate,omitempty"`
	MaterialsMargin *float64   `json:"materialsMargin,omitempty"`
}
