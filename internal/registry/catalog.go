package registry

import (
	"sort"
	"strings"

	"github.com/urbanrisk-labs/climate-cli/internal/model"
)

// InputKind states how an input's raw value is produced before
// cross-sectional normalization.
type InputKind string

const (
	// KindComposite: mean of the components' normalized values. A single
	// component degenerates to that component's normalized value.
	KindComposite InputKind = "composite"
	// KindWeather: derived from the city's daily weather series upstream;
	// Components is empty.
	KindWeather InputKind = "weather"
	// KindShares: one minus the Herfindahl concentration of the components'
	// raw share values, normalized afterwards.
	KindShares InputKind = "shares"
)

// Component is one harmonized indicator code consumed by an input. Invert
// flips a risk-direction value (1 - x) before normalization; PercentScale
// rescales a 0-100 value to 0-1 first so the flip is well defined.
// Normalization itself is affine-invariant, so neither flag is needed on
// capacity-direction values.
type Component struct {
	IndicatorID  string
	Invert       bool
	PercentScale bool
}

// Adjust applies the component's fixed scale and direction corrections to a
// raw value. Runs before cross-sectional normalization.
func (c Component) Adjust(v float64) float64 {
	if c.PercentScale {
		v /= 100
	}
	if c.Invert {
		v = 1 - v
	}
	return v
}

// Input is one aggregator input, identified by its stable key.
type Input struct {
	Key        string
	Kind       InputKind
	Components []Component
}

// SubIndexDef binds a sub-index to its polarity and input list. The four
// definitions below are fixed; polarity and inversion are catalog properties,
// never inferred from data.
type SubIndexDef struct {
	Key      model.SubIndexKey
	Polarity model.Polarity
	Inputs   []Input
}

var catalog = []SubIndexDef{
	{
		Key:      model.SubIndexTemperature,
		Polarity: model.PolarityRisk,
		Inputs: []Input{
			{Key: "temp.heat_extreme_freq", Kind: KindWeather},
			{Key: "temp.variability", Kind: KindWeather},
			{Key: "temp.warming_trend", Kind: KindWeather},
		},
	},
	{
		Key:      model.SubIndexPrecipitation,
		Polarity: model.PolarityRisk,
		Inputs: []Input{
			{Key: "precip.flood_proxy", Kind: KindWeather},
			{Key: "precip.drought_freq", Kind: KindWeather},
			{Key: "precip.variability", Kind: KindWeather},
		},
	},
	{
		Key:      model.SubIndexEconomic,
		Polarity: model.PolarityCapacity,
		Inputs: []Input{
			{Key: "econ.gdp_per_capita", Kind: KindComposite, Components: []Component{
				{IndicatorID: "NY.GDP.PCAP.CD"},
			}},
			{Key: "econ.diversity", Kind: KindShares, Components: []Component{
				{IndicatorID: "NV.AGR.TOTL.ZS"},
				{IndicatorID: "NV.IND.TOTL.ZS"},
				{IndicatorID: "NV.SRV.TOTL.ZS"},
			}},
			{Key: "econ.gender_inclusion", Kind: KindComposite, Components: []Component{
				{IndicatorID: "SL.TLF.CACT.FM.ZS"},
				{IndicatorID: "SE.ENR.PRSC.FM.ZS"},
				{IndicatorID: "SG.GEN.PARL.ZS"},
			}},
		},
	},
	{
		Key:      model.SubIndexSocial,
		Polarity: model.PolarityCapacity,
		Inputs: []Input{
			// The SVI percent variables run in the risk direction, so each is
			// inverted before normalization. Variables already mapped to a
			// standalone input are excluded from the composite.
			{Key: "social.inverse_svi", Kind: KindComposite, Components: []Component{
				{IndicatorID: "EP_POV150", Invert: true, PercentScale: true},
				{IndicatorID: "EP_AGE65", Invert: true, PercentScale: true},
				{IndicatorID: "EP_AGE17", Invert: true, PercentScale: true},
				{IndicatorID: "EP_MUNIT", Invert: true, PercentScale: true},
				{IndicatorID: "EP_LIMENG", Invert: true, PercentScale: true},
			}},
			{Key: "social.health", Kind: KindComposite, Components: []Component{
				{IndicatorID: "SP.DYN.LE00.IN"},
			}},
			{Key: "social.education", Kind: KindComposite, Components: []Component{
				{IndicatorID: "EP_NOHSDP", Invert: true, PercentScale: true},
			}},
			{Key: "social.infrastructure", Kind: KindComposite, Components: []Component{
				{IndicatorID: "EP_NOVEH", Invert: true, PercentScale: true},
			}},
		},
	},
}

// Definitions returns the fixed sub-index catalog in aggregation order.
func Definitions() []SubIndexDef {
	return catalog
}

// Lookup returns the definition for one sub-index key.
func Lookup(key model.SubIndexKey) (SubIndexDef, bool) {
	for _, def := range catalog {
		if def.Key == key {
			return def, true
		}
	}
	return SubIndexDef{}, false
}

// WorldBankCodes lists every national indicator code the catalog consumes,
// sorted and deduplicated. The worldbank sync uses this as its target list.
func WorldBankCodes() []string {
	return componentIDs(func(id string) bool { return strings.Contains(id, ".") })
}

// SVIVariables lists every sub-national vulnerability variable the catalog
// consumes, sorted and deduplicated.
func SVIVariables() []string {
	return componentIDs(func(id string) bool { return !strings.Contains(id, ".") })
}

func componentIDs(keep func(string) bool) []string {
	set := make(map[string]struct{})
	for _, def := range catalog {
		for _, in := range def.Inputs {
			for _, c := range in.Components {
				if keep(c.IndicatorID) {
					set[c.IndicatorID] = struct{}{}
				}
			}
		}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
