package model

import "time"

// Polarity states which direction a sub-index's inputs point after
// normalization: RISK means higher normalized values increase vulnerability,
// CAPACITY means they reduce it.
type Polarity string

const (
	PolarityRisk     Polarity = "RISK"
	PolarityCapacity Polarity = "CAPACITY"
)

// SubIndexKey names one of the four fixed sub-indices.
type SubIndexKey string

const (
	SubIndexTemperature   SubIndexKey = "temperature_risk"
	SubIndexPrecipitation SubIndexKey = "precipitation_risk"
	SubIndexEconomic      SubIndexKey = "economic_resilience"
	SubIndexSocial        SubIndexKey = "social_resilience"
)

// SubIndexKeys lists the sub-indices in report order.
var SubIndexKeys = []SubIndexKey{
	SubIndexTemperature,
	SubIndexPrecipitation,
	SubIndexEconomic,
	SubIndexSocial,
}

// SubIndexScore is the aggregated value of one sub-index for one city.
// Value is nil when no component input was available; ComponentsUsed counts
// the inputs that actually contributed.
type SubIndexScore struct {
	Value              *float64 `json:"value"`
	ComponentsUsed     int      `json:"components_used"`
	ComponentsExpected int      `json:"components_expected"`
}

// CategoryLabel is the categorical vulnerability bucket assigned from the
// composite score.
type CategoryLabel string

const (
	CategoryLow      CategoryLabel = "Low"
	CategoryModerate CategoryLabel = "Moderate"
	CategoryHigh     CategoryLabel = "High"
	CategorySevere   CategoryLabel = "Severe"
)

// VulnerabilityRecord is the scored output for one admitted city. Records
// are immutable once a batch completes; reruns produce a new RunID rather
// than mutating prior output.
type VulnerabilityRecord struct {
	City              string                        `json:"city"`
	CountryCode       string                        `json:"country_code"`
	Rank              int                           `json:"rank"`
	Score             float64                       `json:"score"`
	Category          CategoryLabel                 `json:"category"`
	ClimateRisk       float64                       `json:"climate_risk"`
	AdaptiveCapacity  float64                       `json:"adaptive_capacity"`
	SubIndices        map[SubIndexKey]SubIndexScore `json:"sub_indices"`
	ReducedConfidence bool                          `json:"reduced_confidence"`

	// Sources is the gate's completeness report for this city, carried on
	// the record so a score is never separated from the data quality behind
	// it.
	Sources []SourceAssessment `json:"sources"`

	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
}

// ExclusionReason states why a city appears in the exclusion report instead
// of the ranking.
type ExclusionReason string

const (
	// ExclusionNoUsableSources: the gate found no source in a usable status.
	ExclusionNoUsableSources ExclusionReason = "no_usable_sources"
	// ExclusionInsufficientComponents: a required score group had zero
	// present components. Component names the group.
	ExclusionInsufficientComponents ExclusionReason = "insufficient_components"
)

// Exclusion records one city left out of the ranking. Every attempted city
// lands in either Records or Exclusions, never neither.
type Exclusion struct {
	City      string          `json:"city"`
	Reason    ExclusionReason `json:"reason"`
	Component string          `json:"component,omitempty"`
	Detail    string          `json:"detail,omitempty"`
}

// SourceAssessment is the gate's verdict for one city+source pair.
// Completeness is a percentage of expected data points present, 0 when the
// source is missing or unreadable.
type SourceAssessment struct {
	Source       Source       `json:"source"`
	Status       SourceStatus `json:"status"`
	Completeness float64      `json:"completeness"`
	Rows         int          `json:"rows"`
	Detail       string       `json:"detail,omitempty"`
}

// CityQuality bundles a city's per-source assessments with the admission
// decision derived from them.
type CityQuality struct {
	City     string             `json:"city"`
	Admitted bool               `json:"admitted"`
	Sources  []SourceAssessment `json:"sources"`
}

// CorrelationPair is one entry of the batch correlation summary. Defined is
// false when fewer than two cities had both members present, in which case R
// is meaningless and callers must not read it.
type CorrelationPair struct {
	X       string  `json:"x"`
	Y       string  `json:"y"`
	R       float64 `json:"r"`
	N       int     `json:"n"`
	Defined bool    `json:"defined"`
}

// BatchResult is the full output of one pipeline run.
type BatchResult struct {
	RunID        string                `json:"run_id"`
	GeneratedAt  time.Time             `json:"generated_at"`
	Attempted    int                   `json:"attempted"`
	Records      []VulnerabilityRecord `json:"records"`
	Exclusions   []Exclusion           `json:"exclusions"`
	Quality      []CityQuality         `json:"quality"`
	Correlations []CorrelationPair     `json:"correlations"`
}
