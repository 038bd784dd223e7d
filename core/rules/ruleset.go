// Package rules holds the brand rule set model (V2), its validator, the
// request body parser and the migrator from the legacy V1 representation.
//
// Every function in this package is pure: no I/O, no shared state, and inputs
// are never mutated.
package rules

import "encoding/json"

// Trait bounds.
const (
	TraitMin = 1
	TraitMax = 5
)

// MaxDisclaimers caps claims.disclaimers.
const MaxDisclaimers = 200

// MaxAudienceAge bounds sensitive.policies.*.minAudienceAge.
const MaxAudienceAge = 130

// Range is a closed integer interval [lo, hi]. It encodes as a two element array.
type Range [2]int

func (r Range) Lo() int { return r[0] }
func (r Range) Hi() int { return r[1] }

// Union widens r to cover o.
func (r Range) Union(o Range) Range {
	return Range{min(r[0], o[0]), max(r[1], o[1])}
}

// Contains reports whether o lies inside r.
func (r Range) Contains(o Range) bool {
	return r[0] <= o[0] && o[1] <= r[1]
}

type Placement string

const (
	PlacementTopLeft     Placement = "top-left"
	PlacementTopRight    Placement = "top-right"
	PlacementBottomLeft  Placement = "bottom-left"
	PlacementBottomRight Placement = "bottom-right"
	PlacementCenter      Placement = "center"
)

// AllPlacements is the full placement grid, in canonical order.
var AllPlacements = []Placement{
	PlacementTopLeft, PlacementTopRight, PlacementBottomLeft, PlacementBottomRight, PlacementCenter,
}

type SubstantiationType string

const (
	SubstantiationClinicalStudy SubstantiationType = "clinical_study"
	SubstantiationSurvey        SubstantiationType = "survey"
	SubstantiationInternalData  SubstantiationType = "internal_data"
	SubstantiationThirdParty    SubstantiationType = "third_party"
)

type Allowance string

const (
	AllowanceAllowed     Allowance = "allowed"
	AllowanceDisallowed  Allowance = "disallowed"
	AllowanceConditional Allowance = "conditional"
)

type Severity string

const (
	SeverityHardFail Severity = "hard_fail"
	SeveritySoftWarn Severity = "soft_warn"
)

// Traits are the five voice dimensions, each an interval within [1,5].
type Traits struct {
	Formality  Range `json:"formality"`
	Warmth     Range `json:"warmth"`
	Energy     Range `json:"energy"`
	Humor      Range `json:"humor"`
	Confidence Range `json:"confidence"`
}

// Named returns the traits keyed by their wire name.
func (t Traits) Named() map[string]Range {
	return map[string]Range{
		"formality":  t.Formality,
		"warmth":     t.Warmth,
		"energy":     t.Energy,
		"humor":      t.Humor,
		"confidence": t.Confidence,
	}
}

// TraitNames lists the trait wire names in canonical order.
var TraitNames = []string{"formality", "warmth", "energy", "humor", "confidence"}

type Readability struct {
	TargetGrade     float64 `json:"targetGrade"`
	MaxExclamations int     `json:"maxExclamations"`
	AllowEmojis     bool    `json:"allowEmojis"`
}

// Lexicon word lists. BannedPatterns is the canonical name; the legacy
// bannedPhrases key is folded into it during validation.
type Lexicon struct {
	AllowedWords   []string    `json:"allowedWords"`
	BannedWords    []string    `json:"bannedWords"`
	BannedPatterns []string    `json:"bannedPatterns"`
	CTAWhitelist   []string    `json:"ctaWhitelist"`
	Readability    Readability `json:"readability"`
}

type Voice struct {
	Traits  Traits  `json:"traits"`
	Lexicon Lexicon `json:"lexicon"`
}

type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Background struct {
	MinContrastRatio                   float64 `json:"minContrastRatio"`
	InvertThresholdLuminance           float64 `json:"invertThresholdLuminance"`
	MaxBackgroundComplexity            float64 `json:"maxBackgroundComplexity"`
	BlurOverlayRequiredAboveComplexity bool    `json:"blurOverlayRequiredAboveComplexity"`
}

type LogoUsage struct {
	MinSizePx       Size        `json:"minSizePx"`
	MinClearSpaceX  float64     `json:"minClearSpaceX"`
	AspectRatioLock bool        `json:"aspectRatioLock"`
	PlacementGrid   []Placement `json:"placementGrid"`
	Background      Background  `json:"background"`
}

type Substantiation struct {
	Type              SubstantiationType `json:"type"`
	AppliesToPatterns []string           `json:"appliesToPatterns"`
}

type Disclaimer struct {
	Template string   `json:"template"`
	Regions  []string `json:"regions"`
	Channels []string `json:"channels"`
}

type Claims struct {
	BannedPatterns         []string         `json:"bannedPatterns"`
	RequiredSubstantiation []Substantiation `json:"requiredSubstantiation"`
	Disclaimers            []Disclaimer     `json:"disclaimers"`
}

type SensitivePolicy struct {
	Allowed             Allowance `json:"allowed"`
	MinAudienceAge      *int      `json:"minAudienceAge,omitempty"`
	Regions             []string  `json:"regions"`
	Channels            []string  `json:"channels"`
	RequiresLegalReview bool      `json:"requiresLegalReview"`
}

type Sensitive struct {
	Policies map[string]SensitivePolicy `json:"policies"`
}

type WCAG struct {
	MinContrastRatio float64 `json:"minContrastRatio"`
	MinFontSizePx    int     `json:"minFontSizePx"`
	CaptionsRequired bool    `json:"captionsRequired"`
	AltTextRequired  bool    `json:"altTextRequired"`
}

type Accessibility struct {
	WCAG WCAG `json:"wcag"`
}

type GovernanceCheck struct {
	ID              string   `json:"id"`
	Description     string   `json:"description"`
	Severity        Severity `json:"severity,omitempty"`
	Evaluator       string   `json:"evaluator"`
	RemediationHint string   `json:"remediationHint,omitempty"`
}

type Governance struct {
	SeverityDefault Severity          `json:"severityDefault"`
	Checks          []GovernanceCheck `json:"checks"`
}

// RuleSet is a validated V2 brand rule set.
type RuleSet struct {
	Voice         Voice          `json:"voice"`
	LogoUsage     LogoUsage      `json:"logoUsage"`
	Claims        Claims         `json:"claims"`
	Sensitive     Sensitive      `json:"sensitive"`
	Accessibility Accessibility  `json:"accessibility"`
	PlatformRules map[string]any `json:"platformRules"`
	Governance    Governance     `json:"governance"`
}

// Canonical encodes a rule set in its canonical V2 JSON form.
func Canonical(rs *RuleSet) ([]byte, error) {
	return json.Marshal(rs)
}
