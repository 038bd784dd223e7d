package rules

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/brandguard/brandguard/core/infra/schema"
)

// V1RuleSet is the legacy flat rule representation. It is only ever a
// migration input.
type V1RuleSet struct {
	ProhibitedClaims    []string    `json:"prohibitedClaims,omitempty"`
	Tone                V1Tone      `json:"tone"`
	LogoUsage           V1LogoUsage `json:"logoUsage"`
	Sensitive           V1Sensitive `json:"sensitive"`
	RequiredDisclaimers []string    `json:"requiredDisclaimers,omitempty"`
}

type V1Tone struct {
	Allowed     []string `json:"allowed,omitempty"`
	BannedWords []string `json:"bannedWords,omitempty"`
}

type V1LogoUsage struct {
	AllowedPositions   []string `json:"allowedPositions,omitempty"`
	BannedBackgrounds  []string `json:"bannedBackgrounds,omitempty"`
	InvertOnDark       *bool    `json:"invertOnDark,omitempty"`
	MinClearSpaceRatio *float64 `json:"minClearSpaceRatio,omitempty"`
}

type V1Sensitive struct {
	DisallowCategories []string `json:"disallowCategories,omitempty"`
	MinAudienceAge     *int     `json:"minAudienceAge,omitempty"`
}

// TonePresets maps legacy tone names onto trait intervals.
var TonePresets = map[string]Traits{
	"formal": {
		Formality: Range{4, 5}, Warmth: Range{2, 3}, Energy: Range{2, 3}, Humor: Range{1, 1}, Confidence: Range{4, 5},
	},
	"friendly": {
		Formality: Range{2, 3}, Warmth: Range{4, 5}, Energy: Range{3, 4}, Humor: Range{2, 3}, Confidence: Range{3, 4},
	},
	"playful": {
		Formality: Range{1, 2}, Warmth: Range{4, 5}, Energy: Range{4, 5}, Humor: Range{3, 5}, Confidence: Range{3, 4},
	},
	"authoritative": {
		Formality: Range{4, 5}, Warmth: Range{2, 3}, Energy: Range{3, 4}, Humor: Range{1, 1}, Confidence: Range{5, 5},
	},
}

// DecodeV1 converts a parsed body into the typed legacy shape.
func DecodeV1(value any) (*V1RuleSet, error) {
	normalized, err := schema.Normalize(value)
	if err != nil {
		return nil, err
	}
	if _, ok := normalized.(map[string]any); !ok {
		return nil, fmt.Errorf("v1 rule set must be an object")
	}
	data, err := json.Marshal(normalized)
	if err != nil {
		return nil, err
	}
	var v1 V1RuleSet
	if err := json.Unmarshal(data, &v1); err != nil {
		return nil, fmt.Errorf("decode v1 rule set: %w", err)
	}
	return &v1, nil
}

// MigrateTraits widens the default intervals by every recognised tone preset.
// Unknown tone names are ignored.
func MigrateTraits(tones []string) Traits {
	out := DefaultTraits
	for _, tone := range tones {
		preset, ok := TonePresets[strings.ToLower(strings.TrimSpace(tone))]
		if !ok {
			continue
		}
		out.Formality = out.Formality.Union(preset.Formality)
		out.Warmth = out.Warmth.Union(preset.Warmth)
		out.Energy = out.Energy.Union(preset.Energy)
		out.Humor = out.Humor.Union(preset.Humor)
		out.Confidence = out.Confidence.Union(preset.Confidence)
	}
	return out
}

// Migrate translates a legacy rule set into a V2-shaped document. The result
// is not validated here; run it through Validate.
func Migrate(v1 V1RuleSet) map[string]any {
	traits := MigrateTraits(v1.Tone.Allowed)
	traitDoc := map[string]any{}
	for name, r := range traits.Named() {
		traitDoc[name] = []int{r.Lo(), r.Hi()}
	}

	clearSpace := DefaultMinClearSpaceX
	if v1.LogoUsage.MinClearSpaceRatio != nil {
		clearSpace = min(max(*v1.LogoUsage.MinClearSpaceRatio, 0), 5)
	}

	grid := migratePlacements(v1.LogoUsage.AllowedPositions)

	disclaimers := make([]map[string]any, 0, len(v1.RequiredDisclaimers))
	for _, text := range v1.RequiredDisclaimers {
		if strings.TrimSpace(text) == "" {
			continue
		}
		disclaimers = append(disclaimers, map[string]any{
			"template": text,
			"regions":  []string{},
			"channels": []string{},
		})
	}

	policies := map[string]any{}
	for _, category := range v1.Sensitive.DisallowCategories {
		policy := map[string]any{
			"allowed":             string(AllowanceDisallowed),
			"regions":             []string{},
			"channels":            []string{},
			"requiresLegalReview": false,
		}
		if v1.Sensitive.MinAudienceAge != nil {
			policy["minAudienceAge"] = min(max(*v1.Sensitive.MinAudienceAge, 0), MaxAudienceAge)
		}
		policies[category] = policy
	}

	return map[string]any{
		"voice": map[string]any{
			"traits": traitDoc,
			"lexicon": map[string]any{
				"allowedWords":   []string{},
				"bannedWords":    orEmpty(v1.Tone.BannedWords),
				"bannedPatterns": orEmpty(v1.ProhibitedClaims),
				"ctaWhitelist":   []string{},
				"readability":    DefaultReadability,
			},
		},
		"logoUsage": map[string]any{
			"minSizePx":       Size{},
			"minClearSpaceX":  clearSpace,
			"aspectRatioLock": true,
			"placementGrid":   grid,
			"background":      DefaultBackground,
		},
		"claims": map[string]any{
			"bannedPatterns":         orEmpty(v1.ProhibitedClaims),
			"requiredSubstantiation": []any{},
			"disclaimers":            disclaimers,
		},
		"sensitive": map[string]any{
			"policies": policies,
		},
		"accessibility": map[string]any{
			"wcag": DefaultWCAG,
		},
		"platformRules": map[string]any{},
		"governance": map[string]any{
			"severityDefault": string(SeverityHardFail),
			"checks":          []any{},
		},
	}
}

// migratePlacements keeps the recognised V1 positions in first-seen order,
// without repeats. No usable position means the full grid.
func migratePlacements(positions []string) []string {
	seen := make(map[Placement]bool, len(AllPlacements))
	out := make([]string, 0, len(AllPlacements))
	for _, raw := range positions {
		p := Placement(strings.ToLower(strings.TrimSpace(raw)))
		if seen[p] || !isPlacement(p) {
			continue
		}
		seen[p] = true
		out = append(out, string(p))
	}
	if len(out) > 0 {
		return out
	}
	for _, p := range AllPlacements {
		out = append(out, string(p))
	}
	return out
}

func isPlacement(p Placement) bool {
	for _, known := range AllPlacements {
		if p == known {
			return true
		}
	}
	return false
}

// MigrateAndValidate runs Migrate and then Validate on its output.
func MigrateAndValidate(v1 V1RuleSet) (*RuleSet, error) {
	return Validate(Migrate(v1))
}

func orEmpty(list []string) []string {
	out := make([]string, len(list))
	copy(out, list)
	return out
}
