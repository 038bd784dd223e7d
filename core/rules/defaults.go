package rules

// DefaultTraits are the broad intervals used when a trait is omitted and as
// the starting point of V1 migration.
var DefaultTraits = Traits{
	Formality:  Range{2, 4},
	Warmth:     Range{3, 5},
	Energy:     Range{2, 4},
	Humor:      Range{1, 2},
	Confidence: Range{3, 5},
}

var (
	DefaultReadability = Readability{TargetGrade: 8, MaxExclamations: 1, AllowEmojis: false}
	DefaultBackground  = Background{
		MinContrastRatio:                   4.5,
		InvertThresholdLuminance:           0.35,
		MaxBackgroundComplexity:            0.25,
		BlurOverlayRequiredAboveComplexity: true,
	}
	DefaultWCAG = WCAG{MinContrastRatio: 4.5, MinFontSizePx: 14, CaptionsRequired: true, AltTextRequired: true}
)

const (
	DefaultMinClearSpaceX  = 1.0
	DefaultSeverity        = SeverityHardFail
	DefaultAspectRatioLock = true
)

// applyDefaults fills omitted fields of a normalized document in place. A
// field is only defaulted when its parent is an object; anything of the wrong
// shape is left for the schema pass to report.
func applyDefaults(doc map[string]any) {
	if voice, ok := child(doc, "voice"); ok {
		if traits, ok := ensure(voice, "traits"); ok {
			for name, r := range DefaultTraits.Named() {
				setDefault(traits, name, rangeValue(r))
			}
		}
		if lex, ok := ensure(voice, "lexicon"); ok {
			for _, key := range []string{"allowedWords", "bannedWords", "ctaWhitelist"} {
				setDefault(lex, key, []any{})
			}
			if !hasKey(lex, "bannedPatterns") && !hasKey(lex, "bannedPhrases") {
				lex["bannedPatterns"] = []any{}
			}
			if read, ok := ensure(lex, "readability"); ok {
				setDefault(read, "targetGrade", DefaultReadability.TargetGrade)
				setDefault(read, "maxExclamations", float64(DefaultReadability.MaxExclamations))
				setDefault(read, "allowEmojis", DefaultReadability.AllowEmojis)
			}
		}
	}

	if logo, ok := child(doc, "logoUsage"); ok {
		if size, ok := ensure(logo, "minSizePx"); ok {
			setDefault(size, "width", float64(0))
			setDefault(size, "height", float64(0))
		}
		setDefault(logo, "minClearSpaceX", DefaultMinClearSpaceX)
		setDefault(logo, "aspectRatioLock", DefaultAspectRatioLock)
		if !hasKey(logo, "placementGrid") {
			grid := make([]any, 0, len(AllPlacements))
			for _, p := range AllPlacements {
				grid = append(grid, string(p))
			}
			logo["placementGrid"] = grid
		}
		if bg, ok := ensure(logo, "background"); ok {
			setDefault(bg, "minContrastRatio", DefaultBackground.MinContrastRatio)
			setDefault(bg, "invertThresholdLuminance", DefaultBackground.InvertThresholdLuminance)
			setDefault(bg, "maxBackgroundComplexity", DefaultBackground.MaxBackgroundComplexity)
			setDefault(bg, "blurOverlayRequiredAboveComplexity", DefaultBackground.BlurOverlayRequiredAboveComplexity)
		}
	}

	if claims, ok := child(doc, "claims"); ok {
		if !hasKey(claims, "bannedPatterns") && !hasKey(claims, "bannedPhrases") {
			claims["bannedPatterns"] = []any{}
		}
		setDefault(claims, "requiredSubstantiation", []any{})
		setDefault(claims, "disclaimers", []any{})
		eachObject(claims["requiredSubstantiation"], func(item map[string]any) {
			setDefault(item, "appliesToPatterns", []any{})
		})
		eachObject(claims["disclaimers"], func(item map[string]any) {
			setDefault(item, "regions", []any{})
			setDefault(item, "channels", []any{})
		})
	}

	if sensitive, ok := child(doc, "sensitive"); ok {
		if policies, ok := ensure(sensitive, "policies"); ok {
			for _, raw := range policies {
				if policy, ok := raw.(map[string]any); ok {
					setDefault(policy, "regions", []any{})
					setDefault(policy, "channels", []any{})
					setDefault(policy, "requiresLegalReview", false)
				}
			}
		}
	}

	if access, ok := child(doc, "accessibility"); ok {
		if wcag, ok := ensure(access, "wcag"); ok {
			setDefault(wcag, "minContrastRatio", DefaultWCAG.MinContrastRatio)
			setDefault(wcag, "minFontSizePx", float64(DefaultWCAG.MinFontSizePx))
			setDefault(wcag, "captionsRequired", DefaultWCAG.CaptionsRequired)
			setDefault(wcag, "altTextRequired", DefaultWCAG.AltTextRequired)
		}
	}

	setDefault(doc, "platformRules", map[string]any{})

	if gov, ok := child(doc, "governance"); ok {
		setDefault(gov, "severityDefault", string(DefaultSeverity))
		setDefault(gov, "checks", []any{})
	}
}

func rangeValue(r Range) []any {
	return []any{float64(r[0]), float64(r[1])}
}

func hasKey(m map[string]any, key string) bool {
	_, ok := m[key]
	return ok
}

func setDefault(m map[string]any, key string, value any) {
	if !hasKey(m, key) {
		m[key] = value
	}
}

// child returns m[key] when it is an object.
func child(m map[string]any, key string) (map[string]any, bool) {
	v, ok := m[key].(map[string]any)
	return v, ok
}

// ensure returns m[key] as an object, creating it when absent.
func ensure(m map[string]any, key string) (map[string]any, bool) {
	raw, ok := m[key]
	if !ok {
		created := map[string]any{}
		m[key] = created
		return created, true
	}
	v, ok := raw.(map[string]any)
	return v, ok
}

func eachObject(list any, fn func(map[string]any)) {
	items, ok := list.([]any)
	if !ok {
		return
	}
	for _, item := range items {
		if obj, ok := item.(map[string]any); ok {
			fn(obj)
		}
	}
}
