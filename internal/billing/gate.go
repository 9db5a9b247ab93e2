// Package billing owns subscription tiers, the feature gate and the Stripe integration.
package billing

import (
	"slices"
	"strings"
)

// Tier is a subscription tier.
type Tier string

const (
	TierFree    Tier = "free"
	TierStarter Tier = "starter"
	TierPro     Tier = "pro"
)

// Gated features.
const (
	FeatureLevyCalculation    = "levy_calculation"
	FeatureDocuments          = "documents"
	FeatureOwnerPortal        = "owner_portal"
	FeatureEmailNotifications = "email_notifications"
	FeatureMultipleSchemes    = "multiple_schemes"
)

// featureTiers is the single source of truth for which tiers unlock a feature.
// The free tier unlocks none of them.
var featureTiers = map[string][]Tier{
	FeatureLevyCalculation:    {TierStarter, TierPro},
	FeatureDocuments:          {TierStarter, TierPro},
	FeatureOwnerPortal:        {TierPro},
	FeatureEmailNotifications: {TierStarter, TierPro},
	FeatureMultipleSchemes:    {TierPro},
}

// ParseTier maps a stored or configured tier name to a Tier. Unknown names are treated as free.
func ParseTier(s string) Tier {
	switch t := Tier(strings.ToLower(strings.TrimSpace(s))); t {
	case TierStarter, TierPro:
		return t
	default:
		return TierFree
	}
}

// Allowed reports whether tier unlocks feature. Unknown features are never allowed.
func Allowed(feature string, tier Tier) bool {
	tiers, ok := featureTiers[feature]
	if !ok {
		return false
	}
	return slices.Contains(tiers, ParseTier(string(tier)))
}

// Features returns every gated feature name in sorted order.
func Features() []string {
	out := make([]string, 0, len(featureTiers))
	for f := range featureTiers {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}
