package classify

type riskKey struct {
	tier        Tier
	concurrent  bool
	aggravating bool
}

// riskTable maps (primary tier, two or more significant conditions, aggravating symptom)
// to a risk level. Mild and None share a row.
var riskTable = map[riskKey]RiskLevel{
	{TierSevere, false, false}: RiskHigh,
	{TierSevere, true, false}:  RiskHigh,
	{TierSevere, false, true}:  RiskHigh,
	{TierSevere, true, true}:   RiskHigh,

	{TierModerate, false, false}: RiskMedium,
	{TierModerate, true, false}:  RiskHigh,
	{TierModerate, false, true}:  RiskHigh,
	{TierModerate, true, true}:   RiskHigh,

	{TierNone, false, false}: RiskLow,
	{TierNone, true, false}:  RiskMedium,
	{TierNone, false, true}:  RiskMedium,
	{TierNone, true, true}:   RiskMedium,
}

func riskFor(tier Tier, concurrent, aggravating bool) RiskLevel {
	if tier == TierMild {
		tier = TierNone
	}
	if r, ok := riskTable[riskKey{tier, concurrent, aggravating}]; ok {
		return r
	}
	return RiskHigh
}
