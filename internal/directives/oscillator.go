package directives

import "fmt"

// bands is the oversold/overbought ladder shared by bounded oscillators
type bands struct {
	oversold, overbought               float64
	extremeOversold, extremeOverbought float64
	approach                           float64
	zoneBonus, extremeBonus            float64
	approachBonus                      float64
}

// normalize enforces extreme <= oversold < overbought <= extreme overbought and
// approach bonus <= zone bonus. A crossed oversold/overbought pair falls back to fallback.
func (b *bands) normalize(fallback bands) {
	if b.oversold >= b.overbought {
		b.oversold, b.overbought = fallback.oversold, fallback.overbought
	}
	if b.extremeOversold > b.oversold {
		b.extremeOversold = b.oversold
	}
	if b.extremeOverbought < b.overbought {
		b.extremeOverbought = b.overbought
	}
	nonNegative(&b.approach, &b.extremeBonus)
	ordered(&b.approachBonus, &b.zoneBonus)
}

// apply adds the zone bonus for v. Oversold is bullish.
func (b bands) apply(t *tally, name string, v float64) {
	label := func(zone string) string { return fmt.Sprintf("%s %s (%.1f)", name, zone, v) }

	switch {
	case v <= b.extremeOversold:
		t.add(b.zoneBonus+b.extremeBonus, label("Extremely Oversold"))
		t.note("zone", "extreme_oversold")
	case v < b.oversold:
		t.add(b.zoneBonus, label("Oversold"))
		t.note("zone", "oversold")
	case v < b.oversold+b.approach:
		t.add(b.approachBonus, label("Approaching Oversold"))
		t.note("zone", "approaching_oversold")
	case v >= b.extremeOverbought:
		t.add(-(b.zoneBonus + b.extremeBonus), label("Extremely Overbought"))
		t.note("zone", "extreme_overbought")
	case v > b.overbought:
		t.add(-b.zoneBonus, label("Overbought"))
		t.note("zone", "overbought")
	case v > b.overbought-b.approach:
		t.add(-b.approachBonus, label("Approaching Overbought"))
		t.note("zone", "approaching_overbought")
	default:
		t.note("zone", "neutral")
	}
}

func (b bands) explain(name string) string {
	return fmt.Sprintf("%s below %.4g adds %.4g (below %.4g adds a further %.4g); within %.4g of the band adds %.4g. "+
		"Above %.4g subtracts %.4g (above %.4g subtracts a further %.4g); within %.4g subtracts %.4g.",
		name, b.oversold, b.zoneBonus, b.extremeOversold, b.extremeBonus, b.approach, b.approachBonus,
		b.overbought, b.zoneBonus, b.extremeOverbought, b.extremeBonus, b.approach, b.approachBonus)
}
