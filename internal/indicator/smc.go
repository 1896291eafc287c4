package indicator

import (
	"cryptoengine/internal/fixedpoint"
	"cryptoengine/internal/model"
)

// SmartMoneyConcepts detects structure breaks (BOS/CHoCH), fair-value gaps,
// and premium/equilibrium/discount zones. Built from SPEC_FULL.md §4.5's
// prose; no teacher or example-pack equivalent exists for this family of
// algorithms (see DESIGN.md).
type SmartMoneyConcepts struct {
	Base
}

func NewSmartMoneyConcepts() *SmartMoneyConcepts { return &SmartMoneyConcepts{} }

func (SmartMoneyConcepts) ID() string          { return "smc" }
func (SmartMoneyConcepts) Name() string        { return "Smart Money Concepts" }
func (SmartMoneyConcepts) Description() string { return "Structure breaks, fair-value gaps, and premium/discount zones." }
func (SmartMoneyConcepts) Category() string    { return "structure" }

const smcInternalPivot = 5

func (SmartMoneyConcepts) ParamSchema() []Parameter {
	minSwing := 3.0
	minATR := 1.0
	return []Parameter{
		{Name: "swingLength", DisplayName: "Swing pivot length", Type: ParamInt, Default: 50, Min: &minSwing, Required: true},
		{Name: "atrPeriod", DisplayName: "ATR period", Type: ParamInt, Default: 14, Min: &minATR},
		{Name: "atrMultiplier", DisplayName: "ATR filter multiplier", Type: ParamDecimal, Default: 2.0},
	}
}

func (s SmartMoneyConcepts) MinCandles(params map[string]any) int {
	swing := IntParam(params, "swingLength", 50)
	if swing < smcInternalPivot {
		swing = smcInternalPivot
	}
	return 2*swing + 5
}

func (SmartMoneyConcepts) VisualMetadata() map[string]SeriesMeta {
	return map[string]SeriesMeta{
		"structure": {DisplayName: "BOS/CHoCH", Render: RenderLine, Pane: "structure"},
	}
}

type fvg struct {
	bullish  bool
	top      fixedpoint.Value
	bottom   fixedpoint.Value
	openedAt int64
	filled   bool
}

type smcState struct {
	swingLen      int
	internalLen   int
	atrPeriod     int
	atrMultiplier float64

	candles []model.Candle // full rolling history, bounded to what swing detection needs

	lastSwingHigh, lastSwingLow float64
	haveSwingHigh, haveSwingLow bool
	trend                       string

	atr float64

	gaps []*fvg

	premiumTop, equilibrium, discountBottom fixedpoint.Value
}

func (sm SmartMoneyConcepts) Init(historical []model.Candle, params map[string]any) State {
	s := &smcState{
		swingLen:      IntParam(params, "swingLength", 50),
		internalLen:   smcInternalPivot,
		atrPeriod:     IntParam(params, "atrPeriod", 14),
		atrMultiplier: floatParam(params, "atrMultiplier", 2.0),
	}
	for _, c := range historical {
		s.push(c)
	}
	return s
}

func floatParam(params map[string]any, name string, fallback float64) float64 {
	v, ok := params[name]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return fallback
	}
}

func (sm SmartMoneyConcepts) OnNewCandle(candle model.Candle, params map[string]any, state State) (map[string]float64, State, []model.Shape) {
	s := state.(*smcState)
	shapes := s.push(candle)

	trendVal := 0.0
	switch s.trend {
	case "bullish":
		trendVal = 1
	case "bearish":
		trendVal = -1
	}
	return map[string]float64{
		"structure":   trendVal,
		"premium":     s.premiumTop.Float64(),
		"equilibrium": s.equilibrium.Float64(),
		"discount":    s.discountBottom.Float64(),
	}, s, shapes
}

func (s *smcState) push(c model.Candle) []model.Shape {
	var shapes []model.Shape

	s.candles = append(s.candles, c)
	maxLen := 2*s.swingLen + 10
	if len(s.candles) > maxLen {
		s.candles = s.candles[len(s.candles)-maxLen:]
	}

	s.updateATR(c)
	shapes = append(shapes, s.detectStructureBreak(c)...)
	shapes = append(shapes, s.detectFVG()...)
	s.updateZones()

	return shapes
}

func (s *smcState) updateATR(c model.Candle) {
	tr := c.High.Sub(c.Low).Float64()
	if s.atr == 0 {
		s.atr = tr
		return
	}
	n := float64(s.atrPeriod)
	s.atr = (s.atr*(n-1) + tr) / n
}

// detectStructureBreak confirms swing highs/lows at s.swingLen lag and
// checks the latest close for a break, emitting a BOS (trend continuation)
// or CHoCH (reversal) marker.
func (s *smcState) detectStructureBreak(c model.Candle) []model.Shape {
	n := len(s.candles)
	center := n - s.swingLen - 1
	if center < s.swingLen || center >= n {
		return nil
	}

	isPivotHigh, isPivotLow := true, true
	ph, pl := s.candles[center].High.Float64(), s.candles[center].Low.Float64()
	for i := center - s.swingLen; i <= center+s.swingLen; i++ {
		if i == center || i < 0 || i >= n {
			continue
		}
		if s.candles[i].High.Float64() > ph {
			isPivotHigh = false
		}
		if s.candles[i].Low.Float64() < pl {
			isPivotLow = false
		}
	}
	if isPivotHigh {
		s.lastSwingHigh = ph
		s.haveSwingHigh = true
	}
	if isPivotLow {
		s.lastSwingLow = pl
		s.haveSwingLow = true
	}
	if !s.haveSwingHigh || !s.haveSwingLow {
		return nil
	}

	closeF := c.Close.Float64()
	var shapes []model.Shape
	if closeF > s.lastSwingHigh {
		kind := "BOS"
		if s.trend == "bearish" {
			kind = "CHoCH"
		}
		s.trend = "bullish"
		shapes = append(shapes, s.maybeEmitOB(c, true)...)
		shapes = append(shapes, model.Shape{Kind: model.ShapeMarker, Label: kind, Time1: c.OpenTime.Unix(), Price1: c.Close, Text: kind})
	} else if closeF < s.lastSwingLow {
		kind := "BOS"
		if s.trend == "bullish" {
			kind = "CHoCH"
		}
		s.trend = "bearish"
		shapes = append(shapes, s.maybeEmitOB(c, false)...)
		shapes = append(shapes, model.Shape{Kind: model.ShapeMarker, Label: kind, Time1: c.OpenTime.Unix(), Price1: c.Close, Text: kind})
	}
	return shapes
}

// maybeEmitOB emits an order-block box at the structure-break's opposing
// extreme when it clears the ATR filter.
func (s *smcState) maybeEmitOB(c model.Candle, bullish bool) []model.Shape {
	n := len(s.candles)
	if n < 2 {
		return nil
	}
	prev := s.candles[n-2]
	rangeSize := prev.High.Sub(prev.Low).Float64()
	if rangeSize < s.atr*s.atrMultiplier {
		return nil
	}
	label, color := "smc-bearish-ob", "#ef5350"
	if bullish {
		label, color = "smc-bullish-ob", "#26a69a"
	}
	return []model.Shape{{
		Kind:   model.ShapeBox,
		Label:  label,
		Color:  color,
		Time1:  prev.OpenTime.Unix(),
		Time2:  c.OpenTime.Unix(),
		Price1: prev.High,
		Price2: prev.Low,
	}}
}

// detectFVG looks for a 3-bar fair-value gap ending at the most recent
// candle and removes any gap the price has since filled through.
func (s *smcState) detectFVG() []model.Shape {
	n := len(s.candles)
	var shapes []model.Shape
	if n >= 3 {
		a, _, c := s.candles[n-3], s.candles[n-2], s.candles[n-1]
		if a.High.LessThan(c.Low) {
			g := &fvg{bullish: true, top: c.Low, bottom: a.High, openedAt: a.OpenTime.Unix()}
			s.gaps = append(s.gaps, g)
			shapes = append(shapes, fvgBox(g, c.OpenTime.Unix()))
		} else if a.Low.GreaterThan(c.High) {
			g := &fvg{bullish: false, top: a.Low, bottom: c.High, openedAt: a.OpenTime.Unix()}
			s.gaps = append(s.gaps, g)
			shapes = append(shapes, fvgBox(g, c.OpenTime.Unix()))
		}
	}

	last := s.candles[n-1]
	kept := s.gaps[:0]
	for _, g := range s.gaps {
		if g.bullish && last.Close.LessThan(g.bottom) {
			continue // filled through
		}
		if !g.bullish && last.Close.GreaterThan(g.top) {
			continue
		}
		kept = append(kept, g)
	}
	s.gaps = kept
	return shapes
}

func fvgBox(g *fvg, ts int64) model.Shape {
	label := "fvg-bearish"
	if g.bullish {
		label = "fvg-bullish"
	}
	return model.Shape{Kind: model.ShapeBox, Label: label, Time1: g.openedAt, Time2: ts, Price1: g.top, Price2: g.bottom}
}

func (s *smcState) updateZones() {
	if !s.haveSwingHigh || !s.haveSwingLow {
		return
	}
	high := fixedpoint.FromFloat64(s.lastSwingHigh)
	low := fixedpoint.FromFloat64(s.lastSwingLow)
	s.premiumTop = high
	s.discountBottom = low
	s.equilibrium = high.Add(low).Div(fixedpoint.FromInt(2))
}
