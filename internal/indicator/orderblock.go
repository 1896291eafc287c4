package indicator

import (
	"cryptoengine/internal/fixedpoint"
	"cryptoengine/internal/model"
)

// OrderBlock detects supply/demand zones from volume pivots, tracked
// against a simple two-state market-structure oscillator. Built from
// SPEC_FULL.md §4.5's prose and its §9 DECISION fixing the oscillator as a
// two-state swing tracker (most recent confirmed 5-bar swing high/low;
// "uptrend" from the close that crosses above the last swing high until a
// close crosses below the last swing low, and vice versa). No teacher or
// example-pack equivalent; reimplemented from the algorithm description
// (see DESIGN.md).
type OrderBlock struct {
	Base
}

func NewOrderBlock() *OrderBlock { return &OrderBlock{} }

func (OrderBlock) ID() string          { return "orderblock" }
func (OrderBlock) Name() string        { return "Order Block" }
func (OrderBlock) Description() string { return "Supply/demand zones from volume pivots, filtered by market structure." }
func (OrderBlock) Category() string    { return "structure" }

func (OrderBlock) ParamSchema() []Parameter {
	minZones, maxZones := 1.0, 20.0
	return []Parameter{
		{Name: "maxZones", DisplayName: "Max active zones", Type: ParamInt, Default: 3, Min: &minZones, Max: &maxZones},
		{Name: "touchOnWick", DisplayName: "Touch on wick (vs close only)", Type: ParamBool, Default: true},
	}
}

// pivotWindow is the 5-bar pivot confirmation window (2 bars either side).
const pivotWindow = 5

func (OrderBlock) MinCandles(params map[string]any) int {
	return pivotWindow + 20 // enough history for the 20-bar average-volume denominator
}

func (OrderBlock) VisualMetadata() map[string]SeriesMeta {
	return map[string]SeriesMeta{
		"trend": {DisplayName: "Market structure", Render: RenderLine, Color: "#9c27b0", Pane: "structure"},
	}
}

// zone is one active order-block box.
type zone struct {
	bullish bool
	top     fixedpoint.Value
	bottom  fixedpoint.Value
	volumeStrength float64
	touched bool
	openedAt int64
}

type obState struct {
	maxZones    int
	touchOnWick bool

	window []model.Candle // last up to pivotWindow candles, for pivot confirmation
	recentVol []float64   // last up to 20 volumes, for the average-volume denominator

	haveSwingHigh, haveSwingLow bool
	swingHigh, swingLow         float64
	trend                       string // "", "uptrend", "downtrend"

	bullZones []*zone
	bearZones []*zone
}

func (OrderBlock) Init(historical []model.Candle, params map[string]any) State {
	s := &obState{
		maxZones:    IntParam(params, "maxZones", 3),
		touchOnWick: BoolParam(params, "touchOnWick", true),
	}
	for _, c := range historical {
		s.push(c)
	}
	return s
}

func (OrderBlock) OnNewCandle(candle model.Candle, params map[string]any, state State) (map[string]float64, State, []model.Shape) {
	s := state.(*obState)
	shapes := s.push(candle)

	trendVal := 0.0
	switch s.trend {
	case "uptrend":
		trendVal = 1
	case "downtrend":
		trendVal = -1
	}
	return map[string]float64{"trend": trendVal, "activeBullZones": float64(len(s.bullZones)), "activeBearZones": float64(len(s.bearZones))}, s, shapes
}

func (s *obState) push(c model.Candle) []model.Shape {
	var shapes []model.Shape

	// Touch/mitigation check against currently active zones, before adding
	// this candle to the pivot window (so a pivot confirmed on this bar
	// can't touch its own just-created zone).
	shapes = append(shapes, s.checkZones(c, true)...)
	shapes = append(shapes, s.checkZones(c, false)...)

	s.recentVol = append(s.recentVol, c.Volume.Float64())
	if len(s.recentVol) > 20 {
		s.recentVol = s.recentVol[len(s.recentVol)-20:]
	}

	s.window = append(s.window, c)
	if len(s.window) > pivotWindow {
		s.window = s.window[len(s.window)-pivotWindow:]
	}
	if len(s.window) < pivotWindow {
		return shapes
	}

	center := s.window[2]
	s.updateSwingState(center)

	if s.isPivot(func(c model.Candle) float64 { return c.Volume.Float64() }) {
		avgVol := average(s.recentVol)
		strength := 0.0
		if avgVol > 0 {
			strength = center.Volume.Float64() / avgVol
		}
		if s.trend == "downtrend" {
			z := &zone{
				bullish:        true,
				top:            center.HL2(),
				bottom:         center.Low,
				volumeStrength: strength,
				openedAt:       center.OpenTime.Unix(),
			}
			s.bullZones = append(s.bullZones, z)
			s.trimZones(&s.bullZones)
		} else if s.trend == "uptrend" {
			z := &zone{
				bullish:        false,
				top:            center.High,
				bottom:         center.HL2(),
				volumeStrength: strength,
				openedAt:       center.OpenTime.Unix(),
			}
			s.bearZones = append(s.bearZones, z)
			s.trimZones(&s.bearZones)
		}
	}

	shapes = append(shapes, s.zoneShapes(c.OpenTime.Unix())...)
	return shapes
}

func (s *obState) updateSwingState(center model.Candle) {
	if s.isPivotHigh() {
		s.swingHigh = center.High.Float64()
		s.haveSwingHigh = true
	}
	if s.isPivotLow() {
		s.swingLow = center.Low.Float64()
		s.haveSwingLow = true
	}
	if !s.haveSwingHigh || !s.haveSwingLow {
		return
	}
	last := s.window[len(s.window)-1]
	closeF := last.Close.Float64()
	if closeF > s.swingHigh {
		s.trend = "uptrend"
	} else if closeF < s.swingLow {
		s.trend = "downtrend"
	}
}

func (s *obState) isPivotHigh() bool {
	return s.isPivot(func(c model.Candle) float64 { return c.High.Float64() })
}

func (s *obState) isPivotLow() bool {
	center := s.window[2].Low.Float64()
	for i, c := range s.window {
		if i == 2 {
			continue
		}
		if c.Low.Float64() < center {
			return false
		}
	}
	return true
}

func (s *obState) isPivot(val func(model.Candle) float64) bool {
	center := val(s.window[2])
	for i, c := range s.window {
		if i == 2 {
			continue
		}
		if val(c) > center {
			return false
		}
	}
	return true
}

func (s *obState) trimZones(zs *[]*zone) {
	if len(*zs) > s.maxZones {
		*zs = (*zs)[len(*zs)-s.maxZones:]
	}
}

// checkZones marks touched/mitigated zones, returning a touch marker shape
// once per zone (emitted only on the transition to touched).
func (s *obState) checkZones(c model.Candle, bullish bool) []model.Shape {
	var shapes []model.Shape
	zs := &s.bearZones
	if bullish {
		zs = &s.bullZones
	}

	kept := (*zs)[:0]
	for _, z := range *zs {
		inZone := s.priceInZone(c, z)
		farSideBreak := s.farSideBreak(c, z)

		if farSideBreak {
			continue // mitigated, drop
		}
		if inZone && !z.touched {
			z.touched = true
			shapes = append(shapes, model.Shape{
				Kind:   model.ShapeMarker,
				Label:  "ob-touch",
				Time1:  c.OpenTime.Unix(),
				Price1: c.Close,
				Text:   "touched",
			})
		}
		kept = append(kept, z)
	}
	*zs = kept
	return shapes
}

func (s *obState) priceInZone(c model.Candle, z *zone) bool {
	hi, lo := c.Close, c.Close
	if s.touchOnWick {
		hi, lo = c.High, c.Low
	}
	return !(lo.GreaterThan(z.top) || hi.LessThan(z.bottom))
}

func (s *obState) farSideBreak(c model.Candle, z *zone) bool {
	if z.bullish {
		return c.Close.LessThan(z.bottom)
	}
	return c.Close.GreaterThan(z.top)
}

func (s *obState) zoneShapes(ts int64) []model.Shape {
	shapes := make([]model.Shape, 0, len(s.bullZones)+len(s.bearZones))
	for _, z := range s.bullZones {
		shapes = append(shapes, zoneBox(z, ts))
	}
	for _, z := range s.bearZones {
		shapes = append(shapes, zoneBox(z, ts))
	}
	return shapes
}

func zoneBox(z *zone, ts int64) model.Shape {
	label, color := "bearish-ob", "#ef5350"
	if z.bullish {
		label, color = "bullish-ob", "#26a69a"
	}
	return model.Shape{
		Kind:   model.ShapeBox,
		Label:  label,
		Color:  color,
		Time1:  z.openedAt,
		Time2:  ts,
		Price1: z.top,
		Price2: z.bottom,
		Fields: map[string]any{"volumeStrength": z.volumeStrength, "touched": z.touched},
	}
}

func average(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}
