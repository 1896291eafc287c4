package indicator

import "cryptoengine/internal/model"

// Volume, CVD, Absorption, and Bookmap all consume trade and/or order-book
// events and emit a value on candle close, per SPEC_FULL.md §4.5's prose.
// No teacher or example-pack equivalent; reimplemented directly from the
// description (see DESIGN.md).

// --- Volume: per-candle traded volume split by aggressor side. ---

type Volume struct{ Base }

func NewVolume() *Volume { return &Volume{} }

func (Volume) ID() string                               { return "volume" }
func (Volume) Name() string                              { return "Volume" }
func (Volume) Description() string                       { return "Per-candle traded volume split by aggressor side." }
func (Volume) Category() string                          { return "volume" }
func (Volume) ParamSchema() []Parameter                  { return nil }
func (Volume) MinCandles(map[string]any) int             { return 1 }
func (Volume) RequiredDataTypes() []DataType {
	return []DataType{DataKline, DataTrade}
}
func (Volume) VisualMetadata() map[string]SeriesMeta {
	return map[string]SeriesMeta{
		"buyVolume":  {DisplayName: "Buy volume", Render: RenderHistogram, Color: "#26a69a", Pane: "volume"},
		"sellVolume": {DisplayName: "Sell volume", Render: RenderHistogram, Color: "#ef5350", Pane: "volume"},
	}
}

type volumeState struct {
	buy, sell float64
}

func (Volume) Init(historical []model.Candle, params map[string]any) State { return &volumeState{} }

func (Volume) OnTradeUpdate(trade model.Trade, params map[string]any, state State) (map[string]float64, State) {
	s := state.(*volumeState)
	if trade.AggressiveBuy() {
		s.buy += trade.Qty.Float64()
	} else {
		s.sell += trade.Qty.Float64()
	}
	return nil, s // no emission mid-bar; Volume only reports on candle close
}

func (Volume) OnNewCandle(candle model.Candle, params map[string]any, state State) (map[string]float64, State, []model.Shape) {
	s := state.(*volumeState)
	out := map[string]float64{"buyVolume": s.buy, "sellVolume": s.sell}
	return out, &volumeState{}, nil // reset for the next bar
}

// --- CVD: cumulative volume delta, running across bars. ---

type CVD struct{ Base }

func NewCVD() *CVD { return &CVD{} }

func (CVD) ID() string                    { return "cvd" }
func (CVD) Name() string                  { return "Cumulative Volume Delta" }
func (CVD) Description() string           { return "Running sum of (buy volume - sell volume) across all trades." }
func (CVD) Category() string              { return "volume" }
func (CVD) ParamSchema() []Parameter      { return nil }
func (CVD) MinCandles(map[string]any) int { return 1 }
func (CVD) RequiredDataTypes() []DataType { return []DataType{DataKline, DataTrade} }
func (CVD) VisualMetadata() map[string]SeriesMeta {
	return map[string]SeriesMeta{"cvd": {DisplayName: "CVD", Render: RenderLine, Color: "#2962ff", Pane: "cvd"}}
}

type cvdState struct {
	cumulative float64
	barDelta   float64
}

func (CVD) Init(historical []model.Candle, params map[string]any) State { return &cvdState{} }

func (CVD) OnTradeUpdate(trade model.Trade, params map[string]any, state State) (map[string]float64, State) {
	s := state.(*cvdState)
	if trade.AggressiveBuy() {
		s.barDelta += trade.Qty.Float64()
	} else {
		s.barDelta -= trade.Qty.Float64()
	}
	return nil, s
}

func (CVD) OnNewCandle(candle model.Candle, params map[string]any, state State) (map[string]float64, State, []model.Shape) {
	s := state.(*cvdState)
	s.cumulative += s.barDelta
	out := map[string]float64{"cvd": s.cumulative}
	return out, &cvdState{cumulative: s.cumulative}, nil
}

// --- Absorption: large opposing-side volume with little price movement. ---

type Absorption struct{ Base }

func NewAbsorption() *Absorption { return &Absorption{} }

func (Absorption) ID() string          { return "absorption" }
func (Absorption) Name() string        { return "Absorption" }
func (Absorption) Description() string { return "Flags bars with heavy opposing-side volume but little net price movement." }
func (Absorption) Category() string    { return "volume" }

func (Absorption) ParamSchema() []Parameter {
	min := 1.0
	return []Parameter{
		{Name: "volumeThreshold", DisplayName: "Volume threshold (x avg)", Type: ParamDecimal, Default: 2.0, Min: &min},
		{Name: "priceMoveMaxPct", DisplayName: "Max price move %", Type: ParamDecimal, Default: 0.1},
	}
}
func (Absorption) MinCandles(map[string]any) int     { return 20 }
func (Absorption) RequiredDataTypes() []DataType     { return []DataType{DataKline, DataTrade} }
func (Absorption) VisualMetadata() map[string]SeriesMeta {
	return map[string]SeriesMeta{"absorption": {DisplayName: "Absorption", Render: RenderHistogram, Color: "#ffa726", Pane: "volume"}}
}

type absorptionState struct {
	volumeThreshold float64
	priceMoveMaxPct float64
	barVolume       float64
	recentVol       []float64
}

func (Absorption) Init(historical []model.Candle, params map[string]any) State {
	s := &absorptionState{
		volumeThreshold: floatParam(params, "volumeThreshold", 2.0),
		priceMoveMaxPct: floatParam(params, "priceMoveMaxPct", 0.1),
	}
	for _, c := range historical {
		s.recentVol = append(s.recentVol, c.Volume.Float64())
		if len(s.recentVol) > 20 {
			s.recentVol = s.recentVol[len(s.recentVol)-20:]
		}
	}
	return s
}

func (Absorption) OnTradeUpdate(trade model.Trade, params map[string]any, state State) (map[string]float64, State) {
	s := state.(*absorptionState)
	s.barVolume += trade.Qty.Float64()
	return nil, s
}

func (Absorption) OnNewCandle(candle model.Candle, params map[string]any, state State) (map[string]float64, State, []model.Shape) {
	s := state.(*absorptionState)
	avgVol := average(s.recentVol)
	score := 0.0
	if avgVol > 0 && !candle.Open.IsZero() {
		moveBps := candle.Close.Sub(candle.Open).Float64() / candle.Open.Float64() * 100
		if moveBps < 0 {
			moveBps = -moveBps
		}
		if s.barVolume >= avgVol*s.volumeThreshold && moveBps <= s.priceMoveMaxPct {
			score = s.barVolume / avgVol
		}
	}
	s.recentVol = append(s.recentVol, candle.Volume.Float64())
	if len(s.recentVol) > 20 {
		s.recentVol = s.recentVol[len(s.recentVol)-20:]
	}
	next := &absorptionState{
		volumeThreshold: s.volumeThreshold,
		priceMoveMaxPct: s.priceMoveMaxPct,
		recentVol:       s.recentVol,
	}
	return map[string]float64{"absorption": score}, next, nil
}

// --- Bookmap: heatmap-style order-book depth plus trade flow. ---

type Bookmap struct{ Base }

func NewBookmap() *Bookmap { return &Bookmap{} }

func (Bookmap) ID() string          { return "bookmap" }
func (Bookmap) Name() string        { return "Bookmap" }
func (Bookmap) Description() string { return "Heatmap of resting order-book depth alongside executed trade flow." }
func (Bookmap) Category() string    { return "orderflow" }

func (Bookmap) ParamSchema() []Parameter {
	min := 1.0
	return []Parameter{{Name: "depth", DisplayName: "Depth levels", Type: ParamInt, Default: 10, Min: &min}}
}
func (Bookmap) MinCandles(map[string]any) int { return 1 }
func (Bookmap) RequiredDataTypes() []DataType {
	return []DataType{DataKline, DataTrade, DataOrderBook}
}
func (Bookmap) VisualMetadata() map[string]SeriesMeta {
	return map[string]SeriesMeta{"bidDepth": {DisplayName: "Bid depth", Render: RenderArea, Pane: "bookmap"},
		"askDepth": {DisplayName: "Ask depth", Render: RenderArea, Pane: "bookmap"}}
}

type bookmapState struct {
	depth              int
	lastBidDepth       float64
	lastAskDepth       float64
	buyVolume, sellVolume float64
}

func (Bookmap) Init(historical []model.Candle, params map[string]any) State {
	return &bookmapState{depth: IntParam(params, "depth", 10)}
}

func (Bookmap) OnOrderBookUpdate(book model.OrderBookSnapshot, params map[string]any, state State) (map[string]float64, State) {
	s := state.(*bookmapState)
	s.lastBidDepth = book.CumulativeBidVolume(s.depth).Float64()
	s.lastAskDepth = book.CumulativeAskVolume(s.depth).Float64()
	return map[string]float64{"bidDepth": s.lastBidDepth, "askDepth": s.lastAskDepth}, s
}

func (Bookmap) OnTradeUpdate(trade model.Trade, params map[string]any, state State) (map[string]float64, State) {
	s := state.(*bookmapState)
	if trade.AggressiveBuy() {
		s.buyVolume += trade.Qty.Float64()
	} else {
		s.sellVolume += trade.Qty.Float64()
	}
	return nil, s
}

func (Bookmap) OnNewCandle(candle model.Candle, params map[string]any, state State) (map[string]float64, State, []model.Shape) {
	s := state.(*bookmapState)
	out := map[string]float64{
		"bidDepth":   s.lastBidDepth,
		"askDepth":   s.lastAskDepth,
		"buyVolume":  s.buyVolume,
		"sellVolume": s.sellVolume,
	}
	next := &bookmapState{depth: s.depth, lastBidDepth: s.lastBidDepth, lastAskDepth: s.lastAskDepth}
	return out, next, nil
}
