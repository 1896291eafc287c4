package indicator

import "cryptoengine/internal/model"

// TRAMA is the Trend Regularity Adaptive Moving Average: an AMA whose
// smoothing factor adapts to how often price makes new extremes within a
// rolling window. Built from SPEC_FULL.md §4.5's prose description — no
// teacher or example-pack equivalent exists, so this is reimplemented from
// the algorithm description directly rather than adapted from existing Go
// source (see DESIGN.md).
type TRAMA struct {
	Base
}

func NewTRAMA() *TRAMA { return &TRAMA{} }

func (TRAMA) ID() string   { return "trama" }
func (TRAMA) Name() string { return "Trend Regularity Adaptive Moving Average" }
func (TRAMA) Description() string {
	return "Adaptive moving average whose smoothing factor grows with how consistently price makes new extremes."
}
func (TRAMA) Category() string { return "trend" }

func (TRAMA) ParamSchema() []Parameter {
	min := 2.0
	return []Parameter{
		{Name: "length", DisplayName: "Length", Type: ParamInt, Default: 20, Min: &min, Required: true},
		{Name: "source", DisplayName: "Source", Type: ParamString, Default: string(model.SourceClose)},
	}
}

func (TRAMA) MinCandles(params map[string]any) int {
	return IntParam(params, "length", 20)
}

func (TRAMA) VisualMetadata() map[string]SeriesMeta {
	return map[string]SeriesMeta{
		"trama": {DisplayName: "TRAMA", Render: RenderLine, Color: "#ff6d00", Width: 2, Pane: "main"},
	}
}

type tramaState struct {
	length int
	source model.Source

	sourceBuf []float64 // ring of last `length` source prices
	signalBuf []float64 // ring of last `length` 0/1 trend signals
	idx       int
	count     int

	prevHighest float64
	prevLowest  float64
	haveExtremes bool

	ama     float64
	started bool
}

func (TRAMA) Init(historical []model.Candle, params map[string]any) State {
	length := IntParam(params, "length", 20)
	source := model.Source(StringParam(params, "source", string(model.SourceClose)))
	s := &tramaState{
		length:    length,
		source:    source,
		sourceBuf: make([]float64, length),
		signalBuf: make([]float64, length),
	}
	for _, c := range historical {
		s.push(c.Select(source).Float64())
	}
	return s
}

func (s *tramaState) push(price float64) {
	if !s.started {
		s.ama = price
		s.started = true
	}

	currentHighest, currentLowest := price, price
	n := s.count
	if n > s.length {
		n = s.length
	}
	for i := 0; i < n; i++ {
		v := s.sourceBuf[i]
		if v > currentHighest {
			currentHighest = v
		}
		if v < currentLowest {
			currentLowest = v
		}
	}

	signal := 0.0
	if s.haveExtremes && (currentHighest > s.prevHighest || currentLowest < s.prevLowest) {
		signal = 1
	}

	s.sourceBuf[s.idx] = price
	s.signalBuf[s.idx] = signal
	s.idx = (s.idx + 1) % s.length
	s.count++
	s.prevHighest, s.prevLowest = currentHighest, currentLowest
	s.haveExtremes = true

	m := s.count
	if m > s.length {
		m = s.length
	}
	sum := 0.0
	for i := 0; i < m; i++ {
		sum += s.signalBuf[i]
	}
	meanSignal := sum / float64(m)
	tc := meanSignal * meanSignal

	s.ama = s.ama + tc*(price-s.ama)
}

func (TRAMA) OnNewCandle(candle model.Candle, params map[string]any, state State) (map[string]float64, State, []model.Shape) {
	s := state.(*tramaState)
	s.push(candle.Select(s.source).Float64())
	return map[string]float64{"trama": s.ama}, s, nil
}
