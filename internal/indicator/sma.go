package indicator

import "cryptoengine/internal/model"

// SMA is the simple moving average over a rolling window of a selectable
// source price. Grounded on internal/indicator.SMA's circular buffer,
// generalized from a fixed close-price source to the spec's source
// selector (close/open/high/low/hl2/hlc3/ohlc4).
type SMA struct {
	Base
}

func NewSMA() *SMA { return &SMA{} }

func (SMA) ID() string          { return "sma" }
func (SMA) Name() string        { return "Simple Moving Average" }
func (SMA) Description() string { return "Arithmetic mean of the source price over the last N candles." }
func (SMA) Category() string    { return "trend" }

func (SMA) ParamSchema() []Parameter {
	min := 1.0
	return []Parameter{
		{Name: "period", DisplayName: "Period", Type: ParamInt, Default: 20, Min: &min, Required: true},
		{Name: "source", DisplayName: "Source", Type: ParamString, Default: string(model.SourceClose)},
	}
}

func (SMA) MinCandles(params map[string]any) int {
	return IntParam(params, "period", 20)
}

func (SMA) VisualMetadata() map[string]SeriesMeta {
	return map[string]SeriesMeta{
		"sma": {DisplayName: "SMA", Render: RenderLine, Color: "#2962ff", Width: 1, Pane: "main"},
	}
}

// smaState is the SMA's opaque working state: a circular buffer of the
// last `period` source prices plus the running sum, mirroring the
// teacher's zero-allocation hot path.
type smaState struct {
	period  int
	source  model.Source
	buf     []float64
	idx     int
	count   int
	sum     float64
	current float64
}

func (SMA) Init(historical []model.Candle, params map[string]any) State {
	period := IntParam(params, "period", 20)
	source := model.Source(StringParam(params, "source", string(model.SourceClose)))
	s := &smaState{period: period, source: source, buf: make([]float64, period)}
	for _, c := range historical {
		s.push(c.Select(source).Float64())
	}
	return s
}

func (s *smaState) push(price float64) {
	if s.count >= s.period {
		s.sum -= s.buf[s.idx]
	}
	s.buf[s.idx] = price
	s.sum += price
	s.idx = (s.idx + 1) % s.period
	s.count++
	if s.count >= s.period {
		s.current = s.sum / float64(s.period)
	}
}

func (SMA) OnNewCandle(candle model.Candle, params map[string]any, state State) (map[string]float64, State, []model.Shape) {
	s := state.(*smaState)
	s.push(candle.Select(s.source).Float64())
	return map[string]float64{"sma": s.current}, s, nil
}
