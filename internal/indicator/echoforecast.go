package indicator

import (
	"cryptoengine/internal/fixedpoint"
	"math"

	"cryptoengine/internal/model"
)

// EchoForecast finds the historical window most (or least) correlated with
// the most recent `forecastWindow` values, then projects the next
// `forecastWindow` values forward using the matched window's subsequent
// deltas. Built from SPEC_FULL.md §4.5's prose; no teacher or example-pack
// equivalent exists (see DESIGN.md).
type EchoForecast struct {
	Base
}

func NewEchoForecast() *EchoForecast { return &EchoForecast{} }

func (EchoForecast) ID() string          { return "echoforecast" }
func (EchoForecast) Name() string        { return "Echo Forecast" }
func (EchoForecast) Description() string { return "Projects future price from the historical window most correlated with recent price action." }
func (EchoForecast) Category() string    { return "forecast" }

func (EchoForecast) ParamSchema() []Parameter {
	min := 2.0
	return []Parameter{
		{Name: "forecastWindow", DisplayName: "Forecast window", Type: ParamInt, Default: 20, Min: &min, Required: true},
		{Name: "evaluationWindow", DisplayName: "Evaluation window", Type: ParamInt, Default: 100, Min: &min, Required: true},
		{Name: "mode", DisplayName: "Correlation mode", Type: ParamString, Default: "similarity"}, // "similarity" | "dissimilarity"
		{Name: "construction", DisplayName: "Forecast construction", Type: ParamString, Default: "cumulative"}, // cumulative | mean | linear-regression
		{Name: "source", DisplayName: "Source", Type: ParamString, Default: string(model.SourceClose)},
	}
}

func (EchoForecast) MinCandles(params map[string]any) int {
	fw := IntParam(params, "forecastWindow", 20)
	ew := IntParam(params, "evaluationWindow", 100)
	return ew + 2*fw
}

func (EchoForecast) VisualMetadata() map[string]SeriesMeta {
	return map[string]SeriesMeta{
		"forecast": {DisplayName: "Echo forecast", Render: RenderLine, Color: "#ab47bc", Pane: "main"},
	}
}

type echoState struct {
	forecastWindow   int
	evaluationWindow int
	mode             string
	construction     string
	source           model.Source

	ring []float64 // last evaluationWindow + 2*forecastWindow source values
}

func (EchoForecast) Init(historical []model.Candle, params map[string]any) State {
	s := &echoState{
		forecastWindow:   IntParam(params, "forecastWindow", 20),
		evaluationWindow: IntParam(params, "evaluationWindow", 100),
		mode:             StringParam(params, "mode", "similarity"),
		construction:     StringParam(params, "construction", "cumulative"),
		source:           model.Source(StringParam(params, "source", string(model.SourceClose))),
	}
	for _, c := range historical {
		s.push(c.Select(s.source).Float64())
	}
	return s
}

func (s *echoState) push(v float64) {
	s.ring = append(s.ring, v)
	bound := s.evaluationWindow + 2*s.forecastWindow
	if len(s.ring) > bound {
		s.ring = s.ring[len(s.ring)-bound:]
	}
}

func (EchoForecast) OnNewCandle(candle model.Candle, params map[string]any, state State) (map[string]float64, State, []model.Shape) {
	s := state.(*echoState)
	s.push(candle.Select(s.source).Float64())

	fw, ew := s.forecastWindow, s.evaluationWindow
	needed := ew + 2*fw
	if len(s.ring) < needed {
		return map[string]float64{"forecastReady": 0}, s, nil
	}

	reference := s.ring[len(s.ring)-fw:]
	evalStart := len(s.ring) - needed
	evalEnd := len(s.ring) - fw // evaluation range excludes the reference window itself

	bestOffset := -1
	bestCorr := 0.0
	for offset := evalStart; offset+fw <= evalEnd; offset++ {
		window := s.ring[offset : offset+fw]
		corr := pearson(window, reference)
		if bestOffset == -1 {
			bestOffset, bestCorr = offset, corr
			continue
		}
		if s.mode == "dissimilarity" {
			if corr < bestCorr {
				bestOffset, bestCorr = offset, corr
			}
		} else if corr > bestCorr {
			bestOffset, bestCorr = offset, corr
		}
	}
	if bestOffset == -1 {
		return map[string]float64{"forecastReady": 0}, s, nil
	}

	matched := s.ring[bestOffset : bestOffset+fw]
	following := s.ring[bestOffset+fw : bestOffset+2*fw]
	deltas := make([]float64, fw)
	for i := range deltas {
		deltas[i] = following[i] - matched[fw-1]
		if i > 0 {
			deltas[i] = following[i] - following[i-1]
		}
	}

	lastPrice := s.ring[len(s.ring)-1]
	forecast := make([]float64, fw)
	switch s.construction {
	case "mean":
		mean := meanOf(reference)
		acc := mean
		for i, d := range deltas {
			acc += d
			forecast[i] = acc
		}
	case "linear-regression":
		slope, intercept := linearFit(reference)
		base := intercept + slope*float64(fw-1)
		acc := base
		for i, d := range deltas {
			acc += d
			forecast[i] = acc
		}
	default: // cumulative
		acc := lastPrice
		for i, d := range deltas {
			acc += d
			forecast[i] = acc
		}
	}

	shapes := []model.Shape{
		{Kind: model.ShapeFill, Label: "echo-reference", Price1: fixedpoint.FromFloat64(reference[0]), Price2: fixedpoint.FromFloat64(reference[len(reference)-1])},
		{Kind: model.ShapeFill, Label: "echo-correlation", Price1: fixedpoint.FromFloat64(matched[0]), Price2: fixedpoint.FromFloat64(matched[len(matched)-1])},
		{Kind: model.ShapeFill, Label: "echo-evaluation", Price1: fixedpoint.FromFloat64(s.ring[evalStart]), Price2: fixedpoint.FromFloat64(s.ring[evalEnd-1])},
	}
	for i, v := range forecast {
		shapes = append(shapes, model.Shape{
			Kind:   model.ShapeLine,
			Label:  "echo-forecast",
			Time1:  candle.OpenTime.Unix(),
			Time2:  candle.OpenTime.Unix() + int64(i+1),
			Price1: fixedpoint.FromFloat64(lastPrice),
			Price2: fixedpoint.FromFloat64(v),
		})
	}

	return map[string]float64{"forecastReady": 1, "correlation": bestCorr, "forecastFinal": forecast[len(forecast)-1]}, s, shapes
}

func pearson(a, b []float64) float64 {
	n := len(a)
	if n == 0 || n != len(b) {
		return 0
	}
	ma, mb := meanOf(a), meanOf(b)
	var num, da, db float64
	for i := 0; i < n; i++ {
		xa, xb := a[i]-ma, b[i]-mb
		num += xa * xb
		da += xa * xa
		db += xb * xb
	}
	denom := math.Sqrt(da * db)
	if denom == 0 {
		return 0
	}
	return num / denom
}

func meanOf(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

// linearFit returns slope/intercept for y=vs[i] against x=i.
func linearFit(vs []float64) (slope, intercept float64) {
	n := float64(len(vs))
	if n == 0 {
		return 0, 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, v := range vs {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, sumY / n
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}
