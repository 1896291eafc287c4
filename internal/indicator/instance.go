package indicator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"cryptoengine/internal/candlestore"
	"cryptoengine/internal/datasvc"
	"cryptoengine/internal/fixedpoint"
	"cryptoengine/internal/model"
)

// instance is one live (provider, symbol, interval, indicator, params)
// instance: an Indicator template plus its own working state, guarded by
// its own mutex so the dispatcher can serialize events for this instance
// without taking a lock shared with any other instance.
type instance struct {
	key      string
	provider string
	symbol   string
	interval string
	indID    string
	params   map[string]any

	mu    sync.Mutex
	ind   Indicator
	state State
}

// Manager is the instance manager (C5): it validates parameters, backfills
// warm-up history from C3 (falling back to C1 when the store doesn't have
// enough yet), and routes live events to the right instances. Grounded on
// internal/indicator.Engine's per-TF/per-token registry, generalized from a
// fixed per-TF indicator list to arbitrary dynamically created instances.
type Manager struct {
	mu        sync.RWMutex
	instances map[string]*instance

	registry   *Registry
	store      *candlestore.Store
	data       *datasvc.Service
	dispatcher *Dispatcher
	log        *slog.Logger
}

// NewManager constructs a Manager wired to a candle store (for warm-up
// history) and a data service (for backfill when the store falls short).
func NewManager(registry *Registry, store *candlestore.Store, data *datasvc.Service, log *slog.Logger) *Manager {
	return &Manager{
		instances:  make(map[string]*instance),
		registry:   registry,
		store:      store,
		data:       data,
		dispatcher: NewDispatcher(),
		log:        log,
	}
}

// Create validates params, computes the minimum warm-up window, fetches
// (and backfills if short) historical candles, runs Init, and registers a
// new instance. Returns the instance key.
func (m *Manager) Create(ctx context.Context, provider, symbol, interval, indicatorID string, rawParams map[string]any) (string, error) {
	ind, err := m.registry.New(indicatorID)
	if err != nil {
		return "", err
	}
	params, err := ValidateAndFill(ind.ParamSchema(), rawParams)
	if err != nil {
		return "", err
	}

	minCandles := ind.MinCandles(params)
	storeKey := candlestore.Key(provider, symbol, interval)
	historical := m.store.LastN(storeKey, minCandles)

	if len(historical) < minCandles {
		historical = m.backfill(ctx, provider, symbol, interval, minCandles)
	}

	key := fmt.Sprintf("%s:%s:%s:%s:%s", provider, symbol, interval, indicatorID, shortRandom())
	inst := &instance{
		key:      key,
		provider: provider,
		symbol:   symbol,
		interval: interval,
		indID:    indicatorID,
		params:   params,
		ind:      ind,
	}
	inst.state = ind.Init(historical, params)

	m.mu.Lock()
	m.instances[key] = inst
	m.mu.Unlock()

	return key, nil
}

// backfill requests history directly from the provider when C3 doesn't yet
// hold enough candles (e.g. an instance created right after process start).
func (m *Manager) backfill(ctx context.Context, providerName, symbol, interval string, n int) []model.Candle {
	p, err := m.data.Provider(providerName)
	if err != nil {
		if m.log != nil {
			m.log.Warn("indicator: backfill skipped, unknown provider", "provider", providerName, "error", err)
		}
		return nil
	}
	candles, err := p.HistoricalKlines(ctx, symbol, interval, n)
	if err != nil {
		if m.log != nil {
			m.log.Warn("indicator: backfill failed", "provider", providerName, "symbol", symbol, "error", err)
		}
		return nil
	}
	return candles
}

// Destroy removes an instance and releases its state.
func (m *Manager) Destroy(key string) {
	m.mu.Lock()
	delete(m.instances, key)
	m.mu.Unlock()
	m.dispatcher.Close(key)
}

// Instances returns every live instance key, for introspection/stats.
func (m *Manager) Instances() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.instances))
	for k := range m.instances {
		keys = append(keys, k)
	}
	return keys
}

func (m *Manager) matching(provider, symbol, interval string, need DataType) []*instance {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*instance
	for _, inst := range m.instances {
		if inst.provider != provider || inst.symbol != symbol || inst.interval != interval {
			continue
		}
		if hasDataType(inst.ind.RequiredDataTypes(), need) {
			out = append(out, inst)
		}
	}
	return out
}

func hasDataType(types []DataType, want DataType) bool {
	for _, t := range types {
		if t == want {
			return true
		}
	}
	return false
}

// UpdateAllWithCandle feeds a closed candle to every instance on this
// (provider,symbol,interval) that declares it needs kline data, and
// returns one IndicatorResult per instance.
func (m *Manager) UpdateAllWithCandle(provider, symbol, interval string, candle model.Candle) []model.IndicatorResult {
	insts := m.matching(provider, symbol, interval, DataKline)

	var mu sync.Mutex
	results := make([]model.IndicatorResult, 0, len(insts))
	jobs := make(map[string]func(), len(insts))
	for _, inst := range insts {
		inst := inst
		jobs[inst.key] = func() {
			inst.mu.Lock()
			values, next, shapes := inst.ind.OnNewCandle(candle, inst.params, inst.state)
			inst.state = next
			inst.mu.Unlock()

			r := model.IndicatorResult{
				InstanceKey: inst.key,
				Symbol:      symbol,
				Provider:    provider,
				Interval:    interval,
				IndicatorID: inst.indID,
				TS:          candle.OpenTime.Unix(),
				Values:      values,
				Shapes:      DedupShapes(shapes),
				Ready:       true,
			}
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		}
	}
	m.dispatcher.DispatchAll(jobs)
	return results
}

// UpdateAllWithTrade feeds a trade to every instance declaring it needs
// trade or aggregate-trade data.
func (m *Manager) UpdateAllWithTrade(provider, symbol, interval string, trade model.Trade, aggregate bool) []model.IndicatorResult {
	want := DataTrade
	if aggregate {
		want = DataAggTrade
	}
	insts := m.matching(provider, symbol, interval, want)

	var mu sync.Mutex
	results := make([]model.IndicatorResult, 0, len(insts))
	jobs := make(map[string]func(), len(insts))
	for _, inst := range insts {
		inst := inst
		jobs[inst.key] = func() {
			inst.mu.Lock()
			values, next := inst.ind.OnTradeUpdate(trade, inst.params, inst.state)
			inst.state = next
			inst.mu.Unlock()
			if values == nil {
				return
			}
			r := model.IndicatorResult{
				InstanceKey: inst.key,
				Symbol:      symbol,
				Provider:    provider,
				Interval:    interval,
				IndicatorID: inst.indID,
				TS:          trade.TS.Unix(),
				Values:      values,
				Live:        true,
			}
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		}
	}
	m.dispatcher.DispatchAll(jobs)
	return results
}

// UpdateAllWithOrderBook feeds an order book snapshot to every instance
// declaring it needs order-book data.
func (m *Manager) UpdateAllWithOrderBook(provider, symbol, interval string, book model.OrderBookSnapshot) []model.IndicatorResult {
	insts := m.matching(provider, symbol, interval, DataOrderBook)

	var mu sync.Mutex
	results := make([]model.IndicatorResult, 0, len(insts))
	jobs := make(map[string]func(), len(insts))
	for _, inst := range insts {
		inst := inst
		jobs[inst.key] = func() {
			inst.mu.Lock()
			values, next := inst.ind.OnOrderBookUpdate(book, inst.params, inst.state)
			inst.state = next
			inst.mu.Unlock()
			if values == nil {
				return
			}
			r := model.IndicatorResult{
				InstanceKey: inst.key,
				Symbol:      symbol,
				Provider:    provider,
				Interval:    interval,
				IndicatorID: inst.indID,
				TS:          book.TS / 1000,
				Values:      values,
				Live:        true,
			}
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		}
	}
	m.dispatcher.DispatchAll(jobs)
	return results
}

// UpdateAllWithTick feeds a forming-candle preview price (sub-candle
// granularity) to every kline-consuming instance, without those
// instances committing the update to their persisted state the way
// OnNewCandle does — OnNewTick's own contract is "return last state
// unchanged" unless an indicator overrides it.
func (m *Manager) UpdateAllWithTick(provider, symbol, interval string, price fixedpoint.Value, ts int64) []model.IndicatorResult {
	insts := m.matching(provider, symbol, interval, DataKline)

	var mu sync.Mutex
	results := make([]model.IndicatorResult, 0, len(insts))
	jobs := make(map[string]func(), len(insts))
	for _, inst := range insts {
		inst := inst
		jobs[inst.key] = func() {
			inst.mu.Lock()
			values, _ := inst.ind.OnNewTick(price, inst.params, inst.state)
			inst.mu.Unlock()
			if values == nil {
				return
			}
			r := model.IndicatorResult{
				InstanceKey: inst.key,
				Symbol:      symbol,
				Provider:    provider,
				Interval:    interval,
				IndicatorID: inst.indID,
				TS:          ts,
				Values:      values,
				Live:        true,
			}
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		}
	}
	m.dispatcher.DispatchAll(jobs)
	return results
}

// CalculateHistorical replays Init then OnNewCandle progressively over
// candles and returns one Point per candle, with shapes deduplicated
// across the whole replay (not just within one candle) so a zone that
// stays active across many bars contributes a single shape.
func CalculateHistorical(ind Indicator, candles []model.Candle, params map[string]any) []Point {
	if len(candles) == 0 {
		return nil
	}
	state := ind.Init(nil, params)
	points := make([]Point, 0, len(candles))
	seen := make(map[string]struct{})

	for _, c := range candles {
		values, next, shapes := ind.OnNewCandle(c, params, state)
		state = next

		fresh := make([]model.Shape, 0, len(shapes))
		for _, s := range shapes {
			key := s.DedupKey()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			fresh = append(fresh, s)
		}
		points = append(points, Point{TS: c.OpenTime.Unix(), Values: values, Shapes: fresh})
	}
	return points
}

func shortRandom() string {
	id := uuid.New().String()
	return id[:8]
}
