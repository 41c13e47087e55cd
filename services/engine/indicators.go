package engine

import "math"

// IndicatorSnapshot is the rolling indicator state after one candle.
// Values are only meaningful once the engine reports Ready.
type IndicatorSnapshot struct {
	RSI        float64
	ATR        float64
	ROC        float64
	Volatility float64 // stddev of trailing pct returns, in percent
	AvgVolume  float64
}

// IndicatorEngine computes RSI, ATR, ROC, volatility and average volume from
// a bounded history buffer, one candle at a time. It never sees future
// candles.
type IndicatorEngine struct {
	rsiPeriod    int
	atrPeriod    int
	rocPeriod    int
	volWindow    int
	volumePeriod int

	closes     []float64
	trueRanges []float64
	volumes    []float64
	returns    []float64

	avgGain   float64
	avgLoss   float64
	rsiCount  int
	prevClose float64
	hasPrev   bool
}

func NewIndicatorEngine(p StrategyParameters) *IndicatorEngine {
	return &IndicatorEngine{
		rsiPeriod:    p.RSIPeriod,
		atrPeriod:    p.ATRPeriod,
		rocPeriod:    p.ROCPeriod,
		volWindow:    p.VolatilityWindow,
		volumePeriod: p.VolumeAvgPeriod,
	}
}

// Update ingests one candle and returns the snapshot after it.
func (e *IndicatorEngine) Update(c Candle) IndicatorSnapshot {
	closePx := c.Close.InexactFloat64()
	high := c.High.InexactFloat64()
	low := c.Low.InexactFloat64()

	// True range needs the previous close; first bar degenerates to high-low.
	tr := high - low
	if e.hasPrev {
		tr = math.Max(tr, math.Max(math.Abs(high-e.prevClose), math.Abs(low-e.prevClose)))
	}
	e.trueRanges = appendBounded(e.trueRanges, tr, e.atrPeriod)

	if e.hasPrev {
		e.updateRSI(closePx - e.prevClose)
		if e.prevClose != 0 {
			e.returns = appendBounded(e.returns, 100*(closePx-e.prevClose)/e.prevClose, e.volWindow)
		}
	}

	e.closes = appendBounded(e.closes, closePx, e.rocPeriod+1)
	e.volumes = appendBounded(e.volumes, c.Volume.InexactFloat64(), e.volumePeriod)
	e.prevClose = closePx
	e.hasPrev = true

	return IndicatorSnapshot{
		RSI:        e.rsi(),
		ATR:        mean(e.trueRanges),
		ROC:        e.roc(),
		Volatility: stddev(e.returns),
		AvgVolume:  mean(e.volumes),
	}
}

// Ready reports whether every configured window has enough history. Until
// then every signal is a forced hold, not an error.
func (e *IndicatorEngine) Ready() bool {
	return e.rsiCount >= e.rsiPeriod &&
		len(e.trueRanges) >= e.atrPeriod &&
		len(e.closes) >= e.rocPeriod+1 &&
		len(e.returns) >= e.volWindow &&
		len(e.volumes) >= e.volumePeriod
}

// Wilder's smoothing: simple average while accumulating the first window,
// then avg = (avg*(n-1) + x) / n.
func (e *IndicatorEngine) updateRSI(change float64) {
	gain, loss := 0.0, 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}
	e.rsiCount++
	n := float64(e.rsiPeriod)
	if e.rsiCount <= e.rsiPeriod {
		k := float64(e.rsiCount)
		e.avgGain = (e.avgGain*(k-1) + gain) / k
		e.avgLoss = (e.avgLoss*(k-1) + loss) / k
		return
	}
	e.avgGain = (e.avgGain*(n-1) + gain) / n
	e.avgLoss = (e.avgLoss*(n-1) + loss) / n
}

func (e *IndicatorEngine) rsi() float64 {
	if e.rsiCount == 0 {
		return 0
	}
	if e.avgLoss == 0 {
		return 100
	}
	rs := e.avgGain / e.avgLoss
	return 100 - 100/(1+rs)
}

func (e *IndicatorEngine) roc() float64 {
	if len(e.closes) < e.rocPeriod+1 {
		return 0
	}
	base := e.closes[len(e.closes)-1-e.rocPeriod]
	if base == 0 {
		return 0
	}
	return 100 * (e.closes[len(e.closes)-1] - base) / base
}

func appendBounded(buf []float64, v float64, max int) []float64 {
	buf = append(buf, v)
	if len(buf) > max {
		buf = buf[len(buf)-max:]
	}
	return buf
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// stddev is the population standard deviation.
func stddev(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	m := mean(vals)
	ss := 0.0
	for _, v := range vals {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(vals)))
}
