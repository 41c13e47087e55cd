// Package arrowfeed exchanges candle series and equity curves as Arrow IPC
// streams, the wire format used for bulk transfer in and out of the service.
package arrowfeed

import (
	"bytes"
	"fmt"
	"io"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/shopspring/decimal"

	"reversal-backtest/services/engine"
)

var candleSchema = arrow.NewSchema([]arrow.Field{
	{Name: "timestamp", Type: arrow.PrimitiveTypes.Int64},
	{Name: "open", Type: arrow.PrimitiveTypes.Float64},
	{Name: "high", Type: arrow.PrimitiveTypes.Float64},
	{Name: "low", Type: arrow.PrimitiveTypes.Float64},
	{Name: "close", Type: arrow.PrimitiveTypes.Float64},
	{Name: "volume", Type: arrow.PrimitiveTypes.Float64},
}, nil)

var equitySchema = arrow.NewSchema([]arrow.Field{
	{Name: "timestamp", Type: arrow.PrimitiveTypes.Int64},
	{Name: "equity", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// EncodeCandles serializes candles as a single-record Arrow IPC stream.
func EncodeCandles(candles []engine.Candle) ([]byte, error) {
	pool := memory.NewGoAllocator()

	n := len(candles)
	timestamps := make([]int64, n)
	opens := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	volumes := make([]float64, n)
	for i, c := range candles {
		timestamps[i] = c.Timestamp
		opens[i] = c.Open.InexactFloat64()
		highs[i] = c.High.InexactFloat64()
		lows[i] = c.Low.InexactFloat64()
		closes[i] = c.Close.InexactFloat64()
		volumes[i] = c.Volume.InexactFloat64()
	}

	tsB := array.NewInt64Builder(pool)
	tsB.AppendValues(timestamps, nil)
	cols := []arrow.Array{tsB.NewInt64Array()}
	for _, vals := range [][]float64{opens, highs, lows, closes, volumes} {
		b := array.NewFloat64Builder(pool)
		b.AppendValues(vals, nil)
		cols = append(cols, b.NewFloat64Array())
	}

	record := array.NewRecord(candleSchema, cols, int64(n))
	defer record.Release()

	var buf bytes.Buffer
	writer := ipc.NewWriter(&buf, ipc.WithSchema(candleSchema))
	if err := writer.Write(record); err != nil {
		return nil, fmt.Errorf("write arrow record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close arrow writer: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeCandles reads an Arrow IPC stream produced by EncodeCandles (or any
// stream matching its schema) back into candles.
func DecodeCandles(r io.Reader) ([]engine.Candle, error) {
	reader, err := ipc.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open arrow reader: %w", err)
	}
	defer reader.Release()

	var out []engine.Candle
	for reader.Next() {
		rec := reader.Record()
		if rec.NumCols() < 6 {
			return nil, fmt.Errorf("arrow record has %d columns, want 6", rec.NumCols())
		}
		ts, ok := rec.Column(0).(*array.Int64)
		if !ok {
			return nil, fmt.Errorf("timestamp column is %s, want int64", rec.Column(0).DataType())
		}
		floatCols := make([]*array.Float64, 5)
		for i := 1; i <= 5; i++ {
			f, ok := rec.Column(i).(*array.Float64)
			if !ok {
				return nil, fmt.Errorf("column %d is %s, want float64", i, rec.Column(i).DataType())
			}
			floatCols[i-1] = f
		}
		for i := 0; i < int(rec.NumRows()); i++ {
			out = append(out, engine.Candle{
				Timestamp: ts.Value(i),
				Open:      decimal.NewFromFloat(floatCols[0].Value(i)),
				High:      decimal.NewFromFloat(floatCols[1].Value(i)),
				Low:       decimal.NewFromFloat(floatCols[2].Value(i)),
				Close:     decimal.NewFromFloat(floatCols[3].Value(i)),
				Volume:    decimal.NewFromFloat(floatCols[4].Value(i)),
			})
		}
	}
	if err := reader.Err(); err != nil && err != io.EOF {
		return nil, err
	}
	return out, nil
}

// EncodeEquityCurve serializes an equity curve for bulk download.
func EncodeEquityCurve(curve []engine.EquityPoint) ([]byte, error) {
	pool := memory.NewGoAllocator()

	n := len(curve)
	timestamps := make([]int64, n)
	equities := make([]float64, n)
	for i, p := range curve {
		timestamps[i] = p.Timestamp
		equities[i] = p.Equity.InexactFloat64()
	}

	tsB := array.NewInt64Builder(pool)
	tsB.AppendValues(timestamps, nil)
	eqB := array.NewFloat64Builder(pool)
	eqB.AppendValues(equities, nil)

	record := array.NewRecord(equitySchema, []arrow.Array{tsB.NewInt64Array(), eqB.NewFloat64Array()}, int64(n))
	defer record.Release()

	var buf bytes.Buffer
	writer := ipc.NewWriter(&buf, ipc.WithSchema(equitySchema))
	if err := writer.Write(record); err != nil {
		return nil, fmt.Errorf("write arrow record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close arrow writer: %w", err)
	}
	return buf.Bytes(), nil
}
