package models

// Instrument describes a forex pair: pip definition and pip value for one
// standard lot.
type Instrument struct {
	Symbol              string
	PipSize             float64
	DollarsPerPipPerLot float64
	Description         string
}

// Pips converts a pip count into a price delta for this instrument.
func (i Instrument) Pips(n float64) float64 {
	return n * i.PipSize
}

// Known instruments.
var (
	EURUSD = Instrument{
		Symbol:              "EURUSD",
		PipSize:             0.0001,
		DollarsPerPipPerLot: 10.0,
		Description:         "Euro vs US Dollar",
	}

	GBPJPY = Instrument{
		Symbol:              "GBPJPY",
		PipSize:             0.01,
		DollarsPerPipPerLot: 9.17,
		Description:         "British Pound vs Japanese Yen",
	}
)

var instruments = map[string]Instrument{
	EURUSD.Symbol: EURUSD,
	GBPJPY.Symbol: GBPJPY,
}

// InstrumentBySymbol looks up a known instrument.
func InstrumentBySymbol(symbol string) (Instrument, bool) {
	inst, ok := instruments[symbol]
	return inst, ok
}
