package domain

import (
	"time"

	"github.com/google/uuid"
)

// SignalType enumerates the closed set of signal kinds the core can
// emit. Anything outside this set is rejected at emit time — see
// NewSignal.
type SignalType string

const (
	SignalVolumeSpike         SignalType = "volume_spike"
	SignalPriceMovement       SignalType = "price_movement"
	SignalNewMarket           SignalType = "new_market"
	SignalActivity            SignalType = "activity"
	SignalMicrostructure      SignalType = "microstructure_anomaly"
	SignalCoordinatedMovement SignalType = "coordinated_cross_market"
	SignalFrontRunning        SignalType = "front_running"
)

// Severity ladders the urgency of the evidence behind a signal,
// independent of the priority the alert manager later assigns.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Metadata is a tagged union over the known signal types: exactly the
// field matching Signal.Type is populated, the rest are nil. This
// replaces the heterogeneous metadata bag of the system this core was
// distilled from with a closed, typed payload per variant.
type Metadata struct {
	VolumeSpike         *VolumeSpikeMeta
	PriceMovement       *PriceMovementMeta
	NewMarket           *NewMarketMeta
	Activity            *ActivityMeta
	Microstructure      *MicrostructureMeta
	CoordinatedMovement *CoordinatedMovementMeta
	FrontRunning        *FrontRunningMeta

	Severity Severity
}

type VolumeSpikeMeta struct {
	CurrentVolume   float64
	BaselineVolume  float64
	SpikeMultiplier float64
}

type PriceMovementMeta struct {
	Outcome          string
	DeltaPct         float64
	BaselineExpected float64
}

type NewMarketMeta struct {
	Volume        float64
	ActivityScore float64
}

type ActivityMeta struct {
	ActivityScore float64
}

type MicrostructureMeta struct {
	DepthZ        float64
	SpreadZ       float64
	ImbalanceZ    float64
	MicroPriceZ   float64
	LiquidityVacuum bool
}

type CoordinatedMovementMeta struct {
	ClusterID        string
	Members          []string
	AvgDeltaPct      float64
	CorrelationScore float64
}

type FrontRunningMeta struct {
	Score            float64
	Confidence       float64
	LeakProbability  float64
	TimeToNewsMins   float64
	CorrelatedCount  int
}

// Signal is a single detection emitted by a detector component,
// consumed by the alert manager.
type Signal struct {
	ID         string // uuid, assigned by NewSignal
	MarketID   string
	Market     *Market
	Type       SignalType
	Confidence float64 // [0,1]
	Timestamp  time.Time
	Metadata   Metadata
}

var knownSignalTypes = map[SignalType]bool{
	SignalVolumeSpike:         true,
	SignalPriceMovement:       true,
	SignalNewMarket:           true,
	SignalActivity:            true,
	SignalMicrostructure:      true,
	SignalCoordinatedMovement: true,
	SignalFrontRunning:        true,
}

// NewSignal validates typ against the closed set before construction.
// Emitting a signal outside the known set is a programming error, not
// a runtime condition to recover from, so it reports ok=false rather
// than panicking.
func NewSignal(marketID string, market *Market, typ SignalType, confidence float64, t time.Time, meta Metadata) (Signal, bool) {
	if !knownSignalTypes[typ] {
		return Signal{}, false
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return Signal{
		ID:         uuid.NewString(),
		MarketID:   marketID,
		Market:     market,
		Type:       typ,
		Confidence: confidence,
		Timestamp:  t,
		Metadata:   meta,
	}, true
}
