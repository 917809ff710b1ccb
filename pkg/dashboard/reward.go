package dashboard

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/nicktill/carbondash/pkg/emission"
)

// messages formats reward text with English digit grouping.
var messages = message.NewPrinter(language.English)

// DefaultPointsPerKG is the reward scale: points earned per kg reduced.
const DefaultPointsPerKG = 10

// State tags a Reward.
type State string

const (
	StateReward     State = "REWARD"
	StateIncreased  State = "INCREASED"
	StateNoPrevious State = "NO_PREVIOUS_DATA"
)

// Message levels shown with a reward.
const (
	LevelSuccess = "success"
	LevelWarning = "warning"
	LevelInfo    = "info"
)

// Reward is the period-over-period comparison of two totals.
type Reward struct {
	State          State           `json:"state"`
	Points         int64           `json:"points"`
	ReductionKG    decimal.Decimal `json:"reduction_kg"`
	CurrentKG      decimal.Decimal `json:"current_kg"`
	PreviousKG     decimal.Decimal `json:"previous_kg"`
	PreviousPeriod string          `json:"previous_period,omitempty"`
	Level          string          `json:"level"`
	Message        string          `json:"message"`
}

// PreviousMonth returns the month before month ("01".."12"). January has no
// previous month: ok is false and no year wrap is attempted.
func PreviousMonth(month string) (prev string, ok bool, err error) {
	if !emission.ValidMonth(month) {
		return "", false, fmt.Errorf("%w: %q", ErrInvalidMonth, month)
	}
	m, _ := strconv.Atoi(month)
	if m == 1 {
		return "", false, nil
	}
	return fmt.Sprintf("%02d", m-1), true, nil
}

// PreviousYearMonth is PreviousMonth for "YYYY-MM" keys, under the same
// January policy.
func PreviousYearMonth(ym string) (prev string, ok bool, err error) {
	if !emission.ValidYearMonth(ym) {
		return "", false, fmt.Errorf("%w: %q", ErrInvalidMonth, ym)
	}
	pm, ok, err := PreviousMonth(ym[5:])
	if err != nil || !ok {
		return "", ok, err
	}
	return ym[:5] + pm, true, nil
}

// Calculator turns two totals into a Reward.
type Calculator struct {
	PointsPerKG int64
}

// Compare rates current against previous. A nil previous means the period
// has no predecessor; a previous total without rows means it has no data.
func (c Calculator) Compare(current Total, previous *Total, previousPeriod string) Reward {
	r := Reward{
		CurrentKG:      current.KG,
		PreviousKG:     decimal.Zero,
		ReductionKG:    decimal.Zero,
		PreviousPeriod: previousPeriod,
	}
	if previous == nil || previous.Rows == 0 {
		r.State = StateNoPrevious
		r.Level = LevelInfo
		r.Message = "No data for the previous period, nothing to compare."
		return r
	}

	r.PreviousKG = previous.KG
	delta := previous.KG.Sub(current.KG)
	if !delta.IsPositive() {
		r.State = StateIncreased
		r.Level = LevelWarning
		r.Message = "Emissions went up this period. Try to cut back next time!"
		return r
	}

	scale := c.PointsPerKG
	if scale <= 0 {
		scale = DefaultPointsPerKG
	}
	r.State = StateReward
	r.Level = LevelSuccess
	r.ReductionKG = delta
	r.Points = delta.Mul(decimal.NewFromInt(scale)).RoundBank(0).IntPart()
	r.Message = messages.Sprintf("You cut %d kg CO2e versus the previous period and earned %d points!",
		delta.RoundBank(0).IntPart(), r.Points)
	return r
}
