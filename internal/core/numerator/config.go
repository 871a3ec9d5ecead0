// Package numerator provides domain contracts for document auto-numbering.
// Storage implementations live in pkg/numerator and the memory store.
package numerator

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Period defines how often a sequence restarts.
type Period string

const (
	// PeriodMonth keys the sequence by YYYYMM and embeds it in the number.
	PeriodMonth Period = "month"
	// PeriodNone uses one global sequence.
	PeriodNone Period = "none"
)

// GlobalPeriodKey is the period key of sequences that never reset.
const GlobalPeriodKey = "all"

// Config holds numbering configuration.
type Config struct {
	// Prefix added to all numbers (e.g., "CHN", "PINV") and used as the
	// sequence type.
	Prefix string

	// Period selects the reset period
	Period Period

	// PadWidth is the minimum width of the sequence part (default 4)
	PadWidth int
}

// Document numbering used by the workflow engines.
var (
	TransferNumbers     = Config{Prefix: "CHN", Period: PeriodMonth, PadWidth: 4}
	PurchaseNumbers     = Config{Prefix: "PINV", Period: PeriodMonth, PadWidth: 4}
	StockRequestNumbers = Config{Prefix: "REQ", Period: PeriodMonth, PadWidth: 4}
	SupplierNumbers     = Config{Prefix: "SUP", Period: PeriodNone, PadWidth: 4}
)

// PeriodKey returns the counter period for a moment in time.
func (c Config) PeriodKey(at time.Time) string {
	if c.Period == PeriodMonth {
		return at.UTC().Format("200601")
	}
	return GlobalPeriodKey
}

// Format builds the human-readable number, e.g. CHN-202501-0001 or SUP-0001.
// Sequences wider than PadWidth are printed in full.
func (c Config) Format(at time.Time, seq int64) string {
	width := c.PadWidth
	if width <= 0 {
		width = 4
	}
	if c.Period == PeriodMonth {
		return fmt.Sprintf("%s-%s-%0*d", c.Prefix, c.PeriodKey(at), width, seq)
	}
	return fmt.Sprintf("%s-%0*d", c.Prefix, width, seq)
}

// ParseSequence extracts the numeric suffix of a formatted number.
func ParseSequence(number string) (int64, error) {
	i := strings.LastIndexByte(number, '-')
	if i < 0 || i == len(number)-1 {
		return 0, fmt.Errorf("malformed document number %q", number)
	}
	n, err := strconv.ParseInt(number[i+1:], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed document number %q: %w", number, err)
	}
	return n, nil
}
