// Package vmstat renders one VM run's counters in human units for the
// CLI's -stats flag.
package vmstat

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/margarine-lang/marginc/internal/vmrun"
)

// Report couples a run's raw counters with its wall-clock time.
type Report struct {
	Elapsed time.Duration
	Stats   vmrun.RunStats
}

// Render formats the report, one counter per line.
func (r Report) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "elapsed:       %s\n", r.Elapsed.Round(time.Microsecond))
	fmt.Fprintf(&b, "instructions:  %s\n", humanize.Comma(int64(r.Stats.Instructions)))
	fmt.Fprintf(&b, "calls:         %s\n", humanize.Comma(int64(r.Stats.Calls)))
	fmt.Fprintf(&b, "allocations:   %s\n", humanize.Comma(int64(r.Stats.Allocations)))
	if r.Stats.CacheHits+r.Stats.CacheMisses > 0 {
		fmt.Fprintf(&b, "cache hits:    %s\n", humanize.Comma(int64(r.Stats.CacheHits)))
		fmt.Fprintf(&b, "cache misses:  %s\n", humanize.Comma(int64(r.Stats.CacheMisses)))
	}
	return b.String()
}
