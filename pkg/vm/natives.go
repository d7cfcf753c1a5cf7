package vm

import (
	"time"

	"github.com/kristofer/nvmbr/pkg/value"
)

var startTime = time.Now()

// clockNative backs the `clock` global: seconds elapsed since the VM
// started, the one native function the language this was distilled
// from provides. Go has no direct equivalent of C's clock()/CLOCKS_PER_SEC
// (that measures CPU time, not wall time), so this uses wall-clock
// elapsed time instead — close enough for the benchmark scripts that are
// clock's only real use.
func clockNative(args []value.Value) (value.Value, error) {
	return value.Number(time.Since(startTime).Seconds()), nil
}
