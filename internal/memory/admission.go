// Package memory implements the admission policy applied before a model is
// materialized: a pre-load rejection when the model would not fit in the
// currently available memory, and a token-budget recommendation derived from
// the headroom left after loading.
package memory

import (
	"fmt"

	"github.com/elastic/go-sysinfo"
)

const gigabyte = 1 << 30

// Token budget tiers by headroom (GB) after subtracting the model size.
const (
	tierSmall  = 512
	tierMedium = 2048
	tierLarge  = 4096
	tierHuge   = 8192

	// minTokenBudget is the floor applied after tier selection. It dominates
	// the two lowest tiers; that interaction is deliberate and load-bearing.
	minTokenBudget = 4096
)

// admitFraction is the share of available memory a model may occupy.
const admitFraction = 0.8

// ActiveFunc reports the inference engine's currently active memory in bytes.
type ActiveFunc func() uint64

// Controller computes availability against the live memory state.
type Controller struct {
	total  func() (uint64, error)
	active ActiveFunc
}

// NewController builds a Controller probing platform total physical memory
// and subtracting the engine's active memory.
func NewController(active ActiveFunc) *Controller {
	return &Controller{total: hostTotalMemory, active: active}
}

// NewControllerWithTotal builds a Controller with a fixed total instead of
// the platform probe. Used when the operator caps memory by configuration,
// and by tests.
func NewControllerWithTotal(total uint64, active ActiveFunc) *Controller {
	return &Controller{
		total:  func() (uint64, error) { return total, nil },
		active: active,
	}
}

func hostTotalMemory() (uint64, error) {
	host, err := sysinfo.Host()
	if err != nil {
		return 0, err
	}
	mem, err := host.Memory()
	if err != nil {
		return 0, err
	}
	return mem.Total, nil
}

// Available returns total physical memory minus the engine's active memory,
// clamped at zero. A failed platform probe reports zero available, which
// makes AdmitLoad fail closed.
func (c *Controller) Available() uint64 {
	total, err := c.total()
	if err != nil {
		return 0
	}
	var active uint64
	if c.active != nil {
		active = c.active()
	}
	if active >= total {
		return 0
	}
	return total - active
}

// RecommendedTokenBudget maps memory headroom after loading a model of the
// given size to a generation token budget.
func (c *Controller) RecommendedTokenBudget(modelSizeBytes uint64) int {
	return RecommendedTokenBudget(c.Available(), modelSizeBytes)
}

// RecommendedTokenBudget is the pure tier computation: headroom =
// max(available-modelSize, 0) in GB, mapped to a tier, then floored at
// minTokenBudget. The floor wins for the two lowest tiers, so the effective
// mapping is {<=8: 4096, [8,16): 4096, [16,32): 4096, >32: 8192}.
func RecommendedTokenBudget(availableBytes, modelSizeBytes uint64) int {
	var headroom uint64
	if availableBytes > modelSizeBytes {
		headroom = availableBytes - modelSizeBytes
	}
	gb := float64(headroom) / float64(gigabyte)

	var tier int
	switch {
	case gb <= 8:
		tier = tierSmall
	case gb < 16:
		tier = tierMedium
	case gb <= 32:
		tier = tierLarge
	default:
		tier = tierHuge
	}
	if tier < minTokenBudget {
		return minTokenBudget
	}
	return tier
}

// AdmitLoad rejects a load whose on-disk size exceeds admitFraction of the
// currently available memory. It runs before any expensive materialization.
func (c *Controller) AdmitLoad(modelSizeBytes uint64) error {
	available := c.Available()
	if float64(modelSizeBytes) > admitFraction*float64(available) {
		return insufficientMemoryError{available: available, required: modelSizeBytes}
	}
	return nil
}

// insufficientMemoryError reports a pre-load admission rejection.
type insufficientMemoryError struct {
	available uint64
	required  uint64
}

func (e insufficientMemoryError) Error() string {
	return "insufficient memory: model requires " + formatBytes(e.required) +
		" but only " + formatBytes(e.available) + " available"
}

// Available returns the memory that was available at rejection time.
func (e insufficientMemoryError) Available() uint64 { return e.available }

// Required returns the model size that was rejected.
func (e insufficientMemoryError) Required() uint64 { return e.required }

// ErrInsufficientMemory constructs an insufficientMemoryError.
func ErrInsufficientMemory(available, required uint64) error {
	return insufficientMemoryError{available: available, required: required}
}

// IsInsufficientMemory reports whether err is an admission rejection.
func IsInsufficientMemory(err error) bool {
	_, ok := err.(insufficientMemoryError)
	return ok
}

// formatBytes renders a byte count as whole mebibytes for error messages.
func formatBytes(n uint64) string {
	return fmt.Sprintf("%d MiB", n/(1<<20))
}
