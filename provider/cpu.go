package provider

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// CPUInfo reports the processor model, core counts, clock frequency and
// total memory of the host under "cpu".
type CPUInfo struct {
	// FrequencyUnit is one of Hz, kHz, MHz (default) or GHz.
	FrequencyUnit string
	// MemoryUnit is one of B, kB, MB, GB (default), KiB, MiB or GiB.
	MemoryUnit string
}

var frequencyScale = map[string]float64{"Hz": 1e-6, "kHz": 1e-3, "MHz": 1, "GHz": 1e3}

var memoryScale = map[string]float64{
	"B": 1, "kB": 1e3, "MB": 1e6, "GB": 1e9,
	"KiB": 1 << 10, "MiB": 1 << 20, "GiB": 1 << 30,
}

// Provide implements record.Provider.
func (c CPUInfo) Provide(ctx context.Context) (map[string]any, error) {
	freqUnit := c.FrequencyUnit
	if freqUnit == "" {
		freqUnit = "MHz"
	}
	memUnit := c.MemoryUnit
	if memUnit == "" {
		memUnit = "GB"
	}
	fscale, ok := frequencyScale[freqUnit]
	if !ok {
		return nil, fmt.Errorf("cpu info: unknown frequency unit %q", freqUnit)
	}
	mscale, ok := memoryScale[memUnit]
	if !ok {
		return nil, fmt.Errorf("cpu info: unknown memory unit %q", memUnit)
	}

	info := map[string]any{}
	stats, err := cpu.InfoWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("cpu info: %w", err)
	}
	if len(stats) > 0 {
		info["model"] = stats[0].ModelName
		info["vendor"] = stats[0].VendorID
		info["frequency"] = stats[0].Mhz / fscale
		info["frequency_unit"] = freqUnit
	}
	if n, err := cpu.CountsWithContext(ctx, false); err == nil {
		info["num_cpus"] = n
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		info["num_logical_cpus"] = n
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("memory info: %w", err)
	}
	info["total_memory"] = float64(vm.Total) / mscale
	info["memory_unit"] = memUnit
	info["total_memory_human"] = humanize.IBytes(vm.Total)
	return map[string]any{"cpu": info}, nil
}
