// Package gpu probes the host for NVIDIA GPUs via nvidia-smi.
//
// The probe is used only for health/status reporting: the synthesis engine
// selects its own device. A missing nvidia-smi binary or a non-zero exit is
// reported as "no GPU available", not as an error — CPU-only deployments are
// a supported configuration.
package gpu

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
)

// Info describes the GPUs visible to the process.
type Info struct {
	// Available reports whether at least one GPU was detected.
	Available bool `json:"available"`

	// Name is the first GPU's product name, empty when none are available.
	Name string `json:"name,omitempty"`

	// Count is the number of detected GPUs.
	Count int `json:"count"`

	// MemoryTotalGB is the first GPU's total memory in gibibytes, 0 when
	// unavailable.
	MemoryTotalGB float64 `json:"memory_total_gb,omitempty"`
}

// Probe queries nvidia-smi for the installed GPUs. It never returns an
// error: any failure to run or parse the tool yields a zero Info.
func Probe(ctx context.Context) Info {
	out, err := exec.CommandContext(ctx, "nvidia-smi",
		"--query-gpu=name,memory.total",
		"--format=csv,noheader,nounits",
	).Output()
	if err != nil {
		return Info{}
	}
	return parseQueryOutput(string(out))
}

// parseQueryOutput parses one "name, memory" line per GPU.
func parseQueryOutput(out string) Info {
	var info Info
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		info.Count++
		if info.Count > 1 {
			continue
		}

		name, mem := line, ""
		if idx := strings.LastIndex(line, ","); idx >= 0 {
			name, mem = strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:])
		}
		info.Name = name
		if mib, err := strconv.ParseFloat(mem, 64); err == nil {
			// nvidia-smi reports MiB with nounits.
			info.MemoryTotalGB = float64(int(mib/1024*100)) / 100
		}
	}
	info.Available = info.Count > 0
	return info
}
