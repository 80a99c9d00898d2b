package common

import (
	"os"
	"runtime"
	"runtime/debug"

	"github.com/rs/zerolog/log"
)

const gib = 1024 * 1024 * 1024

// RuntimeProfile is the GC and memory setting for a server size. Routing
// mostly waits on RPC, so the profiles favour fewer GC cycles over a small
// heap; quote batches allocate many short-lived big.Ints.
type RuntimeProfile struct {
	Name     string
	GOGC     int
	MemLimit int64
}

var (
	SmallProfile  = RuntimeProfile{Name: "small", GOGC: 200, MemLimit: 2 * gib}
	MediumProfile = RuntimeProfile{Name: "medium", GOGC: 400, MemLimit: 6 * gib}
	LargeProfile  = RuntimeProfile{Name: "large", GOGC: 400, MemLimit: 12 * gib}
)

// ProfileFor picks a profile from the CPU count. RAM detection needs cgo or
// /proc parsing, so cores stand in for machine size.
func ProfileFor(numCPU int) RuntimeProfile {
	switch {
	case numCPU <= 2:
		return SmallProfile
	case numCPU <= 8:
		return MediumProfile
	default:
		return LargeProfile
	}
}

// InitRuntime applies the detected profile. GOGC and GOMEMLIMIT set in the
// environment win.
func InitRuntime() RuntimeProfile {
	profile := ProfileFor(runtime.NumCPU())

	if os.Getenv("GOGC") == "" {
		debug.SetGCPercent(profile.GOGC)
	}
	if os.Getenv("GOMEMLIMIT") == "" {
		debug.SetMemoryLimit(profile.MemLimit)
	}

	log.Info().
		Str("profile", profile.Name).
		Int("num_cpu", runtime.NumCPU()).
		Int("gomaxprocs", runtime.GOMAXPROCS(0)).
		Int("gogc", profile.GOGC).
		Float64("memlimit_gb", float64(profile.MemLimit)/gib).
		Str("go_version", runtime.Version()).
		Msg("[runtime] settings applied")
	return profile
}
