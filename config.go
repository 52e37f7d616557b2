package flint

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/joho/godotenv"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvBackend         = "FLINT_BACKEND"
	EnvBackendPriority = "FLINT_BACKEND_PRIORITY"
	EnvCacheDirectory  = "FLINT_CACHE_DIR"
	EnvCacheExtension  = "FLINT_CACHE_EXT"
	EnvThreadCount     = "FLINT_THREADS"
	EnvBufferCount     = "FLINT_BUFFER_COUNT"
	EnvCacheEntries    = "FLINT_CACHE_ENTRIES"
	EnvVSync           = "FLINT_VSYNC"
)

// Default configuration values.
const (
	// DefaultCacheExtension is the pipeline cache file extension.
	DefaultCacheExtension = "fpc"

	// DefaultBufferCount is the default number of frames in flight.
	DefaultBufferCount = 2

	// DefaultCacheEntries bounds the in-memory pipeline cache layer.
	DefaultCacheEntries = 64
)

// Config holds startup configuration for an Instance and everything created
// from it. It replaces process-wide settings: pass it to NewInstance.
type Config struct {
	// Backend selects a registered HAL backend by name ("vulkan", "metal",
	// "dx12", "gl", "empty"). Empty picks the best registered backend.
	Backend string

	// BackendPriority orders backends considered when Backend is empty.
	BackendPriority []string

	// CacheDirectory is where pipeline cache files are written.
	CacheDirectory string

	// CacheExtension is the pipeline cache file extension, without the dot.
	CacheExtension string

	// CacheEntries bounds the in-memory pipeline cache layer. Zero disables it.
	CacheEntries int

	// ThreadCount is the default recording thread count for render targets
	// created by helpers that do not take an explicit count.
	ThreadCount int

	// BufferCount is the default number of frames in flight.
	BufferCount uint32

	// VSync selects FIFO presentation for screen bound render targets.
	VSync bool

	// Limits are requested when opening a device.
	Limits gputypes.Limits
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		BackendPriority: []string{"vulkan", "metal", "dx12", "gl", "empty"},
		CacheDirectory:  filepath.Join("Flint", "Cache", "Pipelines"),
		CacheExtension:  DefaultCacheExtension,
		CacheEntries:    DefaultCacheEntries,
		ThreadCount:     1,
		BufferCount:     DefaultBufferCount,
		VSync:           true,
		Limits:          gputypes.DefaultLimits(),
	}
}

// ConfigFromEnv returns DefaultConfig overridden by FLINT_* environment
// variables. Malformed numeric values are reported as invalid arguments.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v, ok := os.LookupEnv(EnvBackend); ok {
		cfg.Backend = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := os.LookupEnv(EnvBackendPriority); ok {
		cfg.BackendPriority = splitList(v)
	}
	if v, ok := os.LookupEnv(EnvCacheDirectory); ok {
		cfg.CacheDirectory = v
	}
	if v, ok := os.LookupEnv(EnvCacheExtension); ok {
		cfg.CacheExtension = strings.TrimPrefix(v, ".")
	}
	if v, ok := os.LookupEnv(EnvThreadCount); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, invalidArgument("flint: %s=%q: %v", EnvThreadCount, v, err)
		}
		cfg.ThreadCount = n
	}
	if v, ok := os.LookupEnv(EnvBufferCount); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return Config{}, invalidArgument("flint: %s=%q: %v", EnvBufferCount, v, err)
		}
		cfg.BufferCount = uint32(n)
	}
	if v, ok := os.LookupEnv(EnvCacheEntries); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, invalidArgument("flint: %s=%q: %v", EnvCacheEntries, v, err)
		}
		cfg.CacheEntries = n
	}
	if v, ok := os.LookupEnv(EnvVSync); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, invalidArgument("flint: %s=%q: %v", EnvVSync, v, err)
		}
		cfg.VSync = b
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads FLINT_* variables from the given .env files and then
// builds the configuration with ConfigFromEnv. Variables already set in the
// environment win over the files. Missing files are skipped.
func LoadConfig(files ...string) (Config, error) {
	present := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) > 0 {
		if err := godotenv.Load(present...); err != nil {
			return Config{}, errors.Wrapf(err, "flint: load %s", strings.Join(present, ", "))
		}
	}
	return ConfigFromEnv()
}

// Validate checks the configuration for values no component can use.
func (c Config) Validate() error {
	if c.ThreadCount < 0 {
		return invalidArgument("flint: thread count %d is negative", c.ThreadCount)
	}
	if c.BufferCount == 0 {
		return invalidArgument("flint: buffer count must be at least 1")
	}
	if c.CacheEntries < 0 {
		return invalidArgument("flint: cache entries %d is negative", c.CacheEntries)
	}
	if strings.ContainsAny(c.CacheExtension, `/\`) {
		return invalidArgument("flint: cache extension %q contains a path separator", c.CacheExtension)
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
