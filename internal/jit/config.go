package jit

// Config holds the JIT's tunable knobs. Defaults match a conservative,
// always-correct configuration; Opts relax them for throughput.
type Config struct {
	MaxBlockSize         int
	LiteralOptimizations bool
	BranchOptimizations  bool
	FastMemory           bool
	InvalidLiterals      map[uint32]struct{}
}

func defaultConfig() Config {
	return Config{
		MaxBlockSize:    32,
		InvalidLiterals: make(map[uint32]struct{}),
	}
}

// Opt is a function that modifies a Cache's Config at construction time.
type Opt func(*Config)

// WithMaxBlockSize bounds how many guest instructions a single compiled
// block may span.
func WithMaxBlockSize(n int) Opt {
	return func(c *Config) { c.MaxBlockSize = n }
}

// WithLiteralOptimizations enables inlining of literal-pool loads directly
// into compiled code, at the cost of needing InvalidLiterals bookkeeping
// whenever a literal's backing memory is later overwritten.
func WithLiteralOptimizations() Opt {
	return func(c *Config) { c.LiteralOptimizations = true }
}

// WithBranchOptimizations enables inlining of direct branch targets that
// are already resident in the cache.
func WithBranchOptimizations() Opt {
	return func(c *Config) { c.BranchOptimizations = true }
}

// WithFastMemory enables the store-side fast path: InvalidateByAddress
// returns at once for a region holding no compiled code, before the
// per-address bitmap load.
func WithFastMemory() Opt {
	return func(c *Config) { c.FastMemory = true }
}

// MarkLiteralInvalid records a literal pool address that LiteralOptimizations
// must not inline, because its backing memory is known to change.
func MarkLiteralInvalid(addr uint32) Opt {
	return func(c *Config) { c.InvalidLiterals[addr] = struct{}{} }
}
