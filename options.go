package deeppatch

import (
	"io"
	"log/slog"
)

// EqualFunc overrides equality for the pair a, b. returning ok = false
// declines, deferring to the built-in handlers
type EqualFunc func(a, b interface{}) (equal, ok bool)

// CloneFunc overrides cloning of v. returning ok = false declines
type CloneFunc func(v interface{}) (clone interface{}, ok bool)

// DiffFunc overrides diffing input against output at ptr. returning ok = false
// declines. A returned patch may use any encoding
type DiffFunc func(input, output interface{}, ptr Pointer) (patch Patch, ok bool)

// Config holds the parameters shared by Equal, Clone, Diff & Apply
type Config struct {
	// user override hooks, consulted before built-in handling
	Equal EqualFunc
	Clone CloneFunc
	Diff  DiffFunc
	// Encoding is the target encoding for Create, defaulting to
	// EncodingVerbose. Array edits are priced in it, except by Diff & DiffAt,
	// which price in compact unless an encoding is set with OptionEncoding
	Encoding Encoding
	encodingSet bool
	// Codec encodes single operation documents in the binary encoding.
	// a nil codec makes every binary conversion fail with ErrCodecUnavailable
	Codec DocumentCodec
	// Provide a non-nil stats pointer & diff will populate it with data from
	// the diff process
	Stats *Stats
	// Logger receives debug output. defaults to discarding everything
	Logger *slog.Logger
	// SkipUnknownOps makes Apply pass over operations with unrecognized
	// discriminators instead of rejecting the patch
	SkipUnknownOps bool
}

// Option is a function that adjusts a config, zero or more Options can be
// passed to any top-level function
type Option func(cfg *Config)

// OptionEqual sets an equality override hook
func OptionEqual(fn EqualFunc) Option {
	return func(cfg *Config) {
		cfg.Equal = fn
	}
}

// OptionClone sets a clone override hook
func OptionClone(fn CloneFunc) Option {
	return func(cfg *Config) {
		cfg.Clone = fn
	}
}

// OptionDiff sets a diff override hook
func OptionDiff(fn DiffFunc) Option {
	return func(cfg *Config) {
		cfg.Diff = fn
	}
}

// OptionEncoding selects the target patch encoding
func OptionEncoding(enc Encoding) Option {
	return func(cfg *Config) {
		cfg.Encoding = enc
		cfg.encodingSet = true
	}
}

// OptionCodec replaces the binary document codec
func OptionCodec(c DocumentCodec) Option {
	return func(cfg *Config) {
		cfg.Codec = c
	}
}

// OptionSetStats will set the passed-in stats pointer when Diff is called
func OptionSetStats(st *Stats) Option {
	return func(cfg *Config) {
		cfg.Stats = st
	}
}

// OptionLogger sets the debug logger
func OptionLogger(l *slog.Logger) Option {
	return func(cfg *Config) {
		cfg.Logger = l
	}
}

// OptionSkipUnknownOps makes Apply treat operations it doesn't recognize as
// no-ops
func OptionSkipUnknownOps() Option {
	return func(cfg *Config) {
		cfg.SkipUnknownOps = true
	}
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newConfig(opts []Option) *Config {
	cfg := &Config{
		Encoding: EncodingVerbose,
		Codec:    BSONCodec{},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = discardLogger
	}
	return cfg
}
