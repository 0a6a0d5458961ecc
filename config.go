package wit

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/tetratelabs/wit/api"
	"github.com/tetratelabs/wit/internal/engine"
)

// RuntimeConfig controls runtime behavior, with the default implementation
// as NewRuntimeConfig.
type RuntimeConfig struct {
	engine engine.Engine
	logger logrus.FieldLogger
}

// NewRuntimeConfig returns the default configuration: wazero-backed
// execution and a discarded log.
func NewRuntimeConfig() *RuntimeConfig {
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	return &RuntimeConfig{
		engine: engine.NewWazeroEngine(),
		logger: discard,
	}
}

// clone ensures all fields are copied even if nil.
func (c *RuntimeConfig) clone() *RuntimeConfig {
	return &RuntimeConfig{engine: c.engine, logger: c.logger}
}

// WithLogger routes runtime diagnostics (module loads, calls, failures) to
// the given logger. Defaults to a discarded log.
func (c *RuntimeConfig) WithLogger(logger logrus.FieldLogger) *RuntimeConfig {
	ret := c.clone()
	ret.logger = logger
	return ret
}

// withEngine substitutes the executor; tests use it to run against a fake.
func (c *RuntimeConfig) withEngine(e engine.Engine) *RuntimeConfig {
	ret := c.clone()
	ret.engine = e
	return ret
}

// HostImportFunc implements one typed host import: it receives lifted
// argument values and returns the result values.
type HostImportFunc func(ctx context.Context, args []api.IValue) ([]api.IValue, error)

// ModuleConfig tunes one LoadModule call.
type ModuleConfig struct {
	memoryLimitPages uint32
	hostImports      map[string]HostImportFunc
}

// NewModuleConfig returns the default per-module configuration.
func NewModuleConfig() *ModuleConfig {
	return &ModuleConfig{hostImports: map[string]HostImportFunc{}}
}

func (c *ModuleConfig) clone() *ModuleConfig {
	imports := make(map[string]HostImportFunc, len(c.hostImports))
	for k, v := range c.hostImports {
		imports[k] = v
	}
	return &ModuleConfig{memoryLimitPages: c.memoryLimitPages, hostImports: imports}
}

// WithMemoryLimitPages caps the module's linear memory, in 64KiB pages.
// Zero keeps the executor default.
func (c *ModuleConfig) WithMemoryLimitPages(pages uint32) *ModuleConfig {
	ret := c.clone()
	ret.memoryLimitPages = pages
	return ret
}

// WithHostImport resolves the module's typed import (namespace, name) with a
// host function instead of another loaded module's export.
func (c *ModuleConfig) WithHostImport(namespace, name string, fn HostImportFunc) *ModuleConfig {
	ret := c.clone()
	ret.hostImports[importKey(namespace, name)] = fn
	return ret
}

func importKey(namespace, name string) string { return namespace + "." + name }
