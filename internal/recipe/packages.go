package recipe

// enginePackages is the OS shared-library set a Chromium-class engine
// needs at launch. The list must stay a superset of the transitive
// shared-library needs of every installed engine: a missing entry does
// not break the build, it breaks the first browser launch.
var enginePackages = []string{
	// NSS / sandboxing
	"libnss3",
	"libnspr4",
	"libdbus-1-3",
	// accessibility toolkit
	"libatk1.0-0",
	"libatk-bridge2.0-0",
	"libatspi2.0-0",
	// rendering
	"libcairo2",
	"libpango-1.0-0",
	"libgbm1",
	"libdrm2",
	"libcups2",
	"libglib2.0-0",
	// X stack (headless still links these)
	"libx11-6",
	"libxcb1",
	"libxcomposite1",
	"libxdamage1",
	"libxext6",
	"libxfixes3",
	"libxi6",
	"libxkbcommon0",
	"libxrandr2",
	"libxtst6",
	// audio
	"libasound2",
	// fonts
	"fonts-liberation",
	"fonts-noto-color-emoji",
}

// basePackages are generic utilities every variant needs regardless of
// engine: TLS roots and the probe client used by HEALTHCHECK.
var basePackages = []string{
	"ca-certificates",
	"curl",
}

// EnginePackages returns a copy of the browser-engine shared-library set.
func EnginePackages() []string {
	out := make([]string, len(enginePackages))
	copy(out, enginePackages)
	return out
}

// BasePackages returns a copy of the generic OS utility set.
func BasePackages() []string {
	out := make([]string, len(basePackages))
	copy(out, basePackages)
	return out
}

// OSPackages returns the full ordered package list for a variant:
// generic utilities first, then the engine library set. Bundled-engine
// variants only need the generic utilities.
func (v Variant) OSPackages() []string {
	pkgs := BasePackages()
	if !v.EngineBundled {
		pkgs = append(pkgs, EnginePackages()...)
	}
	return pkgs
}
