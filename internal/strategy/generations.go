package strategy

// Generation bucket name prefixes. The suffix is the build version, so a new
// build yields a disjoint set of names and Activate sweeps the old ones.
const (
	staticPrefix  = "static-"
	apiPrefix     = "api-"
	runtimePrefix = "runtime-"
)

// Generations is the registry of cache generation names for one build.
type Generations struct {
	Static  string
	API     string
	Runtime string
}

// NewGenerations derives the generation names for a build version.
func NewGenerations(version string) Generations {
	if version == "" {
		version = "dev"
	}
	return Generations{
		Static:  staticPrefix + version,
		API:     apiPrefix + version,
		Runtime: runtimePrefix + version,
	}
}

// Known lists the current generation names.
func (g Generations) Known() []string {
	return []string{g.Static, g.API, g.Runtime}
}

// StaleGenerations returns the names in existing that are not in known:
// the generations a new build must purge. Pure set difference; order of
// existing is preserved.
func StaleGenerations(existing, known []string) []string {
	keep := make(map[string]struct{}, len(known))
	for _, name := range known {
		keep[name] = struct{}{}
	}
	var stale []string
	for _, name := range existing {
		if _, ok := keep[name]; !ok {
			stale = append(stale, name)
		}
	}
	return stale
}
