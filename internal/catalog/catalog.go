package catalog

// Agent describes a playable agent for preview rendering.
type Agent struct {
	ID   string
	Name string
	Icon string
}

// Map describes a playable map.
type Map struct {
	ID   string
	Name string
}

// Catalog resolves agent and map identifiers to display data. The upstream
// game API publishes these as UUID-keyed lists; here they are loaded once at
// startup and treated as immutable.
type Catalog struct {
	agents map[string]Agent
	maps   map[string]Map
}

// New builds a catalog from agent and map lists.
func New(agents []Agent, maps []Map) *Catalog {
	c := &Catalog{
		agents: make(map[string]Agent, len(agents)),
		maps:   make(map[string]Map, len(maps)),
	}
	for _, a := range agents {
		c.agents[a.ID] = a
	}
	for _, m := range maps {
		c.maps[m.ID] = m
	}
	return c
}

// Agent looks up an agent by identifier.
func (c *Catalog) Agent(id string) (Agent, bool) {
	a, ok := c.agents[id]
	return a, ok
}

// Map looks up a map by identifier.
func (c *Catalog) Map(id string) (Map, bool) {
	m, ok := c.maps[id]
	return m, ok
}

// Default returns the built-in catalog.
func Default() *Catalog {
	return New(defaultAgents, defaultMaps)
}

var defaultAgents = []Agent{
	{ID: "astra", Name: "Astra"},
	{ID: "breach", Name: "Breach"},
	{ID: "brimstone", Name: "Brimstone"},
	{ID: "chamber", Name: "Chamber"},
	{ID: "clove", Name: "Clove"},
	{ID: "cypher", Name: "Cypher"},
	{ID: "deadlock", Name: "Deadlock"},
	{ID: "fade", Name: "Fade"},
	{ID: "gekko", Name: "Gekko"},
	{ID: "harbor", Name: "Harbor"},
	{ID: "iso", Name: "Iso"},
	{ID: "jett", Name: "Jett"},
	{ID: "kayo", Name: "KAY/O"},
	{ID: "killjoy", Name: "Killjoy"},
	{ID: "neon", Name: "Neon"},
	{ID: "omen", Name: "Omen"},
	{ID: "phoenix", Name: "Phoenix"},
	{ID: "raze", Name: "Raze"},
	{ID: "reyna", Name: "Reyna"},
	{ID: "sage", Name: "Sage"},
	{ID: "skye", Name: "Skye"},
	{ID: "sova", Name: "Sova"},
	{ID: "tejo", Name: "Tejo"},
	{ID: "viper", Name: "Viper"},
	{ID: "vyse", Name: "Vyse"},
	{ID: "yoru", Name: "Yoru"},
}

var defaultMaps = []Map{
	{ID: "abyss", Name: "Abyss"},
	{ID: "ascent", Name: "Ascent"},
	{ID: "bind", Name: "Bind"},
	{ID: "breeze", Name: "Breeze"},
	{ID: "fracture", Name: "Fracture"},
	{ID: "haven", Name: "Haven"},
	{ID: "icebox", Name: "Icebox"},
	{ID: "lotus", Name: "Lotus"},
	{ID: "pearl", Name: "Pearl"},
	{ID: "split", Name: "Split"},
	{ID: "sunset", Name: "Sunset"},
}
