package route

import (
	"sort"

	"github.com/gin-gonic/gin"
)

// Loader initializes routes on the gin engine.
type Loader func(r *gin.Engine) error

// Plugin represents a route plugin with an order for deterministic mount
// sequence. Order 0 is reserved for system routes (health, metrics).
type Plugin struct {
	Order  int
	Loader Loader
}

var plugins []Plugin

// Register adds a route plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Loaders returns all registered loaders sorted by order.
func Loaders() []Loader {
	sorted := make([]Plugin, len(plugins))
	copy(sorted, plugins)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	loaders := make([]Loader, len(sorted))
	for i, p := range sorted {
		loaders[i] = p.Loader
	}
	return loaders
}
