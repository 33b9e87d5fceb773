package sqlite

import (
	"questpulse/internal/engine"
)

// Ensure the SQLite store satisfies the engine's hierarchy contract.
var _ engine.HierarchyStore = (*HierarchyStore)(nil)
