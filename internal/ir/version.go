package ir

// Version constants for the graph schema and engine.
const (
	// IRVersion is the graph and trace schema version.
	IRVersion = "1"

	// EngineVersion is the dfsim engine version.
	EngineVersion = "0.1.0"
)
