// Package clusters holds the ZCL cluster definitions carried by the
// lamp's endpoints.
package clusters

import "lampd/internal/zcl"

// Standard returns the cluster set registered at startup.
func Standard() []zcl.ClusterDef {
	return []zcl.ClusterDef{Basic, Identify, OnOff, LevelControl, ColorControl}
}
