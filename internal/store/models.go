package store

import "time"

// NodeInfo holds the persistent identity of this lamp. UniqueID is
// generated once on first boot and never changes; Home Assistant
// discovery and the MQTT client ID are derived from it.
type NodeInfo struct {
	UniqueID  string    `json:"unique_id"`
	FirstBoot time.Time `json:"first_boot"`
	BootCount uint32    `json:"boot_count"`
}
