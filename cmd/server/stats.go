package main

import (
	"time"

	"github.com/rigshare/rigshare/internal/gate"
)

// Stats represents current relay occupancy for dashboards & API.
type Stats struct {
	Sharer     bool   `json:"sharer"`
	Controller bool   `json:"controller"`
	Status     bool   `json:"status"`
	Sessions   int    `json:"sessions"`
	Uptime     string `json:"uptime"`
	Now        string `json:"now"`
}

func collectStats(g *gate.Gate, started time.Time) Stats {
	occ := g.Snapshot()
	sessions := 0
	for _, b := range []bool{occ.Sharer, occ.Controller, occ.Status} {
		if b {
			sessions++
		}
	}
	return Stats{
		Sharer:     occ.Sharer,
		Controller: occ.Controller,
		Status:     occ.Status,
		Sessions:   sessions,
		Uptime:     time.Since(started).Round(time.Second).String(),
		Now:        time.Now().UTC().Format(time.RFC3339),
	}
}

// ToTemplateMap returns a map suited for html/template rendering with expected capitalized keys.
func (s Stats) ToTemplateMap() map[string]any {
	return map[string]any{
		"Sharer":     s.Sharer,
		"Controller": s.Controller,
		"Status":     s.Status,
		"Sessions":   s.Sessions,
		"Uptime":     s.Uptime,
	}
}
