package station

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Meta is the read-only metadata the directory holds for one station.
type Meta struct {
	StationID string   `json:"stno"`
	Zone      string   `json:"zone"`
	Name      string   `json:"name"`
	Groups    []string `json:"groups"`
}

// Directory is the authoritative station set. It is loaded once at startup
// and never re-read or mutated afterwards.
type Directory struct {
	order  []string
	byID   map[string]Meta
	groups map[string][]string
}

// Load reads the station list from a JSON file: an array of Meta objects.
// Stations appearing more than once keep the first entry's position and the
// last entry's zone/name; group memberships accumulate.
func Load(path string) (*Directory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read station list: %w", err)
	}

	var entries []Meta
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse station list: %w", err)
	}

	d := &Directory{
		byID:   make(map[string]Meta, len(entries)),
		groups: make(map[string][]string),
	}
	for _, e := range entries {
		if e.StationID == "" {
			continue
		}
		existing, seen := d.byID[e.StationID]
		if !seen {
			d.order = append(d.order, e.StationID)
			existing = Meta{StationID: e.StationID}
		}
		existing.Zone = e.Zone
		existing.Name = e.Name
		for _, g := range e.Groups {
			if !contains(existing.Groups, g) {
				existing.Groups = append(existing.Groups, g)
			}
			if !contains(d.groups[g], e.StationID) {
				d.groups[g] = append(d.groups[g], e.StationID)
			}
		}
		d.byID[e.StationID] = existing
	}

	if len(d.order) == 0 {
		return nil, fmt.Errorf("station list %s contains no stations", path)
	}
	return d, nil
}

// IDs returns every station id in file order.
func (d *Directory) IDs() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// DisplayName returns the station's display name, or "" when unknown.
func (d *Directory) DisplayName(id string) string {
	return d.byID[id].Name
}

// Get returns the metadata for one station.
func (d *Directory) Get(id string) (Meta, bool) {
	m, ok := d.byID[id]
	return m, ok
}

// All returns every station's metadata in file order.
func (d *Directory) All() []Meta {
	out := make([]Meta, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.byID[id])
	}
	return out
}

// GroupNames returns the group names in sorted order.
func (d *Directory) GroupNames() []string {
	out := make([]string, 0, len(d.groups))
	for g := range d.groups {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
