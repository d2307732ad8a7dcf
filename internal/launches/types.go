package launches

import pagination "github.com/hanpama/gqlfeed/internal/pagination"

type Launch struct {
	ID       string   `json:"id"`
	Site     string   `json:"site,omitempty"`
	IsBooked bool     `json:"isBooked"`
	Mission  *Mission `json:"mission,omitempty"`
	Rocket   *Rocket  `json:"rocket,omitempty"`
}

type Mission struct {
	Name         string `json:"name,omitempty"`
	MissionPatch string `json:"missionPatch,omitempty"`
}

type Rocket struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Type string `json:"type,omitempty"`
}

type LaunchConnection struct {
	Cursor   string    `json:"cursor"`
	HasMore  bool      `json:"hasMore"`
	Launches []*Launch `json:"launches"`
}

// ListData is the data shape of LaunchList.
type ListData struct {
	Launches *LaunchConnection `json:"launches"`
}

// DetailsData is the data shape of LaunchDetails.
type DetailsData struct {
	Launch *Launch `json:"launch"`
}

// page converts the connection into a pagination page. Null list entries,
// which the server returns for launches it failed to resolve, are skipped.
func (d ListData) page() *pagination.Page[Launch] {
	if d.Launches == nil {
		return nil
	}
	p := &pagination.Page[Launch]{
		Items:   make([]Launch, 0, len(d.Launches.Launches)),
		HasMore: d.Launches.HasMore,
	}
	for _, l := range d.Launches.Launches {
		if l != nil {
			p.Items = append(p.Items, *l)
		}
	}
	if d.Launches.Cursor != "" {
		c := pagination.Cursor(d.Launches.Cursor)
		p.Cursor = &c
	}
	return p
}
