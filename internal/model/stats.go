package model

// Stats is the backend-computed notification summary.
type Stats struct {
	Total      int              `json:"total"`
	Unread     int              `json:"unread"`
	ByType     map[Type]int     `json:"byType"`
	ByPriority map[Priority]int `json:"byPriority"`

	// RecentActivity counts notifications created in the trailing
	// 24-hour and 7-day windows.
	RecentActivity struct {
		Last24h int `json:"last24h"`
		Last7d  int `json:"last7d"`
	} `json:"recentActivity"`
}
