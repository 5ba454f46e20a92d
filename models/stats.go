package models

// StatsSource is the payload of GET /api/posts/stats. Fields may be missing.
type StatsSource struct {
	TotalPosts          Count `json:"total_posts"`
	HighPriorityPosts   Count `json:"high_priority_posts"`
	MediumPriorityPosts Count `json:"medium_priority_posts"`
	LowPriorityPosts    Count `json:"low_priority_posts"`
}

// StatsRecord holds the four summary counters. The zero value is the
// default shown before the first successful fetch.
type StatsRecord struct {
	Total  int64 `json:"total_posts"`
	High   int64 `json:"high_priority_posts"`
	Medium int64 `json:"medium_priority_posts"`
	Low    int64 `json:"low_priority_posts"`
}
