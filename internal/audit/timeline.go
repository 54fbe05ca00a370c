// Package audit reads back the audit trail written by the pharmacy and finance workflows.
package audit

import "time"

// TimelineFilters narrows the audit timeline. Zero values are ignored.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	ActorID  int64
	Entity   string
	EntityID string
	Action   string
	Page     int
	PageSize int
}

// TimelineRow is one audit_logs entry.
type TimelineRow struct {
	ID       int64          `json:"id"`
	At       time.Time      `json:"at"`
	ActorID  int64          `json:"actor_id"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// PagingInfo carries simple forward/backward paging.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result wraps a page of rows.
type Result struct {
	Rows   []TimelineRow `json:"rows"`
	Paging PagingInfo    `json:"paging"`
}
