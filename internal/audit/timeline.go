package audit

import "time"

// TimelineFilters narrows the audit trail of one transaction.
type TimelineFilters struct {
	TransactionID int64
	Action        Action
	From          time.Time
	To            time.Time
	Page          int
	PageSize      int
}

// WindowParams is the repository query derived from TimelineFilters.
type WindowParams struct {
	TransactionID int64
	Action        Action
	From          time.Time
	To            time.Time
	Offset        int
	Limit         int
}

// PagingInfo menyimpan metadata pagination sederhana.
type PagingInfo struct {
	Page     int  `json:"page"`
	HasNext  bool `json:"has_next"`
	PageSize int  `json:"page_size"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result membungkus hasil timeline dengan informasi paging.
type Result struct {
	Rows   []Entry    `json:"entries"`
	Paging PagingInfo `json:"paging"`
}
