package domain

import "time"

// HistoryItem stores one generated result for a bounded retention window.
type HistoryItem struct {
	ID        string
	UserID    string
	PDFName   string
	Title     string
	Result    string
	CreatedAt time.Time
	ExpiresAt time.Time
}
