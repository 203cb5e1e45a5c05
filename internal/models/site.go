package models

import "time"

// SiteConfig is the public configuration consumed by the client
type SiteConfig struct {
	VideoURL        string `json:"videoUrl"`
	MusicURL        string `json:"musicUrl"`
	AvatarURL       string `json:"avatarUrl"`
	EnableTurnstile bool   `json:"enableTurnstile"`
}

// SetupStatus tells the client whether the first admin exists
type SetupStatus struct {
	IsSetup bool `json:"isSetup"`
}

// Document is a rendered XML document ready to be served
type Document struct {
	Body   []byte
	ETag   string
	MaxAge time.Duration
}

// LockoutAlert describes a source address that tripped the login limit
type LockoutAlert struct {
	IP       string `json:"ip"`
	Username string `json:"username"`
	Attempts int    `json:"attempts"`
	At       int64  `json:"at"` // epoch milliseconds
}
