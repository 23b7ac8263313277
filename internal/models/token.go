package models

import "time"

type TokenInfo struct {
	Token           string    `json:"token"`
	UserID          int64     `json:"user_id"`
	Capabilities    []string  `json:"capabilities"`
	RequestCount    int       `json:"request_count"`
	LastRequestTime time.Time `json:"last_request_dttm_utc"`
	CreatedTime     time.Time `json:"created_dttm_utc"`
}
