package models

import (
	"time"
)

// RelayTrafficLog records one connection handled by the built-in relay
// listeners. Byte counts are measured on the wire, per direction.
type RelayTrafficLog struct {
	ID            int64     `json:"id" format:"int64" readOnly:"true"`
	Protocol      string    `json:"protocol" example:"http" enum:"http,socks5"`
	ClientAddr    string    `json:"client_addr" example:"192.168.1.100:51432"`
	TargetHost    string    `json:"target_host" example:"example.com:443"`
	BytesSent     int64     `json:"bytes_sent" example:"1834"`      // Client to target.
	BytesReceived int64     `json:"bytes_received" example:"92034"` // Target to client.
	DurationMs    int64     `json:"duration_ms" example:"4211"`
	StartedAt     time.Time `json:"started_at" readOnly:"true"`
}

// RelayTrafficSummary aggregates relay usage for the dashboard header.
type RelayTrafficSummary struct {
	Connections   int64 `json:"connections" example:"1042"`
	BytesSent     int64 `json:"bytes_sent" example:"10485760"`
	BytesReceived int64 `json:"bytes_received" example:"536870912"`
}
