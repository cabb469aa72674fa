package event

import (
	"bytes"
	"encoding/json"
	"time"
)

// Record is one immutable visitor-interaction log entry. Optional fields
// are pointers: nil means the caller never sent the field and it is
// omitted from storage. country, city, user_agent and referer are always
// present, serialized as null when unknown.
type Record struct {
	ServerReceivedAt time.Time       `json:"server_received_at"`
	IP               string          `json:"ip"`
	Country          *string         `json:"country"`
	City             *string         `json:"city"`
	Event            *string         `json:"event,omitempty"`
	SessionID        *string         `json:"session_id,omitempty"`
	Timestamp        *float64        `json:"timestamp,omitempty"`
	Page             *string         `json:"page,omitempty"`
	DurationMS       *float64        `json:"duration_ms,omitempty"`
	Language         *string         `json:"language,omitempty"`
	Clicked          *bool           `json:"clicked,omitempty"`
	ChosenOption     json.RawMessage `json:"chosen_option,omitempty"`
	UserAgent        *string         `json:"user_agent"`
	Referer          *string         `json:"referer"`
}

// StoredRecord is a retrieved Record plus storage provenance.
type StoredRecord struct {
	Record
	BlobURL    string `json:"blob_url,omitempty"`
	UploadedAt string `json:"uploaded_at,omitempty"`
}

// Payload is the raw client-submitted body. Only these fields are pulled
// from the request; anything else the client sends is dropped. clicked and
// chosen_option stay raw so their type can be inspected before inclusion.
type Payload struct {
	Event        *string         `json:"event"`
	SessionID    *string         `json:"session_id"`
	Timestamp    *float64        `json:"timestamp"`
	Page         *string         `json:"page"`
	DurationMS   *float64        `json:"duration_ms"`
	Clicked      json.RawMessage `json:"clicked"`
	ChosenOption json.RawMessage `json:"chosen_option"`
	Language     *string         `json:"language"`
}

// UnmarshalJSON decodes every field independently: a value of the wrong
// type drops that field alone, never the rest of the body.
func (p *Payload) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	assign := func(key string, dst any) {
		if raw, ok := fields[key]; ok {
			_ = json.Unmarshal(raw, dst)
		}
	}
	assign("event", &p.Event)
	assign("session_id", &p.SessionID)
	assign("timestamp", &p.Timestamp)
	assign("page", &p.Page)
	assign("duration_ms", &p.DurationMS)
	assign("language", &p.Language)

	// clicked and chosen_option stay raw; Normalize inspects them.
	p.Clicked = fields["clicked"]
	p.ChosenOption = fields["chosen_option"]

	return nil
}

// RequestMeta is what the HTTP boundary resolved about the request before
// normalization: client address, geo data, and copied headers. UserAgent
// and Referer are nil when the header was missing.
type RequestMeta struct {
	IP        string
	Country   *string
	City      *string
	UserAgent *string
	Referer   *string
}

// Normalize builds the canonical record from a client payload and resolved
// request metadata. It never rejects: malformed or missing fields are
// stored as absent, not errors.
func Normalize(p Payload, meta RequestMeta, now time.Time) *Record {
	rec := &Record{
		ServerReceivedAt: now.UTC(),
		IP:               meta.IP,
		Country:          meta.Country,
		City:             meta.City,
		Event:            p.Event,
		SessionID:        p.SessionID,
		Timestamp:        p.Timestamp,
		Page:             p.Page,
		DurationMS:       p.DurationMS,
		Language:         p.Language,
		UserAgent:        meta.UserAgent,
		Referer:          meta.Referer,
	}

	// clicked is kept only when the submitted value is literally a boolean.
	// Unmarshalling into a bool is not enough: null decodes without error.
	switch string(bytes.TrimSpace(p.Clicked)) {
	case "true":
		clicked := true
		rec.Clicked = &clicked
	case "false":
		clicked := false
		rec.Clicked = &clicked
	}

	if truthy(p.ChosenOption) {
		rec.ChosenOption = p.ChosenOption
	}

	return rec
}

// Partition maps a page value onto the storage partition key: page2 events
// are kept apart, everything else (including unset pages) shares page1.
func Partition(page *string) string {
	if page != nil && *page == "page2" {
		return "page2"
	}
	return "page1"
}

// truthy reports whether a raw JSON value is present and neither falsy nor
// empty. null, false, 0, "", {} and [] all count as absent.
func truthy(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return false
	}

	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return false
	}

	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0
	case string:
		return val != ""
	case map[string]any:
		return len(val) > 0
	case []any:
		return len(val) > 0
	default:
		return true
	}
}
