package events

import (
	"encoding/json"
	"time"
)

// Event types carried on the push channels and the bus.
const (
	EventTypeDraftState         = "DRAFT_STATE"
	EventTypeSeriesDraftCreated = "SERIES_DRAFT_CREATED"
)

// Command types accepted from clients over the websocket and the bus.
const (
	CommandPreview = "PREVIEW"
	CommandAction  = "ACTION"
	CommandReady   = "READY"
)

// Channel prefixes. A draft channel is "draft.<id>", a series channel "series.<id>".
const (
	DraftChannelPrefix  = "draft"
	SeriesChannelPrefix = "series"
)

// DraftChannel returns the push channel name for a draft.
func DraftChannel(draftID string) string {
	return DraftChannelPrefix + "." + draftID
}

// SeriesChannel returns the push channel name for a series.
func SeriesChannel(seriesID string) string {
	return SeriesChannelPrefix + "." + seriesID
}

// SeriesDraftCreatedPayload announces the draft for a new game of a series.
type SeriesDraftCreatedPayload struct {
	Type       string `json:"type"`
	SeriesID   string `json:"seriesId"`
	GameNumber int    `json:"gameNumber"`
	DraftID    string `json:"draftId"`
}

// NewSeriesDraftCreated builds the payload with its type tag set.
func NewSeriesDraftCreated(seriesID string, gameNumber int, draftID string) SeriesDraftCreatedPayload {
	return SeriesDraftCreatedPayload{
		Type:       EventTypeSeriesDraftCreated,
		SeriesID:   seriesID,
		GameNumber: gameNumber,
		DraftID:    draftID,
	}
}

// Envelope wraps a payload published on the bus.
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	DraftID   string          `json:"draftId,omitempty"`
	SeriesID  string          `json:"seriesId,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Command is an inbound client message. Ready is only read for READY and
// ChampionID only for PREVIEW and ACTION.
type Command struct {
	Type       string `json:"type"`
	DraftID    string `json:"draftId"`
	Team       string `json:"team"`
	ChampionID string `json:"championId"`
	Ready      bool   `json:"ready"`
}

// ErrorMessage is sent back to the client whose command was rejected.
type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
	Code  string `json:"code"`
}
