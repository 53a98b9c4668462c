package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Message represents the base WebSocket message structure
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"requestId,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(messageType MessageType, data any) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:      messageType,
		Data:      dataBytes,
		Timestamp: time.Now(),
	}, nil
}

// Client → Server Messages

// ColumnsData lists columns to buy, block or unblock. Clients send either
// {"columns": [..]} or the bare array.
type ColumnsData struct {
	Columns []int `json:"columns"`
}

func (d *ColumnsData) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		return json.Unmarshal(b, &d.Columns)
	}
	type plain ColumnsData
	return json.Unmarshal(b, (*plain)(d))
}

// Number accepts a JSON number or a numeric string, as admin consoles send
// form values verbatim.
type Number float64

func (n *Number) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", b)
	}
	*n = Number(f)
	return nil
}

type SetTimerData struct {
	Minutes Number `json:"minutes"`
}

type DeclareWinnerData struct {
	Winner  int        `json:"winner"`
	EndedAt *time.Time `json:"ended_at,omitempty"`
}

type SoldOutIntervalData struct {
	IntervalMs int64 `json:"intervalMs"`
}

// SubscribeTicketData names the ticket to follow. The id arrives bare, as a
// string, or as {"ticketId": n}.
type SubscribeTicketData struct {
	TicketID int64 `json:"ticketId"`
}

func (d *SubscribeTicketData) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var raw struct {
			TicketID Number `json:"ticketId"`
		}
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		d.TicketID = int64(raw.TicketID)
		return nil
	}
	var n Number
	if err := n.UnmarshalJSON(b); err != nil {
		return err
	}
	d.TicketID = int64(n)
	return nil
}

// Server → Client Messages

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type SubscribedData struct {
	Room string `json:"room"`
}
