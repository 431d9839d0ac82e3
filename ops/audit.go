// Copyright (C) 2025 warden-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

package ops

import (
	"encoding/hex"
	"time"

	"github.com/warden-project/warden/protocol"
	"github.com/warden-project/warden/secretstore"
)

// RetrieveAuditEvents runs the authenticated audit query: event_type
// narrows to System (no key_id) or Key events, with optional key-id and
// time filters, bounded by secretstore.MaxAuditEntries and ordered
// newest-first. Cursor is the pagination continuation: it carries the
// RFC3339Nano timestamp of the oldest event in the page just returned, and a
// client asking for the next page passes it back as Cursor, which takes
// precedence over an explicit Before.
func RetrieveAuditEvents(c *Context) error {
	var req protocol.RetrieveAuditEventsRequest
	if err := c.Channel.Receive(&req); err != nil {
		return err
	}

	before := req.Before
	if req.Cursor != "" {
		if t, err := time.Parse(time.RFC3339Nano, req.Cursor); err == nil {
			before = &t
		}
	}

	filter := secretstore.AuditFilter{
		After:  req.After,
		Before: before,
	}
	for _, kid := range req.KeyIDs {
		filter.KeyIDs = append(filter.KeyIDs, hex.EncodeToString(kid))
	}

	events, err := c.Deps.Store.FindAuditEvents(c.AccountName(), "", filter)
	if err != nil {
		return err
	}
	events = filterByEventType(events, req.EventType)

	// Newest first.
	reversed := make([]*secretstore.AuditEvent, len(events))
	for i, e := range events {
		reversed[len(events)-1-i] = e
	}
	events = reversed

	wire := make([]protocol.AuditEventWire, 0, len(events))
	for _, e := range events {
		wire = append(wire, protocol.AuditEventWire{
			RequestID: e.RequestID,
			KeyID:     e.KeyID,
			Action:    e.Action,
			Status:    e.Status.String(),
			Timestamp: e.Timestamp,
		})
	}

	// The store applies its bound after the Before filter, so a cursored
	// follow-up query sees the next-newest window rather than the same
	// page again.
	var cursor string
	if len(wire) == secretstore.MaxAuditEntries {
		cursor = wire[len(wire)-1].Timestamp.Format(time.RFC3339Nano)
	}

	return c.Channel.Send(&protocol.RetrieveAuditEventsResponse{Events: wire, Cursor: cursor})
}

func filterByEventType(events []*secretstore.AuditEvent, eventType protocol.EventType) []*secretstore.AuditEvent {
	if eventType == "" {
		return events
	}
	filtered := make([]*secretstore.AuditEvent, 0, len(events))
	for _, e := range events {
		isKeyEvent := len(e.KeyID) > 0
		if eventType == protocol.EventTypeKey && isKeyEvent {
			filtered = append(filtered, e)
		} else if eventType == protocol.EventTypeSystem && !isKeyEvent {
			filtered = append(filtered, e)
		}
	}
	return filtered
}
