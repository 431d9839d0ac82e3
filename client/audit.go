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

package client

import (
	"context"
	"time"

	"github.com/warden-project/warden/protocol"
)

// AuditQuery narrows a RetrieveAuditEvents call. Cursor, when set, takes
// precedence over Before and continues a previous page.
type AuditQuery struct {
	EventType protocol.EventType
	KeyIDs    [][]byte
	After     *time.Time
	Before    *time.Time
	Cursor    string
}

// RetrieveAuditEvents fetches one page of the account's audit log,
// newest first, along with a cursor for the next page when the page was
// full.
func (c *Client) RetrieveAuditEvents(ctx context.Context, q AuditQuery) ([]protocol.AuditEventWire, string, ResponseMetadata, error) {
	ch, meta, err := c.openChannel(ctx, protocol.ActionRetrieveAuditEvents)
	if err != nil {
		return nil, "", meta, err
	}

	req := &protocol.RetrieveAuditEventsRequest{
		EventType: q.EventType,
		KeyIDs:    q.KeyIDs,
		After:     q.After,
		Before:    q.Before,
		Cursor:    q.Cursor,
	}
	if err := ch.Send(req); err != nil {
		return nil, "", meta, err
	}

	var resp protocol.RetrieveAuditEventsResponse
	if err := ch.Receive(&resp); err != nil {
		return nil, "", meta, err
	}

	return resp.Events, resp.Cursor, meta, nil
}
