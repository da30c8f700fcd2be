package display

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/appetiteclub/kds/internal/kitchen"
	"github.com/appetiteclub/kds/internal/livesync"
	"github.com/appetiteclub/kds/internal/tables"
	"github.com/appetiteclub/kds/pkg/web"
	"github.com/google/uuid"
)

const DefaultRequestTimeout = 5 * time.Second

// HTTPClient talks to the kitchen HTTP API. It is the Mutator and Loader
// of a display.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient returns a client for the API at baseURL. A nil client
// uses one with DefaultRequestTimeout.
func NewHTTPClient(baseURL string, client *http.Client) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("kitchen API URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid kitchen API URL: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: DefaultRequestTimeout}
	}
	return &HTTPClient{baseURL: strings.TrimRight(baseURL, "/"), http: client}, nil
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *web.ErrorBody  `json:"error"`
}

func (c *HTTPClient) Transition(ctx context.Context, id kitchen.EntryID, t kitchen.Transition) (*kitchen.RoutingEntry, error) {
	var e kitchen.RoutingEntry
	if err := c.do(ctx, http.MethodPatch, "/entries/"+id.String()+"/"+string(t), id.String(), &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (c *HTTPClient) BumpTable(ctx context.Context, tableID kitchen.TableID) ([]kitchen.RoutingEntry, error) {
	var body struct {
		Entries []kitchen.RoutingEntry `json:"entries"`
	}
	if err := c.do(ctx, http.MethodPost, "/tables/"+tableID.String()+"/bump", tableID.String(), &body); err != nil {
		return nil, err
	}
	return body.Entries, nil
}

func (c *HTTPClient) Entry(ctx context.Context, id kitchen.EntryID) (*kitchen.RoutingEntry, error) {
	var e kitchen.RoutingEntry
	if err := c.do(ctx, http.MethodGet, "/entries/"+id.String(), id.String(), &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (c *HTTPClient) TableEntries(ctx context.Context, tableID kitchen.TableID) ([]kitchen.RoutingEntry, error) {
	return c.entries(ctx, url.Values{"table": {tableID.String()}})
}

// Snapshot reads everything filter may see.
func (c *HTTPClient) Snapshot(ctx context.Context, filter livesync.Filter) (Snapshot, error) {
	var snap Snapshot

	base := url.Values{}
	if filter.StationID != nil {
		base.Set("station", filter.StationID.String())
	}

	var tableIDs []uuid.UUID
	if filter.TableID != nil {
		tableIDs = append(tableIDs, *filter.TableID)
	}
	tableIDs = append(tableIDs, filter.Tables...)

	if len(tableIDs) == 0 {
		entries, err := c.entries(ctx, base)
		if err != nil {
			return snap, err
		}
		snap.Entries = entries
	}
	seen := make(map[uuid.UUID]bool)
	for _, id := range tableIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		q := url.Values{"table": {id.String()}}
		if filter.StationID != nil {
			q.Set("station", filter.StationID.String())
		}
		entries, err := c.entries(ctx, q)
		if err != nil {
			return snap, err
		}
		snap.Entries = append(snap.Entries, entries...)
	}

	if filter.Role == livesync.RoleServer {
		// Servers also see what is ready for pickup at any table.
		ready, err := c.entries(ctx, url.Values{"ready": {"true"}})
		if err != nil {
			return snap, err
		}
		have := make(map[kitchen.EntryID]bool, len(snap.Entries))
		for _, e := range snap.Entries {
			have[e.ID] = true
		}
		for _, e := range ready {
			if !have[e.ID] {
				snap.Entries = append(snap.Entries, e)
			}
		}
	}

	if filter.Role == livesync.RoleStation || (filter.StationID != nil && filter.Role != livesync.RoleServer) {
		return snap, nil
	}
	path := "/tables"
	if len(tableIDs) > 0 {
		ids := make([]string, 0, len(seen))
		for id := range seen {
			ids = append(ids, id.String())
		}
		path += "?" + url.Values{"tables": {strings.Join(ids, ",")}}.Encode()
	}
	var body struct {
		Tables []tables.TableGroup `json:"tables"`
	}
	if err := c.do(ctx, http.MethodGet, path, "", &body); err != nil {
		return snap, err
	}
	snap.Tables = body.Tables
	return snap, nil
}

func (c *HTTPClient) entries(ctx context.Context, q url.Values) ([]kitchen.RoutingEntry, error) {
	path := "/entries"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var body struct {
		Entries []kitchen.RoutingEntry `json:"entries"`
	}
	if err := c.do(ctx, http.MethodGet, path, "", &body); err != nil {
		return nil, err
	}
	return body.Entries, nil
}

// do sends one request and decodes the envelope data into out. Error
// bodies come back as kitchen errors of the kind the server reported.
func (c *HTTPClient) do(ctx context.Context, method, path, ref string, out any) error {
	op := strings.ToLower(method) + " " + strings.SplitN(path, "?", 2)[0]

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return kitchen.NewError(op, ref, kitchen.ErrValidation, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return kitchen.NewError(op, ref, kitchen.ErrTransientIO, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, web.MaxBodyBytes))
	if err != nil {
		return kitchen.NewError(op, ref, kitchen.ErrTransientIO, err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		if resp.StatusCode >= 500 {
			return kitchen.Errorf(op, ref, kitchen.ErrTransientIO, "status %d", resp.StatusCode)
		}
		return kitchen.NewError(op, ref, nil, fmt.Errorf("cannot decode response: %w", err))
	}

	if resp.StatusCode >= 300 || env.Error != nil {
		return responseError(op, ref, resp.StatusCode, env.Error)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("cannot decode %s data: %w", op, err)
	}
	return nil
}

func responseError(op, ref string, status int, body *web.ErrorBody) error {
	msg := http.StatusText(status)
	var kind error
	if body != nil {
		msg = body.Message
		kind = kitchen.KindByName(body.Kind)
		if body.Ref != "" {
			ref = body.Ref
		}
	}
	if kind == nil {
		kind = kindForStatus(status)
	}
	return kitchen.NewError(op, ref, kind, errors.New(msg))
}

func kindForStatus(status int) error {
	switch {
	case status == http.StatusNotFound:
		return kitchen.ErrNotFound
	case status == http.StatusConflict:
		return kitchen.ErrConflict
	case status == http.StatusUnprocessableEntity:
		return kitchen.ErrConfiguration
	case status >= 500:
		return kitchen.ErrTransientIO
	case status >= 400:
		return kitchen.ErrValidation
	default:
		return nil
	}
}
