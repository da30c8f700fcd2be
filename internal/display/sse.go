package display

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/appetiteclub/kds/internal/kitchen"
	"github.com/appetiteclub/kds/internal/livesync"
	"github.com/google/uuid"
)

// SSEDialer connects to the kitchen stream endpoint.
type SSEDialer struct {
	baseURL string
	http    *http.Client
}

// NewSSEDialer returns a dialer for the API at baseURL. The client must
// not set a timeout; streams are bounded by the dial context instead.
func NewSSEDialer(baseURL string, client *http.Client) *SSEDialer {
	if client == nil {
		client = &http.Client{}
	}
	return &SSEDialer{baseURL: strings.TrimRight(baseURL, "/"), http: client}
}

func (d *SSEDialer) Dial(ctx context.Context, filter livesync.Filter) (Stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/stream?"+streamQuery(filter).Encode(), nil)
	if err != nil {
		return nil, kitchen.NewError("dial stream", filter.Signature(), kitchen.ErrValidation, err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, kitchen.NewError("dial stream", filter.Signature(), kitchen.ErrTransientIO, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, kitchen.NewError("dial stream", filter.Signature(), kindForStatus(resp.StatusCode), fmt.Errorf("status %d", resp.StatusCode))
	}
	return &sseStream{body: resp.Body, reader: bufio.NewReader(resp.Body)}, nil
}

func streamQuery(f livesync.Filter) url.Values {
	q := url.Values{"role": {string(f.Role)}}
	if f.StationID != nil {
		q.Set("station", f.StationID.String())
	}
	if f.TableID != nil {
		q.Set("table", f.TableID.String())
	}
	if len(f.Tables) > 0 {
		ids := make([]string, len(f.Tables))
		for i, id := range f.Tables {
			ids[i] = id.String()
		}
		q.Set("tables", strings.Join(ids, ","))
	}
	return q
}

type sseStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
}

// Next reads events until one carries an update. Comments, retry hints
// and unknown events are skipped.
func (s *sseStream) Next() (livesync.Update, error) {
	var name string
	var data strings.Builder
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return livesync.Update{}, kitchen.NewError("read stream", "", kitchen.ErrTransientIO, err)
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if data.Len() == 0 {
				name = ""
				continue
			}
			if name != livesync.KindEntries && name != livesync.KindTable {
				name = ""
				data.Reset()
				continue
			}
			var u livesync.Update
			if err := json.Unmarshal([]byte(data.String()), &u); err != nil {
				return livesync.Update{}, fmt.Errorf("cannot decode %s event: %w", name, err)
			}
			return u, nil
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
}

func (s *sseStream) Close() error {
	return s.body.Close()
}

// ParseTables reads a comma separated list of table IDs.
func ParseTables(raw string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := uuid.Parse(part)
		if err != nil {
			return nil, kitchen.Errorf("parse tables", part, kitchen.ErrValidation, "invalid table ID")
		}
		ids = append(ids, id)
	}
	return ids, nil
}
