package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
)

const (
	eventStreamType = "text/event-stream"
	maxEventSize    = 1 << 20
)

// UploadFile posts a CSV file to the session as multipart field "file".
//
// When the server answers with an event stream, every decoded event is passed
// to onEvent in arrival order (onEvent may be nil) and the returned response
// is assembled from the file_info and message events. Otherwise the JSON
// body is returned as is.
func (c *Client) UploadFile(ctx context.Context, sessionID, filename string, file io.Reader, onEvent func(StreamEvent)) (*UploadResponse, error) {
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("copy file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	resp, err := c.send(ctx, request{
		method:      http.MethodPost,
		path:        sessionPath(sessionID) + "/upload",
		body:        buf.Bytes(),
		contentType: mw.FormDataContentType(),
		accept:      eventStreamType + ", application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", filename, err)
	}
	defer resp.Body.Close()

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != eventStreamType {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		var out UploadResponse
		if err := decode(body, &out); err != nil {
			return nil, err
		}
		return &out, nil
	}

	out := &UploadResponse{}
	err = c.readEvents(resp.Body, func(ev StreamEvent) {
		switch ev.Type {
		case StreamFileInfo:
			out.Columns = ev.Columns
			out.RowCount = ev.RowCount
		case StreamMessage:
			out.AIResponse = ev.Content
		}
		if onEvent != nil {
			onEvent(ev)
		}
	})
	if err != nil {
		return out, fmt.Errorf("upload %s: read stream: %w", filename, err)
	}
	return out, nil
}

// readEvents decodes server-sent events from r. Consecutive data lines form
// one event, terminated by a blank line or end of stream. Events that are not
// valid JSON are logged and skipped.
func (c *Client) readEvents(r io.Reader, emit func(StreamEvent)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	var data strings.Builder
	dispatch := func() {
		if data.Len() == 0 {
			return
		}
		raw := data.String()
		data.Reset()

		var ev StreamEvent
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			c.logger.Warn("skipping malformed stream event", "error", err, "data", raw)
			return
		}
		emit(ev)
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			dispatch()
			continue
		}

		value, ok := strings.CutPrefix(line, "data:")
		if !ok {
			// event:, id:, retry: and comments carry nothing we use.
			continue
		}
		value = strings.TrimPrefix(value, " ")
		if data.Len() > 0 {
			data.WriteByte('\n')
		}
		data.WriteString(value)
	}
	dispatch()

	return scanner.Err()
}
