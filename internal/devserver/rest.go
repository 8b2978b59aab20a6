package devserver

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sadnxai/chatlink/internal/api"
	"github.com/sadnxai/chatlink/internal/model"
)

const sampleRows = 5

func detail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": msg})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, api.HealthResponse{Status: "healthy", Service: "chat-service"})
}

func (s *Server) createSession(c *gin.Context) {
	sess := s.store.Create()
	s.logger.Info("session created", "session_id", sess.ID)
	c.JSON(http.StatusOK, api.CreateSessionResponse{SessionID: sess.ID})
}

func (s *Server) listSessions(c *gin.Context) {
	limit, err := queryInt(c, "limit", api.DefaultListLimit)
	if err != nil || limit < 1 {
		detail(c, http.StatusUnprocessableEntity, "limit must be a positive integer")
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		detail(c, http.StatusUnprocessableEntity, "offset must be a non-negative integer")
		return
	}

	c.JSON(http.StatusOK, api.SessionsResponse{Sessions: s.store.List(limit, offset)})
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func (s *Server) getSession(c *gin.Context) {
	sess, ok := s.store.Get(c.Param("id"))
	if !ok {
		detail(c, http.StatusNotFound, "Session not found")
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *Server) deleteSession(c *gin.Context) {
	if !s.store.Delete(c.Param("id")) {
		detail(c, http.StatusNotFound, "Session not found")
		return
	}
	c.JSON(http.StatusOK, api.DeleteResponse{Deleted: true})
}

// upload accepts a CSV file. Clients that accept text/event-stream get
// file_info, message and done events; others get one JSON document.
func (s *Server) upload(c *gin.Context) {
	id := c.Param("id")
	if _, ok := s.store.Get(id); !ok {
		detail(c, http.StatusNotFound, "Session not found")
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			detail(c, http.StatusBadRequest, "File too large")
			return
		}
		detail(c, http.StatusBadRequest, "Missing file")
		return
	}
	if !strings.HasSuffix(strings.ToLower(fh.Filename), ".csv") {
		detail(c, http.StatusBadRequest, "Only CSV files are supported")
		return
	}

	f, err := fh.Open()
	if err != nil {
		detail(c, http.StatusBadRequest, "Failed to read upload")
		return
	}
	defer f.Close()

	table, err := readTable(f)
	if err != nil {
		detail(c, http.StatusBadRequest, "Failed to read CSV: "+err.Error())
		return
	}

	filename := filepath.Base(fh.Filename)
	summary := fmt.Sprintf("Loaded %s with %d rows and %d columns: %s.",
		filename, table.rows, len(table.columns), strings.Join(table.columns, ", "))

	sess, ok := s.store.Update(id, func(sess *model.Session) {
		sess.Title = filename
		sess.FilePath = &filename
		sess.Columns = table.columns
		sess.SampleData = table.sample
		sess.RowCount = table.rows
		sess.Messages = append(sess.Messages, model.ChatMessage{Role: model.RoleAssistant, Content: &summary})
	})
	if !ok {
		detail(c, http.StatusNotFound, "Session not found")
		return
	}
	s.logger.Info("file uploaded", "session_id", id, "filename", filename, "rows", table.rows)

	if !strings.Contains(c.GetHeader("Accept"), "text/event-stream") {
		c.JSON(http.StatusOK, api.UploadResponse{
			Columns:    table.columns,
			SampleData: table.sample,
			RowCount:   table.rows,
			AIResponse: summary,
		})
		return
	}

	c.Header("Cache-Control", "no-cache")
	events := []api.StreamEvent{
		{Type: api.StreamFileInfo, Columns: table.columns, RowCount: table.rows, Filename: filename},
		{Type: api.StreamMessage, Content: summary},
		{
			Type:              api.StreamDone,
			Status:            string(sess.Status),
			HasClassification: sess.Classification != nil,
			HasValidation:     sess.ValidationResult != nil,
		},
	}
	for _, ev := range events {
		c.SSEvent("message", ev)
		c.Writer.Flush()
	}
}

type csvTable struct {
	columns []string
	sample  []json.RawMessage
	rows    int
}

// readTable reads the header, counts data rows and keeps the first few rows
// as column → value objects.
func readTable(r io.Reader) (csvTable, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return csvTable{}, errors.New("empty file")
		}
		return csvTable{}, err
	}

	t := csvTable{columns: header, sample: []json.RawMessage{}}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return csvTable{}, err
		}
		t.rows++
		if len(t.sample) < sampleRows {
			row := make(map[string]string, len(header))
			for i, col := range header {
				if i < len(rec) {
					row[col] = rec[i]
				}
			}
			data, err := json.Marshal(row)
			if err != nil {
				return csvTable{}, err
			}
			t.sample = append(t.sample, data)
		}
	}
	return t, nil
}
