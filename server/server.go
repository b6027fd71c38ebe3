// Package server exposes the pipeline over HTTP and a websocket.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/xhad/mrag/internal/models"
	"github.com/xhad/mrag/internal/types"
	"github.com/xhad/mrag/pkg/logger"
	"github.com/xhad/mrag/pkg/pipeline"
)

type Config struct {
	CORSOrigins    []string // "*" allows any origin
	MaxUploadBytes int64
}

// Message is the websocket envelope in both directions.
type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

// QueryData carries the optional fields of a websocket query.
type QueryData struct {
	DocID       string  `json:"doc_id"`
	GroundTruth string  `json:"ground_truth,omitempty"`
	RelevantIDs []int64 `json:"relevant_ids,omitempty"`
}

type Server struct {
	config   Config
	svc      *pipeline.Service
	upgrader websocket.Upgrader
}

func NewServer(svc *pipeline.Service, config Config) *Server {
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = 100 << 20
	}
	s := &Server{config: config, svc: svc}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.allowOrigin(origin)
		},
	}
	return s
}

// Handler returns the routed handler wrapped in recovery, logging and CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /upload_pdf", s.handleUpload)
	mux.HandleFunc("GET /docs_list", s.handleDocs)
	mux.HandleFunc("GET /documents", s.handleDocs)
	mux.HandleFunc("POST /query", s.handleQuery)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.Handle("GET /uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.svc.UploadDir()))))

	return s.recoverPanics(s.logRequests(s.cors(mux)))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "backend": "running"})
}

type uploadResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	DocID    string `json:"doc_id"`
	Filename string `json:"filename"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("missing file upload: %v", err))
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		writeError(w, http.StatusBadRequest, "Only PDF files are allowed.")
		return
	}

	result, err := s.svc.Ingest(r.Context(), header.Filename, file, func(stage pipeline.Stage, done, total int) {
		logger.Debug("upload %s: %s %d/%d", header.Filename, stage, done, total)
	})
	if err != nil {
		logger.Error("failed to process %s: %v", header.Filename, err)
		writeError(w, statusFor(err), fmt.Sprintf("Failed to process PDF: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Status:   "success",
		Message:  "PDF processed successfully.",
		DocID:    result.Document.ID,
		Filename: result.Document.Filename,
	})
}

func (s *Server) handleDocs(w http.ResponseWriter, r *http.Request) {
	docs, err := s.svc.Documents(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if docs == nil {
		docs = []models.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req pipeline.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	resp, err := s.svc.Query(r.Context(), req)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusNotFound {
			writeError(w, status, "Document ID not found.")
			return
		}
		logger.Error("query on %s failed: %v", req.DocID, err)
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// wsConn serializes writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) send(msgType, content string, data interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(Message{Type: msgType, Content: content, Data: data}); err != nil {
		logger.Warn("error sending message: %v", err)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	c := &wsConn{conn: conn}
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("websocket read ended: %v", err)
			}
			return
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if v := recover(); v != nil {
					logger.Error("panic handling websocket %q message: %v\n%s", msg.Type, v, debug.Stack())
					c.send("error", "internal server error", nil)
				}
			}()
			s.handleMessage(r, c, msg)
		}()
	}
}

func (s *Server) handleMessage(r *http.Request, c *wsConn, msg Message) {
	switch msg.Type {
	case "docs":
		docs, err := s.svc.Documents(r.Context())
		if err != nil {
			c.send("error", err.Error(), nil)
			return
		}
		c.send("docs", fmt.Sprintf("%d documents", len(docs)), docs)
	case "query", "":
		data, err := decodeQueryData(msg.Data)
		if err != nil {
			c.send("error", fmt.Sprintf("invalid query data: %v", err), nil)
			return
		}
		c.send("status", "Retrieving context", nil)
		resp, err := s.svc.Query(r.Context(), pipeline.QueryRequest{
			DocID:       data.DocID,
			Query:       msg.Content,
			GroundTruth: data.GroundTruth,
			RelevantIDs: data.RelevantIDs,
		})
		if err != nil {
			c.send("error", fmt.Sprintf("Error: %v", err), nil)
			return
		}
		c.send("response", resp.Answer, resp.Context)
	default:
		c.send("error", fmt.Sprintf("unknown message type %q", msg.Type), nil)
	}
}

// decodeQueryData converts the generic Data field of a websocket message.
func decodeQueryData(v interface{}) (QueryData, error) {
	var data QueryData
	if v == nil {
		return data, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return data, err
	}
	err = json.Unmarshal(raw, &data)
	return data, err
}

func (s *Server) allowOrigin(origin string) bool {
	return slices.Contains(s.config.CORSOrigins, "*") || slices.Contains(s.config.CORSOrigins, origin)
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && s.allowOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "*")
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("%s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
	})
}

func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				logger.Error("panic serving %s: %v\n%s", r.URL.Path, v, debug.Stack())
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
