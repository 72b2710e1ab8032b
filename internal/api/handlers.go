package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	gwebsocket "github.com/gorilla/websocket" // Alias to avoid name conflict
	"go.uber.org/zap"

	"github.com/OmkarPadhy/AQI-Dashboard/internal/data"
	"github.com/OmkarPadhy/AQI-Dashboard/internal/exposure"
	"github.com/OmkarPadhy/AQI-Dashboard/internal/export"
	"github.com/OmkarPadhy/AQI-Dashboard/internal/ingest"
	"github.com/OmkarPadhy/AQI-Dashboard/internal/metrics"
	"github.com/OmkarPadhy/AQI-Dashboard/internal/monitor"
	"github.com/OmkarPadhy/AQI-Dashboard/internal/thresholds"
	"github.com/OmkarPadhy/AQI-Dashboard/internal/websocket"
)

const (
	SourceHTTP = "http"

	maxBodyBytes       = 1 << 20
	defaultHistorySpan = time.Hour
)

var upgrader = gwebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // dashboards are served from other origins
}

const fallbackPage = `<!doctype html>
<html><head><meta charset="utf-8"><title>Exposure Monitor</title></head>
<body><div id="app"></div><script src="/static/app.js"></script></body></html>
`

type APIHandler struct {
	monitor *monitor.Monitor
	hub     *websocket.Hub
	table   *thresholds.Table
	metrics *metrics.Metrics
	tmpl    *template.Template
	webDir  string
	mode    string
	logger  *zap.Logger
	now     func() time.Time
}

// NewAPIHandler loads templates from webDir/templates when present; without them
// the dashboard shell is served from memory.
func NewAPIHandler(mon *monitor.Monitor, hub *websocket.Hub, table *thresholds.Table, m *metrics.Metrics, webDir, mode string, logger *zap.Logger) *APIHandler {
	h := &APIHandler{
		monitor: mon,
		hub:     hub,
		table:   table,
		metrics: m,
		webDir:  webDir,
		mode:    mode,
		logger:  logger,
		now:     time.Now,
	}

	tmplPath := filepath.Join(webDir, "templates", "*.html")
	if tmpl, err := template.ParseGlob(tmplPath); err == nil {
		h.tmpl = tmpl
	} else {
		logger.Info("No dashboard templates found, serving built-in page", zap.String("path", tmplPath))
	}
	return h
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// HandleDataIngest receives readings pushed by sensors and translators.
func (h *APIHandler) HandleDataIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Warn("Error reading request body", zap.Error(err))
		writeError(w, http.StatusBadRequest, "cannot read body")
		return
	}
	defer r.Body.Close()

	source := r.Header.Get("X-Source")
	if source == "" {
		source = SourceHTTP
	}

	reading, err := data.Parse(body, source)
	if err != nil {
		h.metrics.ReadingRejected()
		h.logger.Warn("Error parsing data", zap.Error(err))
		writeError(w, http.StatusBadRequest, "cannot parse reading: "+err.Error())
		return
	}

	if err := h.monitor.Ingest(r.Context(), *reading); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
}

// HandleWebSocket upgrades connections and registers clients with the hub.
func (h *APIHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade error", zap.Error(err))
		return
	}

	client := websocket.NewClient(h.hub, conn)
	// queued before registration so history always precedes live messages
	h.queueInitialData(client)
	h.hub.RegisterClient(client)

	go client.WritePump()
	go client.ReadPump() // Must run ReadPump to handle control messages (close, pong)

	h.logger.Info("WebSocket connection established", zap.String("remote_addr", conn.RemoteAddr().String()))
}

// queueInitialData puts recent readings and the alert log on a new client's queue.
func (h *APIHandler) queueInitialData(client *websocket.Client) {
	payload := map[string]interface{}{
		"readings": h.monitor.Latest(0),
		"alerts":   h.monitor.Alerts(),
	}
	messageBytes, err := websocket.Encode(websocket.TypeHistory, payload)
	if err != nil {
		h.logger.Error("Error marshalling history data", zap.Error(err))
		return
	}
	select {
	case client.Send <- messageBytes:
	default:
		h.logger.Warn("Client queue full, history not sent")
	}
}

// ServeWebUI serves the dashboard page.
func (h *APIHandler) ServeWebUI(w http.ResponseWriter, r *http.Request) {
	if h.tmpl == nil {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, fallbackPage)
		return
	}
	err := h.tmpl.ExecuteTemplate(w, "index.html", map[string]string{"Mode": h.mode})
	if err != nil {
		h.logger.Error("Error executing template", zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (h *APIHandler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.Alerts())
}

func (h *APIHandler) ClearAlerts(w http.ResponseWriter, r *http.Request) {
	h.monitor.ClearAlerts(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	a, err := h.monitor.Assessment(r.URL.Query().Get("profile"))
	if errors.Is(err, exposure.ErrUnknownProfile) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *APIHandler) GetReadings(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, h.monitor.Latest(limit))
}

type statusResponse struct {
	monitor.Status
	Mode       string                              `json:"mode"`
	Quantities map[data.Quantity]thresholds.Status `json:"quantities"`
}

func (h *APIHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Status:     h.monitor.Status(h.now()),
		Mode:       h.mode,
		Quantities: h.monitor.QuantityStatus(),
	})
}

func (h *APIHandler) GetThresholds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.table.Export())
}

// window parses the from/to query parameters (RFC3339). to defaults to now and
// from to one hour before to.
func (h *APIHandler) window(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	to := h.now().UTC()
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("to must be an RFC3339 timestamp")
		}
		to = t
	}
	from := to.Add(-defaultHistorySpan)
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("from must be an RFC3339 timestamp")
		}
		from = t
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, errors.New("from must not be after to")
	}
	return from, to, nil
}

type historyResponse struct {
	Status   string         `json:"status"`
	From     time.Time      `json:"from"`
	To       time.Time      `json:"to"`
	Readings []data.Reading `json:"readings"`
}

// GetHistory answers with an empty list and status "unavailable" when the backend
// cannot be reached.
func (h *APIHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.window(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	readings, err := h.monitor.History(r.Context(), from, to)
	resp := historyResponse{Status: "ok", From: from, To: to, Readings: readings}
	if err != nil {
		h.logger.Warn("History unavailable", zap.Error(err))
		resp.Status = "unavailable"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *APIHandler) exportHandler(ext, contentType string, write func(io.Writer, []data.Reading) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		from, to, err := h.window(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		readings, err := h.monitor.History(r.Context(), from, to)
		if errors.Is(err, ingest.ErrIngestionUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "history backend unavailable")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		var buf bytes.Buffer
		if err := write(&buf, readings); err != nil {
			if errors.Is(err, export.ErrNoReadings) {
				writeError(w, http.StatusNotFound, err.Error())
				return
			}
			h.logger.Error("Export failed", zap.String("format", ext), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "export failed")
			return
		}

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(ext, h.now())+`"`)
		w.WriteHeader(http.StatusOK)
		buf.WriteTo(w)
	}
}

func (h *APIHandler) ExportCSV() http.HandlerFunc {
	return h.exportHandler("csv", "text/csv", export.WriteCSV)
}

func (h *APIHandler) ExportXLSX() http.HandlerFunc {
	return h.exportHandler("xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", export.WriteXLSX)
}

func (h *APIHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
