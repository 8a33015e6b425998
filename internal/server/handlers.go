package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"slack-calendar/internal/adapters/source"
	"slack-calendar/internal/domain"
	"slack-calendar/internal/pkg/config"
	"slack-calendar/internal/ports"
	"slack-calendar/internal/server/usecase"
)

const (
	uploadField     = "zipfile"
	taskTTL         = 24 * time.Hour
	maxMemoryForm   = 32 << 20
	searchLimit     = 100
	defaultLimit    = 50
	maxLimit        = 500
	calendarLimit   = 1000
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.log.ErrorContext(r.Context(), msg, "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, msg)
}

func (s *Server) since() time.Time {
	days := s.cfg.Ingest.WindowDays
	if days <= 0 {
		days = config.DefaultWindowDays
	}
	return s.clock.Now().Add(-time.Duration(days) * 24 * time.Hour)
}

func (s *Server) today() time.Time {
	now := s.clock.Now().In(s.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.repo.Ping(ctx); err != nil {
		s.log.Warn("Health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readUpload ограничивает размер тела и возвращает загруженный ZIP.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (io.ReadCloser, bool) {
	limit := s.cfg.MaxUploadBytes()
	if limit <= 0 {
		limit = config.DefaultMaxUploadSizeMB << 20
	}
	if r.ContentLength > limit {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Файл больше %d байт", limit))
		return nil, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(maxMemoryForm); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Файл больше %d байт", limit))
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "Не удалось разобрать форму")
		return nil, false
	}

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Не удалось получить файл из формы")
		return nil, false
	}
	if !strings.EqualFold(filepath.Ext(header.Filename), config.DefaultArchiveSuffix) {
		file.Close()
		writeError(w, http.StatusBadRequest, "Поддерживаются только .zip архивы")
		return nil, false
	}
	return file, true
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	defer file.Close()
	defer r.MultipartForm.RemoveAll()

	taskID := uuid.NewString()
	dir := s.cfg.ScratchDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.internalError(w, r, "Не удалось создать каталог загрузок", err)
		return
	}
	path := filepath.Join(dir, "upload_"+taskID+config.DefaultArchiveSuffix)

	out, err := os.Create(path)
	if err != nil {
		s.internalError(w, r, "Не удалось создать временный файл", err)
		return
	}
	_, err = io.Copy(out, file)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		s.internalError(w, r, "Не удалось сохранить загруженный файл", err)
		return
	}

	s.taskStore.CreateTask(taskID, taskTTL)
	s.log.Info("Archive uploaded", "task_id", taskID, "path", path)

	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		s.runUpload(taskID, path)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
}

// withTaskTimeout ограничивает ctx значением processing.task_timeout.
func (s *Server) withTaskTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if timeout := s.cfg.Processing.TaskTimeout; timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

// runUpload обрабатывает загруженный архив в фоне. Архив удаляет конвейер.
// Запуск отменяется при остановке сервера.
func (s *Server) runUpload(taskID, path string) {
	_ = s.taskStore.UpdateTaskStatus(taskID, TaskStatusProcessing)

	ctx, cancel := s.withTaskTimeout(s.runCtx)
	defer cancel()

	report, err := s.ingestor.Run(ctx, usecase.Request{Flow: domain.FlowUpload, ArchivePath: path})
	if err != nil {
		_ = s.taskStore.UpdateTaskError(taskID, err.Error(), &report)
		return
	}
	_ = s.taskStore.UpdateTaskResult(taskID, report)
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.taskStore.GetTask(chi.URLParam(r, "taskID"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Задача не найдена")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// handleScan выполняет scan-and-replace синхронно. Запуск не зависит от
// соединения клиента: после очистки событий прерывать его нельзя.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	s.runs.Add(1)
	defer s.runs.Done()

	ctx, cancel := s.withTaskTimeout(context.WithoutCancel(r.Context()))
	defer cancel()

	report, err := s.ingestor.Run(ctx, usecase.Request{Flow: domain.FlowScan})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, report)
	case errors.Is(err, domain.ErrNotFound) && report.FailedAt == domain.StateLocating:
		writeJSON(w, http.StatusNotFound, report)
	default:
		s.log.Error("Scan failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, report)
	}
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	file, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	defer file.Close()
	defer r.MultipartForm.RemoveAll()

	data, err := io.ReadAll(file)
	if err != nil {
		s.internalError(w, r, "Не удалось прочитать загруженный файл", err)
		return
	}

	summary, err := s.ingestor.Analyze(r.Context(), source.NewMemorySource(data))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, summary)
	case errors.Is(err, domain.ErrSizeLimitExceeded):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, domain.ErrCorruptArchive), errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.internalError(w, r, "Не удалось проанализировать архив", err)
	}
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Messages []domain.Message `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Не удалось декодировать тело запроса")
		return
	}

	events, err := s.extractor.Extract(r.Context(), req.Messages)
	resp := struct {
		Events        []domain.ExtractedEvent `json:"events"`
		FailedBatches int                     `json:"failed_batches,omitempty"`
		Error         string                  `json:"error,omitempty"`
	}{Events: events}
	if resp.Events == nil {
		resp.Events = []domain.ExtractedEvent{}
	}

	if err != nil {
		var ee *domain.ExtractionError
		if !errors.As(err, &ee) {
			s.log.Error("Extraction failed", "error", err)
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		resp.FailedBatches = len(ee.Failed)
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.repo.ListChannels(r.Context(), s.since())
	if err != nil {
		s.internalError(w, r, "Не удалось получить список каналов", err)
		return
	}
	if channels == nil {
		channels = []domain.ChannelSummary{}
	}
	writeJSON(w, http.StatusOK, channels)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")
	keyword := strings.TrimSpace(r.URL.Query().Get("keyword"))

	messages, err := s.repo.ListMessages(r.Context(), channel, keyword, s.since())
	if err != nil {
		s.internalError(w, r, "Не удалось получить сообщения", err)
		return
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	keyword := strings.TrimSpace(r.URL.Query().Get("keyword"))
	if keyword == "" {
		writeError(w, http.StatusBadRequest, "Требуется параметр keyword")
		return
	}

	messages, err := s.repo.SearchMessages(r.Context(), keyword, s.since(), searchLimit)
	if err != nil {
		s.internalError(w, r, "Не удалось выполнить поиск", err)
		return
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

// eventFilter разбирает параметры channel, limit и from.
func (s *Server) eventFilter(r *http.Request) (domain.EventFilter, error) {
	q := r.URL.Query()
	filter := domain.EventFilter{
		Channel: strings.TrimSpace(q.Get("channel")),
		From:    s.today(),
		Limit:   defaultLimit,
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return filter, fmt.Errorf("limit должен быть положительным числом")
		}
		filter.Limit = min(n, maxLimit)
	}
	if v := q.Get("from"); v != "" {
		from, err := time.ParseInLocation(domain.DateLayout, v, s.loc)
		if err != nil {
			return filter, fmt.Errorf("from должен быть в формате YYYY-MM-DD")
		}
		filter.From = from
	}
	return filter, nil
}

func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	filter, err := s.eventFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	events, err := s.repo.UpcomingEvents(r.Context(), filter)
	if err != nil {
		s.internalError(w, r, "Не удалось получить события", err)
		return
	}
	if events == nil {
		events = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) export(w http.ResponseWriter, r *http.Request, exp ports.Exporter, filter domain.EventFilter, contentType, filename string) {
	events, err := s.repo.UpcomingEvents(r.Context(), filter)
	if err != nil {
		s.internalError(w, r, "Не удалось получить события", err)
		return
	}

	var buf bytes.Buffer
	if err := exp.Export(&buf, events); err != nil {
		s.internalError(w, r, "Не удалось сформировать файл", err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	filter := domain.EventFilter{
		Channel: strings.TrimSpace(r.URL.Query().Get("channel")),
		From:    s.today(),
		Limit:   calendarLimit,
	}
	s.export(w, r, s.icsExporter(), filter, "text/calendar; charset=utf-8", "events.ics")
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	filter, err := s.eventFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if r.URL.Query().Get("limit") == "" {
		filter.Limit = calendarLimit
	}
	s.export(w, r, s.xlsxExporter(), filter, xlsxContentType, "events.xlsx")
}

func (s *Server) eventError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrEventNotFound):
		writeError(w, http.StatusNotFound, "Событие не найдено")
	case errors.Is(err, domain.ErrInvalidEvent):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.internalError(w, r, "Не удалось сохранить событие", err)
	}
}

func eventID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("некорректный id события")
	}
	return id, nil
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		domain.ExtractedEvent
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Не удалось декодировать тело запроса")
		return
	}

	ev, err := s.repo.CreateEvent(r.Context(), req.ExtractedEvent, req.Status, s.clock.Now())
	if err != nil {
		s.eventError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	id, err := eventID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var patch domain.EventPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "Не удалось декодировать тело запроса")
		return
	}

	ev, err := s.repo.UpdateEvent(r.Context(), id, patch)
	if err != nil {
		s.eventError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	id, err := eventID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.repo.DeleteEvent(r.Context(), id); err != nil {
		s.eventError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
