package session

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/courtiq/drill-engine/internal/drill"
	"github.com/courtiq/drill-engine/internal/room"
	"github.com/courtiq/drill-engine/internal/safety"
)

// HTTPHandler обрабатывает HTTP запросы для управления сессиями (Presentation Layer)
type HTTPHandler struct {
	manager *Manager
}

// NewHTTPHandler создает новый HTTP обработчик
func NewHTTPHandler(manager *Manager) *HTTPHandler {
	return &HTTPHandler{
		manager: manager,
	}
}

// RegisterRoutes регистрирует маршруты в роутере
func (h *HTTPHandler) RegisterRoutes(router *mux.Router) {
	api := router.PathPrefix("/api/sessions").Subrouter()

	api.HandleFunc("", h.CreateSession).Methods("POST")
	api.HandleFunc("", h.ListSessions).Methods("GET")
	api.HandleFunc("/{id}", h.GetSession).Methods("GET")
	api.HandleFunc("/{id}", h.DeleteSession).Methods("DELETE")
	api.HandleFunc("/{id}/room", h.AnalyzeRoom).Methods("POST")
	api.HandleFunc("/{id}/room", h.GetConstraints).Methods("GET")
	api.HandleFunc("/{id}/markers", h.GenerateMarkers).Methods("POST")
	api.HandleFunc("/{id}/bounces", h.RecordBounce).Methods("POST")
	api.HandleFunc("/{id}/bounces", h.GetBounceEvents).Methods("GET")
	api.HandleFunc("/{id}/pose", h.EvaluatePose).Methods("POST")
	api.HandleFunc("/{id}/incidents", h.GetIncidents).Methods("GET")
	api.HandleFunc("/{id}/sync", h.SyncSession).Methods("POST")
	api.HandleFunc("/{id}/pause", h.transitionHandler(drill.TriggerPause)).Methods("POST")
	api.HandleFunc("/{id}/resume", h.transitionHandler(drill.TriggerResume)).Methods("POST")
	api.HandleFunc("/{id}/complete", h.transitionHandler(drill.TriggerComplete)).Methods("POST")
	api.HandleFunc("/{id}/fail", h.transitionHandler(drill.TriggerFail)).Methods("POST")
}

// CreateSession создает новую тренировочную сессию
// @Summary Создать сессию
// @Description Создает новую тренировочную сессию для пользователя
// @Tags sessions
// @Accept json
// @Produce json
// @Param request body CreateSessionRequest true "Параметры сессии"
// @Success 201 {object} drill.TrainingSession
// @Failure 400 {object} map[string]interface{}
// @Router /api/sessions [post]
func (h *HTTPHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, err := h.manager.CreateSession(r.Context(), &req)
	if err != nil {
		respondDomainError(w, "Failed to create session", err)
		return
	}

	respondJSON(w, http.StatusCreated, session)
}

// ListSessions возвращает список сессий
// @Summary Список сессий
// @Tags sessions
// @Produce json
// @Param user_id query string false "Фильтр по пользователю"
// @Param limit query int false "Лимит" default(50)
// @Param offset query int false "Смещение" default(0)
// @Success 200 {object} map[string]interface{}
// @Router /api/sessions [get]
func (h *HTTPHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	limit := getQueryInt(r, "limit", 50)
	offset := getQueryInt(r, "offset", 0)

	sessions, err := h.manager.ListSessions(r.Context(), userID, limit, offset)
	if err != nil {
		log.Printf("[ERROR] Failed to list sessions: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"limit":    limit,
		"offset":   offset,
		"count":    len(sessions),
	})
}

// GetSession получает информацию о сессии
// @Summary Получить сессию
// @Tags sessions
// @Produce json
// @Param id path string true "ID сессии"
// @Success 200 {object} drill.TrainingSession
// @Failure 404 {object} map[string]interface{}
// @Router /api/sessions/{id} [get]
func (h *HTTPHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	session, err := h.manager.GetSession(r.Context(), sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Session not found")
		return
	}

	respondJSON(w, http.StatusOK, session)
}

// DeleteSession удаляет сессию
// @Summary Удалить сессию
// @Tags sessions
// @Produce json
// @Param id path string true "ID сессии"
// @Success 200 {object} map[string]interface{}
// @Router /api/sessions/{id} [delete]
func (h *HTTPHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	if err := h.manager.DeleteSession(r.Context(), sessionID); err != nil {
		log.Printf("[ERROR] Failed to delete session %s: %v", sessionID, err)
		respondError(w, http.StatusInternalServerError, "Failed to delete session")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":    "Session deleted successfully",
		"session_id": sessionID,
	})
}

// AnalyzeRoom анализирует помещение для сессии
// @Summary Анализ помещения
// @Description Вычисляет ограничения, оценку безопасности и рекомендованные паттерны
// @Tags room
// @Accept json
// @Produce json
// @Param id path string true "ID сессии"
// @Param request body room.PlaneScan true "Данные сканирования"
// @Success 200 {object} room.Constraints
// @Router /api/sessions/{id}/room [post]
func (h *HTTPHandler) AnalyzeRoom(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var scan room.PlaneScan
	if err := json.NewDecoder(r.Body).Decode(&scan); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	constraints, err := h.manager.AnalyzeRoom(r.Context(), sessionID, scan)
	if err != nil {
		respondDomainError(w, "Failed to analyze room", err)
		return
	}

	respondJSON(w, http.StatusOK, constraints)
}

// GetConstraints возвращает последние ограничения помещения
// @Summary Ограничения помещения
// @Tags room
// @Produce json
// @Param id path string true "ID сессии"
// @Success 200 {object} room.Constraints
// @Failure 404 {object} map[string]interface{}
// @Router /api/sessions/{id}/room [get]
func (h *HTTPHandler) GetConstraints(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	constraints, err := h.manager.GetConstraints(r.Context(), sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Room has not been analyzed")
		return
	}

	respondJSON(w, http.StatusOK, constraints)
}

// GenerateMarkers раскладывает маркеры паттерна сессии
// @Summary Сгенерировать маркеры
// @Tags room
// @Produce json
// @Param id path string true "ID сессии"
// @Success 200 {object} room.MarkerSet
// @Router /api/sessions/{id}/markers [post]
func (h *HTTPHandler) GenerateMarkers(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	set, err := h.manager.GenerateMarkers(r.Context(), sessionID)
	if err != nil {
		respondDomainError(w, "Failed to generate markers", err)
		return
	}

	respondJSON(w, http.StatusOK, set)
}

// RecordBounce регистрирует удар
// @Summary Зарегистрировать отскок
// @Description Валидирует удар, записывает событие и пересчитывает метрики
// @Tags bounces
// @Accept json
// @Produce json
// @Param id path string true "ID сессии"
// @Param request body drill.ImpactInput true "Данные удара"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Router /api/sessions/{id}/bounces [post]
func (h *HTTPHandler) RecordBounce(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var input drill.ImpactInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	event, session, err := h.manager.RecordBounce(r.Context(), sessionID, input)
	if err != nil {
		respondDomainError(w, "Failed to record bounce", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"event":   event,
		"scores":  session.Scores,
		"hits":    session.TotalHits,
		"bounces": session.TotalBounces,
	})
}

// GetBounceEvents возвращает события отскоков сессии
// @Summary События отскоков
// @Tags bounces
// @Produce json
// @Param id path string true "ID сессии"
// @Success 200 {object} map[string]interface{}
// @Router /api/sessions/{id}/bounces [get]
func (h *HTTPHandler) GetBounceEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	events, err := h.manager.GetBounceEvents(r.Context(), sessionID)
	if err != nil {
		log.Printf("[ERROR] Failed to get bounce events %s: %v", sessionID, err)
		respondError(w, http.StatusInternalServerError, "Failed to get bounce events")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// EvaluatePose оценивает снимок позы
// @Summary Оценка безопасности позы
// @Description Оценивает позу относительно границ; критический инцидент ставит сессию на паузу
// @Tags safety
// @Accept json
// @Produce json
// @Param id path string true "ID сессии"
// @Param request body safety.PoseSnapshot true "Снимок позы"
// @Success 200 {object} safety.Assessment
// @Router /api/sessions/{id}/pose [post]
func (h *HTTPHandler) EvaluatePose(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var snapshot safety.PoseSnapshot
	if err := json.NewDecoder(r.Body).Decode(&snapshot); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	assessment, err := h.manager.EvaluatePoseSafety(r.Context(), sessionID, snapshot)
	if err != nil {
		respondDomainError(w, "Failed to evaluate pose", err)
		return
	}

	respondJSON(w, http.StatusOK, assessment)
}

// GetIncidents возвращает журнал безопасности сессии
// @Summary Журнал безопасности
// @Tags safety
// @Produce json
// @Param id path string true "ID сессии"
// @Success 200 {object} map[string]interface{}
// @Router /api/sessions/{id}/incidents [get]
func (h *HTTPHandler) GetIncidents(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	incidents, err := h.manager.GetIncidents(r.Context(), sessionID)
	if err != nil {
		log.Printf("[ERROR] Failed to get incidents %s: %v", sessionID, err)
		respondError(w, http.StatusInternalServerError, "Failed to get incidents")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"incidents": incidents,
		"count":     len(incidents),
	})
}

// SyncSession сливает снимок метрик качества с платформы
// @Summary Синхронизация платформы
// @Description Идемпотентно сливает метрики качества с клиентской платформы
// @Tags sync
// @Accept json
// @Produce json
// @Param id path string true "ID сессии"
// @Param request body drill.SyncPayload true "Снимок метрик"
// @Success 200 {object} drill.TrainingSession
// @Failure 409 {object} map[string]interface{}
// @Router /api/sessions/{id}/sync [post]
func (h *HTTPHandler) SyncSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var payload drill.SyncPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, err := h.manager.SyncSession(r.Context(), sessionID, payload)
	if err != nil {
		respondDomainError(w, "Failed to sync session", err)
		return
	}

	respondJSON(w, http.StatusOK, session)
}

// transitionHandler строит обработчик явного перехода статуса
func (h *HTTPHandler) transitionHandler(trigger drill.TransitionTrigger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := mux.Vars(r)["id"]

		var req struct {
			Reason string `json:"reason"`
		}
		// Тело опционально
		_ = json.NewDecoder(r.Body).Decode(&req)

		session, err := h.manager.TransitionSession(r.Context(), sessionID, trigger, req.Reason)
		if err != nil {
			respondDomainError(w, "Failed to transition session", err)
			return
		}

		respondJSON(w, http.StatusOK, session)
	}
}

// ===== Утилиты =====

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[ERROR] Failed to encode JSON response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":  message,
		"status": status,
	})
}

// respondDomainError переводит доменные ошибки в HTTP статусы
func respondDomainError(w http.ResponseWriter, message string, err error) {
	var validationErr *drill.ValidationError
	var transitionErr *drill.IllegalTransitionError
	var syncConflict *drill.SyncConflict
	var constraintViolation *drill.ConstraintViolation

	switch {
	case errors.As(err, &validationErr):
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":  message,
			"detail": err.Error(),
			"status": http.StatusBadRequest,
		})
	case errors.As(err, &transitionErr):
		respondJSON(w, http.StatusConflict, map[string]interface{}{
			"error":  message,
			"detail": err.Error(),
			"status": http.StatusConflict,
		})
	case errors.As(err, &syncConflict):
		respondJSON(w, http.StatusConflict, map[string]interface{}{
			"error":  message,
			"detail": err.Error(),
			"status": http.StatusConflict,
		})
	case errors.As(err, &constraintViolation):
		respondJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":  message,
			"detail": err.Error(),
			"status": http.StatusUnprocessableEntity,
		})
	default:
		log.Printf("[ERROR] %s: %v", message, err)
		respondError(w, http.StatusInternalServerError, message)
	}
}

func getQueryInt(r *http.Request, key string, defaultValue int) int {
	valueStr := r.URL.Query().Get(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
