package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/willwe-dev/activity"
	"github.com/willwe-dev/activity/internal/logging"
	"github.com/willwe-dev/activity/internal/store"
)

type healthResponse struct {
	Status      string `json:"status"`
	Database    string `json:"database"`
	EventSource string `json:"eventSource"`
	Timestamp   string `json:"timestamp"`
}

func (s *Server) health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	res := healthResponse{
		Status:      "ok",
		Database:    "ok",
		EventSource: "disabled",
		Timestamp:   activity.FormatTimestamp(s.now()),
	}
	status := http.StatusOK

	if err := s.store.Ping(ctx); err != nil {
		s.log.Error().Err(err).Msg("database ping failed")
		res.Status, res.Database = "error", "unreachable"
		status = http.StatusServiceUnavailable
	}
	if s.upstream != nil {
		res.EventSource = "ok"
		if err := s.upstream.Health(ctx); err != nil {
			// backfill degrades without the source, so this does not fail the check
			res.EventSource = "unreachable"
		}
	}
	return c.JSON(status, res)
}

func queryLimit(c echo.Context) int {
	n, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil {
		return 0
	}
	return n
}

func (s *Server) listActivities(c echo.Context) error {
	subject := subjectFromQuery(c)
	if err := subject.Validate(); err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}

	recs, err := s.gateway.GetActivities(c.Request().Context(), subject, queryLimit(c))
	if err != nil {
		s.log.Error().Err(err).Str(logging.Key, subject.Key()).Msg("failed to load activities")
		return errorJSON(c, http.StatusInternalServerError, "failed to load activities")
	}
	return c.JSON(http.StatusOK, recs)
}

func subjectFromQuery(c echo.Context) activity.Subject {
	return activity.Subject{
		NodeID:      strings.TrimSpace(c.QueryParam("nodeId")),
		UserAddress: activity.NormalizeAddress(c.QueryParam("userAddress")),
	}
}

const dayLayout = "2006-01-02"

// dailyActivity serves per-day counts for a heatmap. since and until are
// inclusive days and default to the past year.
func (s *Server) dailyActivity(c echo.Context) error {
	subject := subjectFromQuery(c)
	if err := subject.Validate(); err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}

	until := s.now().UTC().Truncate(24 * time.Hour)
	since := until.AddDate(-1, 0, 0)
	if q := c.QueryParam("since"); q != "" {
		if t, err := time.Parse(dayLayout, q); err == nil {
			since = t
		}
	}
	if q := c.QueryParam("until"); q != "" {
		if t, err := time.Parse(dayLayout, q); err == nil {
			until = t
		}
	}

	counts, err := s.store.DailyCounts(c.Request().Context(), subject, since, until.AddDate(0, 0, 1))
	if err != nil {
		s.log.Error().Err(err).Str(logging.Key, subject.Key()).Msg("failed to count activities")
		return errorJSON(c, http.StatusInternalServerError, "failed to count activities")
	}
	return c.JSON(http.StatusOK, counts)
}

func (s *Server) totalActivity(c echo.Context) error {
	subject := subjectFromQuery(c)
	if err := subject.Validate(); err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	n, err := s.store.CountActivities(c.Request().Context(), subject)
	if err != nil {
		s.log.Error().Err(err).Str(logging.Key, subject.Key()).Msg("failed to count activities")
		return errorJSON(c, http.StatusInternalServerError, "failed to count activities")
	}
	return c.JSON(http.StatusOK, map[string]int64{"total": n})
}

func (s *Server) getActivity(c echo.Context) error {
	a, err := s.store.Activity(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return errorJSON(c, http.StatusNotFound, "activity not found")
	}
	if err != nil {
		s.log.Error().Err(err).Str(logging.ID, c.Param("id")).Msg("failed to load activity")
		return errorJSON(c, http.StatusInternalServerError, "failed to load activity")
	}
	return c.JSON(http.StatusOK, a.Record())
}

func (s *Server) listChatMessages(c echo.Context) error {
	nodeID := strings.TrimSpace(c.QueryParam("nodeId"))
	if nodeID == "" {
		return errorJSON(c, http.StatusBadRequest, "nodeId is required")
	}
	msgs, err := s.store.ListChatMessages(c.Request().Context(), nodeID, queryLimit(c))
	if err != nil {
		s.log.Error().Err(err).Str(logging.NodeID, nodeID).Msg("failed to load chat messages")
		return errorJSON(c, http.StatusInternalServerError, "failed to load chat messages")
	}
	return c.JSON(http.StatusOK, msgs)
}

type chatRequest struct {
	NodeID      string `json:"nodeId"`
	UserAddress string `json:"userAddress"`
	Content     string `json:"content"`
	NetworkID   string `json:"networkId"`
}

func (s *Server) createChatMessage(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.NodeID) == "" || strings.TrimSpace(req.UserAddress) == "" || strings.TrimSpace(req.Content) == "" {
		return errorJSON(c, http.StatusBadRequest, "nodeId, userAddress and content are required")
	}

	msg := &activity.ChatMessage{
		NodeID:      req.NodeID,
		UserAddress: req.UserAddress,
		Content:     req.Content,
		NetworkID:   req.NetworkID,
	}
	if err := s.store.CreateChatMessage(c.Request().Context(), msg); err != nil {
		s.log.Error().Err(err).Msg("failed to store chat message")
		return errorJSON(c, http.StatusInternalServerError, "failed to store chat message")
	}
	return c.JSON(http.StatusCreated, msg)
}

func (s *Server) getNode(c echo.Context) error {
	n, err := s.store.Node(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return errorJSON(c, http.StatusNotFound, "node not found")
	}
	if err != nil {
		s.log.Error().Err(err).Msg("failed to load node")
		return errorJSON(c, http.StatusInternalServerError, "failed to load node")
	}
	return c.JSON(http.StatusOK, n)
}

func (s *Server) listMovements(c echo.Context) error {
	ms, err := s.store.Movements(c.Request().Context(), c.Param("id"), queryLimit(c))
	if err != nil {
		s.log.Error().Err(err).Msg("failed to load movements")
		return errorJSON(c, http.StatusInternalServerError, "failed to load movements")
	}
	return c.JSON(http.StatusOK, ms)
}

func (s *Server) getMovement(c echo.Context) error {
	m, err := s.store.Movement(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return errorJSON(c, http.StatusNotFound, "movement not found")
	}
	if err != nil {
		s.log.Error().Err(err).Msg("failed to load movement")
		return errorJSON(c, http.StatusInternalServerError, "failed to load movement")
	}
	return c.JSON(http.StatusOK, m)
}

func (s *Server) getMembrane(c echo.Context) error {
	m, err := s.store.Membrane(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return errorJSON(c, http.StatusNotFound, "membrane not found")
	}
	if err != nil {
		s.log.Error().Err(err).Msg("failed to load membrane")
		return errorJSON(c, http.StatusInternalServerError, "failed to load membrane")
	}
	return c.JSON(http.StatusOK, m)
}

func (s *Server) listSignatures(c echo.Context) error {
	sigs, err := s.store.Signatures(c.Request().Context(), c.Param("id"))
	if err != nil {
		s.log.Error().Err(err).Msg("failed to load signatures")
		return errorJSON(c, http.StatusInternalServerError, "failed to load signatures")
	}
	return c.JSON(http.StatusOK, sigs)
}

func (s *Server) getPreference(c echo.Context) error {
	p, err := s.store.Preference(c.Request().Context(), c.Param("address"))
	if errors.Is(err, store.ErrNotFound) {
		return errorJSON(c, http.StatusNotFound, "no preferences")
	}
	if err != nil {
		s.log.Error().Err(err).Msg("failed to load preferences")
		return errorJSON(c, http.StatusInternalServerError, "failed to load preferences")
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) putPreference(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, 64<<10))
	if err != nil || !json.Valid(body) {
		return errorJSON(c, http.StatusBadRequest, "body must be a JSON document")
	}
	p, err := s.store.SavePreference(c.Request().Context(), c.Param("address"), body)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to save preferences")
		return errorJSON(c, http.StatusInternalServerError, "failed to save preferences")
	}
	return c.JSON(http.StatusOK, p)
}
