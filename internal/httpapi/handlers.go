package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"horse.fit/jobsift/internal/db"
)

func (s *Server) handleHealth(c echo.Context) error {
	if err := s.pool.DB().PingContext(c.Request().Context()); err != nil {
		return internalError(c, "Database unreachable")
	}
	return success(c, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(c echo.Context) error {
	counts, err := s.pool.CountRecordsByStatus(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("stats query failed")
		return internalError(c, "Failed to load stats")
	}
	return success(c, map[string]any{
		"records_by_status": counts,
	})
}

func (s *Server) handleClusters(c echo.Context) error {
	kind := strings.TrimSpace(c.QueryParam("kind"))
	if kind != "" && kind != "job" && kind != "organization" {
		return failValidation(c, map[string]string{"kind": "must be job or organization"})
	}

	minSize := parseIntParam(c.QueryParam("min_size"), 1)
	page := parseIntParam(c.QueryParam("page"), 1)
	if page < 1 {
		page = 1
	}
	pageSize := parseIntParam(c.QueryParam("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	rows, err := s.pool.ListClusters(c.Request().Context(), kind, minSize, pageSize, (page-1)*pageSize)
	if err != nil {
		s.logger.Error().Err(err).Msg("cluster listing failed")
		return internalError(c, "Failed to list clusters")
	}

	return success(c, map[string]any{
		"clusters":  rows,
		"page":      page,
		"page_size": pageSize,
	})
}

func (s *Server) handleClusterDetail(c echo.Context) error {
	clusterID, err := strconv.ParseInt(c.Param("cluster_id"), 10, 64)
	if err != nil || clusterID < 1 {
		return failValidation(c, map[string]string{"cluster_id": "must be a positive integer"})
	}

	members, err := s.pool.GetClusterMembers(c.Request().Context(), clusterID)
	if err != nil {
		s.logger.Error().Err(err).Int64("cluster_id", clusterID).Msg("cluster detail failed")
		return internalError(c, "Failed to load cluster")
	}
	if len(members) == 0 {
		return failNotFound(c, "Cluster not found")
	}

	edges, err := s.pool.ListEdgesForCluster(c.Request().Context(), clusterID)
	if err != nil {
		s.logger.Error().Err(err).Int64("cluster_id", clusterID).Msg("cluster edges failed")
		return internalError(c, "Failed to load cluster")
	}

	return success(c, map[string]any{
		"cluster_id": clusterID,
		"members":    members,
		"edges":      edges,
	})
}

func (s *Server) handleRecordDetail(c echo.Context) error {
	recordID, err := strconv.ParseInt(c.Param("record_id"), 10, 64)
	if err != nil || recordID < 1 {
		return failValidation(c, map[string]string{"record_id": "must be a positive integer"})
	}

	ctx := c.Request().Context()
	record, err := s.pool.GetRecord(ctx, recordID)
	if err != nil {
		if db.IsNoRows(err) {
			return failNotFound(c, "Record not found")
		}
		s.logger.Error().Err(err).Int64("record_id", recordID).Msg("record lookup failed")
		return internalError(c, "Failed to load record")
	}

	edges, err := s.pool.ListEdgesForRecord(ctx, recordID)
	if err != nil {
		s.logger.Error().Err(err).Int64("record_id", recordID).Msg("record edges failed")
		return internalError(c, "Failed to load record")
	}
	events, err := s.pool.ListResolutionEvents(ctx, recordID, 20)
	if err != nil {
		s.logger.Error().Err(err).Int64("record_id", recordID).Msg("record events failed")
		return internalError(c, "Failed to load record")
	}

	return success(c, map[string]any{
		"record": record,
		"edges":  edges,
		"events": events,
	})
}

func (s *Server) handleReviewQueue(c echo.Context) error {
	page := parseIntParam(c.QueryParam("page"), 1)
	if page < 1 {
		page = 1
	}
	pageSize := parseIntParam(c.QueryParam("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	items, err := s.pool.ListPendingReviewItems(c.Request().Context(), pageSize, (page-1)*pageSize)
	if err != nil {
		s.logger.Error().Err(err).Msg("review queue listing failed")
		return internalError(c, "Failed to list review queue")
	}

	return success(c, map[string]any{
		"items":     items,
		"page":      page,
		"page_size": pageSize,
	})
}

func (s *Server) handleSubmitRecord(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<20))
	if err != nil {
		return failValidation(c, map[string]string{"body": "failed to read request body"})
	}

	recordID, err := s.svc.SubmitRecord(c.Request().Context(), json.RawMessage(body))
	if err != nil {
		if strings.Contains(err.Error(), "validate submission") {
			return failValidation(c, map[string]string{"payload": err.Error()})
		}
		s.logger.Error().Err(err).Msg("record submission failed")
		return internalError(c, "Failed to submit record")
	}

	return successWithStatus(c, http.StatusAccepted, map[string]any{
		"record_id": recordID,
	})
}

type processRequest struct {
	Limit int `json:"limit"`
}

func (s *Server) handleProcess(c echo.Context) error {
	var req processRequest
	if err := decodeJSONBody(c, &req); err != nil && !errors.Is(err, io.EOF) {
		return failValidation(c, map[string]string{"body": err.Error()})
	}

	processed, err := s.svc.ProcessPending(c.Request().Context(), req.Limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("queue processing failed")
		return internalError(c, "Failed to process pending records")
	}

	return success(c, map[string]any{
		"processed": processed,
	})
}

type invalidateEdgeRequest struct {
	RecordAID int64 `json:"record_a_id"`
	RecordBID int64 `json:"record_b_id"`
}

func (s *Server) handleInvalidateEdge(c echo.Context) error {
	var req invalidateEdgeRequest
	if err := decodeJSONBody(c, &req); err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}
	if req.RecordAID < 1 || req.RecordBID < 1 || req.RecordAID == req.RecordBID {
		return failValidation(c, map[string]string{
			"record_a_id": "must name two distinct records",
			"record_b_id": "must name two distinct records",
		})
	}

	assignments, err := s.svc.InvalidateEdge(c.Request().Context(), req.RecordAID, req.RecordBID)
	if err != nil {
		if strings.Contains(err.Error(), "edge not found") {
			return failNotFound(c, "Edge not found")
		}
		s.logger.Error().Err(err).Msg("edge invalidation failed")
		return internalError(c, "Failed to invalidate edge")
	}

	return success(c, map[string]any{
		"assignments": assignments,
	})
}

func (s *Server) handlePromoteReview(c echo.Context) error {
	return s.handleResolveReview(c, true)
}

func (s *Server) handleDiscardReview(c echo.Context) error {
	return s.handleResolveReview(c, false)
}

func (s *Server) handleResolveReview(c echo.Context, promote bool) error {
	reviewItemID, err := strconv.ParseInt(c.Param("review_item_id"), 10, 64)
	if err != nil || reviewItemID < 1 {
		return failValidation(c, map[string]string{"review_item_id": "must be a positive integer"})
	}

	resolvedBy := strings.TrimSpace(s.cfg.AdminUser)
	if promote {
		err = s.svc.PromoteReviewItem(c.Request().Context(), reviewItemID, resolvedBy)
	} else {
		err = s.svc.DiscardReviewItem(c.Request().Context(), reviewItemID, resolvedBy)
	}
	if err != nil {
		if db.IsNoRows(err) {
			return failNotFound(c, "Review item not found or already resolved")
		}
		s.logger.Error().Err(err).Int64("review_item_id", reviewItemID).Msg("review resolution failed")
		return internalError(c, "Failed to resolve review item")
	}

	return success(c, map[string]any{
		"review_item_id": reviewItemID,
		"promoted":       promote,
	})
}

func decodeJSONBody(c echo.Context, dest any) error {
	decoder := json.NewDecoder(io.LimitReader(c.Request().Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("request body contains trailing content")
	}
	return nil
}

func parseIntParam(raw string, fallback int) int {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fallback
	}
	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return fallback
	}
	return value
}
