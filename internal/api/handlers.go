package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"rss_collector/internal/domain"
)

type CollectResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Report  *domain.RunReport `json:"report,omitempty"`
}

type ItemsResponse struct {
	Success bool                   `json:"success"`
	Count   int                    `json:"count"`
	Data    []domain.CollectedItem `json:"data"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *Server) health(c *gin.Context) {
	if err := s.items.Ping(c.Request.Context()); err != nil {
		s.logger.Warn("health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) collect(c *gin.Context) {
	report, err := s.trigger.Trigger(c.Request.Context())
	switch {
	case errors.Is(err, domain.ErrRunInProgress):
		c.JSON(http.StatusConflict, CollectResponse{
			Success: false,
			Message: "이미 수집이 진행 중입니다.",
		})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, CollectResponse{
			Success: false,
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, CollectResponse{
		Success: true,
		Message: report.Message,
		Report:  report,
	})
}

func (s *Server) listSources(c *gin.Context) {
	sources, err := s.sources.ListSources(c.Request.Context())
	if err != nil {
		s.logger.Error("list sources failed", "error", err)
		c.JSON(http.StatusInternalServerError, messageResponse{Message: "소스 목록 조회 중 오류가 발생했습니다."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": sources})
}

func (s *Server) listItems(c *gin.Context) {
	field := c.Query("field")
	if field == "" {
		c.JSON(http.StatusBadRequest, messageResponse{Message: "field 파라미터는 필수 항목입니다."})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		limit = 100
	}

	items, err := s.items.ListByField(c.Request.Context(), field, c.Query("value"), limit)
	if errors.Is(err, domain.ErrUnknownField) {
		c.JSON(http.StatusBadRequest, messageResponse{Message: err.Error()})
		return
	}
	if err != nil {
		s.logger.Error("list items failed", "field", field, "error", err)
		c.JSON(http.StatusInternalServerError, messageResponse{Message: "아이템 조회 중 오류가 발생했습니다."})
		return
	}

	if items == nil {
		items = []domain.CollectedItem{}
	}
	c.JSON(http.StatusOK, ItemsResponse{Success: true, Count: len(items), Data: items})
}

func (s *Server) getItem(c *gin.Context) {
	guid := strings.TrimSpace(c.Param("guid"))

	item, err := s.items.Get(c.Request.Context(), guid)
	if errors.Is(err, domain.ErrItemNotFound) {
		c.JSON(http.StatusNotFound, messageResponse{Message: "해당 RSS 아이템을 찾을 수 없습니다."})
		return
	}
	if err != nil {
		s.logger.Error("get item failed", "guid", guid, "error", err)
		c.JSON(http.StatusInternalServerError, messageResponse{Message: "아이템 조회 중 오류가 발생했습니다."})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": item})
}

func (s *Server) deleteItem(c *gin.Context) {
	guid := strings.TrimSpace(c.Param("guid"))

	err := s.items.Delete(c.Request.Context(), guid)
	if errors.Is(err, domain.ErrItemNotFound) {
		c.JSON(http.StatusNotFound, messageResponse{Message: "해당 RSS 아이템을 찾을 수 없습니다."})
		return
	}
	if err != nil {
		s.logger.Error("delete item failed", "guid", guid, "error", err)
		c.JSON(http.StatusInternalServerError, messageResponse{Message: "RSS 아이템 삭제 중 오류가 발생했습니다."})
		return
	}

	s.logger.Info("item deleted", "guid", guid)
	c.JSON(http.StatusOK, messageResponse{Success: true, Message: "RSS 아이템이 삭제되었습니다."})
}

type updateKeywordsRequest struct {
	MatchedKeywords []string `json:"matchedKeywords" binding:"required"`
}

func (s *Server) updateKeywords(c *gin.Context) {
	guid := strings.TrimSpace(c.Param("guid"))

	var req updateKeywordsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, messageResponse{Message: "Invalid parameters"})
		return
	}

	err := s.items.UpdateMatchedKeywords(c.Request.Context(), guid, req.MatchedKeywords)
	if errors.Is(err, domain.ErrItemNotFound) {
		c.JSON(http.StatusNotFound, messageResponse{Message: "RSS item not found"})
		return
	}
	if err != nil {
		s.logger.Error("update keywords failed", "guid", guid, "error", err)
		c.JSON(http.StatusInternalServerError, messageResponse{Message: "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, messageResponse{Success: true, Message: "Keywords updated successfully"})
}

type newsletterSentRequest struct {
	GUIDs []string `json:"guids" binding:"required,min=1"`
	Date  string   `json:"date" binding:"required"`
}

func (s *Server) markNewsletterSent(c *gin.Context) {
	var req newsletterSentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, messageResponse{Message: "Invalid parameters"})
		return
	}

	date, err := time.Parse(time.DateOnly, req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, messageResponse{Message: "date must be YYYY-MM-DD"})
		return
	}

	n, err := s.items.MarkNewsletterSent(c.Request.Context(), req.GUIDs, date)
	if err != nil {
		s.logger.Error("mark newsletter sent failed", "error", err)
		c.JSON(http.StatusInternalServerError, messageResponse{Message: "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "updated": n})
}
