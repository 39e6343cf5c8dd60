package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shanlih/lectprep/cmd/server/internal/store"
	"github.com/shanlih/lectprep/pkg/logger"
)

type createMeetingRequest struct {
	Title   string `json:"title" binding:"required"`
	Subject string `json:"subject"`
}

// HandleCreateMeeting POST /api/v1/meetings
func HandleCreateMeeting(meetings store.MeetingStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createMeetingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errorResponse(c, http.StatusBadRequest, "缺少会议标题")
			return
		}

		meeting, err := meetings.CreateMeeting(&store.Meeting{
			Title:   req.Title,
			Subject: req.Subject,
		})
		if err != nil {
			logger.L().Error("create meeting failed", "error", err)
			errorResponse(c, http.StatusInternalServerError, "创建会议失败")
			return
		}
		successResponse(c, meeting)
	}
}

// HandleGetMeeting GET /api/v1/meetings/:id
func HandleGetMeeting(meetings store.MeetingStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		meeting, err := meetings.FindMeeting(c.Param("id"))
		if err != nil {
			if errors.Is(err, store.ErrMeetingNotFound) {
				errorResponse(c, http.StatusNotFound, "会议不存在")
				return
			}
			logger.L().Error("find meeting failed", "meeting_id", c.Param("id"), "error", err)
			errorResponse(c, http.StatusInternalServerError, "查询会议失败")
			return
		}
		successResponse(c, meeting)
	}
}

type setMeetingTaskRequest struct {
	TaskID    string `json:"task_id" binding:"required"`
	StreamURL string `json:"stream_url"`
}

// HandleSetMeetingTask PUT /api/v1/meetings/:id/task
// 将已创建的转写任务关联到会议记录
func HandleSetMeetingTask(meetings store.MeetingStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req setMeetingTaskRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errorResponse(c, http.StatusBadRequest, "缺少 task_id")
			return
		}

		meeting, err := meetings.UpdateMeetingTask(c.Param("id"), req.TaskID, req.StreamURL)
		if err != nil {
			if errors.Is(err, store.ErrMeetingNotFound) {
				errorResponse(c, http.StatusNotFound, "会议不存在")
				return
			}
			logger.L().Error("update meeting task failed", "meeting_id", c.Param("id"), "error", err)
			errorResponse(c, http.StatusInternalServerError, "保存任务信息失败")
			return
		}
		successResponse(c, meeting)
	}
}
