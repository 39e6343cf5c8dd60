package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shanlih/lectprep/cmd/server/internal/store"
	"github.com/shanlih/lectprep/cmd/server/internal/tingwu"
	"github.com/shanlih/lectprep/pkg/logger"
)

// createTaskRequest 创建实时转写任务的请求体
// meeting_id 可选，提供时会把任务信息回写到对应的会议记录
type createTaskRequest struct {
	MeetingID string `json:"meeting_id"`

	tingwu.RealtimeTaskOptions
}

// HandleCreateRealtimeTask POST /api/v1/tingwu/create-task
func HandleCreateRealtimeTask(tw *tingwu.Client, meetings store.MeetingStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createTaskRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errorResponse(c, http.StatusBadRequest, "请求参数错误: "+err.Error())
			return
		}

		created, err := tw.CreateRealtimeTask(c.Request.Context(), req.RealtimeTaskOptions)
		if err != nil {
			logger.L().Error("create realtime task failed", "error", err)
			errorResponse(c, http.StatusBadGateway, "创建转写任务失败")
			return
		}

		if req.MeetingID != "" {
			if _, err := meetings.UpdateMeetingTask(req.MeetingID, created.TaskID, created.MeetingJoinURL); err != nil {
				if errors.Is(err, store.ErrMeetingNotFound) {
					errorResponse(c, http.StatusNotFound, "会议不存在")
					return
				}
				logger.L().Error("update meeting task failed", "meeting_id", req.MeetingID, "error", err)
				errorResponse(c, http.StatusInternalServerError, "保存任务信息失败")
				return
			}
		}

		successResponse(c, gin.H{
			"task_id":          created.TaskID,
			"meeting_join_url": created.MeetingJoinURL,
			"task_status":      created.TaskStatus,
		})
	}
}

type stopTaskRequest struct {
	TaskID string `json:"task_id" binding:"required"`
}

// HandleStopTask POST /api/v1/tingwu/stop-task
// 停止实时转写任务并触发后处理
func HandleStopTask(tw *tingwu.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req stopTaskRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errorResponse(c, http.StatusBadRequest, "缺少 task_id")
			return
		}

		info, err := tw.StopTask(c.Request.Context(), req.TaskID)
		if err != nil {
			logger.L().Error("stop task failed", "task_id", req.TaskID, "error", err)
			errorResponse(c, http.StatusBadGateway, "停止转写任务失败")
			return
		}
		successResponse(c, info)
	}
}

// HandleGetTaskInfo GET /api/v1/tingwu/task-info/:task_id
func HandleGetTaskInfo(tw *tingwu.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		taskID := c.Param("task_id")
		if taskID == "" {
			errorResponse(c, http.StatusBadRequest, "缺少 task_id")
			return
		}

		info, err := tw.GetTaskInfo(c.Request.Context(), taskID)
		if err != nil {
			logger.L().Error("get task info failed", "task_id", taskID, "error", err)
			errorResponse(c, http.StatusBadGateway, "查询任务状态失败")
			return
		}
		successResponse(c, info)
	}
}
