package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/semaphore"

	"github.com/shanlih/lectprep/cmd/server/internal/store"
	"github.com/shanlih/lectprep/cmd/server/internal/summary"
	"github.com/shanlih/lectprep/pkg/logger"
)

// sseDone 流结束标记，客户端据此停止读取
const sseDone = "[DONE]"

// HandleSummaryStream GET /api/v1/meetings/:id/summary/stream
// 以 SSE 推送摘要任务的轮询进度；轮询在请求 goroutine 内进行，
// 并发流数量由加权信号量限制，超限时返回 503
func HandleSummaryStream(poller *summary.Poller, meetings store.MeetingStore, sem *semaphore.Weighted) gin.HandlerFunc {
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
		if meeting.TaskID == "" {
			errorResponse(c, http.StatusBadRequest, "会议未关联转写任务")
			return
		}

		if !sem.TryAcquire(1) {
			errorResponse(c, http.StatusServiceUnavailable, "摘要生成请求过多，请稍后重试")
			return
		}
		defer sem.Release(1)

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Accel-Buffering", "no")
		c.Writer.WriteHeader(http.StatusOK)

		emit := func(ev summary.ProgressEvent) {
			payload, err := json.Marshal(ev)
			if err != nil {
				logger.L().Error("marshal progress event failed", "error", err)
				return
			}
			fmt.Fprintf(c.Writer, "data: %s\n\n", payload)
			c.Writer.Flush()
		}

		if err := poller.Run(c.Request.Context(), meeting.ID, meeting.TaskID, emit); err != nil {
			// 终态错误已经以 error 事件推送过，这里只记日志
			logger.L().Warn("summary poll ended with error", "meeting_id", meeting.ID, "error", err)
		}

		fmt.Fprintf(c.Writer, "data: %s\n\n", sseDone)
		c.Writer.Flush()
	}
}
