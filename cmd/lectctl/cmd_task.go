package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "转写任务管理 (创建、停止、查询)",
	}
	cmd.AddCommand(newTaskCreateCmd())
	cmd.AddCommand(newTaskStopCmd())
	cmd.AddCommand(newTaskInfoCmd())
	return cmd
}

func newTaskCreateCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "create",
		Short: "创建实时转写任务",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			client := NewAPIClient(cfg)

			body := map[string]interface{}{}
			if cfg.MeetingID != "" {
				body["meeting_id"] = cfg.MeetingID
			}
			if v, _ := cmd.Flags().GetString("task-key"); v != "" {
				body["task_key"] = v
			}
			if v, _ := cmd.Flags().GetString("language"); v != "" {
				body["source_language"] = v
			}
			if v, _ := cmd.Flags().GetBool("summary"); v {
				body["enable_summary"] = true
			}
			if v, _ := cmd.Flags().GetBool("key-points"); v {
				body["enable_key_points"] = true
			}
			if v, _ := cmd.Flags().GetBool("translation"); v {
				body["enable_translation"] = true
			}

			resp, err := client.Request("POST", "/api/v1/tingwu/create-task", body)
			if err != nil {
				return err
			}
			return printOutput(cfg.Output, resp)
		},
	}
	c.Flags().String("task-key", "", "任务标识（默认自动生成）")
	c.Flags().String("language", "", "源语言 (默认: cn)")
	c.Flags().Bool("summary", false, "启用摘要生成")
	c.Flags().Bool("key-points", false, "启用要点提炼")
	c.Flags().Bool("translation", false, "启用实时翻译")
	return c
}

func newTaskStopCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "stop",
		Short: "停止实时转写任务并触发后处理",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			client := NewAPIClient(cfg)
			taskID, _ := cmd.Flags().GetString("task-id")

			resp, err := client.Request("POST", "/api/v1/tingwu/stop-task", map[string]interface{}{
				"task_id": taskID,
			})
			if err != nil {
				return err
			}
			return printOutput(cfg.Output, resp)
		},
	}
	c.Flags().String("task-id", "", "任务ID（必选）")
	_ = c.MarkFlagRequired("task-id")
	return c
}

func newTaskInfoCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "info",
		Short: "查询任务状态与结果",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			client := NewAPIClient(cfg)
			taskID, _ := cmd.Flags().GetString("task-id")

			resp, err := client.Get(fmt.Sprintf("/api/v1/tingwu/task-info/%s", taskID))
			if err != nil {
				return err
			}
			return printOutput(cfg.Output, resp)
		},
	}
	c.Flags().String("task-id", "", "任务ID（必选）")
	_ = c.MarkFlagRequired("task-id")
	return c
}
