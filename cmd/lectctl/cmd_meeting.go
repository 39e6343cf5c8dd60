package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMeetingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "meeting",
		Short: "会议记录管理 (创建、查询、关联任务)",
	}
	cmd.AddCommand(newMeetingCreateCmd())
	cmd.AddCommand(newMeetingGetCmd())
	cmd.AddCommand(newMeetingSetTaskCmd())
	return cmd
}

func newMeetingCreateCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "create",
		Short: "创建会议记录",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			client := NewAPIClient(cfg)

			body := map[string]interface{}{
				"title": mustGetString(cmd, "title"),
			}
			if v, _ := cmd.Flags().GetString("subject"); v != "" {
				body["subject"] = v
			}

			resp, err := client.Request("POST", "/api/v1/meetings", body)
			if err != nil {
				return err
			}
			return printOutput(cfg.Output, resp)
		},
	}
	c.Flags().String("title", "", "会议标题（必选）")
	_ = c.MarkFlagRequired("title")
	c.Flags().String("subject", "", "科目/主题")
	return c
}

func newMeetingGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "获取会议详情（含转写与摘要）",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			client := NewAPIClient(cfg)
			id, err := resolveMeetingID(cfg)
			if err != nil {
				return err
			}
			resp, err := client.Get(fmt.Sprintf("/api/v1/meetings/%s", id))
			if err != nil {
				return err
			}
			return printOutput(cfg.Output, resp)
		},
	}
}

func newMeetingSetTaskCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "set-task",
		Short: "将转写任务关联到会议记录",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			client := NewAPIClient(cfg)
			id, err := resolveMeetingID(cfg)
			if err != nil {
				return err
			}

			body := map[string]interface{}{
				"task_id": mustGetString(cmd, "task-id"),
			}
			if v, _ := cmd.Flags().GetString("stream-url"); v != "" {
				body["stream_url"] = v
			}

			resp, err := client.Request("PUT", fmt.Sprintf("/api/v1/meetings/%s/task", id), body)
			if err != nil {
				return err
			}
			return printOutput(cfg.Output, resp)
		},
	}
	c.Flags().String("task-id", "", "任务ID（必选）")
	_ = c.MarkFlagRequired("task-id")
	c.Flags().String("stream-url", "", "推流地址")
	return c
}

// mustGetString 读取标志值（已由 MarkFlagRequired 保证存在）
func mustGetString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}
