package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newSummaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "摘要生成 (SSE 进度流)",
	}
	cmd.AddCommand(newSummaryStreamCmd())
	return cmd
}

func newSummaryStreamCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stream",
		Short: "实时跟踪会议摘要生成进度，直到完成或失败",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			client := NewAPIClient(cfg)
			id, err := resolveMeetingID(cfg)
			if err != nil {
				return err
			}

			path := fmt.Sprintf("/api/v1/meetings/%s/summary/stream", id)
			return client.Stream(path, func(data string) {
				if cfg.Output == "json" {
					var out bytes.Buffer
					if json.Indent(&out, []byte(data), "", "  ") == nil {
						fmt.Println(out.String())
						return
					}
				}
				fmt.Println(data)
			})
		},
	}
}
