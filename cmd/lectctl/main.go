package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "lectctl",
		Short:   "lectprep CLI - 课前准备助手命令行工具",
		Long:    "通过命令行直接调用 lectprep 后端 HTTP API：转写任务、会议记录与摘要生成。",
		Version: version,
	}

	// 添加全局标志
	addGlobalFlags(rootCmd)

	// 注册所有分组子命令
	rootCmd.AddCommand(newTaskCmd())
	rootCmd.AddCommand(newMeetingCmd())
	rootCmd.AddCommand(newSummaryCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
