// Command server 啟動 Neon Pong 對戰伺服器
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// 版本資訊，建置時以 -ldflags 注入
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "neon-pong",
		Short: "Neon Pong 雙人即時對戰伺服器",
		Long: `Neon Pong 雙人即時對戰伺服器。

以 4 字元房間碼配對兩位玩家，伺服器以固定頻率執行權威模擬，
透過 WebSocket 把狀態推送給雙方。`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}
