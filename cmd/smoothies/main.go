// Command smoothies はスムージー評価アプリのAPIサーバー・ワーカー・マイグレーションを起動する。
//
// 使い方:
//
//	smoothies [serve|worker|purge-sessions|migrate|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/PRAGNESH1006/Smoothies/internal/app"
)

func main() {
	args := os.Args[1:]
	if len(args) > 0 {
		switch args[0] {
		case "-h", "--help", "help":
			fmt.Println(app.Usage())
			return
		}
	}

	if err := app.Run(os.Stdout, args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
