// Package reporter 将网格快照渲染为终端表格，用于status命令和
// 停机时的收尾汇总。
package reporter

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"grid-trading-bot-go/internal/engine"
	"grid-trading-bot-go/internal/models"
)

// WriteSnapshot renders the ladder as a table, highest level first so
// it reads like an order book.
func WriteSnapshot(w io.Writer, snap engine.Snapshot) {
	fmt.Fprintf(w, "交易对: %s    状态: %s", snap.Symbol, snap.State)
	if snap.LastPrice > 0 {
		fmt.Fprintf(w, "    最新价格: %.4f", snap.LastPrice)
	}
	fmt.Fprintln(w)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"档位", "价格", "方向", "状态", "订单ID", "备注"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
	})

	live := 0
	for i := len(snap.Levels) - 1; i >= 0; i-- {
		lvl := snap.Levels[i]
		orderID := "-"
		if o := lvl.LiveOrder(); o != nil {
			orderID = o.ID
			live++
		}
		note := lvl.LastError
		t.AppendRow(table.Row{
			lvl.Index,
			fmt.Sprintf("%.4f", lvl.Price),
			string(lvl.Side),
			string(lvl.Status),
			orderID,
			note,
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "挂单数", live})
	t.Render()
}

// WriteShutdownSummary prints the end-of-run order accounting.
func WriteShutdownSummary(w io.Writer, snap engine.Snapshot) {
	var cancelled, surviving, failed int
	for _, lvl := range snap.Levels {
		switch {
		case lvl.LiveOrder() != nil:
			surviving++
		case lvl.Status == models.LevelFailed:
			failed++
		default:
			cancelled++
		}
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"收尾汇总", "数量"})
	t.AppendRow(table.Row{"已撤销/已清空档位", cancelled})
	t.AppendRow(table.Row{"撤销失败仍在交易所的挂单", surviving})
	t.AppendRow(table.Row{"被冻结的档位", failed})
	t.Render()

	if surviving > 0 {
		fmt.Fprintln(w, "警告: 部分挂单未能撤销，请在交易所手动处理。网格已持久化，重启后可接管。")
	}
}
