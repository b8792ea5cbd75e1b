package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/chzyer/readline"
	log "github.com/sirupsen/logrus"

	"github.com/jaywalker76/LocustDB/common"
	"github.com/jaywalker76/LocustDB/conf"
	"github.com/jaywalker76/LocustDB/engine"
	"github.com/jaywalker76/LocustDB/sched"
)

func main() {
	cfg := conf.Config{}
	kctx := kong.Parse(&cfg)
	cfg.ApplyDefaults()
	kctx.FatalIfErrorf(cfg.Validate())
	kctx.FatalIfErrorf(cfg.Log.Configure())

	eng, err := engine.NewEngine(cfg)
	kctx.FatalIfErrorf(err)
	kctx.FatalIfErrorf(eng.Start())
	defer func() {
		if err := eng.Stop(); err != nil {
			log.Errorf("failed to stop engine %v", err)
		}
	}()

	home, err := os.UserHomeDir()
	kctx.FatalIfErrorf(err)
	rl, err := readline.NewEx(&readline.Config{
		HistoryFile:            filepath.Join(home, ".locustdb.history"),
		DisableAutoSaveHistory: true,
	})
	kctx.FatalIfErrorf(err)

	for {
		// gather a multi-line statement terminated by ;
		rl.SetPrompt("locustdb> ")
		var cmd []string
		for {
			line, err := rl.Readline()
			if err == io.EOF {
				return
			}
			kctx.FatalIfErrorf(err)
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if line == `\q` {
				return
			}
			cmd = append(cmd, line)
			if strings.HasSuffix(line, ";") {
				break
			}
			rl.SetPrompt("          ")
		}
		statement := strings.Join(cmd, " ")
		_ = rl.SaveHistory(statement)
		statement = strings.TrimSuffix(statement, ";")

		res, err := eng.ExecuteStatement(context.Background(), statement)
		if err != nil {
			fmt.Printf("error: %s\n", err)
			continue
		}
		printResult(res)
	}
}

func printResult(res *sched.Result) {
	for _, warning := range res.Warnings {
		fmt.Printf("warning: %s\n", warning)
	}
	if res.Rows == nil {
		fmt.Println("ok")
		return
	}
	if len(res.ColumnNames) > 0 {
		fmt.Println(strings.Join(res.ColumnNames, "|"))
	}
	for i := 0; i < res.Rows.RowCount(); i++ {
		fmt.Println(formatRow(res.Rows, i))
	}
	suffix := ""
	if res.Cancelled {
		suffix = " (cancelled, partial)"
	} else if !res.Complete {
		suffix = " (incomplete)"
	}
	fmt.Printf("%d rows%s\n", res.Rows.RowCount(), suffix)
}

func formatRow(rows *common.Rows, rowIndex int) string {
	row := rows.GetRow(rowIndex)
	fields := make([]string, rows.ColCount())
	for col := 0; col < rows.ColCount(); col++ {
		if row.IsNull(col) {
			fields[col] = "null"
			continue
		}
		switch rows.Column(col).Type().Type {
		case common.TypeBigInt:
			fields[col] = fmt.Sprintf("%d", row.GetInt64(col))
		case common.TypeDouble:
			fields[col] = fmt.Sprintf("%g", row.GetFloat64(col))
		case common.TypeVarchar:
			fields[col] = row.GetString(col)
		case common.TypeBoolean:
			fields[col] = fmt.Sprintf("%t", row.GetBool(col))
		default:
			fields[col] = "?"
		}
	}
	return strings.Join(fields, "|")
}
