// Command replay runs the strategy over a 1-minute candle fixture and prints
// the summary, optionally dumping the full result and trade list to files.
package main

import (
	"flag"
	"fmt"
	"os"

	"sweep-trading-bot/config"
	"sweep-trading-bot/internal/replay"
)

func main() {
	fixturePath := flag.String("fixture", "", "path to 1-minute candle CSV (openTime,open,high,low,close[,volume])")
	configPath := flag.String("config", "", "path to config file (optional)")
	symbol := flag.String("symbol", "", "symbol label, used for pip size lookup (defaults to first configured symbol)")
	jsonOut := flag.String("out", "", "write full result JSON to this path")
	tradesOut := flag.String("trades", "", "write trade list CSV to this path")
	showTimeline := flag.Bool("timeline", false, "print the event timeline")
	flag.Parse()

	if *fixturePath == "" {
		fmt.Fprintln(os.Stderr, "usage: replay -fixture <candles.csv> [-config <config.json>] [-symbol EURUSD]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("load config: %v", err)
	}
	if *symbol != "" {
		cfg.Symbols = []string{*symbol}
	}
	sym := cfg.Symbols[0]

	candles, err := replay.LoadFixtureCSV(*fixturePath)
	if err != nil {
		fatal("load fixture: %v", err)
	}

	res, err := replay.Run(candles, cfg.PipSize(sym), cfg)
	if err != nil {
		fatal("replay failed: %v", err)
	}

	printSummary(sym, len(candles), res)
	if *showTimeline {
		printTimeline(res)
	}

	if *jsonOut != "" {
		if err := replay.WriteResultJSON(*jsonOut, res); err != nil {
			fatal("write result: %v", err)
		}
		fmt.Printf("result written to %s\n", *jsonOut)
	}
	if *tradesOut != "" {
		if err := replay.WriteTradesCSV(*tradesOut, res.Trades); err != nil {
			fatal("write trades: %v", err)
		}
		fmt.Printf("trades written to %s\n", *tradesOut)
	}
}

func printSummary(symbol string, bars int, res *replay.Result) {
	s := res.Summary
	fmt.Printf("symbol=%s bars=%d\n", symbol, bars)
	fmt.Printf("trades=%d wins=%d losses=%d winRate=%.1f%%\n", s.Trades, s.Wins, s.Losses, s.WinRate*100)
	fmt.Printf("netR=%.2f expectancyR=%.2f maxDrawdownR=%.2f netPnL=%.2f\n", s.NetR, s.ExpectancyR, s.MaxDrawdownR, s.NetPnL)
	fmt.Printf("avgHold=%.1fm\n", s.AvgHoldMinutes)

	if len(s.ExitReasons) > 0 {
		fmt.Println("exit reasons:")
		for reason, n := range s.ExitReasons {
			fmt.Printf("  %-14s %d\n", reason, n)
		}
	}
	if len(s.TopReasonCodes) > 0 {
		fmt.Println("top reason codes:")
		for _, rc := range s.TopReasonCodes {
			fmt.Printf("  %-32s %d\n", rc.Code, rc.Count)
		}
	}
}

func printTimeline(res *replay.Result) {
	fmt.Println("timeline:")
	for _, ev := range res.Timeline {
		switch ev.Type {
		case replay.EventTransition:
			fmt.Printf("  %d %s %s -> %s %v\n", ev.TsMs, ev.Type, ev.From, ev.To, ev.Reasons)
		default:
			fmt.Printf("  %d %s %s\n", ev.TsMs, ev.Type, ev.Note)
		}
	}
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
