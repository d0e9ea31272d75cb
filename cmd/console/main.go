package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/peterh/liner"

	"gremd/internal/config"
	"gremd/internal/console"
)

const (
	prompt = "gremd> "
	banner = "gremd console\nCtrl+C cancels input, Ctrl+D exits. Type :help for commands."
)

const helpText = `
console commands:
  :remote connect <url>   connect to a server (e.g. ws://localhost:8182/gremlin)
  :remote close           close the remote session and disconnect
  :language <name>        set the script dialect for the next connect
  :help                   show this help
  :quit                   exit
`

func main() {
	godotenv.Load()

	url := flag.String("url", "", "server endpoint to connect to on startup")
	maxIteration := flag.Int("max-iteration", console.DefaultMaxIteration,
		"max result lines per submission, -1 for unbounded")
	flag.Parse()

	driver := console.NewDriver()
	projector := console.NewProjector()
	projector.MaxIteration = *maxIteration

	if *url == "" {
		*url = config.GetEnv("GREMD_URL", "")
	}
	if *url != "" {
		if err := driver.Connect(*url); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("connected to %s (session %s)\n", *url, driver.Session())
	}

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	fmt.Println(banner)

	for {
		line, err := ln.Prompt(prompt)
		if err != nil {
			fmt.Println()
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ln.AppendHistory(line)

		if strings.HasPrefix(line, ":") {
			if quit := metaCommand(line, driver); quit {
				break
			}
			continue
		}

		result, err := driver.Submit(line)
		if err != nil {
			projector.Reset()
			fmt.Fprintln(os.Stderr, err)
			continue
		}

		lines, err := projector.Project(result)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		for _, l := range lines {
			fmt.Println(l)
		}
	}

	driver.Close()
}

// metaCommand handles one ':' command and reports whether the REPL should
// exit.
func metaCommand(line string, driver *console.Driver) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case ":quit", ":exit":
		return true
	case ":help":
		fmt.Print(helpText)
	case ":language":
		if len(fields) != 2 {
			fmt.Println("usage: :language <name>")
			break
		}
		if err := driver.Configure(map[string]interface{}{"language": fields[1]}); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	case ":remote":
		if len(fields) >= 3 && fields[1] == "connect" {
			if err := driver.Connect(fields[2]); err != nil {
				fmt.Fprintln(os.Stderr, err)
				break
			}
			fmt.Printf("connected to %s (session %s)\n", fields[2], driver.Session())
			break
		}
		if len(fields) == 2 && fields[1] == "close" {
			if err := driver.CloseSession(); err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
			driver.Close()
			fmt.Println("disconnected")
			break
		}
		fmt.Println("usage: :remote connect <url> | :remote close")
	default:
		fmt.Printf("unknown command %s. Type :help for commands.\n", fields[0])
	}
	return false
}
