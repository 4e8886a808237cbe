package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"drover/internal/config"
	. "drover/internal/logging"
	"drover/internal/media"
	"drover/internal/tools"
	"drover/internal/view"
)

const version = "0.1.0"

func usage() {
	fmt.Fprintf(os.Stderr, `drover %s - drive a real browser from the command line

usage: drover <command> [args]

commands:
  version                  print the version
  snapshot <url> [-v]      print the page's interactive elements (-v for everything)
  screenshot <url> [--full] capture the page to the media store
  text <url>               extract the readable article text
  eval <url> <script>      evaluate JavaScript on the page and print the result
  requests <url>           load the page and list its network requests
  console <url>            load the page and print its console output
`, version)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	verb := os.Args[1]
	if verb == "version" {
		fmt.Printf("drover %s\n", version)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	Init(&Config{
		Level:      LevelFromName(cfg.Logging.Level),
		ShowCaller: cfg.Logging.ShowCaller,
	})

	if cfg.Browser.Dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			L_fatal("failed to get home directory: %v", err)
		}
		cfg.Browser.Dir = filepath.Join(home, ".drover", "browser")
	}

	if err := run(cfg, verb, os.Args[2:]); err != nil {
		L_error("%v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, verb string, args []string) error {
	store, err := media.NewStore(cfg.Media)
	if err != nil {
		return err
	}
	store.Start()
	defer store.Close()

	views := view.NewManager(cfg.Browser)
	defer views.Close()

	registry := tools.NewRegistry()
	registry.Register(tools.NewBrowserTool(views, store))

	timeout := time.Duration(cfg.Browser.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	exec := func(params map[string]any) (*tools.Result, error) {
		input, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		res, err := registry.Execute(ctx, "browser", input)
		if err != nil {
			return nil, err
		}
		if !res.OK {
			return nil, fmt.Errorf("%s: %s", res.Kind, res.Message)
		}
		return res, nil
	}

	// settle waits for the document body so captures see a rendered
	// page. Best effort, a slow page is still usable afterwards.
	settle := func() {
		if _, err := exec(map[string]any{"action": "wait_element", "selector": "body", "timeoutSec": 10}); err != nil {
			L_debug("page did not settle: %v", err)
		}
	}

	switch verb {
	case "snapshot":
		if len(args) < 1 {
			usage()
			return fmt.Errorf("snapshot needs a URL")
		}
		verbose := len(args) > 1 && args[1] == "-v"
		if _, err := exec(map[string]any{"action": "open", "url": args[0]}); err != nil {
			return err
		}
		settle()
		res, err := exec(map[string]any{"action": "snapshot", "verbose": verbose})
		if err != nil {
			return err
		}
		fmt.Print(res.Message)

	case "screenshot":
		if len(args) < 1 {
			usage()
			return fmt.Errorf("screenshot needs a URL")
		}
		fullPage := len(args) > 1 && args[1] == "--full"
		if _, err := exec(map[string]any{"action": "open", "url": args[0]}); err != nil {
			return err
		}
		settle()
		res, err := exec(map[string]any{"action": "screenshot", "fullPage": fullPage})
		if err != nil {
			return err
		}
		fmt.Println(res.Message)

	case "text":
		if len(args) < 1 {
			usage()
			return fmt.Errorf("text needs a URL")
		}
		if _, err := exec(map[string]any{"action": "open", "url": args[0]}); err != nil {
			return err
		}
		settle()
		res, err := exec(map[string]any{"action": "text"})
		if err != nil {
			return err
		}
		fmt.Println(res.Message)

	case "eval":
		if len(args) < 2 {
			usage()
			return fmt.Errorf("eval needs a URL and a script")
		}
		if _, err := exec(map[string]any{"action": "open", "url": args[0]}); err != nil {
			return err
		}
		settle()
		res, err := exec(map[string]any{"action": "eval", "script": args[1]})
		if err != nil {
			return err
		}
		fmt.Println(res.Message)

	case "requests":
		if len(args) < 1 {
			usage()
			return fmt.Errorf("requests needs a URL")
		}
		// Open blank first so monitoring sees the page load itself.
		if _, err := exec(map[string]any{"action": "open"}); err != nil {
			return err
		}
		if _, err := exec(map[string]any{"action": "network", "enable": true}); err != nil {
			return err
		}
		if _, err := exec(map[string]any{"action": "navigate", "url": args[0]}); err != nil {
			return err
		}
		settle()
		res, err := exec(map[string]any{"action": "network"})
		if err != nil {
			return err
		}
		fmt.Print(res.Message)

	case "console":
		if len(args) < 1 {
			usage()
			return fmt.Errorf("console needs a URL")
		}
		if _, err := exec(map[string]any{"action": "open"}); err != nil {
			return err
		}
		if _, err := exec(map[string]any{"action": "console", "enable": true}); err != nil {
			return err
		}
		if _, err := exec(map[string]any{"action": "navigate", "url": args[0]}); err != nil {
			return err
		}
		settle()
		res, err := exec(map[string]any{"action": "console"})
		if err != nil {
			return err
		}
		fmt.Print(res.Message)

	default:
		usage()
		return fmt.Errorf("unknown command: %s", verb)
	}

	return nil
}
