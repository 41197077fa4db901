// pollwait blocks until one evaluation finishes, then prints its result.
// It is the reference consumer of the status/result gateway, intended for
// scripting around uploads:
//
//	pollwait -base http://localhost:8080 -file Jane_Doe_4412.wav-1719854400000
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/havenline/call-qa/internal/client"
	"github.com/havenline/call-qa/internal/config"
)

func main() {
	var (
		baseURL  = flag.String("base", "http://localhost:8080", "gateway base URL")
		fileID   = flag.String("file", "", "file id (job id) to wait for")
		attempts = flag.Int("attempts", 0, "max poll attempts (0 = config default)")
		delay    = flag.Duration("delay", 0, "delay between polls (0 = config default)")
		confPath = flag.String("config", "config/config.yaml", "config file path")
	)
	flag.Parse()

	if *fileID == "" {
		flag.Usage()
		os.Exit(2)
	}

	maxAttempts := *attempts
	pollDelay := *delay
	if maxAttempts == 0 || pollDelay == 0 {
		if cfg, err := config.LoadFromEnv(*confPath); err == nil {
			if maxAttempts == 0 {
				maxAttempts = cfg.Poller.MaxAttempts
			}
			if pollDelay == 0 {
				pollDelay = cfg.Poller.Delay()
			}
		}
	}
	if maxAttempts == 0 {
		maxAttempts = 60
	}
	if pollDelay == 0 {
		pollDelay = 10 * time.Second
	}

	p := client.NewPoller(*baseURL, maxAttempts, pollDelay)
	out, err := p.Wait(context.Background(), *fileID)
	if err != nil {
		log.Fatalf("polling failed: %v", err)
	}

	fmt.Fprintf(os.Stderr, "status: %s\n", out.Status)
	if len(out.Result) > 0 {
		fmt.Println(string(out.Result))
	}
	switch out.Status {
	case "completed":
		os.Exit(0)
	case "timeout":
		os.Exit(3)
	default:
		os.Exit(1)
	}
}
