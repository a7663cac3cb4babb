package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/V4T54L/logrelay/internal/domain"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8089", "Log service TCP address")
	mode := flag.String("mode", "manual", "manual sends one message, auto runs a load test")
	level := flag.String("level", "INFO", "Log level (manual mode)")
	message := flag.String("message", "Manual log message", "Log message (manual mode)")
	raw := flag.String("raw", "", "Send this pre-formatted line instead of a structured request (manual mode)")
	format := flag.String("format", domain.FormatText, "Log format: text, json or csv")
	count := flag.Int("n", 100, "Number of messages to send (auto mode)")
	concurrency := flag.Int("c", 4, "Number of concurrent connections (auto mode)")
	rps := flag.Float64("rps", 10, "Messages per second across all workers (auto mode)")
	timeout := flag.Duration("timeout", 5*time.Second, "Dial and per-request timeout")
	flag.Parse()

	*format = strings.ToLower(*format)
	switch *format {
	case domain.FormatText, domain.FormatJSON, domain.FormatCSV:
	default:
		log.Fatalf("invalid format %q, use text, json or csv", *format)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "manual":
		if err := sendOne(ctx, *addr, *timeout, *level, *message, *format, *raw); err != nil {
			log.Fatal(err)
		}
	case "auto":
		runLoad(ctx, *addr, *timeout, *format, *count, *concurrency, *rps)
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", *mode)
		flag.Usage()
		os.Exit(2)
	}
}

func sendOne(ctx context.Context, addr string, timeout time.Duration, level, message, format, raw string) error {
	c, err := dial(ctx, addr, timeout)
	if err != nil {
		return err
	}
	defer c.Close()

	var resp domain.Response
	if raw != "" {
		resp, err = c.SendFrame([]byte(raw))
	} else {
		resp, err = c.SendRequest(newLogRequest(level, message, format, time.Now()))
	}
	if err != nil {
		return err
	}
	log.Printf("Server Response: code=%d message=%q", resp.Code, resp.Message)
	return nil
}

func runLoad(ctx context.Context, addr string, timeout time.Duration, format string, count, concurrency int, rps float64) {
	log.Printf("Starting load test on %s", addr)
	log.Printf("Messages: %d, Concurrency: %d, RPS: %.2f, Format: %s", count, concurrency, rps, format)

	var (
		wg                             sync.WaitGroup
		next                           atomic.Int64
		okCount, rejectCount, errCount atomic.Int64
	)
	limiter := rate.NewLimiter(rate.Limit(rps), 1)
	start := time.Now()

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			c, err := dial(ctx, addr, timeout)
			if err != nil {
				log.Printf("worker %d: %v", workerID, err)
				return
			}
			defer c.Close()

			for {
				seq := next.Add(1)
				if seq > int64(count) {
					return
				}
				if err := limiter.Wait(ctx); err != nil {
					return
				}

				msg := fmt.Sprintf("Automated log message %d (%s)", seq, uuid.NewString())
				resp, err := c.SendRequest(newLogRequest("INFO", msg, format, time.Now()))
				switch {
				case err != nil:
					errCount.Add(1)
					log.Printf("worker %d: %v", workerID, err)
					return
				case resp.Code == domain.CodeSuccess:
					okCount.Add(1)
				default:
					rejectCount.Add(1)
				}
			}
		}(i)
	}

	wg.Wait()

	elapsed := time.Since(start)
	total := okCount.Load() + rejectCount.Load() + errCount.Load()

	log.Println("Load test finished.")
	log.Printf("Total Requests: %d in %s", total, elapsed.Round(time.Millisecond))
	log.Printf("Accepted: %d", okCount.Load())
	log.Printf("Rejected (code -1): %d", rejectCount.Load())
	log.Printf("Errors: %d", errCount.Load())
	if elapsed > 0 {
		log.Printf("Actual RPS: %.2f", float64(total)/elapsed.Seconds())
	}
}
