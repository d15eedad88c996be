package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	operation   string
	totalUsers  int
	replayRate  float64
	planID      int64
)

// Metrics
var (
	totalRequests uint64
	success200    uint64 // Idempotent replays
	success201    uint64 // Created
	fail409       uint64 // Key in progress
	fail422       uint64 // Insufficient funds / below minimum
	fail503       uint64 // Lock timeout
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
	flag.StringVar(&operation, "op", "withdrawal", "Operation: withdrawal | purchase")
	flag.IntVar(&totalUsers, "users", 1000, "Number of seeded users (IDs 1..n)")
	flag.Float64Var(&replayRate, "replay", 0.1, "Fraction of requests that resend the previous Idempotency-Key")
	flag.Int64Var(&planID, "plan", 1, "Plan bought by the purchase operation")
}

func main() {
	flag.Parse()
	log.Printf("Starting Benchmark: %s/%s | Workers: %d | Duration: %s", operation, workload, concurrency, duration)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start, i)
	}

	wg.Wait()
	printResults(time.Since(start))
}

func worker(wg *sync.WaitGroup, start time.Time, id int) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)))

	var lastKey string
	var lastUser int64
	var lastBody []byte

	for time.Since(start) < duration {
		user, key, body := lastUser, lastKey, lastBody
		// Replays resend the same user, key and body, the way a client
		// retries after a timeout.
		if lastKey == "" || rng.Float64() >= replayRate {
			user = pickUser(rng)
			key = fmt.Sprintf("bench-%d-%d-%d", id, user, time.Now().UnixNano())
			body = payload()
		}
		lastUser, lastKey, lastBody = user, key, body

		req, _ := http.NewRequest(http.MethodPost, targetURL+path(), bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-User-ID", strconv.FormatInt(user, 10))
		req.Header.Set("Idempotency-Key", key)

		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case http.StatusCreated:
			atomic.AddUint64(&success201, 1)
		case http.StatusOK:
			atomic.AddUint64(&success200, 1)
		case http.StatusConflict:
			atomic.AddUint64(&fail409, 1)
		case http.StatusUnprocessableEntity:
			atomic.AddUint64(&fail422, 1)
		case http.StatusServiceUnavailable:
			atomic.AddUint64(&fail503, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
}

func path() string {
	if operation == "purchase" {
		return "/api/v1/subscriptions"
	}
	return "/api/v1/withdrawals"
}

func payload() []byte {
	var v interface{}
	if operation == "purchase" {
		v = map[string]interface{}{"planId": planID}
	} else {
		v = map[string]interface{}{
			"amount":            "10",
			"chainName":         "TRON",
			"blockchainAddress": "TBenchmarkAddress",
		}
	}
	body, _ := json.Marshal(v)
	return body
}

func pickUser(rng *rand.Rand) int64 {
	if workload == "hotspot" {
		// Hotspot: 90% of traffic goes to users 1 & 2
		if rng.Float32() < 0.90 {
			return int64(rng.Intn(2) + 1)
		}
	}
	return int64(rng.Intn(totalUsers) + 1)
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	s201 := atomic.LoadUint64(&success201)
	s200 := atomic.LoadUint64(&success200)
	f409 := atomic.LoadUint64(&fail409)
	f422 := atomic.LoadUint64(&fail422)
	f503 := atomic.LoadUint64(&fail503)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()
	var busyRate float64
	if total > 0 {
		busyRate = float64(f503) / float64(total) * 100
	}

	results := map[string]interface{}{
		"operation":          operation,
		"workload":           workload,
		"duration_sec":       d.Seconds(),
		"total_requests":     total,
		"throughput_tps":     tps,
		"success_created":    s201,
		"success_replay":     s200,
		"conflict_in_flight": f409,
		"rejected_business":  f422,
		"lock_timeouts":      f503,
		"lock_timeout_pct":   busyRate,
		"errors":             fErr,
	}

	// Print JSON for the python plotter to consume
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	// Also save to file
	filename := fmt.Sprintf("results_%s_%s.json", operation, workload)
	file, err := os.Create(filename)
	if err != nil {
		log.Printf("Unable to save results: %v", err)
		return
	}
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
