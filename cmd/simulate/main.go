package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medicrew/clinic-slot-booking/internal/db"
)

// Booking storm against a running api-server. Hammers a small set of slots
// with concurrent booking requests, then checks the ledger for oversell.

type SimConfig struct {
	APIBaseURL  string
	Duration    time.Duration
	Workers     int
	SlotLimit   int
	PostgresDSN string
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	mu        sync.Mutex
	latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status == http.StatusCreated:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.latencies = append(om.latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.latencies) == 0 {
		return 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.latencies))
	copy(latencies, om.latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg = sum / time.Duration(len(latencies))
	p50 = latencies[len(latencies)*50/100]

	p95Idx := len(latencies) * 95 / 100
	if p95Idx >= len(latencies) {
		p95Idx = len(latencies) - 1
	}
	p95 = latencies[p95Idx]

	return avg, p50, p95
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := SimConfig{
		APIBaseURL:  envOr("SIM_API_URL", "http://127.0.0.1:8080"),
		Duration:    envDuration("SIM_DURATION", 30*time.Second),
		Workers:     envInt("SIM_WORKERS", 20),
		SlotLimit:   envInt("SIM_SLOT_LIMIT", 10),
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
	}
	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	slots, err := loadSlotIDs(context.Background(), pool, cfg.SlotLimit)
	if err != nil {
		log.Fatalf("load slots: %v", err)
	}
	if len(slots) == 0 {
		log.Fatal("no slots with available capacity, run cmd/seed first")
	}

	log.Printf("storming %d slots with %d workers for %s", len(slots), cfg.Workers, cfg.Duration)

	gofakeit.Seed(time.Now().UnixNano())

	var om OperationMetrics
	runCtx, stop := context.WithTimeout(context.Background(), cfg.Duration)
	defer stop()

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 5 * time.Second}
			for runCtx.Err() == nil {
				slotID := slots[rand.Intn(len(slots))]
				fireBooking(runCtx, client, cfg.APIBaseURL, slotID, &om)
			}
		}()
	}
	wg.Wait()

	avg, p50, p95 := om.Stats()
	log.Printf("requests=%d success=%d conflict=%d error=%d", om.Total, om.Success, om.Conflict, om.Error)
	log.Printf("latency avg=%s p50=%s p95=%s", avg, p50, p95)

	if err := checkLedger(context.Background(), pool); err != nil {
		log.Fatalf("LEDGER CHECK FAILED: %v", err)
	}
	log.Println("ledger check passed: no oversell, booking seats reconcile with capacity")
}

func fireBooking(ctx context.Context, client *http.Client, baseURL string, slotID uuid.UUID, om *OperationMetrics) {
	payload := map[string]any{
		"slot_id":        slotID.String(),
		"patient_name":   gofakeit.Name(),
		"patient_email":  gofakeit.Email(),
		"patient_age":    gofakeit.Number(18, 90),
		"patient_gender": "other",
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/bookings", bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			om.Record(time.Since(start), 0)
		}
		return
	}
	resp.Body.Close()

	om.Record(time.Since(start), resp.StatusCode)
}

func loadSlotIDs(ctx context.Context, pool *pgxpool.Pool, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, `
		SELECT id FROM slots
		WHERE available_slots > 0
		ORDER BY start_time ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// checkLedger verifies the reconciliation invariant after the storm: no
// negative availability, and for every slot the seats held by CONFIRMED and
// PENDING bookings equal total minus available.
func checkLedger(ctx context.Context, pool *pgxpool.Pool) error {
	var negative int
	err := pool.QueryRow(ctx, `SELECT count(*) FROM slots WHERE available_slots < 0`).Scan(&negative)
	if err != nil {
		return err
	}
	if negative > 0 {
		return fmt.Errorf("%d slots have negative availability", negative)
	}

	var mismatched int
	err = pool.QueryRow(ctx, `
		SELECT count(*)
		FROM slots s
		LEFT JOIN (
			SELECT slot_id, COALESCE(SUM(seats_booked), 0) AS held
			FROM bookings
			WHERE status IN ('CONFIRMED', 'PENDING')
			GROUP BY slot_id
		) b ON b.slot_id = s.id
		WHERE COALESCE(b.held, 0) <> s.total_slots - s.available_slots
	`).Scan(&mismatched)
	if err != nil {
		return err
	}
	if mismatched > 0 {
		return fmt.Errorf("%d slots fail seat reconciliation", mismatched)
	}

	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
