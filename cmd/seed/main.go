package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medicrew/clinic-slot-booking/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	slotIDs, err := seedSlots(context.Background(), pool, 200)
	if err != nil {
		log.Fatalf("seed slots: %v", err)
	}
	if err := seedBookings(context.Background(), pool, slotIDs, 300); err != nil {
		log.Fatalf("seed bookings: %v", err)
	}

	log.Println("seed complete")
}

func seedSlots(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d slots", count)

	specializations := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	doctors := make([]string, 25)
	for i := range doctors {
		doctors[i] = "Dr. " + gofakeit.Name()
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	base := time.Now().UTC().Truncate(time.Minute).Add(24 * time.Hour)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		doctor := doctors[gofakeit.Number(0, len(doctors)-1)]
		spec := specializations[gofakeit.Number(0, len(specializations)-1)]
		// One slot per doctor per half hour keeps the unique index happy.
		start := base.Add(time.Duration(i) * 30 * time.Minute)
		total := gofakeit.Number(1, 5)

		_, err := tx.Exec(ctx, `
			INSERT INTO slots (id, doctor_name, specialization, start_time, total_slots, available_slots, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5, now(), now())
		`, id, doctor, spec, start, total)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("slots seeded")
	return ids, nil
}

func seedBookings(ctx context.Context, pool *pgxpool.Pool, slotIDs []uuid.UUID, count int) error {
	log.Printf("seeding up to %d bookings", count)

	genders := []string{"male", "female", "other"}

	created := 0
	for i := 0; i < count; i++ {
		slotID := slotIDs[gofakeit.Number(0, len(slotIDs)-1)]

		// Same conditional decrement the service uses, so seeded data never
		// breaks the capacity invariant.
		tag, err := pool.Exec(ctx, `
			UPDATE slots
			SET available_slots = available_slots - 1, updated_at = now()
			WHERE id = $1 AND available_slots >= 1
		`, slotID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			continue
		}

		reason := gofakeit.Sentence(6)
		_, err = pool.Exec(ctx, `
			INSERT INTO bookings (id, slot_id, patient_name, patient_email, patient_age, patient_gender, reason, status, seats_booked, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 'CONFIRMED', 1, now(), now())
		`, uuid.New(), slotID, gofakeit.Name(), gofakeit.Email(),
			gofakeit.Number(18, 90), genders[gofakeit.Number(0, len(genders)-1)], reason)
		if err != nil {
			return err
		}
		created++
	}

	log.Printf("bookings seeded: %d", created)
	return nil
}
