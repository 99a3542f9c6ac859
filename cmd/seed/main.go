package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/clinicore/scheduling/internal/config"
	"github.com/clinicore/scheduling/internal/db"
	"github.com/clinicore/scheduling/internal/scheduling"
)

var specialties = []string{
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

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("component", "seed").Logger()
	logger.Info().Msg("seed starting")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	orgID, err := seedOrganization(context.Background(), pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed organization")
	}

	doctorIDs, err := seedDoctors(context.Background(), pool, orgID, 20)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed doctors")
	}
	if err := seedPatients(context.Background(), pool, 500); err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}
	if err := seedSchedules(context.Background(), pool, orgID, doctorIDs, cfg.SeedHorizonDays, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed schedules")
	}

	logger.Info().Msg("seed complete")
}

func seedOrganization(ctx context.Context, pool *pgxpool.Pool) (uuid.UUID, error) {
	id := uuid.New()
	_, err := pool.Exec(ctx, `
		INSERT INTO organizations (id, name, created_at, updated_at)
		VALUES ($1, $2, now(), now())
	`, id, gofakeit.Company()+" Clinic")
	return id, err
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, orgID uuid.UUID, count int) ([]uuid.UUID, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := "Dr. " + gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, organization_id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, id, orgID, name, spec)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	const batchSize = 100

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, uuid.New(), gofakeit.Name(), gofakeit.Email())
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}
	}

	return nil
}

// seedSchedules gives every doctor a weekday morning and afternoon template,
// then generates the slot pool out to the configured horizon.
func seedSchedules(ctx context.Context, pool *pgxpool.Pool, orgID uuid.UUID, doctorIDs []uuid.UUID, horizonDays int, logger zerolog.Logger) error {
	repo := scheduling.NewPgRepository(pool)
	schedules := scheduling.NewScheduleService(repo, logger)
	slots := scheduling.NewSlotService(repo, nil, nil, logger)

	from := time.Now()
	to := from.AddDate(0, 0, horizonDays)
	durations := []int{15, 20, 30}

	for _, doctorID := range doctorIDs {
		dur := durations[gofakeit.Number(0, len(durations)-1)]

		for day := 1; day <= 5; day++ { // Monday..Friday
			windows := [][2]string{{"09:00", "12:00"}, {"13:00", "17:00"}}
			for _, win := range windows {
				sched, err := schedules.Create(ctx, scheduling.ScheduleInput{
					DoctorID:            doctorID,
					OrganizationID:      orgID,
					DayOfWeek:           day,
					Start:               win[0],
					End:                 win[1],
					SlotDurationMinutes: dur,
					EffectiveFrom:       from,
				})
				if err != nil {
					return err
				}

				if _, err := slots.Generate(ctx, sched.ID, from, to); err != nil {
					// A re-run hits the uniqueness guard; fine for seeding.
					if errors.Is(err, scheduling.ErrSlotsExist) {
						continue
					}
					return err
				}
			}
		}
	}

	return nil
}
