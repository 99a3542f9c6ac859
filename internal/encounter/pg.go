// Package encounter is the clinical-visit collaborator the scheduling engine
// calls into when a visit starts. The engine only needs an id back; the rest
// of the encounter lives with the clinical-notes subsystem.
package encounter

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgCreator struct {
	pool *pgxpool.Pool
}

func NewPgCreator(pool *pgxpool.Pool) *PgCreator {
	return &PgCreator{pool: pool}
}

func (c *PgCreator) CreateEncounter(ctx context.Context, patientID, doctorID, organizationID uuid.UUID, reasonForVisit string) (uuid.UUID, error) {
	id := uuid.New()

	_, err := c.pool.Exec(ctx, `
		INSERT INTO encounters (id, patient_id, doctor_id, organization_id, reason_for_visit, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
	`, id, patientID, doctorID, organizationID, reasonForVisit)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert encounter: %w", err)
	}

	return id, nil
}
