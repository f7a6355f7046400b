package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/zatekoja/reviewfunnel/internal/domain/entities"
	"github.com/zatekoja/reviewfunnel/internal/domain/repositories"
	"github.com/zatekoja/reviewfunnel/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/reviewfunnel/pkg/errors"
)

var locationColumns = []interface{}{
	"id", "name", "logo_url", "street", "city", "state", "zip_code", "country", "updated_at",
}

// LocationAdapter reads locations and their review platforms from Postgres.
type LocationAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewLocationAdapter creates a new location adapter
func NewLocationAdapter(client *postgres.Client) *LocationAdapter {
	return &LocationAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

var (
	_ repositories.LocationRepository = (*LocationAdapter)(nil)
	_ repositories.Pinger             = (*LocationAdapter)(nil)
)

func (a *LocationAdapter) locationsQuery(ids []string) (string, []interface{}, error) {
	return a.db.Select(locationColumns...).
		From("locations").
		Where(goqu.Ex{"id": ids, "is_active": true}).
		ToSQL()
}

func (a *LocationAdapter) platformsQuery(ids []string) (string, []interface{}, error) {
	return a.db.Select("location_id", "name", "url").
		From("review_platforms").
		Where(goqu.Ex{"location_id": ids}).
		Order(goqu.I("location_id").Asc(), goqu.I("position").Asc()).
		ToSQL()
}

// GetByID retrieves a location with its review platforms in configured order
func (a *LocationAdapter) GetByID(ctx context.Context, id string) (*entities.Location, error) {
	locations, err := a.GetByIDs(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(locations) == 0 {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("location with id %s not found", id))
	}
	return locations[0], nil
}

// GetByIDs retrieves locations in two queries. Unknown ids are omitted.
func (a *LocationAdapter) GetByIDs(ctx context.Context, ids []string) ([]*entities.Location, error) {
	if len(ids) == 0 {
		return []*entities.Location{}, nil
	}

	query, args, err := a.locationsQuery(ids)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get locations", err)
	}
	defer rows.Close()

	var locations []*entities.Location
	byID := make(map[string]*entities.Location, len(ids))
	for rows.Next() {
		loc := &entities.Location{ReviewPlatforms: []entities.ReviewPlatformLink{}}
		var logo, street, city, state, zip, country sql.NullString

		if err := rows.Scan(&loc.ID, &loc.Name, &logo, &street, &city, &state, &zip, &country, &loc.UpdatedAt); err != nil {
			return nil, apperrors.NewInternalError("failed to scan location", err)
		}

		loc.LogoURL = logo.String
		if street.Valid || city.Valid || state.Valid || zip.Valid || country.Valid {
			loc.Address = &entities.Address{
				Street:  street.String,
				City:    city.String,
				State:   state.String,
				ZipCode: zip.String,
				Country: country.String,
			}
		}

		locations = append(locations, loc)
		byID[loc.ID] = loc
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to read locations", err)
	}
	if len(locations) == 0 {
		return []*entities.Location{}, nil
	}

	if err := a.attachPlatforms(ctx, byID); err != nil {
		return nil, err
	}
	return locations, nil
}

func (a *LocationAdapter) attachPlatforms(ctx context.Context, byID map[string]*entities.Location) error {
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}

	query, args, err := a.platformsQuery(ids)
	if err != nil {
		return apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewInternalError("failed to get review platforms", err)
	}
	defer rows.Close()

	for rows.Next() {
		var locationID string
		var link entities.ReviewPlatformLink
		if err := rows.Scan(&locationID, &link.Name, &link.URL); err != nil {
			return apperrors.NewInternalError("failed to scan review platform", err)
		}
		if loc, ok := byID[locationID]; ok {
			loc.ReviewPlatforms = append(loc.ReviewPlatforms, link)
		}
	}
	if err := rows.Err(); err != nil {
		return apperrors.NewInternalError("failed to read review platforms", err)
	}
	return nil
}

// Upsert writes a location and replaces its review platforms.
func (a *LocationAdapter) Upsert(ctx context.Context, loc *entities.Location) error {
	if loc == nil || loc.ID == "" {
		return apperrors.NewValidationError("location id is required")
	}
	if loc.UpdatedAt.IsZero() {
		loc.UpdatedAt = time.Now().UTC()
	}

	address := entities.Address{}
	if loc.Address != nil {
		address = *loc.Address
	}

	record := goqu.Record{
		"id":         loc.ID,
		"name":       loc.Name,
		"logo_url":   nullString(loc.LogoURL),
		"street":     nullString(address.Street),
		"city":       nullString(address.City),
		"state":      nullString(address.State),
		"zip_code":   nullString(address.ZipCode),
		"country":    nullString(address.Country),
		"is_active":  true,
		"updated_at": loc.UpdatedAt,
	}

	upsert, args, err := a.db.Insert("locations").
		Rows(record).
		OnConflict(goqu.DoUpdate("id", goqu.Record{
			"name":       goqu.L("EXCLUDED.name"),
			"logo_url":   goqu.L("EXCLUDED.logo_url"),
			"street":     goqu.L("EXCLUDED.street"),
			"city":       goqu.L("EXCLUDED.city"),
			"state":      goqu.L("EXCLUDED.state"),
			"zip_code":   goqu.L("EXCLUDED.zip_code"),
			"country":    goqu.L("EXCLUDED.country"),
			"is_active":  goqu.L("EXCLUDED.is_active"),
			"updated_at": goqu.L("EXCLUDED.updated_at"),
		})).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build location upsert query", err)
	}

	tx, err := a.client.BeginTx(ctx)
	if err != nil {
		return apperrors.NewInternalError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, upsert, args...); err != nil {
		return apperrors.NewInternalError("failed to upsert location", err)
	}

	del, args, err := a.db.Delete("review_platforms").Where(goqu.Ex{"location_id": loc.ID}).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build review platform delete query", err)
	}
	if _, err := tx.ExecContext(ctx, del, args...); err != nil {
		return apperrors.NewInternalError("failed to clear review platforms", err)
	}

	if len(loc.ReviewPlatforms) > 0 {
		rows := make([]interface{}, 0, len(loc.ReviewPlatforms))
		for i, p := range loc.ReviewPlatforms {
			rows = append(rows, goqu.Record{"location_id": loc.ID, "position": i, "name": p.Name, "url": p.URL})
		}
		ins, args, err := a.db.Insert("review_platforms").Rows(rows...).ToSQL()
		if err != nil {
			return apperrors.NewInternalError("failed to build review platform insert query", err)
		}
		if _, err := tx.ExecContext(ctx, ins, args...); err != nil {
			return apperrors.NewInternalError("failed to insert review platforms", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewInternalError("failed to commit location", err)
	}
	return nil
}

func (a *LocationAdapter) Ping(ctx context.Context) error {
	return a.client.Ping(ctx)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
