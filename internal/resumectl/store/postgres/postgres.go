// Package postgres implements store.Storage on top of PostgreSQL via
// pgx/pgxpool, grounded on the teacher's internal/database package for
// pool sizing and connection lifecycle. Schema is versioned with
// golang-migrate against embedded SQL files (see migrate.go); optional
// embedded-postgres bootstrap lives in embedded.go for deployments that
// don't want to run a separate database process.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/smartdevicelink/sdl-core-go/internal/appmodel"
)

// Store is a Postgres-backed store.Storage implementation.
type Store struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// Open connects to databaseURL, sizes the pool the way the teacher's
// database.Connect does, and brings the schema up to date before
// returning.
func Open(ctx context.Context, databaseURL string, log zerolog.Logger) (*Store, error) {
	if err := runMigrations(databaseURL); err != nil {
		return nil, err
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	log.Info().Str("url", maskDSN(databaseURL)).Msg("resumption store connected")
	return &Store{pool: pool, log: log}, nil
}

type payload struct {
	Commands      []appmodel.Command         `json:"commands"`
	Submenus      []appmodel.Submenu         `json:"submenus"`
	ChoiceSets    []appmodel.ChoiceSet       `json:"choice_sets"`
	GlobalProps   appmodel.GlobalProperties  `json:"global_props"`
	Subscriptions appmodel.Subscriptions     `json:"subscriptions"`
	Files         []appmodel.File            `json:"files"`
}

func (s *Store) SaveApplication(ctx context.Context, rec appmodel.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	p := payload{
		Commands:      rec.Commands,
		Submenus:      rec.Submenus,
		ChoiceSets:    rec.ChoiceSets,
		GlobalProps:   rec.GlobalProps,
		Subscriptions: rec.Subscriptions,
		Files:         rec.Files,
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO resumption_applications
			(device_mac, policy_app_id, hmi_app_id, hmi_level, is_media, grammar_id, hash, ign_off_count, suspend_count, time_stamp, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (device_mac, policy_app_id) DO UPDATE SET
			hmi_app_id = EXCLUDED.hmi_app_id,
			hmi_level = EXCLUDED.hmi_level,
			is_media = EXCLUDED.is_media,
			grammar_id = EXCLUDED.grammar_id,
			hash = EXCLUDED.hash,
			ign_off_count = EXCLUDED.ign_off_count,
			suspend_count = EXCLUDED.suspend_count,
			time_stamp = EXCLUDED.time_stamp,
			payload = EXCLUDED.payload
	`, rec.DeviceMAC, rec.PolicyAppID, rec.HMIAppID, rec.HMILevel, rec.IsMedia, rec.GrammarID, rec.Hash, rec.IgnOffCount, rec.SuspendCount, rec.TimeStamp, data)
	if err != nil {
		return fmt.Errorf("save application: %w", err)
	}
	return nil
}

func (s *Store) LoadApplication(ctx context.Context, deviceMAC, policyAppID string) (appmodel.Record, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT device_mac, policy_app_id, hmi_app_id, hmi_level, is_media, grammar_id, hash, ign_off_count, suspend_count, time_stamp, payload
		FROM resumption_applications WHERE device_mac = $1 AND policy_app_id = $2
	`, deviceMAC, policyAppID)
	rec, err := scanRecord(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return appmodel.Record{}, false, nil
		}
		return appmodel.Record{}, false, fmt.Errorf("load application: %w", err)
	}
	return rec, true, nil
}

func (s *Store) DeleteApplication(ctx context.Context, deviceMAC, policyAppID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM resumption_applications WHERE device_mac = $1 AND policy_app_id = $2`, deviceMAC, policyAppID)
	if err != nil {
		return fmt.Errorf("delete application: %w", err)
	}
	return nil
}

func (s *Store) LoadAll(ctx context.Context) ([]appmodel.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT device_mac, policy_app_id, hmi_app_id, hmi_level, is_media, grammar_id, hash, ign_off_count, suspend_count, time_stamp, payload
		FROM resumption_applications
	`)
	if err != nil {
		return nil, fmt.Errorf("load all applications: %w", err)
	}
	defer rows.Close()

	var out []appmodel.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (appmodel.Record, error) {
	var rec appmodel.Record
	var data []byte
	if err := row.Scan(&rec.DeviceMAC, &rec.PolicyAppID, &rec.HMIAppID, &rec.HMILevel, &rec.IsMedia, &rec.GrammarID, &rec.Hash, &rec.IgnOffCount, &rec.SuspendCount, &rec.TimeStamp, &data); err != nil {
		return appmodel.Record{}, err
	}
	var p payload
	if len(data) > 0 {
		if err := json.Unmarshal(data, &p); err != nil {
			return appmodel.Record{}, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	rec.Commands = p.Commands
	rec.Submenus = p.Submenus
	rec.ChoiceSets = p.ChoiceSets
	rec.GlobalProps = p.GlobalProps
	rec.Subscriptions = p.Subscriptions
	rec.Files = p.Files
	return rec, nil
}

func (s *Store) SaveMeta(ctx context.Context, meta appmodel.Meta) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO resumption_meta (id, last_ign_off_time, preloaded, ccpu_version, wers_country, language, vin)
		VALUES (1, $1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			last_ign_off_time = EXCLUDED.last_ign_off_time,
			preloaded = EXCLUDED.preloaded,
			ccpu_version = EXCLUDED.ccpu_version,
			wers_country = EXCLUDED.wers_country,
			language = EXCLUDED.language,
			vin = EXCLUDED.vin
	`, meta.LastIgnOffTime, meta.Preloaded, meta.CCPUVersion, meta.WERSCountry, meta.Language, meta.VIN)
	if err != nil {
		return fmt.Errorf("save meta: %w", err)
	}
	return nil
}

func (s *Store) LoadMeta(ctx context.Context) (appmodel.Meta, error) {
	var m appmodel.Meta
	var lastIgnOff *time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT last_ign_off_time, preloaded, ccpu_version, wers_country, language, vin
		FROM resumption_meta WHERE id = 1
	`).Scan(&lastIgnOff, &m.Preloaded, &m.CCPUVersion, &m.WERSCountry, &m.Language, &m.VIN)
	if err != nil {
		if err == pgx.ErrNoRows {
			return appmodel.Meta{}, nil
		}
		return appmodel.Meta{}, fmt.Errorf("load meta: %w", err)
	}
	if lastIgnOff != nil {
		m.LastIgnOffTime = *lastIgnOff
	}
	return m, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		if _, hasPass := u.User.Password(); hasPass {
			u.User = url.UserPassword(u.User.Username(), "***")
		}
	}
	return u.String()
}
