package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/subfeed/internal/models"
	"github.com/desertthunder/subfeed/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func storedCredential(profile string) *models.StoredCredential {
	return &models.StoredCredential{
		Profile: profile,
		Credential: models.Credential{
			AccessToken:  "access-" + profile,
			RefreshToken: "refresh-" + profile,
			ExpiresAt:    time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

func TestCredentialRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Save", func(t *testing.T) {
		t.Run("inserts and reads back", func(t *testing.T) {
			repo := NewCredentialRepository(setupTestDB(t))
			cred := storedCredential("default")

			if err := repo.Save(ctx, cred); err != nil {
				t.Fatalf("failed to save credential: %v", err)
			}
			if cred.CreatedAt.IsZero() || cred.UpdatedAt.IsZero() {
				t.Error("timestamps should be set after save")
			}

			got, err := repo.Get(ctx, "default")
			if err != nil {
				t.Fatalf("failed to get credential: %v", err)
			}
			if got.Credential.AccessToken != "access-default" || got.Credential.RefreshToken != "refresh-default" {
				t.Errorf("unexpected tokens %+v", got.Credential)
			}
			if !got.Credential.ExpiresAt.Equal(cred.Credential.ExpiresAt) {
				t.Errorf("expected expiry %v, got %v", cred.Credential.ExpiresAt, got.Credential.ExpiresAt)
			}
		})

		t.Run("upserts existing profile", func(t *testing.T) {
			repo := NewCredentialRepository(setupTestDB(t))
			cred := storedCredential("default")
			if err := repo.Save(ctx, cred); err != nil {
				t.Fatalf("failed to save credential: %v", err)
			}
			created := cred.CreatedAt

			next := &models.StoredCredential{Profile: "default", Credential: models.Credential{AccessToken: "renewed"}}
			if err := repo.Save(ctx, next); err != nil {
				t.Fatalf("failed to upsert credential: %v", err)
			}

			got, err := repo.Get(ctx, "default")
			if err != nil {
				t.Fatalf("failed to get credential: %v", err)
			}
			if got.Credential.AccessToken != "renewed" {
				t.Errorf("expected renewed token, got %s", got.Credential.AccessToken)
			}
			if !got.Credential.ExpiresAt.IsZero() {
				t.Errorf("expected no expiry, got %v", got.Credential.ExpiresAt)
			}
			if !got.CreatedAt.Equal(created) {
				t.Errorf("created_at should survive an upsert: %v != %v", got.CreatedAt, created)
			}

			all, _ := repo.List(ctx)
			if len(all) != 1 {
				t.Errorf("expected 1 row, got %d", len(all))
			}
		})

		t.Run("validation", func(t *testing.T) {
			repo := NewCredentialRepository(setupTestDB(t))
			tc := []*models.StoredCredential{
				{Profile: "", Credential: models.Credential{AccessToken: "a"}},
				{Profile: "p", Credential: models.Credential{AccessToken: " "}},
			}
			for _, c := range tc {
				if err := repo.Save(ctx, c); err == nil {
					t.Errorf("expected validation error for %+v", c)
				}
			}
		})
	})

	t.Run("Get", func(t *testing.T) {
		t.Run("NotFound", func(t *testing.T) {
			repo := NewCredentialRepository(setupTestDB(t))
			if _, err := repo.Get(ctx, "missing"); !errors.Is(err, shared.ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	})

	t.Run("Delete", func(t *testing.T) {
		t.Run("removes credential and its runs", func(t *testing.T) {
			db := setupTestDB(t)
			repo := NewCredentialRepository(db)
			runs := NewFeedRunRepository(db)

			if err := repo.Save(ctx, storedCredential("default")); err != nil {
				t.Fatalf("failed to save credential: %v", err)
			}
			now := time.Now()
			if err := runs.Save(ctx, &models.FeedRun{Profile: "default", StartedAt: now, FinishedAt: now}); err != nil {
				t.Fatalf("failed to save run: %v", err)
			}

			if err := repo.Delete(ctx, "default"); err != nil {
				t.Fatalf("failed to delete credential: %v", err)
			}
			if _, err := repo.Get(ctx, "default"); !errors.Is(err, shared.ErrNotFound) {
				t.Errorf("expected ErrNotFound after delete, got %v", err)
			}

			left, err := runs.List(ctx)
			if err != nil {
				t.Fatalf("failed to list runs: %v", err)
			}
			if len(left) != 0 {
				t.Errorf("expected runs to cascade, got %d", len(left))
			}
		})

		t.Run("NotFound", func(t *testing.T) {
			repo := NewCredentialRepository(setupTestDB(t))
			if err := repo.Delete(ctx, "missing"); !errors.Is(err, shared.ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	})

	t.Run("List", func(t *testing.T) {
		repo := NewCredentialRepository(setupTestDB(t))
		for _, p := range []string{"work", "default", "alt"} {
			if err := repo.Save(ctx, storedCredential(p)); err != nil {
				t.Fatalf("failed to save %s: %v", p, err)
			}
		}

		all, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("failed to list: %v", err)
		}
		if len(all) != 3 || all[0].Profile != "alt" || all[2].Profile != "work" {
			t.Errorf("expected profiles ordered by name, got %d rows", len(all))
		}
	})

	t.Run("closed database", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewCredentialRepository(db)
		db.Close()

		if err := repo.Save(ctx, storedCredential("p")); err == nil {
			t.Error("expected error on closed database")
		}
		if _, err := repo.List(ctx); err == nil {
			t.Error("expected error on closed database")
		}
		if _, err := repo.Get(ctx, "p"); err == nil || errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected query error, got %v", err)
		}
	})
}

func TestFeedRunRepository(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	setup := func(t *testing.T) *FeedRunRepository {
		t.Helper()
		db := setupTestDB(t)
		creds := NewCredentialRepository(db)
		for _, p := range []string{"default", "work"} {
			if err := creds.Save(ctx, storedCredential(p)); err != nil {
				t.Fatalf("failed to save credential: %v", err)
			}
		}
		return NewFeedRunRepository(db)
	}

	t.Run("Save and Get", func(t *testing.T) {
		repo := setup(t)
		run := &models.FeedRun{
			Profile:        "default",
			Channels:       12,
			Playlists:      10,
			FailedChannels: 1,
			Videos:         48,
			Refreshed:      true,
			StartedAt:      base,
			FinishedAt:     base.Add(3 * time.Second),
		}

		if err := repo.Save(ctx, run); err != nil {
			t.Fatalf("failed to save run: %v", err)
		}
		if run.RunID == "" {
			t.Fatal("expected generated id")
		}

		got, err := repo.Get(ctx, run.RunID)
		if err != nil {
			t.Fatalf("failed to get run: %v", err)
		}
		if got.Videos != 48 || got.FailedChannels != 1 || !got.Refreshed || got.Duration() != 3*time.Second {
			t.Errorf("unexpected run %+v", got)
		}
	})

	t.Run("requires a stored profile", func(t *testing.T) {
		repo := setup(t)
		err := repo.Save(ctx, &models.FeedRun{Profile: "ghost", StartedAt: base, FinishedAt: base})
		if err == nil {
			t.Error("expected foreign key violation")
		}
	})

	t.Run("rejects invalid runs", func(t *testing.T) {
		repo := setup(t)
		if err := repo.Save(ctx, &models.FeedRun{Profile: "default", StartedAt: base, FinishedAt: base.Add(-time.Second)}); err == nil {
			t.Error("expected validation error")
		}
	})

	t.Run("ListByProfile", func(t *testing.T) {
		repo := setup(t)
		for i, p := range []string{"default", "work", "default", "default"} {
			start := base.Add(time.Duration(i) * time.Hour)
			if err := repo.Save(ctx, &models.FeedRun{Profile: p, Videos: i, StartedAt: start, FinishedAt: start}); err != nil {
				t.Fatalf("failed to save run: %v", err)
			}
		}

		runs, err := repo.ListByProfile(ctx, "default", 2)
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(runs) != 2 || runs[0].Videos != 3 || runs[1].Videos != 2 {
			t.Errorf("expected the two newest default runs, got %d", len(runs))
		}

		all, err := repo.ListByProfile(ctx, "default", 0)
		if err != nil || len(all) != 3 {
			t.Errorf("expected 3 runs, got %d (%v)", len(all), err)
		}

		everything, err := repo.List(ctx)
		if err != nil || len(everything) != 4 {
			t.Errorf("expected 4 runs, got %d (%v)", len(everything), err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		repo := setup(t)
		run := &models.FeedRun{Profile: "default", StartedAt: base, FinishedAt: base}
		if err := repo.Save(ctx, run); err != nil {
			t.Fatalf("failed to save run: %v", err)
		}

		if err := repo.Delete(ctx, run.RunID); err != nil {
			t.Fatalf("failed to delete run: %v", err)
		}
		if err := repo.Delete(ctx, run.RunID); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound on second delete, got %v", err)
		}
		if _, err := repo.Get(ctx, run.RunID); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}
