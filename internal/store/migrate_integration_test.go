// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lawdesk Contributors

//go:build integration

package store_test

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/lawdesk/lawdesk/internal/store"
)

var _ = Describe("Account schema", Ordered, func() {
	var (
		ctx       context.Context
		container *postgres.PostgresContainer
		connStr   string
		migrator  *store.Migrator
		pool      *pgxpool.Pool
	)

	BeforeAll(func() {
		ctx = context.Background()
		var err error
		container, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("lawdesk_test"),
			postgres.WithUsername("lawdesk"),
			postgres.WithPassword("lawdesk"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second),
			),
		)
		Expect(err).NotTo(HaveOccurred())

		connStr, err = container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())

		migrator, err = store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())

		pool, err = store.OpenPool(ctx, connStr, store.PoolOptions{})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		pool.Close()
		_ = migrator.Close()
		_ = container.Terminate(ctx)
	})

	It("starts empty", func() {
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())
		Expect(dirty).To(BeFalse())

		pending, err := migrator.PendingMigrations()
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(Equal([]uint{1}))
	})

	It("applies the account tables", func() {
		Expect(migrator.Up()).To(Succeed())

		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(1)))
		Expect(dirty).To(BeFalse())

		var count int
		err = pool.QueryRow(ctx, `
			SELECT count(*) FROM information_schema.tables
			WHERE table_schema = 'public'
			  AND table_name IN ('auth_data', 'user_profiles', 'passports')
		`).Scan(&count)
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(3))
	})

	It("enforces unique email and username", func() {
		var profileID string
		err := pool.QueryRow(ctx,
			`INSERT INTO user_profiles (role) VALUES ('user') RETURNING uid::text`).Scan(&profileID)
		Expect(err).NotTo(HaveOccurred())

		_, err = pool.Exec(ctx, `
			INSERT INTO auth_data (profile_uid, email, username, password_hash)
			VALUES ($1, 'a@example.com', 'alpha', '$argon2id$x')
		`, profileID)
		Expect(err).NotTo(HaveOccurred())

		_, err = pool.Exec(ctx, `
			INSERT INTO auth_data (email, username, password_hash)
			VALUES ('a@example.com', 'beta', '$argon2id$x')
		`)
		Expect(err).To(MatchError(ContainSubstring("auth_data_email_key")))

		_, err = pool.Exec(ctx, `
			INSERT INTO auth_data (email, username, password_hash)
			VALUES ('b@example.com', 'alpha', '$argon2id$x')
		`)
		Expect(err).To(MatchError(ContainSubstring("auth_data_username_key")))
	})

	It("rejects unknown roles", func() {
		_, err := pool.Exec(ctx, `INSERT INTO user_profiles (role) VALUES ('superuser')`)
		Expect(err).To(HaveOccurred())
	})

	It("steps down and back up", func() {
		Expect(migrator.Steps(-1)).To(Succeed())
		version, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())

		Expect(migrator.Steps(1)).To(Succeed())
		version, _, err = migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(1)))
	})

	It("rolls everything back with Down", func() {
		Expect(migrator.Down()).To(Succeed())
		applied, err := migrator.AppliedMigrations()
		Expect(err).NotTo(HaveOccurred())
		Expect(applied).To(BeEmpty())

		Expect(migrator.Force(1)).To(Succeed())
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(1)))
		Expect(dirty).To(BeFalse())
	})
})
