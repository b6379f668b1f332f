// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

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

	"github.com/backyardbot/backyardbot/internal/store"
	"github.com/backyardbot/backyardbot/pkg/errutil"
)

var _ = Describe("PostgresTimetable", Ordered, func() {
	var (
		ctx       context.Context
		container *postgres.PostgresContainer
		pool      *pgxpool.Pool
		timetable *store.PostgresTimetable
	)

	BeforeAll(func() {
		ctx = context.Background()

		var err error
		container, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("backyardbot_test"),
			postgres.WithUsername("backyardbot"),
			postgres.WithPassword("backyardbot"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second),
			),
		)
		Expect(err).NotTo(HaveOccurred())

		dsn, err := container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())

		migrator, err := store.NewMigrator(dsn)
		Expect(err).NotTo(HaveOccurred())
		Expect(migrator.Up()).To(Succeed())
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(dirty).To(BeFalse())
		Expect(version).To(Equal(uint(2)))
		Expect(migrator.Close()).To(Succeed())

		pool, err = store.Connect(ctx, dsn, store.ConnectOptions{Attempts: 3})
		Expect(err).NotTo(HaveOccurred())
		timetable = store.NewPostgresTimetable(pool)
	})

	AfterAll(func() {
		if pool != nil {
			pool.Close()
		}
		if container != nil {
			_ = container.Terminate(ctx)
		}
	})

	BeforeEach(func() {
		_, err := pool.Exec(ctx, `TRUNCATE timetable_entries`)
		Expect(err).NotTo(HaveOccurred())
	})

	It("stores entries and lists them in dashboard order", func() {
		stored, err := timetable.Add(ctx, []store.Entry{
			{TimeHH: 19, Weekday: store.Daily, Zones: []int{3}, Duration: 90},
			{TimeHH: 6, TimeMM: 30, Weekday: 0, Zones: []int{1, 2}, Duration: 600},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(stored).To(HaveLen(2))

		list, err := timetable.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(list).To(Equal([]store.Entry{stored[1], stored[0]}))
	})

	It("removes entries by id", func() {
		stored, err := timetable.Add(ctx, []store.Entry{{TimeHH: 7, Weekday: 2, Zones: []int{4}, Duration: 30}})
		Expect(err).NotTo(HaveOccurred())

		Expect(timetable.Remove(ctx, stored[0].ID)).To(Succeed())
		Expect(errutil.Code(timetable.Remove(ctx, stored[0].ID))).To(Equal(store.CodeEntryNotFound))

		list, err := timetable.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(list).To(BeEmpty())
	})

	It("rejects rows the check constraints forbid", func() {
		_, err := pool.Exec(ctx,
			`INSERT INTO timetable_entries (id, time_hh, time_mm, weekday, zones, duration_seconds)
			 VALUES ('x', 25, 0, 0, '{1}', 10)`)
		Expect(err).To(HaveOccurred())
	})
})
