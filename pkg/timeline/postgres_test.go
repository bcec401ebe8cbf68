package timeline_test

import (
	"context"
	"database/sql"
	"regexp"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/jmoiron/sqlx"

	"github.com/broadcomms/chronosops/pkg/timeline"
)

var _ = Describe("PostgresEventRepository", func() {
	var (
		mockDB *sql.DB
		mock   sqlmock.Sqlmock
		db     *sqlx.DB
		repo   *timeline.PostgresEventRepository
		ctx    context.Context
	)

	BeforeEach(func() {
		var err error
		mockDB, mock, err = sqlmock.New()
		Expect(err).NotTo(HaveOccurred())
		db = sqlx.NewDb(mockDB, "postgres")
		repo = timeline.NewPostgresEventRepository(db)
		ctx = context.Background()
	})

	AfterEach(func() {
		mockDB.Close()
	})

	Describe("Create", func() {
		It("inserts the event", func() {
			mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timeline_events")).
				WillReturnResult(sqlmock.NewResult(1, 1))

			evt := &timeline.Event{IncidentID: "inc-1", Kind: "phase:changed"}
			Expect(repo.Create(ctx, evt)).To(Succeed())
			Expect(evt.ID).NotTo(BeEmpty())
			Expect(mock.ExpectationsWereMet()).To(Succeed())
		})
	})

	Describe("GetByID", func() {
		It("returns the matching event", func() {
			now := time.Now().UTC().Format(time.RFC3339Nano)
			rows := sqlmock.NewRows([]string{"id", "incident_id", "development_cycle_id", "kind", "message", "details", "occurred_at"}).
				AddRow("evt-1", "inc-1", "", "phase:changed", "", []byte(`{"from":"OBSERVING"}`), now)
			mock.ExpectQuery(regexp.QuoteMeta("SELECT")).WillReturnRows(rows)

			evt, err := repo.GetByID(ctx, "evt-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(evt.ID).To(Equal("evt-1"))
			Expect(evt.Details["from"]).To(Equal("OBSERVING"))
		})
	})
})
