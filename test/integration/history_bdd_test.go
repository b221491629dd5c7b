//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/jesse-c/kopya-sub000/internal/domain"
	"github.com/jesse-c/kopya-sub000/internal/infra"
)

var _ = Describe("History Store", func() {
	var (
		tmpDir string
		dbPath string
		store  *infra.HistoryStore
		ctx    context.Context
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "kopya-integration-*")
		Expect(err).NotTo(HaveOccurred())

		dbPath = filepath.Join(tmpDir, "history.db")
		ctx = context.Background()

		store, err = infra.NewHistoryStore(dbPath, 5, nil, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		store.Close()
		os.RemoveAll(tmpDir)
	})

	insert := func(content string, ts time.Time) {
		e := &domain.Entry{Content: content, Type: domain.TypePlainText, Timestamp: ts}
		_, err := store.Upsert(ctx, e)
		Expect(err).NotTo(HaveOccurred())
	}

	Describe("Capacity enforcement", func() {
		Context("when more entries arrive than the cap allows", func() {
			It("should keep only the newest entries", func() {
				base := time.Now().Add(-time.Minute)
				for i := 0; i < 10; i++ {
					insert(fmt.Sprintf("entry-%d", i), base.Add(time.Duration(i)*time.Second))
				}

				count, err := store.Count(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(count).To(Equal(int64(5)))

				entries, err := store.Search(ctx, domain.SearchFilter{})
				Expect(err).NotTo(HaveOccurred())
				Expect(entries[0].Content).To(Equal("entry-9"))
				Expect(entries[4].Content).To(Equal("entry-5"))
			})
		})
	})

	Describe("Deduplication", func() {
		Context("when the same content is copied repeatedly", func() {
			It("should keep a single row with a refreshed timestamp", func() {
				base := time.Now().Add(-time.Minute)
				insert("repeated", base)
				insert("other", base.Add(time.Second))
				insert("repeated", base.Add(2*time.Second))

				count, err := store.Count(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(count).To(Equal(int64(2)))

				entries, err := store.Search(ctx, domain.SearchFilter{})
				Expect(err).NotTo(HaveOccurred())
				Expect(entries[0].Content).To(Equal("repeated"))
			})
		})

		Context("when the database is reopened", func() {
			It("should survive a restart with contents intact", func() {
				insert("persisted", time.Now())
				Expect(store.Close()).To(Succeed())

				var err error
				store, err = infra.NewHistoryStore(dbPath, 5, nil, zap.NewNop())
				Expect(err).NotTo(HaveOccurred())

				count, err := store.Count(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(count).To(Equal(int64(1)))
			})
		})
	})
})

var _ = Describe("Snapshot Rotation", func() {
	var (
		tmpDir    string
		dbPath    string
		snapshots *infra.SnapshotManager
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "kopya-snapshot-*")
		Expect(err).NotTo(HaveOccurred())

		dbPath = filepath.Join(tmpDir, "history.db")
		err = os.WriteFile(dbPath, []byte("database payload"), 0600)
		Expect(err).NotTo(HaveOccurred())

		snapshots = infra.NewSnapshotManager(dbPath, filepath.Join(tmpDir, "backups"), 2, zap.NewNop())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	Describe("Snapshot", func() {
		Context("when taking a snapshot", func() {
			It("should produce a byte-identical copy", func() {
				path, err := snapshots.Snapshot()
				Expect(err).NotTo(HaveOccurred())

				data, err := os.ReadFile(path)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(data)).To(Equal("database payload"))
			})
		})

		Context("when snapshots exceed the retention count", func() {
			It("should prune the oldest ones", func() {
				dir := filepath.Join(tmpDir, "backups")
				Expect(os.MkdirAll(dir, 0700)).To(Succeed())

				for i := 0; i < 4; i++ {
					name := fmt.Sprintf("history-20240601-12000%d.db", i)
					err := os.WriteFile(filepath.Join(dir, name), []byte("old"), 0600)
					Expect(err).NotTo(HaveOccurred())
				}

				Expect(snapshots.Prune()).To(Succeed())

				paths, err := snapshots.List()
				Expect(err).NotTo(HaveOccurred())
				Expect(paths).To(HaveLen(2))
				Expect(filepath.Base(paths[0])).To(Equal("history-20240601-120002.db"))
			})
		})
	})
})
