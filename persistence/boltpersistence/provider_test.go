package boltpersistence_test

import (
	"context"
	"os"
	"path/filepath"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"github.com/vouchsafe/vouchsafe/persistence"
	"github.com/vouchsafe/vouchsafe/persistence/boltpersistence"
	"github.com/vouchsafe/vouchsafe/persistence/internal/providertest"
)

var _ = ginkgo.Describe("type FileProvider", func() {
	providertest.Declare(
		func(ctx context.Context) providertest.In {
			return providertest.In{
				NewProvider: func() (persistence.Provider, func()) {
					dir, err := os.MkdirTemp("", "vouchsafe-bolt-")
					gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

					return &boltpersistence.FileProvider{
							Path: filepath.Join(dir, "journal.db"),
						}, func() {
							os.RemoveAll(dir)
						}
				},
			}
		},
	)

	ginkgo.It("returns ErrDataStoreLocked when the store is already open", func() {
		ctx := context.Background()

		dir, err := os.MkdirTemp("", "vouchsafe-bolt-")
		gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
		defer os.RemoveAll(dir)

		p := &boltpersistence.FileProvider{
			Path: filepath.Join(dir, "journal.db"),
		}

		ds, err := p.Open(ctx)
		gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
		defer ds.Close()

		_, err = p.Open(ctx)
		gomega.Expect(err).To(gomega.Equal(persistence.ErrDataStoreLocked))
	})
})
