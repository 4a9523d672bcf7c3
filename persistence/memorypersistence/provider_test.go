package memorypersistence_test

import (
	"context"

	"github.com/onsi/ginkgo/v2"
	"github.com/vouchsafe/vouchsafe/persistence"
	"github.com/vouchsafe/vouchsafe/persistence/internal/providertest"
	"github.com/vouchsafe/vouchsafe/persistence/memorypersistence"
)

var _ = ginkgo.Describe("type Provider", func() {
	providertest.Declare(
		func(ctx context.Context) providertest.In {
			return providertest.In{
				NewProvider: func() (persistence.Provider, func()) {
					return &memorypersistence.Provider{}, func() {}
				},
			}
		},
	)
})
