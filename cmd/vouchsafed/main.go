// vouchsafed hosts the vouchsafe verification processes as a standalone
// daemon.
//
// It persists process journals to a Bolt database and wires the verification
// tasks to local development stand-ins for the external collaborators; a
// real deployment replaces those with integrations into its own trust,
// document and notification services.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/vouchsafe/vouchsafe"
	"github.com/vouchsafe/vouchsafe/internal/x/loggingx"
	"github.com/vouchsafe/vouchsafe/persistence/boltpersistence"
	"github.com/vouchsafe/vouchsafe/verify"
	"go.uber.org/zap"
)

func main() {
	ctx, cancel := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	zl, err := newLogger()
	if err != nil {
		panic(err)
	}
	defer zl.Sync()

	path := os.Getenv("VOUCHSAFE_DB")
	if path == "" {
		path = "/var/run/vouchsafe.boltdb"
	}

	evidenceDir := os.Getenv("VOUCHSAFE_EVIDENCE_DIR")
	if evidenceDir == "" {
		evidenceDir = "/var/run/vouchsafe-evidence"
	}

	opts := []vouchsafe.EngineOption{
		vouchsafe.WithPersistence(&boltpersistence.FileProvider{
			Path: path,
		}),
		vouchsafe.WithTasks(verify.Tasks(
			localCollaborators(zl, evidenceDir),
		)),
		vouchsafe.WithMessageTypes(verify.Types()...),
		vouchsafe.WithLogger(&loggingx.Zap{Target: zl}),
	}

	for _, def := range verify.Definitions() {
		opts = append(opts, vouchsafe.WithProcess(def))
	}

	zl.Info("starting engine", zap.String("db", path))

	err = vouchsafe.New(opts...).Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		zl.Fatal("engine stopped", zap.Error(err))
	}
}

func newLogger() (*zap.Logger, error) {
	if os.Getenv("VOUCHSAFE_DEBUG") != "" {
		return zap.NewDevelopment()
	}

	return zap.NewProduction()
}
