// Vaultbox upload api binary
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/vaultbox/vaultbox/api/controller"
	"github.com/vaultbox/vaultbox/api/metric"
	"github.com/vaultbox/vaultbox/api/server"
	"github.com/vaultbox/vaultbox/cmd/uploadserver/option"
	"github.com/vaultbox/vaultbox/db"
	dbconfig "github.com/vaultbox/vaultbox/db/config"
	"github.com/vaultbox/vaultbox/pkg/component/storage"
	"github.com/vaultbox/vaultbox/pkg/upload"
)

func main() {
	s := option.NewUploadServer()
	s.AddFlags(pflag.CommandLine)
	pflag.Parse()
	s.SetLog()

	if err := run(s); err != nil {
		logrus.Fatalf("start upload server error: %s", err.Error())
	}
}

func run(s *option.UploadServer) error {
	if err := db.CreateManager(dbconfig.Config{
		DBType:              s.DBType,
		MysqlConnectionInfo: s.MysqlConnectionInfo,
	}); err != nil {
		return err
	}
	defer db.CloseManager()

	component, err := storage.New(storage.Config{
		StorageType:       s.StorageType,
		LocalBasePath:     s.StoragePath,
		S3Endpoint:        s.S3Endpoint,
		S3Region:          s.S3Region,
		S3Bucket:          s.S3Bucket,
		S3AccessKeyID:     s.S3AccessKeyID,
		S3SecretAccessKey: s.S3SecretAccessKey,
	})
	if err != nil {
		return err
	}
	store := component.StorageCli

	registry := upload.NewRegistry(db.GetManager().UploadSessionDao())
	files := upload.NewStorageFileCreator(store)
	uploadController := &controller.UploadController{
		Registry:  registry,
		Ingest:    upload.NewIngestService(registry, store),
		Finalizer: upload.NewFinalizer(registry, store, files),
		Files:     files,
		Store:     store,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	janitor := upload.NewJanitor(registry, store)
	janitor.OnSweep(func(report upload.SweepReport) {
		metric.SessionsExpired.Add(float64(report.Expired))
	})
	go func() {
		janitor.Sweep()
		janitor.Run(ctx, s.JanitorInterval)
	}()

	go handleSignals(cancel)

	logrus.Infof("upload server listening on %s", s.APIAddr)
	return server.ListenAndServe(s.APIAddr, server.Router(uploadController))
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	cancel()
}
