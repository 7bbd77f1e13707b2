package main

import (
	"context"

	"github.com/listenarr/listenarr/pkg/config"
	"github.com/listenarr/listenarr/pkg/database"
	"github.com/listenarr/listenarr/pkg/events"
	"github.com/listenarr/listenarr/pkg/library"
	"github.com/listenarr/listenarr/pkg/migrations"
	"github.com/listenarr/listenarr/pkg/sources"
	"github.com/listenarr/listenarr/pkg/version"
	"github.com/listenarr/listenarr/pkg/worker"
	"github.com/listenarr/listenarr/pkg/workitems"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/signals"
)

func main() {
	ctx := context.Background()
	log := logger.New()

	log.Info("starting listenarr", logger.Data{"version": version.Version})

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	db, err := database.New(cfg)
	if err != nil {
		log.Err(err).Fatal("database error")
	}

	group, err := migrations.BringUpToDate(ctx, db)
	if err != nil {
		log.Err(err).Fatal("migrations error")
	}
	if group.ID == 0 {
		log.Info("no new migrations to run")
	} else {
		log.Info("migrated to new group", logger.Data{"group_id": group.ID, "migration_names": group.Migrations.String()})
	}

	chains := sources.FromConfig(cfg)

	// Acquired books land in the library mirror so the next completeness
	// scan counts them as owned.
	emitter := events.NewEmitter()
	libraryService := library.NewService(db)
	workItemService := workitems.NewService(db)
	emitter.Subscribe(events.BookAcquired, func(event events.Event) {
		item, err := workItemService.RetrieveWorkItem(ctx, workitems.RetrieveWorkItemOptions{ID: &event.WorkItemID})
		if err != nil {
			log.Err(err).Error("retrieve acquired work item error")
			return
		}
		item.MergedParsed = event.Merged
		if err := libraryService.ImportAcquired(ctx, item); err != nil {
			log.Err(err).Error("library import error")
		}
	})

	wrkr, err := worker.New(cfg, db, chains, emitter)
	if err != nil {
		log.Err(err).Fatal("worker error")
	}

	graceful := signals.Setup()

	wrkr.Start()
	log.Info("worker started", logger.Data{"processes": cfg.WorkerProcesses})

	<-graceful
	log.Info("starting graceful shutdown")

	wrkr.Shutdown()
	log.Info("worker shutdown")

	err = db.Close()
	if err != nil {
		log.Err(err).Error("database close error")
	}
	log.Info("database closed")
}
