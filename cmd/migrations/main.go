package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
	"github.com/urfave/cli/v2"

	"github.com/listenarr/listenarr/pkg/config"
	"github.com/listenarr/listenarr/pkg/database"
	"github.com/listenarr/listenarr/pkg/migrations"
)

func main() {
	log := logger.New()

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	db, err := database.New(cfg)
	if err != nil {
		log.Err(err).Fatal("database error")
	}

	app := &cli.App{
		Name:  "migrations",
		Usage: "manage the listenarr database schema",
		Commands: []*cli.Command{
			initCommand(db),
			migrateCommand(db),
			rollbackCommand(db),
			createCommand(db),
			statusCommand(db),
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Err(err).Fatal("app run error")
	}
}

func newMigrator(db *bun.DB) *migrate.Migrator {
	return migrate.NewMigrator(db, migrations.Migrations)
}

func initCommand(db *bun.DB) *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "create migration tables",
		Action: func(c *cli.Context) error {
			return newMigrator(db).Init(c.Context)
		},
	}
}

func migrateCommand(db *bun.DB) *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "apply unapplied migrations",
		Action: func(c *cli.Context) error {
			group, err := newMigrator(db).Migrate(c.Context)
			if err != nil {
				return err
			}
			if group.ID == 0 {
				fmt.Println("There are no new migrations to run")
				return nil
			}
			fmt.Printf("Migrated to %s\n", group)
			return nil
		},
	}
}

func rollbackCommand(db *bun.DB) *cli.Command {
	return &cli.Command{
		Name:  "rollback",
		Usage: "roll back the last migration group",
		Action: func(c *cli.Context) error {
			group, err := newMigrator(db).Rollback(c.Context)
			if err != nil {
				return err
			}
			if group.ID == 0 {
				fmt.Println("There are no groups to roll back")
				return nil
			}
			fmt.Printf("Rolled back %s\n", group)
			return nil
		},
	}
}

func createCommand(db *bun.DB) *cli.Command {
	return &cli.Command{
		Name:      "create",
		Usage:     "create a new Go migration file",
		ArgsUsage: "<name words...>",
		Action: func(c *cli.Context) error {
			name := strings.Join(c.Args().Slice(), "_")
			mf, err := newMigrator(db).CreateGoMigration(
				c.Context,
				name,
				migrate.WithGoTemplate(migrationTemplate),
			)
			if err != nil {
				return err
			}
			fmt.Printf("Created migration %s (%s)\n", mf.Name, mf.Path)
			return nil
		},
	}
}

func statusCommand(db *bun.DB) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "print migration status",
		Action: func(c *cli.Context) error {
			ms, err := newMigrator(db).MigrationsWithStatus(c.Context)
			if err != nil {
				return err
			}
			fmt.Printf("Migrations: %s\n", ms)
			fmt.Printf("Unapplied migrations: %s\n", ms.Unapplied())
			fmt.Printf("Last migration group: %s\n", ms.LastGroup())
			return nil
		},
	}
}

const migrationTemplate = `package %s

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec("")
		return errors.WithStack(err)
	}

	down := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec("")
		return errors.WithStack(err)
	}

	Migrations.MustRegister(up, down)
}
`
