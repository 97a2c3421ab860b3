package main

import (
	"context"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/regbot/core/bootstrap"
	corecmd "github.com/m3rciful/regbot/core/cmd"
	"github.com/m3rciful/regbot/internal/bot"
	appconfig "github.com/m3rciful/regbot/internal/config"
	"github.com/m3rciful/regbot/internal/i18n"
	"github.com/m3rciful/regbot/internal/storage"
	"github.com/m3rciful/regbot/internal/storage/sqlstore"
	"github.com/m3rciful/regbot/migrations"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return appconfig.Load(path)
		},
		Bootstrap: bootstrapApp,
	})
	if err != nil {
		log.Fatal(err)
	}
}

func bootstrapApp(ctx context.Context, carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg, ok := carrier.(*appconfig.Config)
	if !ok {
		return nil, fmt.Errorf("unexpected config type %T", carrier)
	}

	var modules bootstrap.Modules
	if cfg.Seed.DemoEvents {
		modules.Seeders = append(modules.Seeders, bot.DemoSeeder(cfg.Seed.Events, cfg.Location()))
	}

	res, err := bootstrap.Run(ctx, bootstrap.Options{
		Config:       cfg.CoreConfig(),
		Database:     cfg.Database,
		SkipDatabase: !cfg.UsesDatabase(),
		Migrations:   migrations.FS,
		OpenStorage: func(db *sqlx.DB) (bootstrap.Storage, error) {
			return openStore(cfg, db), nil
		},
		Modules: modules,
	})
	if err != nil {
		return nil, err
	}

	store, ok := res.Storage.(storage.Store)
	if !ok {
		return nil, fmt.Errorf("unexpected storage type %T", res.Storage)
	}
	app, err := bot.New(cfg, store, i18n.NewTranslator(cfg.Registration.Locale))
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return app, nil
}

func openStore(cfg *appconfig.Config, db *sqlx.DB) storage.Store {
	if db == nil {
		return storage.WithTracing(storage.NewMemory(nil), appconfig.StorageMemory)
	}
	return storage.WithTracing(sqlstore.New(db), cfg.Storage.Driver)
}
