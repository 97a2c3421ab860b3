package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/regbot/core/bootstrap"
	"github.com/m3rciful/regbot/core/logger"
	tghelpers "github.com/m3rciful/regbot/core/telegram/helpers"
	appconfig "github.com/m3rciful/regbot/internal/config"
	"github.com/m3rciful/regbot/internal/storage"
)

// DefaultDemoEvents are loaded when seeding is enabled and no events are configured.
var DefaultDemoEvents = []appconfig.SeedEvent{
	{
		Title:       "Конференция разработчиков",
		Description: "Ежегодная конференция для разработчиков",
		Date:        "2024-12-15 10:00",
		Location:    "Москва, Красная площадь, 1",
	},
	{
		Title:       "Мастер-класс по Python",
		Description: "Практический мастер-класс по Python",
		Date:        "2024-12-20 14:00",
		Location:    "Онлайн",
	},
	{
		Title:       "Встреча фрилансеров",
		Description: "Неформальная встреча фрилансеров",
		Date:        "2024-12-25 18:00",
		Location:    `Кафе "Уголок", Невский проспект, 50`,
	},
}

// DemoSeeder inserts events into an empty store. Stores that already hold
// events are left alone, so restarts do not duplicate the demo data.
func DemoSeeder(events []appconfig.SeedEvent, loc *time.Location) bootstrap.Seeder {
	if len(events) == 0 {
		events = DefaultDemoEvents
	}
	return bootstrap.SeederFunc(func(ctx context.Context, st bootstrap.Storage) error {
		store, ok := st.(storage.Store)
		if !ok {
			return fmt.Errorf("demo seeder: unexpected storage %T", st)
		}

		existing, err := store.ListEvents(ctx)
		if err != nil {
			return fmt.Errorf("demo seeder: list events: %w", err)
		}
		if len(existing) > 0 {
			logger.Debug(ctx, "db.seed", "seed.events",
				slog.String("status", "skip"),
				slog.Int("count", len(existing)),
			)
			return nil
		}

		for i, ev := range events {
			date, ok := tghelpers.ParseFlexibleDate(ev.Date, loc)
			if !ok {
				return fmt.Errorf("demo seeder: event %d: unparsable date %q", i, ev.Date)
			}
			if _, err := store.AddEvent(ctx, storage.NewEvent{
				Title:       ev.Title,
				Description: ev.Description,
				Date:        date,
				Location:    ev.Location,
			}); err != nil {
				return fmt.Errorf("demo seeder: add %q: %w", ev.Title, err)
			}
		}
		logger.Info(ctx, "db.seed", "seed.events",
			slog.String("status", "ok"),
			slog.Int("count", len(events)),
		)
		return nil
	})
}
