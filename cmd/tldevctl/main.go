package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Aryainguz/tldev-backend/internal/app"
	"github.com/Aryainguz/tldev-backend/internal/domain"
	"github.com/Aryainguz/tldev-backend/internal/infra/config"
	"github.com/Aryainguz/tldev-backend/internal/infra/db"
	applog "github.com/Aryainguz/tldev-backend/internal/infra/log"
	"github.com/Aryainguz/tldev-backend/internal/usecase/pipeline"
	"github.com/Aryainguz/tldev-backend/internal/usecase/slot"
)

// errRunFailed возвращается, если стадия завершилась статусом failed.
var errRunFailed = errors.New("run failed")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tldevctl",
		Short:         "Операционные команды tldev: миграции, стадии конвейера и рассылка",
		SilenceUsage:  true,
	}
	root.AddCommand(newMigrateCmd(), newGenerateCmd(), newEnrichCmd(), newDispatchCmd(), newSlotCmd())
	return root
}

// withApp загружает конфиг, собирает приложение и закрывает его после fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App, logger zerolog.Logger) error) error {
	cfg := config.Load()
	logger := applog.NewLoggerTo(cmd.ErrOrStderr(), cfg.AppEnv)
	a, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a, logger)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printRun(cmd *cobra.Command, status domain.RunStatus, v any) error {
	if err := printJSON(cmd.OutOrStdout(), v); err != nil {
		return err
	}
	if status == domain.RunStatusFailed {
		return errRunFailed
	}
	return nil
}

func newMigrateCmd() *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Применить миграции Postgres (или откатить с --down)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(_ context.Context, a *app.App, logger zerolog.Logger) error {
				if a.Pool == nil {
					return errors.New("PG_DSN is not set")
				}
				if down {
					return db.MigrateDown(a.Pool)
				}
				return a.Migrate(logger)
			})
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "откатить все миграции")
	return cmd
}

func newGenerateCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Сгенерировать черновики советов",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App, _ zerolog.Logger) error {
				res := a.Pipeline.RunGeneration(ctx, count)
				return printRun(cmd, res.Status, res)
			})
		},
	}
	cmd.Flags().IntVar(&count, "count", 0, "количество советов (по умолчанию GENERATION_BATCH_SIZE)")
	return cmd
}

func newEnrichCmd() *cobra.Command {
	var (
		tipID string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Обогатить и опубликовать черновики",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App, _ zerolog.Logger) error {
				res := a.Pipeline.RunEnrichment(ctx, pipeline.EnrichRequest{TipID: tipID, Limit: limit})
				return printRun(cmd, res.Status, res)
			})
		},
	}
	cmd.Flags().StringVar(&tipID, "tip-id", "", "обогатить один совет")
	cmd.Flags().IntVar(&limit, "limit", 0, "размер пакета черновиков")
	return cmd
}

func newDispatchCmd() *cobra.Command {
	var (
		date    string
		slotIdx int
	)
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Разослать совет слота; без --date слот вычисляется по текущему времени",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App, _ zerolog.Logger) error {
				var res domain.DispatchResult
				if date == "" {
					res = a.Dispatch.RunDispatchNow(ctx)
				} else {
					res = a.Dispatch.RunDispatchForSlot(ctx, date, slotIdx)
				}
				return printRun(cmd, res.Status, res)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "логическая дата YYYY-MM-DD")
	cmd.Flags().IntVar(&slotIdx, "slot", 0, "номер слота")
	return cmd
}

func newSlotCmd() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "slot",
		Short: "Показать слот и логическую дату для момента времени",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Parse()
			if err != nil {
				return err
			}
			slotCfg, err := cfg.SlotConfig()
			if err != nil {
				return err
			}
			now := time.Now()
			if at != "" {
				if now, err = time.Parse(time.RFC3339, at); err != nil {
					return fmt.Errorf("--at: %w", err)
				}
			}
			return printSlot(cmd.OutOrStdout(), now, slotCfg)
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "момент времени в RFC3339 (по умолчанию сейчас)")
	return cmd
}

type slotOutput struct {
	At        time.Time    `json:"at"`
	Location  string       `json:"location"`
	InWindow  bool         `json:"in_window"`
	Result    *slot.Result `json:"result,omitempty"`
	SlotCount int          `json:"slot_count"`
}

func printSlot(w io.Writer, now time.Time, cfg slot.Config) error {
	out := slotOutput{At: now, Location: cfg.Location.String(), SlotCount: cfg.SlotCount}
	res, err := slot.Resolve(now, cfg)
	switch {
	case errors.Is(err, slot.ErrOutOfWindow):
	case err != nil:
		return err
	default:
		out.InWindow = true
		out.Result = &res
	}
	return printJSON(w, out)
}
