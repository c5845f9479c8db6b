// Command persistence-demo wires a metrics worker and a Top-N worker into
// the persistence scheduler against either the in-memory DAO or a real
// Postgres instance, and runs it until interrupted. It exists to exercise
// the full pipeline end to end the way the teacher's cmd/ binaries wire a
// storage backend, a worker pool, and a shutdown signal together.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/oapcore/persistence/pkg/logging"
	"github.com/oapcore/persistence/pkg/persistence/cache"
	"github.com/oapcore/persistence/pkg/persistence/config"
	"github.com/oapcore/persistence/pkg/persistence/dao"
	"github.com/oapcore/persistence/pkg/persistence/dao/postgres"
	"github.com/oapcore/persistence/pkg/persistence/metrics"
	"github.com/oapcore/persistence/pkg/persistence/model"
	"github.com/oapcore/persistence/pkg/persistence/registry"
	"github.com/oapcore/persistence/pkg/persistence/scheduler"
	"github.com/oapcore/persistence/pkg/persistence/worker"
)

func main() {
	var (
		dsn     = flag.String("postgres-dsn", "", "PostgreSQL connection string; empty uses the in-memory DAO")
		period  = flag.Duration("period", 5*time.Second, "persistence tick period")
		logJSON = flag.Bool("json-logs", false, "emit logs as JSON instead of text")
	)
	flag.Parse()

	format := logging.TextFormat
	if *logJSON {
		format = logging.JSONFormat
	}
	log := logging.New(&logging.Config{Level: logging.InfoLevel, Format: format})
	logging.SetDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := config.WithDefaults(&config.Config{PersistentPeriod: *period})

	regs := registry.NewRegistries()

	metricsModel := model.NewModel("metrics_all", model.KindMetrics, time.Minute)
	metricsWorker := worker.NewMetricsWorker("service-latency", metricsModel, metricsMapper, cfg.EnableDatabaseSession, cfg.StorageSessionTimeout, log)
	regs.Metrics.Register(metricsWorker)

	topNModel := model.NewModel("top_n_record", model.KindTopN, cfg.TopNReportPeriod)
	topNWorker := worker.NewTopNWorker("slow-queries", topNModel, topNMapper, byLatencyAsc, 50, cfg.TopNQueueCapacity, cfg.TopNReportPeriod, log)
	regs.TopN.Register(topNWorker)

	var batchDAO dao.BatchDAO
	if *dsn != "" {
		pg, err := postgres.New(ctx, &postgres.Config{ConnectionString: *dsn})
		if err != nil {
			log.Error("failed to connect to postgres", "err", err)
			os.Exit(1)
		}
		defer pg.Close()
		if err := pg.MigrateToLatest(ctx); err != nil {
			log.Error("failed to migrate schema", "err", err)
			os.Exit(1)
		}
		batchDAO = pg
		log.Info("using postgres dao")
	} else {
		batchDAO = dao.NewMemoryDAO()
		log.Info("using in-memory dao")
	}

	sink, err := metrics.NewSink(prometheus.DefaultRegisterer)
	if err != nil {
		log.Error("failed to register metrics", "err", err)
		os.Exit(1)
	}

	timer := scheduler.New(regs, cfg, log)
	timer.Start(batchDAO, sink)

	go feedSampleTraffic(ctx, metricsWorker, topNWorker, metricsModel, topNModel)

	<-ctx.Done()
	log.Info("shutting down")
	if err := timer.Stop(10 * time.Second); err != nil {
		log.Error("scheduler did not stop cleanly", "err", err)
	}
	if err := topNWorker.Stop(10 * time.Second); err != nil {
		log.Error("top-n worker did not stop cleanly", "err", err)
	}
}

// metricsStorageItem is the concrete model.StorageItem a real aggregation
// layer would produce upstream of this core; the demo synthesizes it.
type metricsStorageItem struct {
	mdl      *model.Model
	entityID string
	bucket   int64
	value    float64
}

func (i *metricsStorageItem) Model() *model.Model { return i.mdl }

func metricsMapper(item model.StorageItem) (model.PreparedRequest, error) {
	m := item.(*metricsStorageItem)
	return postgres.NewMetricsUpsertRequest(m.mdl, m.entityID, m.bucket, m.value), nil
}

type topNStorageItem struct {
	mdl       *model.Model
	id        string
	statement string
	latencyMs int64
	bucket    int64
}

func (i *topNStorageItem) Model() *model.Model { return i.mdl }

func topNMapper(item model.StorageItem) (model.PreparedRequest, error) {
	i := item.(*topNStorageItem)
	return postgres.NewTopNInsertRequest(i.mdl, i.id, i.statement, i.latencyMs, i.bucket), nil
}

func byLatencyAsc(a, b model.StorageItem) bool {
	return a.(*topNStorageItem).latencyMs < b.(*topNStorageItem).latencyMs
}

var _ cache.Less = byLatencyAsc

// feedSampleTraffic offers synthetic items to both workers so the demo has
// something to flush every tick.
func feedSampleTraffic(ctx context.Context, metricsWorker *worker.MetricsWorker, topNWorker *worker.TopNWorker, metricsModel, topNModel *model.Model) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().Unix()
			metricsWorker.Offer(&metricsStorageItem{mdl: metricsModel, entityID: "service-a", bucket: now, value: 12.5})
			topNWorker.Offer(&topNStorageItem{mdl: topNModel, id: uuid.NewString(), statement: "SELECT * FROM orders", latencyMs: 120, bucket: now})
		}
	}
}
