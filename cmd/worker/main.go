package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hooksmith/hooksmith/internal/config"
	"github.com/hooksmith/hooksmith/internal/delivery"
	"github.com/hooksmith/hooksmith/internal/health"
	"github.com/hooksmith/hooksmith/internal/logging"
	"github.com/hooksmith/hooksmith/internal/metrics"
	"github.com/hooksmith/hooksmith/internal/store"
	"github.com/hooksmith/hooksmith/internal/tracing"
)

func main() {
	cfg := config.FromEnv()
	ctx := context.Background()

	logger := logging.New("hooksmith-worker")

	shutdown, err := tracing.InitTracing(ctx, "hooksmith-worker")
	if err != nil {
		logger.Plain().WithError(err).Fatal("failed to initialize tracing")
	}
	defer shutdown()

	pool, err := store.Connect(ctx, cfg.DSN())
	if err != nil {
		logger.Plain().WithError(err).Fatal("db connect failed")
	}
	defer pool.Close()
	st := store.New(pool)

	// One registry serves both the ops counters and the OTel attempt
	// instruments bridged through the prometheus exporter.
	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)
	mp, err := metrics.NewMeterProvider(reg)
	if err != nil {
		logger.Plain().WithError(err).Fatal("meter provider setup failed")
	}
	defer mp.Shutdown(ctx)
	recorder, err := metrics.NewAttemptRecorder(mp.Meter(metrics.MeterName))
	if err != nil {
		logger.Plain().WithError(err).Fatal("attempt recorder setup failed")
	}

	senders := delivery.NewRegistry()
	httpSender := delivery.NewHTTPSender(cfg.Worker.DeliveryTimeout)
	senders.Register("http", httpSender)
	senders.Register("https", httpSender)
	nsqSender, err := delivery.NewNSQSender(cfg.NSQ.NsqdTCPAddr)
	if err != nil {
		logger.Plain().WithError(err).Fatal("nsq sender setup failed")
	}
	senders.Register("nsq", nsqSender)

	dispatcher := delivery.NewDispatcher(st, senders, recorder, logger, delivery.Config{
		SignatureHeader: cfg.Worker.SignatureHeader,
		TimestampHeader: cfg.Worker.TimestampHeader,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", health.HTTPHandler(pool))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	httpSrv := &http.Server{Addr: cfg.Worker.HTTPPort, Handler: mux}
	go func() {
		logger.Plain().WithField("addr", httpSrv.Addr).Info("worker HTTP server starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("worker HTTP server failed")
		}
	}()

	conf := nsq.NewConfig()
	conf.MaxInFlight = 1000
	consumer, err := nsq.NewConsumer(cfg.NSQ.DeliveriesTopic, cfg.NSQ.WorkerChannel, conf)
	if err != nil {
		logger.Plain().WithError(err).Fatal("nsq consumer creation failed")
	}

	var dlqProducer *nsq.Producer
	if cfg.Worker.PublishDLQ {
		dlqProducer, err = nsq.NewProducer(cfg.NSQ.NsqdTCPAddr, nsq.NewConfig())
		if err != nil {
			logger.Plain().WithError(err).Fatal("nsq producer for DLQ creation failed")
		}
		defer dlqProducer.Stop()
	}

	startBacklogMonitor(cfg, logger)

	consumer.AddHandler(nsq.HandlerFunc(func(m *nsq.Message) error {
		m.DisableAutoResponse() // we manually requeue or finish
		defer func() {
			if !m.HasResponded() {
				logger.Plain().Warn("message had no response, finishing")
				m.Finish()
			}
		}()

		var t delivery.Task
		if err := json.Unmarshal(m.Body, &t); err != nil {
			logger.Plain().WithError(err).Error("bad task payload")
			metrics.RecordDelivery("failed", 0)
			m.Finish() // terminal: don't retry bad payloads
			return nil
		}
		deliveryID, err := uuid.Parse(t.DeliveryID)
		if err != nil {
			logger.Plain().WithField("delivery_id", t.DeliveryID).WithError(err).Error("bad delivery id")
			metrics.RecordDelivery("failed", 0)
			m.Finish()
			return nil
		}

		ctx := tracing.ExtractTaskHeaders(ctx, t.TraceHeaders)

		res, err := dispatcher.Dispatch(ctx, deliveryID, t.Telemetry)
		if err != nil {
			// Load or attempt-recording failure: the job fails hard and
			// NSQ redelivers so history is never silently lost.
			delay := computeDelay(t.Attempt+1, cfg.Worker.BackoffSchedule, cfg.Worker.JitterPercent)
			logger.WithContext(ctx).WithDelivery(t.DeliveryID).WithError(err).Error("dispatch failed")
			m.Requeue(delay)
			return nil
		}

		switch res.Outcome {
		case delivery.OutcomeDelivered:
			metrics.RecordDelivery("delivered", res.Response.Duration)
			m.Finish()

		case delivery.OutcomePermanentFailure:
			// Configuration problem: recorded and surfaced via metrics,
			// never requeued.
			metrics.RecordDelivery("failed", res.Response.Duration)
			m.Finish()

		case delivery.OutcomeRetry:
			reason := delivery.FailureReason(res.Response)
			metrics.RecordDelivery("failed", res.Response.Duration)
			metrics.RecordRetry(reason)

			if res.Attempt.Seq >= cfg.Worker.MaxAttempts {
				dlqReason := fmt.Sprintf("max attempts reached (%d), reason=%s", res.Attempt.Seq, reason)
				if err := st.InsertDeadLetter(ctx, deliveryID, dlqReason); err != nil {
					logger.WithContext(ctx).WithDelivery(t.DeliveryID).WithError(err).Error("dlq insert failed")
					tracing.SetSpanError(ctx, err)
				}
				if cfg.Worker.PublishDLQ && dlqProducer != nil {
					publishDeadLetter(ctx, dlqProducer, cfg.NSQ.DLQTopic, t, res, dlqReason, logger)
				}
				metrics.RecordDLQ(reason)
				m.Finish() // drop from main topic
				return nil
			}

			delay := computeDelay(res.Attempt.Seq, cfg.Worker.BackoffSchedule, cfg.Worker.JitterPercent)
			logger.WithContext(ctx).WithDelivery(t.DeliveryID).WithFields(map[string]any{
				"attempt": res.Attempt.Seq,
				"delay":   delay.String(),
			}).Info("requeue delivery")

			t.Attempt = res.Attempt.Seq
			if body, err := json.Marshal(t); err == nil {
				m.Body = body
			}
			m.Requeue(delay)
		}
		return nil
	}))

	// Connecting directly to NSQD forces channel creation, instead of the
	// channel being lazily created on first publish
	if err := consumer.ConnectToNSQD(cfg.NSQ.NsqdTCPAddr); err != nil {
		logger.Plain().WithError(err).Fatal("connect to nsqd failed")
	}
	if err := consumer.ConnectToNSQLookupd(cfg.NSQ.LookupHTTPAddr); err != nil {
		logger.Plain().WithError(err).Fatal("connect to lookupd failed")
	}

	logger.Plain().Info("worker service started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Plain().Info("shutting down worker service")
	consumer.Stop()
	<-consumer.StopChan
	_ = httpSrv.Shutdown(context.Background())
	logger.Plain().Info("worker service stopped")
}

func publishDeadLetter(ctx context.Context, producer *nsq.Producer, topic string, t delivery.Task, res delivery.Result, reason string, logger *logging.Logger) {
	httpStatus := 0
	if res.Response.StatusCode != nil {
		httpStatus = *res.Response.StatusCode
	}
	env := delivery.NewDeadLetter(t, res.Attempt.Seq, httpStatus, res.Response.Content, reason)
	b, err := json.Marshal(env)
	if err != nil {
		logger.WithContext(ctx).WithDelivery(t.DeliveryID).WithError(err).Error("dlq marshal failed")
		return
	}
	if err := producer.Publish(topic, b); err != nil {
		logger.WithContext(ctx).WithDelivery(t.DeliveryID).WithError(err).Error("dlq publish failed")
		tracing.SetSpanError(ctx, err)
		return
	}
	logger.WithContext(ctx).WithDelivery(t.DeliveryID).WithField("topic", topic).Info("dlq published")
	tracing.AddSpanEvent(ctx, "nsq.published_dlq")
}

func computeDelay(attempt int, schedule []time.Duration, jitterPct float64) time.Duration {
	// attempt is 1-based after increment; map to schedule index
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(schedule) {
		idx = len(schedule) - 1
	}
	base := schedule[idx]
	// jitter: +/- jitterPct
	j := 1 + (rand.Float64()*2-1)*jitterPct
	if j < 0.1 {
		j = 0.1
	}
	return time.Duration(float64(base) * j)
}

// startBacklogMonitor polls nsqd stats and updates the backlog gauge.
func startBacklogMonitor(cfg config.Config, logger *logging.Logger) {
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		httpClient := &http.Client{Timeout: 5 * time.Second}

		for range ticker.C {
			// nsqd serves stats on its HTTP port (TCP port + 1)
			nsqdHTTPAddr := strings.Replace(cfg.NSQ.NsqdTCPAddr, ":4150", ":4151", 1)
			resp, err := httpClient.Get(fmt.Sprintf("http://%s/stats?format=json", nsqdHTTPAddr))
			if err != nil {
				logger.Plain().WithError(err).Error("failed to get NSQ stats")
				continue
			}

			var stats struct {
				Topics []struct {
					Name     string `json:"topic_name"`
					Channels []struct {
						Name  string `json:"channel_name"`
						Depth int64  `json:"depth"`
					} `json:"channels"`
				} `json:"topics"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
				resp.Body.Close()
				logger.Plain().WithError(err).Error("failed to decode NSQ stats")
				continue
			}
			resp.Body.Close()

			for _, topic := range stats.Topics {
				if topic.Name != cfg.NSQ.DeliveriesTopic {
					continue
				}
				for _, channel := range topic.Channels {
					if channel.Name == cfg.NSQ.WorkerChannel {
						metrics.UpdateWorkerBacklog(float64(channel.Depth))
					}
				}
			}
		}
	}()
}
