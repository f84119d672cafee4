package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/UniQw/aiqueue"
	"github.com/UniQw/aiqueue/archive"
	"github.com/UniQw/aiqueue/inference"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type analyzeOptions struct {
	template string
	output   string
	jsonOut  bool
}

func newAnalyzeCommand(a *app) *cobra.Command {
	var o analyzeOptions
	cmd := &cobra.Command{
		Use:   "analyze <findings.json|->",
		Short: "Generate a report for every finding in a JSON array",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.analyze(cmd, args[0], o)
		},
	}
	cmd.Flags().StringVar(&o.template, "template", "", "Prompt template file with five %s slots (title, severity, category, file, evidence)")
	cmd.Flags().StringVarP(&o.output, "output", "o", "", "Directory to write one markdown report per completed finding")
	cmd.Flags().BoolVar(&o.jsonOut, "json", false, "Print the final records as JSON")
	return cmd
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

func (a *app) analyze(cmd *cobra.Command, path string, o analyzeOptions) error {
	ctx := cmd.Context()
	data, err := readInput(cmd, path)
	if err != nil {
		return fmt.Errorf("read findings: %w", err)
	}
	findings, err := aiqueue.DecodeFindings(nil, data)
	if err != nil {
		return fmt.Errorf("decode findings: %w", err)
	}
	if len(findings) == 0 {
		return errors.New("no findings in input")
	}

	tmpl := a.cfg.Orchestrator.Template
	if o.template != "" {
		b, err := os.ReadFile(o.template)
		if err != nil {
			return fmt.Errorf("read template: %w", err)
		}
		tmpl = string(b)
	}

	client, err := inference.NewClient(a.cfg.InferenceConfig())
	if err != nil {
		return err
	}
	if !client.IsAvailable(ctx) {
		return fmt.Errorf("inference server at %s is not available; %s", client.Config().Endpoint, startHint)
	}

	log := a.logger()
	orch := aiqueue.New(client, append(a.cfg.OrchestratorOptions(), aiqueue.WithLogger(log))...)
	orch.Use(attemptLogging(a.log))

	// Sinks outlive a cancelled command context so they can flush.
	runCtx, stopRun := context.WithCancel(context.WithoutCancel(ctx))
	defer stopRun()
	g, gctx := errgroup.WithContext(runCtx)

	if a.cfg.Redis.Enabled() {
		rdb, err := a.redisClient()
		if err != nil {
			return err
		}
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		arc := archive.New(rdb, archive.Config{
			Namespace: a.cfg.Archive.Namespace,
			Retention: a.cfg.Archive.Retention,
			Logger:    log,
		})
		orch.AddListener(arc)
		g.Go(func() error {
			arc.Run(gctx, a.cfg.Archive.CleanInterval)
			return nil
		})
		if a.cfg.Archive.Publish {
			pub := archive.NewPublisher(rdb, a.cfg.Archive.Namespace, 0, log)
			orch.AddListener(pub)
			g.Go(func() error {
				pub.Run(gctx)
				return nil
			})
		}
	}

	events, unsubscribe := orch.Subscribe(eventBuffer(len(findings), a.cfg.Orchestrator.MaxRetries))
	orch.Start()
	records := orch.SubmitBatch(findings, tmpl, nil)
	a.log.WithField("findings", len(findings)).Info("batch submitted")

	werr := waitBatch(ctx, cmd.ErrOrStderr(), orch, events)
	orch.Shutdown()
	unsubscribe()
	stopRun()
	_ = g.Wait()

	views := make([]aiqueue.RecordView, 0, len(records))
	for _, r := range records {
		// a retried record was replaced; report the latest one for the finding
		latest := r
		if rs := orch.ForFinding(r.Finding.ID); len(rs) > 0 {
			latest = rs[len(rs)-1]
		}
		views = append(views, latest.View())
	}
	if o.output != "" {
		if err := writeReports(o.output, views); err != nil {
			return err
		}
	}
	if err := printSummary(cmd.OutOrStdout(), orch.Stats(), views, o.jsonOut); err != nil {
		return err
	}
	return werr
}

// eventBuffer sizes the subscription so a whole batch fits, including every
// retry transition.
func eventBuffer(n, maxRetries int) int {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return n*(3*maxRetries+2) + 16
}

// waitBatch prints progress until the batch completes or ctx is done. The
// stats check covers a dropped batch event.
func waitBatch(ctx context.Context, w io.Writer, orch *aiqueue.Orchestrator, events <-chan aiqueue.Event) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-events:
			if !ok {
				return nil
			}
			switch e.Type {
			case aiqueue.EventStatusUpdate:
				fmt.Fprintf(w, "%-12s %-28s %s\n", e.Record.FindingID, e.Record.Status.DisplayName(), e.Record.Finding.Title)
			case aiqueue.EventBatchComplete:
				return nil
			}
		case <-ticker.C:
			s := orch.Stats()
			if s.Total > 0 && s.Finished() == s.Total {
				return nil
			}
		}
	}
}

func attemptLogging(l logrus.FieldLogger) aiqueue.Middleware {
	return func(next aiqueue.GenerateFunc) aiqueue.GenerateFunc {
		return func(ctx context.Context, prompt string) (string, error) {
			start := time.Now()
			text, err := next(ctx, prompt)
			entry := l.WithField("dur", time.Since(start).Round(time.Millisecond))
			if at, ok := aiqueue.AttemptFrom(ctx); ok {
				entry = entry.WithFields(logrus.Fields{
					"id":      at.RecordID,
					"finding": at.FindingID,
					"attempt": at.Number,
					"retries": at.RetryCount,
				})
			}
			if err != nil {
				entry.WithField("kind", inference.KindOf(err).String()).WithError(err).Warn("generate failed")
			} else {
				entry.WithField("response_tokens", inference.EstimateTokens(text)).Debug("generate ok")
			}
			return text, err
		}
	}
}

func writeReports(dir string, views []aiqueue.RecordView) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	for _, v := range views {
		if v.Status != aiqueue.StatusCompleted {
			continue
		}
		name := filepath.Join(dir, safeName(v.FindingID)+".md")
		if err := os.WriteFile(name, []byte(v.Response+"\n"), 0o644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	return nil
}

func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}

func printSummary(w io.Writer, s aiqueue.Stats, views []aiqueue.RecordView, jsonOut bool) error {
	if jsonOut {
		data, err := (&aiqueue.JSONEncoder{}).Encode(views)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	for _, v := range views {
		line := fmt.Sprintf("%s\t%s\t%s", v.FindingID, v.Status, v.Duration().Round(time.Millisecond))
		if v.Error != "" {
			line += "\t" + v.Error
		}
		fmt.Fprintln(w, line)
	}
	_, err := fmt.Fprintf(w, "total=%d completed=%d failed=%d timeout=%d rate_limited=%d cancelled=%d\n",
		s.Total, s.Completed, s.Failed, s.Timeout, s.RateLimited, s.Cancelled)
	return err
}
