package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/meridian/internal/intake"
	"github.com/rcliao/meridian/internal/logger"
	"github.com/rcliao/meridian/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Poll news feeds and store new events",
		Long: "Poll the configured RSS/Atom feeds once, or every --interval until interrupted. " +
			"With --file, read one feed document from disk (or - for stdin) instead.",
		Run: runIngest,
	}
	cmd.Flags().Bool("once", true, "Poll once and exit")
	cmd.Flags().Duration("interval", 0, "Poll repeatedly at this interval (overrides --once)")
	cmd.Flags().String("file", "", "Read a feed document from a file instead of the network")
	cmd.Flags().String("source", "", "Source name for --file")

	putCmd := &cobra.Command{
		Use:   "put",
		Short: "Store one payload",
		Long:  "Store one payload from flags, or a JSON payload (or array of payloads) piped via stdin.",
		Run:   runIngestPut,
	}
	putCmd.Flags().StringP("source", "s", "", "Source name")
	putCmd.Flags().String("headline", "", "Headline")
	putCmd.Flags().String("body", "", "Body text")
	putCmd.Flags().String("url", "", "Article URL")
	putCmd.Flags().String("published", "", "Publish time (RFC 3339)")

	cmd.AddCommand(putCmd)
	RootCmd.AddCommand(cmd)
}

func runIngest(cmd *cobra.Command, args []string) {
	interval, _ := cmd.Flags().GetDuration("interval")
	file, _ := cmd.Flags().GetString("file")
	source, _ := cmd.Flags().GetString("source")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if file != "" {
		if source == "" {
			exitErr("ingest", fmt.Errorf("--source is required with --file"))
		}
		data, err := readInput(file)
		if err != nil {
			exitErr("read feed", err)
		}
		payloads, err := newFetcher().Parse(bytes.NewReader(data), source)
		if err != nil {
			exitErr("ingest", err)
		}
		printJSON(ingestAll(cmd.Context(), s, payloads))
		return
	}

	if interval <= 0 {
		report, err := intakeOnce(cmd.Context(), s)
		if err != nil {
			exitErr("ingest", err)
		}
		printJSON(report)
		return
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		report, _ := intakeOnce(ctx, s)
		logger.Log.Infof("intake run: %s", report)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func runIngestPut(cmd *cobra.Command, args []string) {
	var payloads []intake.Payload
	headline, _ := cmd.Flags().GetString("headline")
	if headline != "" {
		p := intake.Payload{Headline: headline}
		p.Source, _ = cmd.Flags().GetString("source")
		p.Body, _ = cmd.Flags().GetString("body")
		p.URL, _ = cmd.Flags().GetString("url")
		if published, _ := cmd.Flags().GetString("published"); published != "" {
			t, err := time.Parse(time.RFC3339, published)
			if err != nil {
				exitErr("parse --published", err)
			}
			p.PublishedAt = &t
		}
		payloads = append(payloads, p)
	} else {
		data, err := readInput("")
		if err != nil {
			exitErr("read stdin", err)
		}
		payloads, err = decodePayloads(data)
		if err != nil {
			exitErr("parse json", err)
		}
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if len(payloads) == 1 {
		e, created, err := intake.NewNormalizer(s, cfg.Intake.Bucket).Ingest(cmd.Context(), payloads[0])
		if err != nil {
			exitErr("ingest", err)
		}
		printJSON(struct {
			Created bool         `json:"created"`
			Event   *model.Event `json:"event"`
		}{created, e})
		return
	}
	printJSON(ingestAll(cmd.Context(), s, payloads))
}

func ingestAll(ctx context.Context, s intake.EventStore, payloads []intake.Payload) model.RunReport {
	return intake.NewNormalizer(s, cfg.Intake.Bucket).IngestBatch(ctx, payloads)
}

// decodePayloads accepts one JSON payload or an array of them.
func decodePayloads(data []byte) ([]intake.Payload, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, fmt.Errorf("payload is required (flags or stdin)")
	}
	if strings.HasPrefix(trimmed, "[") {
		var out []intake.Payload
		if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	var p intake.Payload
	if err := json.Unmarshal([]byte(trimmed), &p); err != nil {
		return nil, err
	}
	return []intake.Payload{p}, nil
}
