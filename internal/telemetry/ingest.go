package telemetry

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	cberrors "crossbridge/internal/errors"
	"crossbridge/internal/impact"
	"crossbridge/internal/slogutil"
)

// Ingester matches hits and records the matched ones as impact facts
type Ingester struct {
	matcher *Matcher
	source  impact.Source
	logger  *slog.Logger
}

// NewIngester creates an ingester recording facts under source. A nil
// logger discards.
func NewIngester(matcher *Matcher, source impact.Source, logger *slog.Logger) (*Ingester, error) {
	if !source.Valid() {
		return nil, cberrors.NewValidationError("unknown fact source %q", source)
	}
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &Ingester{matcher: matcher, source: source, logger: logger}, nil
}

// Ingest validates every hit, then records one fact per matched hit with the
// confidence of its match tier. Ambiguous and unmatched hits are reported,
// not recorded. Nothing is recorded if any hit is invalid.
func (in *Ingester) Ingest(ctx context.Context, hits []Hit, idx *impact.Index) (*Report, error) {
	for i, h := range hits {
		if strings.TrimSpace(h.TestID) == "" {
			return nil, cberrors.NewValidationError("hit %d has no test_id", i)
		}
		if strings.TrimSpace(h.Function) == "" {
			return nil, cberrors.NewValidationError("hit %d (%s) has no function", i, h.TestID)
		}
	}

	report := &Report{
		ByQuality: make(map[string]int),
		Unmatched: []Rejected{},
		Ambiguous: []Rejected{},
	}
	matches := make([]Match, 0, len(hits))
	for _, h := range hits {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		report.Accepted++

		m := in.matcher.Match(h)
		matches = append(matches, m)
		report.ByQuality[string(m.Quality)]++

		switch {
		case m.Quality.Matched():
			if err := idx.Record(h.TestID, m.Element, in.source, m.Confidence, h.ObservedAt); err != nil {
				return nil, fmt.Errorf("record hit for %s: %w", h.TestID, err)
			}
			report.Recorded++
		case m.Quality == MatchAmbiguous:
			report.Ambiguous = append(report.Ambiguous, Rejected{Hit: h, Quality: m.Quality, Candidates: m.Candidates})
		default:
			report.Unmatched = append(report.Unmatched, Rejected{Hit: h, Quality: m.Quality})
		}
	}
	report.Quality = ComputeQuality(hits, matches)

	in.logger.Info("Ingested trace hits",
		"source", string(in.source),
		"accepted", report.Accepted,
		"recorded", report.Recorded,
		"ambiguous", len(report.Ambiguous),
		"unmatched", len(report.Unmatched),
		"level", string(report.Quality.Level),
	)
	for _, w := range report.Quality.Warnings {
		in.logger.Warn(w, "source", string(in.source))
	}
	return report, nil
}

// Producer adapts Ingest to impact.Collect. The report is written to *report
// when the producer finishes.
func (in *Ingester) Producer(hits []Hit, report **Report) impact.Producer {
	return func(ctx context.Context, idx *impact.Index) error {
		r, err := in.Ingest(ctx, hits, idx)
		if err != nil {
			return err
		}
		if report != nil {
			*report = r
		}
		return nil
	}
}

// ReadHits decodes hits from either a JSON array or JSON lines. location
// names the input in errors.
func ReadHits(r io.Reader, location string) ([]Hit, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err == io.EOF {
		return []Hit{}, nil
	}
	if err != nil {
		return nil, cberrors.NewDeserializationError(location, err)
	}

	if first == '[' {
		var hits []Hit
		if err := json.NewDecoder(br).Decode(&hits); err != nil {
			return nil, cberrors.NewDeserializationError(location, err)
		}
		if hits == nil {
			hits = []Hit{}
		}
		return hits, nil
	}

	hits := make([]Hit, 0)
	sc := bufio.NewScanner(br)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		var h Hit
		if err := json.Unmarshal(text, &h); err != nil {
			return nil, cberrors.NewDeserializationError(fmt.Sprintf("%s:%d", location, line), err)
		}
		hits = append(hits, h)
	}
	if err := sc.Err(); err != nil {
		return nil, cberrors.NewDeserializationError(location, err)
	}
	return hits, nil
}

// LoadHits reads a hits file
func LoadHits(path string) ([]Hit, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open hits: %w", err)
	}
	defer f.Close()
	return ReadHits(f, path)
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		if err := br.UnreadByte(); err != nil {
			return 0, err
		}
		return b, nil
	}
}
