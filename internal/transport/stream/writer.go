// Package stream writes unbounded result sequences to a response channel.
package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/kailas-cloud/searchstream/internal/domain"
	"github.com/kailas-cloud/searchstream/internal/logger"
	"github.com/kailas-cloud/searchstream/internal/metrics"
)

// AbortMessage is appended to a stream that fails after it started.
const AbortMessage = "\n\nError encountered when streaming data. Please try again later.\n"

const (
	defaultFlushEvery = 5000
	defaultLogEvery   = 10000
)

// Sequence yields entities until io.EOF. Close releases whatever backs it.
type Sequence[T any] interface {
	Next(ctx context.Context) (T, error)
	Close() error
}

// Channel is the destination of a stream.
type Channel interface {
	io.Writer
	Flush() error
	Close() error
}

// Encoder serializes one entity.
type Encoder[T any] func(w io.Writer, v T) error

// Options configures one Write call.
type Options struct {
	Gzip       bool
	Separator  string                // written between entities, never before the first
	Before     func(io.Writer) error // prologue, runs even for empty streams
	After      func(io.Writer) error // epilogue
	FlushEvery int
	LogEvery   int
	Format     string // metrics label
	Logger     *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.FlushEvery <= 0 {
		o.FlushEvery = defaultFlushEvery
	}
	if o.LogEvery <= 0 {
		o.LogEvery = defaultLogEvery
	}
	if o.Format == "" {
		o.Format = "unknown"
	}
	return o
}

// Write drains seq into out and returns how many entities were written.
// The sequence and the channel are closed on every path. When anything fails mid-stream
// AbortMessage is appended and a *domain.StreamAbortedError is returned.
func Write[T any](ctx context.Context, seq Sequence[T], out Channel, enc Encoder[T], opts Options) (written int, err error) {
	opts = opts.withDefaults()
	log := logger.FromContextOr(ctx, opts.Logger)

	var w io.Writer = out
	var gz *gzip.Writer
	if opts.Gzip {
		gz = gzip.NewWriter(out)
		w = gz
	}

	start := time.Now()
	defer func() {
		_ = seq.Close()
		if err != nil {
			_, _ = io.WriteString(w, AbortMessage)
			err = &domain.StreamAbortedError{Written: written, Cause: err}
			metrics.StreamAbortsTotal.WithLabelValues(opts.Format).Inc()
			log.Warn("stream aborted", zap.Int("entities", written), zap.Error(err))
		}
		if gz != nil {
			_ = gz.Close()
		}
		_ = out.Flush()
		_ = out.Close()
		metrics.StreamEntitiesTotal.WithLabelValues(opts.Format).Add(float64(written))
	}()

	if opts.Before != nil {
		if err := opts.Before(w); err != nil {
			return 0, err
		}
	}

	var buf bytes.Buffer
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		v, err := seq.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return written, err
		}

		buf.Reset()
		if err := enc(&buf, v); err != nil {
			return written, err
		}
		if written > 0 && opts.Separator != "" {
			if _, err := io.WriteString(w, opts.Separator); err != nil {
				return written, err
			}
		}
		if _, err := w.Write(buf.Bytes()); err != nil {
			return written, err
		}
		written++

		if written%opts.FlushEvery == 0 {
			if err := flush(gz, out); err != nil {
				return written, err
			}
		}
		if written%opts.LogEvery == 0 {
			log.Info("streaming progress",
				zap.Int("entities", written),
				zap.Float64("entities_per_sec", float64(written)/time.Since(start).Seconds()),
			)
		}
	}

	if opts.After != nil {
		if err := opts.After(w); err != nil {
			return written, err
		}
	}

	log.Debug("stream finished", zap.Int("entities", written), zap.Duration("elapsed", time.Since(start)))
	return written, nil
}

func flush(gz *gzip.Writer, out Channel) error {
	if gz != nil {
		if err := gz.Flush(); err != nil {
			return err
		}
	}
	return out.Flush()
}
