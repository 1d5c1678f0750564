// Package poller implements the probe cycle against the watched URL and the
// supervisor that keeps it running.
//
// One cycle is one HEAD request: extract the change token, compare it with
// the persisted record, persist and publish on change. Classified failures
// (resource down, timeout, malformed response) become status + events and
// never stop the loop; anything unclassified escalates to the supervisor,
// which records an internal failure and restarts the cycle after a backoff.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jpalmerr/etagwatch/internal/state"
	"github.com/jpalmerr/etagwatch/internal/status"
)

// Store is the durable record the poller compares against and updates.
// Satisfied by [state.FileStore].
type Store interface {
	Load() (state.Record, error)
	Save(state.Record) error
}

// Publisher receives change and failure events for fan-out.
type Publisher interface {
	Publish(status.Event)
}

// Poller executes probe cycles for a single watched URL.
//
// RunCycle is not safe for concurrent use; the supervisor is its only
// caller and runs cycles strictly one at a time.
type Poller struct {
	client  *Client
	url     string
	timeout time.Duration

	store Store
	board *status.Board
	pub   Publisher

	suppressInitial bool
	logger          *slog.Logger
	now             func() time.Time // test hook
}

// Config carries the poller's construction parameters.
type Config struct {
	// URL is the watched resource.
	URL string

	// Timeout bounds each probe request.
	Timeout time.Duration

	// SuppressInitial, when true, skips the change event for the very first
	// observed token (the one persisted with no prior record). The token is
	// persisted either way.
	SuppressInitial bool
}

// New creates a Poller. The board is read at cycle start for the last known
// token and is otherwise written only through the supervisor.
func New(cfg Config, store Store, board *status.Board, pub Publisher, logger *slog.Logger) *Poller {
	return &Poller{
		client:          NewClient(),
		url:             cfg.URL,
		timeout:         cfg.Timeout,
		store:           store,
		board:           board,
		pub:             pub,
		suppressInitial: cfg.SuppressInitial,
		logger:          logger.With("component", "poller"),
		now:             time.Now,
	}
}

// Close releases the probe client's idle connections.
func (p *Poller) Close() {
	p.client.Close()
}

// RunCycle performs one probe cycle and returns the snapshot to publish.
//
// A non-nil error means the fault could not be classified; the caller (the
// supervisor) owns the internal-failure handling. Classified failures are
// absorbed here: they are logged, published as failure events, and folded
// into the returned snapshot.
func (p *Poller) RunCycle(ctx context.Context) (status.Snapshot, error) {
	prev := p.board.Snapshot()

	res := p.client.Probe(ctx, p.url, p.timeout)
	if res.Err != nil {
		class, ok := classifyProbeError(res.Err)
		if !ok {
			return status.Snapshot{}, fmt.Errorf("probe %s: %w", p.url, res.Err)
		}
		p.logger.Warn("probe failed",
			"class", class.String(),
			"url", p.url,
			"error", res.Err.Error(),
		)
		return p.fail(prev, class), nil
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		p.logger.Warn("probe returned error status", "status_code", res.StatusCode, "url", p.url)
		return p.fail(prev, status.ClassTransient), nil
	}

	token := normalizeToken(res.ETag)
	if token == "" {
		p.logger.Warn("probe response missing change-token header", "url", p.url)
		return p.fail(prev, status.ClassTransient), nil
	}

	cur, err := p.store.Load()
	switch {
	case err == nil:
		if cur.Token == token {
			// the common case: nothing changed, nothing written
			return status.Snapshot{Token: cur.Token, ObservedAt: cur.ObservedAt}, nil
		}
		return p.observe(token, false)

	case errors.Is(err, state.ErrNotFound):
		return p.observe(token, true)

	default:
		// corrupt record or I/O failure: not the poller's to absorb
		return status.Snapshot{}, err
	}
}

// observe persists a newly seen token and publishes the change event.
func (p *Poller) observe(token string, first bool) (status.Snapshot, error) {
	observed := p.now()
	rec := state.Record{Token: token, ObservedAt: observed}
	if err := p.store.Save(rec); err != nil {
		return status.Snapshot{}, err
	}

	if first && p.suppressInitial {
		p.logger.Info("initial token persisted, change notification suppressed", "token", token)
	} else {
		p.pub.Publish(status.Event{
			Kind:       status.EventChange,
			Token:      token,
			ObservedAt: observed,
		})
		p.logger.Info("change token updated", "token", token, "first_observation", first)
	}

	return status.Snapshot{Token: token, ObservedAt: observed}, nil
}

// fail publishes a failure event and folds the class into the snapshot,
// keeping the last known token visible to readers.
func (p *Poller) fail(prev status.Snapshot, class status.Class) status.Snapshot {
	p.pub.Publish(status.Event{
		Kind:       status.EventFailure,
		Token:      prev.Token,
		ObservedAt: prev.ObservedAt,
		Class:      class,
	})
	return status.Snapshot{Token: prev.Token, ObservedAt: prev.ObservedAt, Class: class}
}

// normalizeToken strips the surrounding quotes an ETag value carries on the
// wire. Weak validator prefixes are preserved: a weak and a strong form of
// the same value are treated as different tokens.
func normalizeToken(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, `"`)
	raw = strings.TrimSuffix(raw, `"`)
	return raw
}
