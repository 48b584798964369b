package script

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/sourcegraph/conc/pool"
)

// DiffWorker consumes turn-update events, renders an HTML diff of the new
// text against its parent revision, and reports the result as a
// script.turn.diff_reported event. Delivery is best effort: a failed report
// is logged and the worker moves on.
type DiffWorker struct {
	store       GraphStore
	bus         *StreamBus
	notifier    Notifier
	concurrency int
	logger      zerolog.Logger
}

// NewDiffWorker wires a worker to the bus it consumes from and the notifier
// it reports through.
func NewDiffWorker(store GraphStore, bus *StreamBus, notifier Notifier, concurrency int, logger zerolog.Logger) *DiffWorker {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &DiffWorker{
		store:       store,
		bus:         bus,
		notifier:    notifier,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Run subscribes to turn updates and processes them until the context is
// cancelled or the bus closes. It blocks; run it in its own goroutine.
func (w *DiffWorker) Run(ctx context.Context) error {
	events := w.bus.Subscribe(EventTurnUpdated)
	workers := pool.New().WithMaxGoroutines(w.concurrency)

	for {
		select {
		case <-ctx.Done():
			workers.Wait()
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				workers.Wait()
				return nil
			}
			workers.Go(func() {
				if err := w.handle(ctx, event); err != nil {
					w.logger.Error().Err(err).Str("event", event.Name).Msg("diff report failed")
				}
			})
		}
	}
}

func (w *DiffWorker) handle(ctx context.Context, event Event) error {
	updated, ok := event.Payload.(TurnUpdated)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Name)
	}

	parentText, err := w.parentText(ctx, updated.ParentID)
	if err != nil {
		return err
	}

	report := DiffReported{
		ID:        updated.ID,
		ParentID:  updated.ParentID,
		PersonaID: updated.PersonaID,
		DiffHTML:  RenderDiffHTML(parentText, updated.Text),
		Grade:     GradeChange(parentText, updated.Text),
	}
	return w.notifier.Publish(ctx, Event{Name: EventDiffReported, Payload: report})
}

// parentText loads the parent revision's text. A missing parent diffs
// against the empty string rather than failing the report.
func (w *DiffWorker) parentText(ctx context.Context, parentID TurnID) (string, error) {
	if parentID.IsZero() {
		return "", nil
	}
	var text string
	err := w.store.View(ctx, func(tx ReadTx) error {
		parent, err := tx.GetTurn(parentID)
		if err != nil {
			return err
		}
		text = parent.Text
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

// RenderDiffHTML renders a character diff of old against new as HTML.
// Insertions are wrapped in spans classed diff_add and deletions in spans
// classed diff_del, with all text HTML-escaped.
func RenderDiffHTML(oldText, newText string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(oldText, newText, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var sb strings.Builder
	for _, d := range diffs {
		escaped := html.EscapeString(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			sb.WriteString(`<span class="diff_add">`)
			sb.WriteString(escaped)
			sb.WriteString(`</span>`)
		case diffmatchpatch.DiffDelete:
			sb.WriteString(`<span class="diff_del">`)
			sb.WriteString(escaped)
			sb.WriteString(`</span>`)
		default:
			sb.WriteString(escaped)
		}
	}
	return sb.String()
}

// GradeChange buckets how much of the text changed between revisions.
// Identical texts grade "none", light edits "minor", substantial rewrites
// "major".
func GradeChange(oldText, newText string) string {
	if oldText == newText {
		return "none"
	}
	longest := utf8.RuneCountInString(oldText)
	if n := utf8.RuneCountInString(newText); n > longest {
		longest = n
	}
	if longest == 0 {
		return "none"
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(oldText, newText, false)
	changed := dmp.DiffLevenshtein(diffs)

	switch ratio := float64(changed) / float64(longest); {
	case ratio <= 0.25:
		return "minor"
	case ratio <= 0.6:
		return "moderate"
	default:
		return "major"
	}
}
