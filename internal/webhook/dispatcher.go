package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/finhooks/ledgerlink/internal/log"
	"github.com/finhooks/ledgerlink/internal/notion"
	"github.com/finhooks/ledgerlink/internal/recon"
)

// EntityGateway is the subset of the Notion client the dispatcher needs.
type EntityGateway interface {
	GetPage(ctx context.Context, pageID string) (*notion.Page, error)
	GetDatabase(ctx context.Context, databaseID string) (*notion.Database, error)
}

// Reconciler links a fetched page to its day page.
type Reconciler interface {
	Reconcile(ctx context.Context, page *notion.Page, eventType string) error
}

// Dispatcher routes validated events by entity type. It is side-effecting
// only: the HTTP response is a fixed acknowledgement regardless of outcome,
// unless dispatch returns an error.
type Dispatcher struct {
	gateway    EntityGateway
	reconciler Reconciler
	logger     *slog.Logger
}

// NewDispatcher creates an event dispatcher.
func NewDispatcher(gateway EntityGateway, reconciler Reconciler) *Dispatcher {
	return &Dispatcher{
		gateway:    gateway,
		reconciler: reconciler,
		logger:     log.WithComponent("dispatch"),
	}
}

// Dispatch handles one validated event. A returned error means the entity
// itself could not be fetched (transient infrastructure failure worth an
// upstream retry); reconciliation failures are logged and swallowed here.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) error {
	d.logger.Info("processing webhook event",
		"event_type", ev.EventType,
		"entity_type", ev.EntityType,
		"entity_id", ev.EntityID,
	)

	switch ev.EntityType {
	case EntityPage:
		return d.handlePage(ctx, ev)
	case EntityDatabase:
		return d.handleDatabase(ctx, ev)
	default:
		if ev.EventType == EventCommentCreated {
			d.logger.Info("comment created", "entity_id", ev.EntityID)
			return nil
		}
		// Unhandled combinations still acknowledge success; a failure
		// response would make the sender retry indefinitely.
		d.logger.Warn("unhandled entity/event type",
			"entity_type", ev.EntityType,
			"event_type", ev.EventType,
		)
		return nil
	}
}

func (d *Dispatcher) handlePage(ctx context.Context, ev Event) error {
	page, err := d.gateway.GetPage(ctx, ev.EntityID)
	if err != nil {
		return fmt.Errorf("process page webhook %s: %w", ev.EntityID, err)
	}

	d.logger.Info("page fetched",
		"page_id", page.ID,
		"event_type", ev.EventType,
		"last_edited_time", page.LastEditedTime,
		"property_count", page.Properties.Len(),
		"updated_properties", ev.UpdatedProperties,
	)

	if err := d.reconciler.Reconcile(ctx, page, ev.EventType); err != nil {
		var stepErr *recon.StepError
		if errors.As(err, &stepErr) && stepErr.Tier == recon.TierFatal {
			return err
		}
		d.logger.Error("reconciliation failed", "page_id", page.ID, "error", err)
		return nil
	}
	return nil
}

func (d *Dispatcher) handleDatabase(ctx context.Context, ev Event) error {
	database, err := d.gateway.GetDatabase(ctx, ev.EntityID)
	if err != nil {
		return fmt.Errorf("process database webhook %s: %w", ev.EntityID, err)
	}

	title := database.PlainTitle()
	if title == "" {
		title = "Untitled"
	}
	d.logger.Info("database updated",
		"database_id", database.ID,
		"event_type", ev.EventType,
		"title", title,
		"last_edited_time", database.LastEditedTime,
	)
	return nil
}
