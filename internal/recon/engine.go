// Package recon links transaction pages to date-keyed day pages.
//
// For a page event belonging to the transactions database, the engine
// extracts the transaction date, finds or creates the day page for that date,
// and replaces the transaction's day relation with a reference to it. Every
// step is safe to repeat: upstream redelivery of the same event converges on
// the same day page.
package recon

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/finhooks/ledgerlink/internal/log"
	"github.com/finhooks/ledgerlink/internal/notion"
)

// Gateway is the subset of the Notion client the engine needs.
type Gateway interface {
	GetDatabase(ctx context.Context, databaseID string) (*notion.Database, error)
	QueryDatabase(ctx context.Context, databaseID string, filter map[string]any) ([]notion.Page, error)
	CreatePage(ctx context.Context, databaseID string, properties map[string]any) (string, error)
	UpdatePage(ctx context.Context, pageID string, properties map[string]any) error
}

// Config holds the workspace schema the engine operates against. All values
// have defaults in the config package; they are configurable because the
// upstream schema is user-defined.
type Config struct {
	// DayDatabaseID is the database holding one page per calendar day.
	DayDatabaseID string

	// TransactionMarker selects the transactions database by title
	// (case-insensitive substring).
	TransactionMarker string

	// DateMarker selects the transaction date property by name
	// (case-insensitive substring). Properties of declared type "date"
	// match regardless of name.
	DateMarker string

	// DateProperty is the date property name on day pages.
	DateProperty string

	// DayRelationProperty is the relation property on transaction pages.
	DayRelationProperty string

	// DayTitleProperty is the title property name on day pages.
	DayTitleProperty string
}

// Engine performs the find-or-create-and-link reconciliation.
type Engine struct {
	gateway Gateway
	cfg     Config
	locks   *dateLocks
	logger  *slog.Logger
}

// New creates a reconciliation engine.
func New(gateway Gateway, cfg Config) *Engine {
	return &Engine{
		gateway: gateway,
		cfg:     cfg,
		locks:   newDateLocks(),
		logger:  log.WithComponent("recon"),
	}
}

// Reconcile processes one page event. Pages outside the transactions
// database, and transactions without a date, are skipped silently (nil).
// Failures are returned as *StepError; all of them are recoverable, since
// the page itself was already fetched by the caller.
func (e *Engine) Reconcile(ctx context.Context, page *notion.Page, eventType string) error {
	if !isTransactionPage(page) {
		e.logger.Debug("page has no database parent, skipping", "page_id", page.ID)
		return nil
	}

	database, err := e.gateway.GetDatabase(ctx, page.Parent.DatabaseID)
	if err != nil {
		return recoverable("parent_lookup", err)
	}

	title := database.PlainTitle()
	if !e.isTransactionDatabase(title) {
		e.logger.Debug("parent database is not the transactions database, skipping",
			"page_id", page.ID,
			"database_title", title,
		)
		return nil
	}

	e.logger.Info("processing transaction page",
		"page_id", page.ID,
		"event_type", eventType,
		"database_id", page.Parent.DatabaseID,
		"database_title", title,
	)

	dateProperty, date := e.extractDate(page)
	if date == "" {
		// Data-quality gap in the workspace, not a system fault.
		e.logger.Warn("no date found in transaction", "page_id", page.ID)
		return nil
	}

	e.logger.Info("transaction date extracted",
		"page_id", page.ID,
		"date_property", dateProperty,
		"date", date,
	)

	release := e.locks.acquire(date)
	defer release()

	dayID, err := e.resolveDay(ctx, date)
	if err != nil {
		return err
	}

	// Replaces any prior relation value.
	err = e.gateway.UpdatePage(ctx, page.ID, map[string]any{
		e.cfg.DayRelationProperty: notion.RelationProperty(dayID),
	})
	if err != nil {
		return recoverable("link", err)
	}

	e.logger.Info("transaction assigned to day",
		"page_id", page.ID,
		"day_id", dayID,
		"date", date,
	)
	return nil
}

// isTransactionPage reports whether the page lives in a database.
func isTransactionPage(page *notion.Page) bool {
	return page.Parent.Type == notion.ParentTypeDatabase && page.Parent.DatabaseID != ""
}

func (e *Engine) isTransactionDatabase(title string) bool {
	return strings.Contains(strings.ToLower(title), strings.ToLower(e.cfg.TransactionMarker))
}

// extractDate scans the page's properties in stored order and returns the
// name and start value of the first date-like property. Fallback order:
// name-substring match against the date marker, else declared type "date",
// checked per property so the first match in either sense wins.
func (e *Engine) extractDate(page *notion.Page) (string, string) {
	marker := strings.ToLower(e.cfg.DateMarker)
	for _, name := range page.Properties.Names() {
		prop, _ := page.Properties.Get(name)
		if strings.Contains(strings.ToLower(name), marker) || prop.Type == "date" {
			if prop.Date == nil {
				return name, ""
			}
			return name, prop.Date.Start
		}
	}
	return "", ""
}

// resolveDay finds the day page for date, creating it if absent. Callers must
// hold the per-date lock.
func (e *Engine) resolveDay(ctx context.Context, date string) (string, error) {
	filter := notion.DateEqualsFilter(e.cfg.DateProperty, date)
	existing, err := e.gateway.QueryDatabase(ctx, e.cfg.DayDatabaseID, filter)
	if err != nil {
		// A failed find must not fall through to create: that would
		// manufacture duplicate day pages.
		return "", recoverable("find_day", err)
	}

	if len(existing) > 0 {
		dayID := existing[0].ID
		e.logger.Info("found existing day", "day_id", dayID, "date", date)
		return dayID, nil
	}

	dayID, err := e.gateway.CreatePage(ctx, e.cfg.DayDatabaseID, map[string]any{
		e.cfg.DateProperty:     notion.DateProperty(date),
		e.cfg.DayTitleProperty: notion.TitleProperty(fmt.Sprintf("Día %s", date)),
	})
	if err != nil {
		return "", recoverable("create_day", err)
	}

	e.logger.Info("created new day", "day_id", dayID, "date", date)
	return dayID, nil
}
