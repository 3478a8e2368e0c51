package reconcile

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"driving-school-admin/internal/db"
	"driving-school-admin/internal/excel"
	"driving-school-admin/internal/logger"
	"driving-school-admin/internal/metrics"
	"driving-school-admin/internal/model"
	"driving-school-admin/internal/review"
	"driving-school-admin/pkg/errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultHistoryLimit = 5

	reasonStudentNotFound = "student not found"
)

type Request struct {
	Workbook io.Reader
	// Source names the upload, usually the original file name.
	Source  string
	Sandbox bool
}

type Options struct {
	HistoryLimit int
	Metrics      *metrics.Metrics
}

// Importer owns import sessions from the first row read until an operator
// closes them.
type Importer struct {
	students     db.StudentStore
	sessions     db.SessionLog
	review       review.Store
	metrics      *metrics.Metrics
	historyLimit int
	now          func() time.Time
	log          zerolog.Logger

	// mu serializes changes to open sessions within this process.
	mu sync.Mutex
}

func NewImporter(students db.StudentStore, sessions db.SessionLog, reviewStore review.Store, opts Options) *Importer {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	return &Importer{
		students:     students,
		sessions:     sessions,
		review:       reviewStore,
		metrics:      opts.Metrics,
		historyLimit: opts.HistoryLimit,
		now:          time.Now,
		log:          logger.Component("importer"),
	}
}

// Run imports one workbook. Only an unreadable workbook or a cancelled
// context fail the run; every row problem ends up in the session. When the
// context is cancelled the partial session is still returned and logged.
func (i *Importer) Run(ctx context.Context, req Request) (*model.Session, error) {
	started := i.now()

	wb, err := excel.Open(req.Workbook)
	if err != nil {
		i.metrics.ObserveRun(&model.Session{Sandbox: req.Sandbox}, err, i.now().Sub(started))
		return nil, err
	}
	defer wb.Close()

	session := &model.Session{
		ID:      uuid.NewString(),
		RunAt:   started,
		Sandbox: req.Sandbox,
		Source:  req.Source,
	}
	log := i.log.With().Str("session_id", session.ID).Bool("sandbox", req.Sandbox).Logger()
	log.Info().Str("source", req.Source).Msg("Import started")

	store := i.students
	if req.Sandbox {
		store = db.NewOverlay(store)
	}
	p := i.newPass(store, session, log)

	var runErr error
	for _, category := range model.ProcessingOrder {
		if runErr = p.importCategory(ctx, wb, category); runErr != nil {
			break
		}
	}

	if len(session.Conflicts) > 0 {
		if err := i.review.Create(ctx, session); err != nil {
			log.Error().Err(err).Int("conflicts", len(session.Conflicts)).Msg("Failed to open session for review")
		}
	}
	i.persist(context.WithoutCancel(ctx), session, log)
	i.metrics.ObserveRun(session, runErr, i.now().Sub(started))

	if runErr != nil {
		log.Warn().Err(runErr).Str("counts", session.Counts().String()).Msg("Import interrupted")
		return session, runErr
	}
	log.Info().Str("counts", session.Counts().String()).Msg("Import finished")
	return session, nil
}

// ForceApply replays a conflict row through the engine without checking the
// birth date again. The conflict is claimed before anything is written, so a
// second call for the same conflict gets ErrConflictNotFound. Sessions the
// review store no longer holds are served from their audit-log copy while
// they are not closed.
func (i *Importer) ForceApply(ctx context.Context, sessionID, conflictID string) (*model.Session, *model.Outcome, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	session, logged, err := i.claimableSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	log := i.log.With().
		Str("session_id", sessionID).
		Str("conflict_id", conflictID).
		Logger()

	store := i.students
	if session.Sandbox {
		if store, err = i.sandboxStore(ctx, session); err != nil {
			return nil, nil, fmt.Errorf("rebuild sandbox writes: %w", err)
		}
	}

	var item model.ConflictItem
	if logged {
		var ok bool
		if item, ok = session.TakeConflict(conflictID); !ok {
			return nil, nil, errors.ErrConflictNotFound
		}
	} else {
		if item, err = i.review.ClaimConflict(ctx, sessionID, conflictID); err != nil {
			return nil, nil, err
		}
		session.TakeConflict(conflictID)
	}
	log = log.With().Str("student_id", item.Row.Identifier).Logger()

	p := i.newPass(store, session, log)
	outcome, err := p.forceApply(ctx, item)
	if err != nil {
		return nil, nil, err
	}
	i.metrics.IncrementForcedApplies()

	if !logged {
		if err := i.review.Update(ctx, session); err != nil {
			log.Error().Err(err).Msg("Failed to update session under review")
		}
	}
	i.persist(ctx, session, log)

	log.Info().Bool("emitted", outcome != nil).Bool("from_audit_log", logged).Msg("Conflict force-applied")
	return session, outcome, nil
}

// Discard closes a session. Conflicts still pending are dropped and can no
// longer be applied.
func (i *Importer) Discard(ctx context.Context, sessionID string) (*model.Session, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	session, logged, err := i.claimableSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	dropped := len(session.Conflicts)
	closed := i.now()
	session.ClosedAt = &closed
	session.Conflicts = nil

	log := i.log.With().Str("session_id", sessionID).Logger()
	if !logged {
		if err := i.review.Delete(ctx, sessionID); err != nil {
			log.Error().Err(err).Msg("Failed to remove session from review")
		}
	}
	i.persist(ctx, session, log)

	log.Info().Int("dropped_conflicts", dropped).Msg("Session discarded")
	return session, nil
}

// Session returns an open session, or its logged copy once it has left
// review.
func (i *Importer) Session(ctx context.Context, id string) (*model.Session, error) {
	session, err := i.review.Get(ctx, id)
	if err == nil {
		return session, nil
	}
	if !stderrors.Is(err, errors.ErrSessionNotFound) {
		return nil, err
	}
	return i.sessions.Get(ctx, id)
}

// History lists the retained sessions, newest first.
func (i *Importer) History(ctx context.Context) ([]model.Session, error) {
	return i.sessions.Recent(ctx, i.historyLimit)
}

func (i *Importer) openSession(ctx context.Context, id string) (*model.Session, error) {
	session, err := i.review.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.IsClosed() {
		return nil, errors.ErrSessionClosed
	}
	return session, nil
}

// claimableSession finds a session whose conflicts may still be applied. The
// boolean reports that it came from the audit log because the review store
// does not hold it, as happens with the in-process store across CLI calls.
func (i *Importer) claimableSession(ctx context.Context, id string) (*model.Session, bool, error) {
	session, err := i.openSession(ctx, id)
	if err == nil {
		return session, false, nil
	}
	if !stderrors.Is(err, errors.ErrSessionNotFound) {
		return nil, false, err
	}

	logged, err := i.sessions.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if logged.IsClosed() {
		return nil, false, errors.ErrSessionClosed
	}
	return logged, true, nil
}

// sandboxStore rebuilds the writes a sandbox session has made so far in a
// fresh overlay, in the order the session recorded them.
func (i *Importer) sandboxStore(ctx context.Context, session *model.Session) (db.StudentStore, error) {
	overlay := db.NewOverlay(i.students)
	engine := NewEngine(overlay)
	engine.now = i.now

	written := make([]model.Outcome, 0, len(session.Created)+len(session.Updated))
	written = append(written, session.Created...)
	written = append(written, session.Updated...)
	sort.SliceStable(written, func(a, b int) bool { return written[a].Seq < written[b].Seq })

	for _, o := range written {
		student, err := overlay.FindByIdentifier(ctx, o.StudentID)
		if stderrors.Is(err, errors.ErrStudentNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		row := model.Row{
			Sheet:      o.Sheet,
			Number:     o.Row,
			Identifier: o.StudentID,
			Subject:    o.Subject,
			EventDate:  o.Date,
			Result:     model.ParseResult(o.Result),
			Location:   o.Location,
		}
		if _, err := engine.Apply(ctx, o.Category, row, student); err != nil {
			return nil, err
		}
	}

	for _, id := range session.CaseFiled {
		student, err := overlay.FindByIdentifier(ctx, id)
		if stderrors.Is(err, errors.ErrStudentNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if err := overlay.MarkCaseFiled(ctx, student.Key); err != nil {
			return nil, err
		}
	}
	return overlay, nil
}

// persist writes the session to the audit log and trims the log. Failures
// are logged; the rows are already written either way.
func (i *Importer) persist(ctx context.Context, session *model.Session, log zerolog.Logger) {
	if err := i.sessions.Save(ctx, session); err != nil {
		log.Error().Err(err).Msg("Failed to write session to audit log")
		return
	}
	removed, err := i.sessions.Trim(ctx, i.historyLimit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to trim audit log")
		return
	}
	if removed > 0 {
		log.Debug().Int64("removed", removed).Msg("Audit log trimmed")
	}
}

// pass applies rows to one session against one student store.
type pass struct {
	matcher *Matcher
	engine  *Engine
	session *model.Session
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func (i *Importer) newPass(store db.StudentStore, session *model.Session, log zerolog.Logger) *pass {
	engine := NewEngine(store)
	engine.now = i.now
	return &pass{
		matcher: NewMatcher(store),
		engine:  engine,
		session: session,
		metrics: i.metrics,
		log:     log,
	}
}

func (p *pass) importCategory(ctx context.Context, wb *excel.Workbook, category model.Category) error {
	it, err := wb.Rows(category)
	if err != nil {
		sheet, _ := wb.Sheet(category)
		p.record(model.Outcome{Status: model.OutcomeError, Category: category, Sheet: sheet, Reason: err.Error()})
		return nil
	}
	defer it.Close()

	for it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.importRow(ctx, category, it.Row()); err != nil {
			return err
		}
	}

	if err := it.Err(); err != nil {
		p.log.Error().Err(err).Str("sheet", it.Sheet()).Msg("Worksheet could not be read to the end")
		p.record(model.Outcome{Status: model.OutcomeError, Category: category, Sheet: it.Sheet(), Reason: err.Error()})
	}
	return nil
}

func (p *pass) importRow(ctx context.Context, category model.Category, row model.Row) error {
	match, err := p.matcher.Match(ctx, row.Identifier, row.BirthDate)
	if err != nil {
		return p.storeFailure(ctx, category, row, err, false)
	}

	switch match.Status {
	case NotFound:
		o := rowOutcome(category, row)
		o.Reason = match.Reason
		o.Status = model.OutcomeError
		if category == model.CategoryCaseFiled {
			o.Status = model.OutcomeSkipped
		}
		p.record(o)
		return nil

	case VerificationFailed:
		p.session.Conflicts = append(p.session.Conflicts, model.ConflictItem{
			ID:              uuid.NewString(),
			Category:        category,
			Row:             row,
			Reason:          match.Reason,
			RowBirthDate:    match.RowBirthDate,
			StoredBirthDate: match.StoredBirthDate,
			StudentKey:      match.Student.Key,
			StudentName:     match.Student.Name,
		})
		p.metrics.ObserveOutcome(category, model.OutcomeConflict)
		p.log.Debug().
			Str("sheet", row.Sheet).
			Int("row", row.Number).
			Str("student_id", row.Identifier).
			Str("reason", match.Reason).
			Msg("Row held for review")
		return nil
	}

	outcome, err := p.engine.Apply(ctx, category, row, match.Student)
	if err != nil {
		return p.storeFailure(ctx, category, row, err, false)
	}
	if outcome != nil {
		p.record(*outcome)
	}
	return nil
}

func (p *pass) forceApply(ctx context.Context, item model.ConflictItem) (*model.Outcome, error) {
	student, err := p.engine.store.Get(ctx, item.StudentKey)
	if stderrors.Is(err, errors.ErrStudentNotFound) {
		o := rowOutcome(item.Category, item.Row)
		o.Status = model.OutcomeError
		o.Reason = reasonStudentNotFound
		o.Forced = true
		p.record(o)
		return &o, nil
	}
	if err != nil {
		if err := p.storeFailure(ctx, item.Category, item.Row, err, true); err != nil {
			return nil, err
		}
		return &p.session.Errors[len(p.session.Errors)-1], nil
	}

	outcome, err := p.engine.Apply(ctx, item.Category, item.Row, student)
	if err != nil {
		if err := p.storeFailure(ctx, item.Category, item.Row, err, true); err != nil {
			return nil, err
		}
		return &p.session.Errors[len(p.session.Errors)-1], nil
	}
	if outcome == nil {
		return nil, nil
	}
	outcome.Forced = true
	p.record(*outcome)
	return outcome, nil
}

// storeFailure turns a store error into an error outcome. A cancelled
// context is returned instead so the run stops.
func (p *pass) storeFailure(ctx context.Context, category model.Category, row model.Row, err error, forced bool) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	p.log.Error().
		Err(err).
		Str("sheet", row.Sheet).
		Int("row", row.Number).
		Str("student_id", row.Identifier).
		Msg("Student store failed")

	o := rowOutcome(category, row)
	o.Status = model.OutcomeError
	o.Reason = fmt.Sprintf("store error: %v", err)
	o.Forced = forced
	p.record(o)
	return nil
}

func (p *pass) record(o model.Outcome) {
	p.session.Record(o)
	p.metrics.ObserveOutcome(o.Category, o.Status)
	p.log.Debug().
		Str("category", string(o.Category)).
		Str("status", string(o.Status)).
		Int("row", o.Row).
		Str("student_id", o.StudentID).
		Str("reason", o.Reason).
		Msg("Row processed")
}

func rowOutcome(category model.Category, row model.Row) model.Outcome {
	o := model.Outcome{
		Category:  category,
		Sheet:     row.Sheet,
		Row:       row.Number,
		StudentID: row.Identifier,
		Subject:   row.Subject,
		Date:      row.EventDate,
		Location:  row.Location,
	}
	if category != model.CategoryCaseFiled {
		o.Result = row.Result.String()
	}
	return o
}
