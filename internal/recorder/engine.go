// Package recorder owns the recording lifecycle: it attaches to the caption
// region of the current meeting page, reconciles caption mutations into the
// active session and snapshots that session into the store.
package recorder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/filipezaidan/google-meet-captions/internal/caption"
	"github.com/filipezaidan/google-meet-captions/internal/export"
	"github.com/filipezaidan/google-meet-captions/internal/metrics"
	"github.com/filipezaidan/google-meet-captions/internal/page"
)

// DefaultBackupInterval is how often the active session is snapshotted.
const DefaultBackupInterval = 5 * time.Second

// State is the recorder's lifecycle state.
type State int

const (
	Idle State = iota
	Recording
)

func (s State) String() string {
	if s == Recording {
		return "recording"
	}
	return "idle"
}

// Config tunes the engine.
type Config struct {
	Debounce       time.Duration
	BackupInterval time.Duration
	ExportDir      string
	Selectors      []page.Selector
}

// DefaultConfig returns the stock timings and selector table.
func DefaultConfig() Config {
	return Config{
		Debounce:       caption.DefaultDebounce,
		BackupInterval: DefaultBackupInterval,
		ExportDir:      ".",
		Selectors:      page.DefaultSelectors,
	}
}

// StartResult describes a successful start.
type StartResult struct {
	SessionID        string
	AlreadyRecording bool
}

// StopResult describes a stop. SaveErr is set when the final snapshot did
// not land; the recorder is idle regardless.
type StopResult struct {
	SessionID   string
	RecordCount int
	WasIdle     bool
	SaveErr     error
}

// Status is a point-in-time view of the recorder.
type Status struct {
	Recording bool
	Session   *caption.Summary
}

// Event is published to subscribers as recording progresses.
type Event struct {
	Kind      string // "caption" or "status"
	SessionID string
	Record    *caption.Record
	Recording bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// Engine is the capture context for one daemon. All session and tracker
// mutation happens under mu; start and stop are serialised by opMu.
type Engine struct {
	cfg    Config
	source page.Source
	open   OpenFunc
	now    func() time.Time
	log    *slog.Logger

	opMu sync.Mutex

	mu         sync.Mutex
	state      State
	session    *caption.Session
	tracker    *caption.Tracker
	region     page.Region
	gen        uint64
	debouncer  *caption.Debouncer
	unobserve  func()
	stopBackup chan struct{}
	lastMillis int64
	snapSeq    uint64

	storeMu sync.Mutex
	store   Store

	saveMu   sync.Mutex
	savedSeq uint64

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// New returns an idle engine reading pages from source and persisting
// through the store returned by open.
func New(source page.Source, open OpenFunc, opts ...Option) *Engine {
	e := &Engine{
		cfg:     DefaultConfig(),
		source:  source,
		open:    open,
		now:     time.Now,
		log:     slog.Default(),
		tracker: caption.NewTracker(),
		subs:    make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cfg.BackupInterval <= 0 {
		e.cfg.BackupInterval = DefaultBackupInterval
	}
	if len(e.cfg.Selectors) == 0 {
		e.cfg.Selectors = page.DefaultSelectors
	}
	return e
}

var meetingCodeRe = regexp.MustCompile(`meet\.google\.com/([a-z-]+)`)

// MeetingCode extracts the meeting identifier from a meeting URL, or
// "unknown".
func MeetingCode(url string) string {
	if m := meetingCodeRe.FindStringSubmatch(url); m != nil {
		return m[1]
	}
	return "unknown"
}

// SetSelectors swaps the caption region lookup table. It applies to the
// next start.
func (e *Engine) SetSelectors(sels []page.Selector) {
	if len(sels) == 0 {
		return
	}
	e.mu.Lock()
	e.cfg.Selectors = sels
	e.mu.Unlock()
	e.log.Info("Caption selectors updated", "count", len(sels))
}

// Start begins recording into a new session. Calling it while recording
// reports the existing session.
func (e *Engine) Start(ctx context.Context) (StartResult, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	e.mu.Lock()
	if e.state == Recording {
		id := e.session.SessionID
		e.mu.Unlock()
		e.log.Debug("Already recording", "sessionId", id)
		return StartResult{SessionID: id, AlreadyRecording: true}, nil
	}
	selectors := e.cfg.Selectors
	e.mu.Unlock()

	doc, ok := e.source.Current()
	if !ok {
		e.log.Warn("No meeting page connected")
		return StartResult{}, fmt.Errorf("%w: no meeting page connected", ErrContainerNotFound)
	}
	region, sel, ok := page.Locate(doc, selectors)
	if !ok {
		e.log.Warn("Captions container not found. Make sure captions are enabled in the meeting.")
		return StartResult{}, ErrContainerNotFound
	}

	if _, err := e.openStore(); err != nil {
		e.log.Error("Failed to open session store", "error", err)
		return StartResult{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	url := doc.URL()
	now := e.timestamp()

	e.mu.Lock()
	id := e.mintID(url, now)
	e.session = caption.NewSession(id, url, now)
	e.tracker.Reset()
	e.region = region
	e.gen++
	gen := e.gen
	e.debouncer = caption.NewDebouncer(e.cfg.Debounce, func() { e.reconcile(gen, region) })
	e.unobserve = region.Observe(e.debouncer.Trigger)
	stop := make(chan struct{})
	e.stopBackup = stop
	e.state = Recording
	debouncer := e.debouncer
	e.mu.Unlock()

	go e.backupLoop(gen, stop)
	if f, ok := doc.(page.Finite); ok {
		go e.watchPage(gen, f.Done(), stop)
	}

	metrics.SessionsStarted.Inc()
	metrics.Recording.Set(1)
	e.log.Info("Recording started", "sessionId", id, "selector", sel.String(), "meetingUrl", url)
	e.publish(Event{Kind: "status", SessionID: id, Recording: true})

	// Captions already on screen are picked up without waiting for a mutation.
	debouncer.Trigger()

	return StartResult{SessionID: id}, nil
}

// Stop detaches from the page, writes a final snapshot and returns to idle.
// The snapshot write is awaited; its failure is reported but does not keep
// the engine recording. Status keeps reporting Recording until that write
// returns, and no caption is captured in between.
func (e *Engine) Stop(ctx context.Context) StopResult {
	e.opMu.Lock()
	defer e.opMu.Unlock()
	return e.stop(ctx)
}

// watchPage ends the recording of generation gen when its page goes away
// for good. stop is closed when the recording ends some other way.
func (e *Engine) watchPage(gen uint64, gone <-chan struct{}, stop <-chan struct{}) {
	select {
	case <-stop:
		return
	case <-gone:
	}

	e.opMu.Lock()
	defer e.opMu.Unlock()

	e.mu.Lock()
	current := e.state == Recording && e.gen == gen
	e.mu.Unlock()
	if !current {
		return
	}

	e.log.Warn("Meeting page went away, ending recording")
	e.stop(context.Background())
}

// stop does the work of Stop. Callers hold opMu.
func (e *Engine) stop(ctx context.Context) StopResult {
	e.mu.Lock()
	if e.state != Recording {
		e.mu.Unlock()
		return StopResult{WasIdle: true}
	}

	e.unobserve()
	e.debouncer.Stop()
	close(e.stopBackup)

	// Fold in whatever the page shows now so a pending debounced pass is not
	// lost with the observer.
	pass := e.tracker.Reconcile(e.session, e.region.Children(), e.timestamp())
	e.recordPass(pass)

	e.gen++
	e.session.Updated = e.timestamp()
	e.snapSeq++
	seq := e.snapSeq
	snap := e.session.Clone()
	e.mu.Unlock()
	e.publishPass(snap.SessionID, pass)

	res := StopResult{SessionID: snap.SessionID, RecordCount: snap.RecordCount}
	if err := e.write(ctx, snap, seq); err != nil {
		metrics.Snapshots.WithLabelValues("final", "error").Inc()
		e.log.Warn("Failed to save session", "sessionId", snap.SessionID, "error", err)
		res.SaveErr = err
	} else {
		metrics.Snapshots.WithLabelValues("final", "ok").Inc()
		e.log.Info("Recording stopped", "sessionId", snap.SessionID, "records", snap.RecordCount)
	}

	e.mu.Lock()
	e.state = Idle
	e.region = nil
	e.debouncer = nil
	e.unobserve = nil
	e.mu.Unlock()

	metrics.Recording.Set(0)
	metrics.LiveNodes.Set(0)
	e.publish(Event{Kind: "status", SessionID: snap.SessionID, Recording: false})
	return res
}

// Status reports whether the engine is recording and summarises the current
// (or most recently stopped) session.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{Recording: e.state == Recording}
	if e.session != nil {
		sum := e.session.Summary()
		st.Session = &sum
	}
	return st
}

// Sessions lists stored sessions, most recently updated first.
func (e *Engine) Sessions(ctx context.Context) ([]caption.Summary, error) {
	store, err := e.openStore()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return store.List(ctx)
}

// Session returns one full session. The active session is served from
// memory so it includes records newer than its last snapshot.
func (e *Engine) Session(ctx context.Context, sessionID string) (*caption.Session, error) {
	e.mu.Lock()
	if e.state == Recording && e.session.SessionID == sessionID {
		c := e.session.Clone()
		e.mu.Unlock()
		return c, nil
	}
	e.mu.Unlock()

	store, err := e.openStore()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return store.Load(ctx, sessionID)
}

// Export writes the records of a session to <ExportDir>/<sessionId>.json and
// returns the path.
func (e *Engine) Export(ctx context.Context, sessionID string) (string, error) {
	s, err := e.Session(ctx, sessionID)
	if err != nil {
		return "", err
	}
	path, err := export.WriteFile(e.cfg.ExportDir, s)
	if err != nil {
		return "", err
	}
	e.log.Info("Session exported", "sessionId", sessionID, "path", path, "records", len(s.Records))
	return path, nil
}

// Subscribe returns a channel of engine events and a func to stop receiving
// them. Slow subscribers miss events rather than stall recording.
func (e *Engine) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)

	e.subMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	e.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.subMu.Lock()
			delete(e.subs, id)
			e.subMu.Unlock()
			close(ch)
		})
	}
}

// Close stops any recording and releases the store.
func (e *Engine) Close(ctx context.Context) error {
	e.Stop(ctx)

	e.storeMu.Lock()
	defer e.storeMu.Unlock()
	if c, ok := e.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Flush runs a reconciliation pass now instead of waiting for the debounce
// quiet period. It does nothing while idle.
func (e *Engine) Flush() {
	e.mu.Lock()
	if e.state != Recording {
		e.mu.Unlock()
		return
	}
	gen, region := e.gen, e.region
	e.mu.Unlock()

	e.reconcile(gen, region)
}

// reconcile runs one tracker pass. It is a no-op when recording stopped or
// restarted since the pass was scheduled.
func (e *Engine) reconcile(gen uint64, region page.Region) {
	children := region.Children()

	e.mu.Lock()
	if e.state != Recording || e.gen != gen || e.session == nil {
		e.mu.Unlock()
		return
	}
	pass := e.tracker.Reconcile(e.session, children, e.timestamp())
	e.recordPass(pass)
	id := e.session.SessionID
	e.mu.Unlock()

	e.publishPass(id, pass)
}

// recordPass updates metrics and logs for a pass. Callers hold mu.
func (e *Engine) recordPass(p caption.Pass) {
	metrics.ReconcilePasses.Inc()
	metrics.RecordsCaptured.Add(float64(p.Added))
	metrics.RecordsUpdated.Add(float64(p.Updated))
	metrics.LiveNodes.Set(float64(e.tracker.Live()))

	for _, r := range p.Changed {
		e.log.Debug("Captured caption", "id", r.ID, "speaker", r.Speaker, "text", r.Text)
	}
}

func (e *Engine) publishPass(sessionID string, p caption.Pass) {
	for i := range p.Changed {
		rec := p.Changed[i]
		e.publish(Event{Kind: "caption", SessionID: sessionID, Record: &rec, Recording: true})
	}
}

func (e *Engine) publish(ev Event) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (e *Engine) backupLoop(gen uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(e.cfg.BackupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.backup(gen)
		}
	}
}

// backup writes a periodic snapshot. Failures are logged and left for the
// next tick; the in-memory session is untouched either way.
func (e *Engine) backup(gen uint64) {
	e.mu.Lock()
	if e.state != Recording || e.gen != gen {
		e.mu.Unlock()
		return
	}
	e.session.Updated = e.timestamp()
	e.snapSeq++
	seq := e.snapSeq
	snap := e.session.Clone()
	e.mu.Unlock()

	if err := e.write(context.Background(), snap, seq); err != nil {
		metrics.Snapshots.WithLabelValues("periodic", "error").Inc()
		e.log.Error("Auto-backup failed", "sessionId", snap.SessionID, "error", err)
		return
	}
	metrics.Snapshots.WithLabelValues("periodic", "ok").Inc()
	e.log.Debug("Auto-backup", "sessionId", snap.SessionID, "records", snap.RecordCount)
}

// write persists snap unless a newer snapshot already landed. Writes are
// serialised so the stop-time snapshot can never be overtaken by an older
// periodic one.
func (e *Engine) write(ctx context.Context, snap *caption.Session, seq uint64) error {
	e.saveMu.Lock()
	defer e.saveMu.Unlock()

	if seq <= e.savedSeq {
		return nil
	}
	store, err := e.openStore()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	if err := store.Save(ctx, snap); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	e.savedSeq = seq
	return nil
}

func (e *Engine) openStore() (Store, error) {
	e.storeMu.Lock()
	defer e.storeMu.Unlock()

	if e.store != nil {
		return e.store, nil
	}
	s, err := e.open()
	if err != nil {
		return nil, err
	}
	e.store = s
	return s, nil
}

// mintID builds <meetingCode>-<epochMillis>. The millis part only moves
// forward so back-to-back sessions never collide. Callers hold mu.
func (e *Engine) mintID(url string, now time.Time) string {
	ms := now.UnixMilli()
	if ms <= e.lastMillis {
		ms = e.lastMillis + 1
	}
	e.lastMillis = ms
	return fmt.Sprintf("%s-%d", MeetingCode(url), ms)
}

// timestamp is now in UTC at millisecond precision, matching the ISO-8601
// instants written to storage and exports.
func (e *Engine) timestamp() time.Time {
	return e.now().UTC().Truncate(time.Millisecond)
}
