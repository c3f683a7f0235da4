// Command agtmuxd is the AGTMUX daemon: it owns every configured tmux
// target's control connection, resolves per-pane activity state, and
// exposes the result over a Unix-socket RPC surface plus a loopback
// WebSocket terminal bridge.
//
// Boot sequence, lock ordering, and log-before-everything-else discipline
// are grounded on the teacher's app_lifecycle.go startup() method,
// adapted from a Wails desktop app's single-window lifecycle to a
// standalone daemon's signal-driven run loop.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"agtmuxd/internal/adapterregistry"
	"agtmuxd/internal/attention"
	"agtmuxd/internal/config"
	"agtmuxd/internal/dispatcher"
	"agtmuxd/internal/feedrouter"
	"agtmuxd/internal/git"
	"agtmuxd/internal/panetap"
	"agtmuxd/internal/protocol"
	"agtmuxd/internal/resolver"
	"agtmuxd/internal/sessionlog"
	"agtmuxd/internal/singleinstance"
	"agtmuxd/internal/snapshot"
	"agtmuxd/internal/store"
	"agtmuxd/internal/target"
	"agtmuxd/internal/tmuxadapter"
	"agtmuxd/internal/workerutil"
	"agtmuxd/internal/writeguard"
	"agtmuxd/internal/wsbridge"
)

// safeStderrWriter returns os.Stderr if it is writable, otherwise
// io.Discard, so logger initialization never panics on a detached
// console (e.g. when launched from a supervisor with no stdio).
func safeStderrWriter() io.Writer {
	if _, err := os.Stderr.Write([]byte{}); err != nil {
		return io.Discard
	}
	return os.Stderr
}

func stateDir() string {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return filepath.Join(xdg, "agtmux")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "state", "agtmux")
	}
	return filepath.Join(os.TempDir(), "agtmux")
}

func main() {
	launcherLog := slog.New(slog.NewTextHandler(safeStderrWriter(), nil))
	launcherLog.Info("agtmuxd: starting")

	dir := stateDir()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		launcherLog.Error("failed to create state directory", "dir", dir, "error", err)
		os.Exit(1)
	}
	if f, err := os.OpenFile(filepath.Join(dir, "launcher.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600); err == nil {
		defer f.Close()
		launcherLog = slog.New(slog.NewJSONHandler(io.MultiWriter(safeStderrWriter(), f), nil))
	}

	lockPath := filepath.Join(dir, "agtmuxd.lock")
	lock, err := singleinstance.TryLock(lockPath)
	if err != nil {
		launcherLog.Error("another agtmuxd instance is already running", "lock_path", lockPath, "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	logFile, err := os.OpenFile(filepath.Join(dir, "agtmuxd.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		launcherLog.Error("failed to open agtmuxd.log", "error", err)
		os.Exit(1)
	}
	defer logFile.Close()

	// TeeHandler mirrors warn-and-above records into a bounded ring the
	// dispatcher could expose over RPC for an `agtmuxctl logs` tail,
	// exactly mirroring the teacher's SessionLogEntry capture.
	var logRingMu sync.Mutex
	var logRing []string
	baseHandler := slog.NewJSONHandler(logFile, nil)
	teeHandler := sessionlog.NewTeeHandler(baseHandler, slog.LevelWarn, func(ts time.Time, level slog.Level, msg, group string) {
		logRingMu.Lock()
		defer logRingMu.Unlock()
		logRing = append(logRing, fmt.Sprintf("%s [%s] %s: %s", ts.Format(time.RFC3339), level, group, msg))
		if len(logRing) > 500 {
			logRing = logRing[len(logRing)-500:]
		}
	})
	logger := slog.New(teeHandler)
	slog.SetDefault(logger)

	configPath, err := config.DefaultPath()
	if err != nil {
		logger.Warn("failed to resolve default config path, using in-memory defaults", "error", err)
	}
	for _, warning := range config.ConsumeDefaultPathWarnings() {
		logger.Warn("config path warning", "message", warning)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Warn("failed to load config, starting with defaults", "path", configPath, "error", err)
		cfg = config.Default()
	}

	st, err := store.Open(filepath.Join(dir, "state.db"), logger)
	if err != nil {
		logger.Error("failed to open state store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	d := newDaemon(cfg, st, logger)
	d.configPath = configPath
	if err := d.bootTargets(context.Background()); err != nil {
		logger.Warn("one or more targets failed to connect at boot", "error", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	d.run(ctx)
	logger.Info("agtmuxd: shut down cleanly")
}

// daemon owns every component's lifecycle. Lock ordering across
// components: target.Manager's per-entry mutex is always acquired before
// writeguard.Guard's per-pane mutex (a target health check never runs
// while a guarded mutation is in flight on one of its panes); neither is
// ever held while calling into the Store, which does its own locking.
type daemon struct {
	cfg        *config.Config
	configPath string
	store      *store.Store
	log        *slog.Logger
	tuning     resolver.Tuning

	targets  *target.Manager
	taps     *panetap.Manager
	resolver *resolver.Resolver
	guard    *writeguard.Guard
	queue    *attention.Queue
	router   *feedrouter.Router

	paneMu       sync.RWMutex
	paneItems    map[string]protocol.PaneItem
	sessions     map[string]snapshot.SessionInput
	windows      map[string]protocol.WindowSummary
	lastOutputAt map[string]time.Time

	dispatcher *dispatcher.Dispatcher
	bridge     *wsbridge.Bridge
}

func newDaemon(cfg *config.Config, st *store.Store, logger *slog.Logger) *daemon {
	tuning := resolver.Tuning{
		DetFreshWindow: cfg.Tuning.DetFreshWindow,
		DownThreshold:  cfg.Tuning.DownThreshold,
		IdleHysteresis: cfg.Tuning.IdleHysteresis,
	}

	d := &daemon{
		cfg:          cfg,
		store:        st,
		log:          logger,
		tuning:       tuning,
		targets:      target.New(logger),
		taps:         panetap.NewManager(),
		resolver:     resolver.New(tuning),
		guard:        writeguard.New(),
		queue:        attention.New(cfg.Tuning.AttentionDedupWindow, cfg.Tuning.AttentionQueueLimit),
		paneItems:    make(map[string]protocol.PaneItem),
		sessions:     make(map[string]snapshot.SessionInput),
		windows:      make(map[string]protocol.WindowSummary),
		lastOutputAt: make(map[string]time.Time),
	}

	write := func(ctx context.Context, targetName, paneID, text, key string, raw []byte, enter, paste bool) error {
		client := d.targets.Client(targetName)
		if client == nil {
			return fmt.Errorf("agtmuxd: target %s has no live control connection", targetName)
		}
		if text != "" {
			return client.SendKeys(ctx, paneID, text, true, enter)
		}
		return client.SendKeys(ctx, paneID, key, false, enter)
	}
	resize := func(ctx context.Context, targetName, paneID string, cols, rows int) error {
		client := d.targets.Client(targetName)
		if client == nil {
			return nil
		}
		return client.ResizePane(ctx, paneID, cols, rows)
	}
	observe := func(targetName, paneID string) (protocol.PaneItem, bool) {
		return d.observe(paneID)
	}
	d.router = feedrouter.New(d.taps, d.guard, write, resize, observe, feedrouter.Config{
		FailureThreshold: cfg.Tuning.DegradeFailureThreshold,
		DegradeCooldown:  cfg.Tuning.DegradeCooldown,
		ResizeDebounce:   cfg.Tuning.ResizeDebounce,
	})

	d.bridge = wsbridge.New(d.router, wsbridge.Options{Addr: "127.0.0.1:0"}, logger)

	socketPath := cfg.SocketPath
	if socketPath == "" {
		socketPath = filepath.Join(stateDir(), "agtmuxd.sock")
	}
	capturePane := func(ctx context.Context, targetName, paneID string, lines int) ([]byte, error) {
		client := d.targets.Client(targetName)
		if client == nil {
			return nil, fmt.Errorf("agtmuxd: target %s has no live control connection", targetName)
		}
		return client.CapturePane(ctx, paneID, lines)
	}
	svc := &dispatcher.Services{
		Targets:     d.targets,
		Router:      d.router,
		Attention:   d.queue,
		Guard:       d.guard,
		Observe:     observe,
		Store:       st,
		Snapshot:    d.buildSnapshot,
		OpenTap:     d.openTap,
		CapturePane: capturePane,
	}
	d.dispatcher = dispatcher.New(socketPath, dispatcher.BuildHandler(svc), logger)

	return d
}

func (d *daemon) observe(paneID string) (protocol.PaneItem, bool) {
	d.paneMu.RLock()
	defer d.paneMu.RUnlock()
	item, ok := d.paneItems[paneID]
	return item, ok
}

// openTap selects the tap mechanism for target/paneID per §4.2:
// pipe-pane capture through the target's own control connection is
// primary, available only for local targets since the FIFO it creates
// must live on the same filesystem tmux's server writes to; the
// daemon-proxy-pty path is the fallback, used for SSH targets outright
// and for any local target where enabling pipe-pane itself fails (a
// tmux old enough to reject the command, or a permissions problem in
// the tap directory).
func (d *daemon) openTap(ctx context.Context, targetName, paneID string, feed func([]byte)) (panetap.CaptureCloser, error) {
	tgt, ok := d.targets.Get(targetName)
	client := d.targets.Client(targetName)

	if ok && tgt.Kind == protocol.TargetLocal && client != nil {
		dir := filepath.Join(stateDir(), "taps")
		closer, err := panetap.OpenFIFOTap(ctx, client, dir, paneID, feed)
		if err == nil {
			return closer, nil
		}
		d.log.Warn("pipe-pane tap failed, falling back to daemon-proxy-pty capture", "target", targetName, "pane", paneID, "error", err)
	}

	argv := []string{"tmux"}
	if ok && tgt.Kind == protocol.TargetSSH {
		argv = []string{"ssh", tgt.ConnectionRef, "--", "tmux"}
	}
	return panetap.OpenPTYProxyTap(ctx, argv, paneID, feed)
}

// bootTargets registers every configured target and attempts an initial
// connect, matching Target Manager's add_target + connect sequence.
func (d *daemon) bootTargets(ctx context.Context) error {
	var firstErr error
	for _, tc := range d.cfg.Targets {
		if _, err := d.targets.AddTarget(tc.Name, protocol.TargetKind(tc.Kind), tc.ConnectionRef, tc.IsDefault); err != nil {
			d.log.Warn("failed to register configured target", "target", tc.Name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if _, err := d.targets.Connect(ctx, tc.Name); err != nil {
			d.log.Warn("initial connect failed, will retry via reconnect sweep", "target", tc.Name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// watchConfig watches the config file's containing directory (not the
// file itself, since editors commonly replace it via rename-on-save,
// which drops an inode-based watch) and reloads target definitions on
// any write or create event, so targets can be added or removed without
// a daemon restart. Tuning values are read once at boot only: changing
// them live would require threading a mutex through the resolver's
// per-pane state, which is not worth the complexity for a value that
// rarely changes during a running daemon's life.
func (d *daemon) watchConfig(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		d.log.Warn("config watcher unavailable, target definitions require a restart to take effect", "error", err)
		return
	}
	defer watcher.Close()

	dir := filepath.Dir(d.configPath)
	if err := watcher.Add(dir); err != nil {
		d.log.Warn("failed to watch config directory", "dir", dir, "error", err)
		return
	}

	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(d.configPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			debounce.Reset(200 * time.Millisecond)
		case <-debounce.C:
			d.reloadTargets(ctx)
		case werr, ok := <-watcher.Errors:
			if !ok {
				return
			}
			d.log.Warn("config watcher error", "error", werr)
		}
	}
}

// reloadTargets re-reads the config file and reconciles the Target
// Manager's registered set against it: newly listed targets are added
// and connected, removed ones are torn down (skipped with a warning if
// still referenced, e.g. by an attached terminal session), and targets
// present in both are left untouched since add_target already rejects
// duplicates.
func (d *daemon) reloadTargets(ctx context.Context) {
	next, err := config.Load(d.configPath)
	if err != nil {
		d.log.Warn("config reload failed, keeping previous target set", "error", err)
		return
	}

	existing := make(map[string]bool)
	for _, t := range d.targets.List() {
		existing[t.Name] = true
	}
	wanted := make(map[string]bool, len(next.Targets))

	for _, tc := range next.Targets {
		wanted[tc.Name] = true
		if existing[tc.Name] {
			continue
		}
		if _, err := d.targets.AddTarget(tc.Name, protocol.TargetKind(tc.Kind), tc.ConnectionRef, tc.IsDefault); err != nil {
			d.log.Warn("config reload: failed to add target", "target", tc.Name, "error", err)
			continue
		}
		if _, err := d.targets.Connect(ctx, tc.Name); err != nil {
			d.log.Warn("config reload: initial connect failed, will retry via reconnect sweep", "target", tc.Name, "error", err)
		}
		d.log.Info("config reload: added target", "target", tc.Name)
	}

	hasReferences := func(targetName string) bool {
		for _, p := range d.paneItems {
			if p.Target == targetName {
				return true
			}
		}
		return false
	}
	for name := range existing {
		if wanted[name] {
			continue
		}
		d.paneMu.RLock()
		if err := d.targets.RemoveTarget(name, hasReferences); err != nil {
			d.log.Warn("config reload: failed to remove target", "target", name, "error", err)
		} else {
			d.log.Info("config reload: removed target", "target", name)
		}
		d.paneMu.RUnlock()
	}

	d.cfg.Targets = next.Targets
}

// watchNotifications keeps one consumer running per live control
// connection, feeding the State Resolver's deterministic tier (§4.5)
// from tmux's own `%output` notifications rather than from guessed
// content patterns. It re-scans the target list on a short tick so a
// reconnect (a new *tmuxadapter.Client replacing the old one) always
// gets a fresh consumer.
func (d *daemon) watchNotifications(ctx context.Context) {
	watching := make(map[string]*tmuxadapter.Client)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, tgt := range d.targets.List() {
				client := d.targets.Client(tgt.Name)
				if client == nil || watching[tgt.Name] == client {
					continue
				}
				watching[tgt.Name] = client
				go d.consumeNotifications(tgt.Name, client)
			}
		}
	}
}

// consumeNotifications drains one target's control-mode notification
// stream until the connection closes, recording the wall-clock time of
// each pane's last `%output` so publishTarget can feed it to the
// resolver as a deterministic, freshness-windowed signal (§4.5).
func (d *daemon) consumeNotifications(targetName string, client *tmuxadapter.Client) {
	for n := range client.Notifications() {
		if n.Type != "output" || n.PaneID == "" {
			continue
		}
		d.paneMu.Lock()
		d.lastOutputAt[n.PaneID] = time.Now()
		d.paneMu.Unlock()
	}
}

// run starts every background task and blocks until ctx is cancelled,
// then tears down in reverse dependency order: stop accepting new work
// (dispatcher, bridge) before draining the poll loop and closing target
// control connections.
func (d *daemon) run(ctx context.Context) {
	var wg sync.WaitGroup

	workerutil.RunWithPanicRecovery(ctx, "dispatcher", &wg, func(ctx context.Context) {
		if err := d.dispatcher.Serve(ctx); err != nil {
			d.log.Error("dispatcher exited", "error", err)
		}
	}, workerutil.RecoveryOptions{})

	if err := d.bridge.Start(ctx); err != nil {
		d.log.Warn("wsbridge failed to start, embedded terminal streaming over websocket is unavailable", "error", err)
	}

	workerutil.RunWithPanicRecovery(ctx, "poll-loop", &wg, func(ctx context.Context) {
		d.pollLoop(ctx)
	}, workerutil.RecoveryOptions{})

	workerutil.RunWithPanicRecovery(ctx, "reconnect-sweep", &wg, func(ctx context.Context) {
		ticker := time.NewTicker(d.cfg.Tuning.ReconnectInitialBackoff)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				d.targets.ReconnectSweep(ctx, now)
			}
		}
	}, workerutil.RecoveryOptions{})

	if d.configPath != "" {
		workerutil.RunWithPanicRecovery(ctx, "config-watch", &wg, func(ctx context.Context) {
			d.watchConfig(ctx)
		}, workerutil.RecoveryOptions{})
	}

	workerutil.RunWithPanicRecovery(ctx, "notification-watch", &wg, func(ctx context.Context) {
		d.watchNotifications(ctx)
	}, workerutil.RecoveryOptions{})

	<-ctx.Done()
	d.log.Info("agtmuxd: shutdown signal received, draining")
	d.dispatcher.Close()
	d.bridge.Stop()
	wg.Wait()
}

// pollLoop is the dedicated resolver task (§5): it lists every connected
// target's sessions/windows/panes at SnapshotPollInterval, feeds each
// pane's observed signals through Adapter Registry classification and the
// State Resolver, and publishes the result for fetch_snapshot and every
// Write Guard check to observe.
func (d *daemon) pollLoop(ctx context.Context) {
	interval := d.cfg.Tuning.SnapshotPollInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			d.pollOnce(ctx, now)
		}
	}
}

func (d *daemon) pollOnce(ctx context.Context, now time.Time) {
	for _, tgt := range d.targets.List() {
		client := d.targets.Client(tgt.Name)
		if client == nil {
			continue
		}
		sessions, err := client.ListSessions(ctx)
		if err != nil {
			d.log.Debug("list-sessions failed", "target", tgt.Name, "error", err)
			continue
		}
		windows, err := client.ListWindows(ctx)
		if err != nil {
			d.log.Debug("list-windows failed", "target", tgt.Name, "error", err)
			continue
		}
		panes, err := client.ListPanes(ctx)
		if err != nil {
			d.log.Debug("list-panes failed", "target", tgt.Name, "error", err)
			continue
		}
		d.publishTarget(tgt.Name, sessions, windows, panes, now)
	}
}

func (d *daemon) publishTarget(targetName string, sessions []tmuxadapter.Session, windows []tmuxadapter.Window, panes []tmuxadapter.Pane, now time.Time) {
	pins, _ := d.store.Pins(context.Background())
	overrides, _ := d.store.DisplayOverrides(context.Background())

	d.paneMu.Lock()
	defer d.paneMu.Unlock()

	isDefault := false
	if tgt, ok := d.targets.Get(targetName); ok {
		isDefault = tgt.IsDefault
	}
	for _, s := range sessions {
		key := targetName + "\x00" + s.ID
		rank, _ := d.store.StableRank(context.Background(), key)
		d.sessions[key] = snapshot.SessionInput{
			Summary: protocol.SessionSummary{
				SessionID: s.ID,
				Target:    targetName,
				Name:      overrideOr(overrides, key, s.Name),
				Pinned:    pins[key],
				Health:    protocol.HealthOK,
			},
			IsDefaultTarget: isDefault,
			LastActivityAt:  s.LastActivity * int64(time.Second),
			StableRank:      rank,
		}
	}
	for _, w := range windows {
		d.windows[targetName+"\x00"+w.ID] = protocol.WindowSummary{
			WindowID:  w.ID,
			SessionID: w.SessionID,
			Name:      w.Name,
			Index:     w.Index,
		}
	}

	for _, p := range panes {
		recentTapContent := d.taps.Recent(p.ID)
		classification, _ := adapterregistry.Classify(adapterregistry.PaneInfo{
			CurrentCommand: p.CurrentCmd,
			CWD:            p.CurrentPath,
		}, string(recentTapContent))

		var detEvents, heuristics []resolver.Event
		if classification.AgentType != "" {
			if adapter := adapterregistry.Get(classification.AgentType); adapter != nil {
				norm := adapter.Translate(adapterregistry.RawEvent{
					Source: "heuristic",
					State:  string(recentTapContent),
					CWD:    p.CurrentPath,
				})
				heuristics = append(heuristics, resolver.NewHeuristicEvent(norm, classification.AgentType, now))
			}
			if at, ok := d.lastOutputAt[p.ID]; ok {
				detEvents = append(detEvents, resolver.Event{
					Tier:          resolver.TierDeterministic,
					ActivityState: protocol.ActivityRunning,
					EventType:     "tmux.output",
					AgentType:     classification.AgentType,
					RuntimeID:     classification.RuntimeIDHint,
					ReceivedAt:    at,
				})
			}
		}

		resolved := d.resolver.Tick(p.ID, detEvents, heuristics, now)

		label, source := sessionLabel(p.CurrentPath)

		// session_time_confidence reflects whether this pane's session has
		// a tmux-reported activity timestamp to anchor on; a pane observed
		// before its session's own listing settles has none yet, and
		// session_last_active_at is withheld below the configured floor
		// rather than surfacing a stale or zero-value timestamp as fact.
		confidence := 0.0
		var lastActiveAt time.Time
		if sess, ok := d.sessions[targetName+"\x00"+p.SessionID]; ok {
			confidence = 1.0
			lastActiveAt = time.Unix(0, sess.LastActivityAt)
		}
		if confidence < d.cfg.Tuning.SessionTimeConfidenceFloor {
			lastActiveAt = time.Time{}
		}

		presence := protocol.PresenceUnmanaged
		if classification.AgentType != "" {
			presence = protocol.PresenceManaged
		}

		item := protocol.PaneItem{
			PaneID:                p.ID,
			SessionID:             p.SessionID,
			WindowID:              p.WindowID,
			Target:                targetName,
			Presence:              presence,
			ActivityState:         resolved.ActivityState,
			AttentionState:        resolved.AttentionState,
			EvidenceMode:          resolved.EvidenceMode,
			RuntimeID:             resolved.RuntimeID,
			AgentType:             resolved.AgentType,
			ReasonCode:            resolved.ReasonCode,
			LastEventType:         resolved.LastEventType,
			LastEventAt:           resolved.LastEventAt,
			SessionLabel:          label,
			SessionLabelSource:    source,
			SessionLastActiveAt:   lastActiveAt,
			SessionTimeConfidence: confidence,
			CurrentCmd:            p.CurrentCmd,
			CurrentPath:           p.CurrentPath,
			UpdatedAt:             now,
		}
		prev, hadPrev := d.paneItems[p.ID]
		d.paneItems[p.ID] = item

		changed := !hadPrev || prev.AttentionState != item.AttentionState
		if attention.ActionableFromAttention(item.AttentionState) {
			if !hadPrev || !attention.ActionableFromAttention(prev.AttentionState) {
				d.queue.EmitReview(p.ID, string(item.AttentionState), now)
			}
		} else if item.AttentionState == protocol.AttentionInformational && changed {
			d.queue.EmitInformational(p.ID, string(item.AttentionState), now)
		}
	}
}

func overrideOr(overrides map[string]string, key, fallback string) string {
	if v, ok := overrides[key]; ok && v != "" {
		return v
	}
	return fallback
}

// sessionLabel resolves §3's session_label_source: a git worktree branch
// name when cwd resolves to one, otherwise the tmux-supplied name is left
// for the caller to use (derived elsewhere in the snapshot assembly).
func sessionLabel(cwd string) (label, source string) {
	if cwd == "" {
		return "", ""
	}
	if branch, ok := git.SessionLabelForDir(cwd); ok {
		return branch, "git_branch"
	}
	return "", ""
}

// buildSnapshot assembles the current Snapshot Projector output (§4.8)
// from the poll loop's published pane/session/window maps.
func (d *daemon) buildSnapshot() protocol.Snapshot {
	d.paneMu.RLock()
	defer d.paneMu.RUnlock()

	panes := make([]protocol.PaneItem, 0, len(d.paneItems))
	for _, p := range d.paneItems {
		panes = append(panes, p)
	}
	sessions := make([]snapshot.SessionInput, 0, len(d.sessions))
	for _, s := range d.sessions {
		sessions = append(sessions, s)
	}
	windows := make([]protocol.WindowSummary, 0, len(d.windows))
	for _, w := range d.windows {
		windows = append(windows, w)
	}
	targets := make([]protocol.Target, 0)
	for _, t := range d.targets.List() {
		targets = append(targets, t)
	}
	return snapshot.Project(targets, sessions, windows, panes, snapshot.SortStable)
}
