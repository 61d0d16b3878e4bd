package render

import (
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"genqueue/internal/logging"
)

const (
	defaultThrottleWindow = 120 * time.Millisecond
	defaultThrottleDelta  = 3.0
)

// Options configures a Board.
type Options struct {
	// Writer receives one event line per accepted change. Nil discards.
	Writer io.Writer
	// Color forces colour on or off; nil decides from Writer.
	Color   *bool
	Variant string
	Now     func() time.Time
	Logger  *slog.Logger

	ThrottleWindow time.Duration
	ThrottleDelta  float64
}

// Board is the ordered set of tiles for one variant.
type Board struct {
	mu       sync.Mutex
	tiles    []*Tile
	seq      int
	out      io.Writer
	color    bool
	variant  string
	now      func() time.Time
	logger   *slog.Logger
	samplers map[*Tile]*logging.ProgressSampler
	window   time.Duration
	delta    float64
}

// NewBoard builds an empty board.
func NewBoard(opts Options) *Board {
	out := opts.Writer
	if out == nil {
		out = io.Discard
	}
	color := shouldColorize(out)
	if opts.Color != nil {
		color = *opts.Color
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	window := opts.ThrottleWindow
	if window <= 0 {
		window = defaultThrottleWindow
	}
	delta := opts.ThrottleDelta
	if delta <= 0 {
		delta = defaultThrottleDelta
	}
	variant := strings.TrimSpace(opts.Variant)
	return &Board{
		out:      out,
		color:    color,
		variant:  variant,
		now:      now,
		logger:   logging.NewComponentLogger(opts.Logger, "render").With(logging.String(logging.FieldVariant, variant)),
		samplers: map[*Tile]*logging.ProgressSampler{},
		window:   window,
		delta:    delta,
	}
}

// Placeholder adds a tile for a submission that has no job id yet.
func (b *Board) Placeholder(prompt string) *Tile {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	tile := &Tile{seq: b.seq, prompt: strings.TrimSpace(prompt), state: StatePlaceholder}
	b.tiles = append([]*Tile{tile}, b.tiles...)
	b.emitLocked(tile, "")
	return tile
}

// Bind attaches a job id to a placeholder.
func (b *Board) Bind(tile *Tile, jobID string) bool {
	if tile == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if tile.removed || tile.state != StatePlaceholder {
		return false
	}
	tile.jobID = strings.TrimSpace(jobID)
	tile.state = StatePending
	b.emitLocked(tile, "")
	return true
}

// Restore adds a tile at the bottom for a previously known job. Tiles are
// restored oldest last so the board keeps most-recent-first order.
func (b *Board) Restore(jobID, prompt string) *Tile {
	b.mu.Lock()
	defer b.mu.Unlock()
	if existing := b.findLocked(jobID); existing != nil {
		return existing
	}
	b.seq++
	tile := &Tile{seq: b.seq, jobID: jobID, prompt: strings.TrimSpace(prompt), state: StatePending}
	b.tiles = append(b.tiles, tile)
	return tile
}

// Discard drops a tile without an event line; used for surplus placeholders.
func (b *Board) Discard(tile *Tile) {
	if tile == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropLocked(tile)
}

// Remove drops the tile bound to jobID.
func (b *Board) Remove(jobID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	tile := b.findLocked(jobID)
	if tile == nil {
		return false
	}
	b.dropLocked(tile)
	b.writeLocked(b.formatEvent("removed", tile.jobID, ""))
	return true
}

// Find returns the tile bound to jobID, or nil.
func (b *Board) Find(jobID string) *Tile {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.findLocked(jobID)
}

// View returns a copy of tile's current state.
func (b *Board) View(tile *Tile) TileView {
	b.mu.Lock()
	defer b.mu.Unlock()
	return tile.view()
}

// Tiles returns copies of every tile, most recent first.
func (b *Board) Tiles() []TileView {
	b.mu.Lock()
	defer b.mu.Unlock()
	views := make([]TileView, 0, len(b.tiles))
	for _, tile := range b.tiles {
		views = append(views, tile.view())
	}
	return views
}

// Len returns the number of tiles.
func (b *Board) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.tiles)
}

// Active counts tiles that have not reached a terminal state.
func (b *Board) Active() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, tile := range b.tiles {
		if !tile.state.Terminal() {
			n++
		}
	}
	return n
}

// Clear removes every tile.
func (b *Board) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, tile := range b.tiles {
		tile.removed = true
	}
	b.tiles = nil
	b.samplers = map[*Tile]*logging.ProgressSampler{}
	b.writeLocked(b.formatEvent("cleared", "", ""))
}

// SetProgress shows percent and phase on a pending tile. Progress never moves
// backwards; small changes arriving within the throttle window are dropped.
// It reports whether anything was written.
func (b *Board) SetProgress(tile *Tile, percent float64, phase string) bool {
	if tile == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if tile.removed || tile.state.Terminal() {
		return false
	}
	phase = strings.TrimSpace(phase)
	if percent < tile.progress {
		percent = tile.progress
	}
	if percent > 100 {
		percent = 100
	}
	if percent == tile.progress && phase == tile.phase {
		return false
	}
	now := b.now()
	if phase == tile.phase && !tile.lastWrite.IsZero() &&
		percent-tile.lastProgress < b.delta && now.Sub(tile.lastWrite) < b.window {
		return false
	}
	tile.progress = percent
	tile.phase = phase
	tile.lastWrite = now
	tile.lastProgress = percent
	b.writeLocked(b.formatProgress(tile))

	sampler := b.samplers[tile]
	if sampler == nil {
		sampler = logging.NewProgressSampler(10)
		b.samplers[tile] = sampler
	}
	if sampler.ShouldLog(percent, phase) {
		b.logger.Debug("progress",
			logging.String(logging.FieldJobID, tile.jobID),
			logging.Float64("percent", percent),
			logging.String("phase", phase),
		)
	}
	return true
}

// RenderResult marks tile done. Returns false when the tile was already
// terminal or removed.
func (b *Board) RenderResult(tile *Tile, resultURL, jobID, galleryID string) bool {
	if tile == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if tile.removed || tile.state.Terminal() {
		return false
	}
	if strings.TrimSpace(jobID) != "" {
		tile.jobID = strings.TrimSpace(jobID)
	}
	tile.state = StateDone
	tile.progress = 100
	tile.phase = ""
	tile.resultURL = resultURL
	tile.galleryID = galleryID
	tile.action = ActionIdle
	delete(b.samplers, tile)
	b.writeLocked(b.formatEvent(StateDone.String(), tile.jobID, resultURL))
	return true
}

// RenderError marks tile failed with msg.
func (b *Board) RenderError(tile *Tile, msg string) bool {
	if tile == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if tile.removed || tile.state.Terminal() {
		return false
	}
	tile.state = StateFailed
	tile.phase = ""
	tile.message = FailureText(msg)
	delete(b.samplers, tile)
	b.writeLocked(b.formatEvent(StateFailed.String(), tile.jobID, tile.message))
	return true
}

// BeginSave moves a done tile's action from idle to saving.
func (b *Board) BeginSave(tile *Tile) bool {
	return b.transitionAction(tile, ActionIdle, ActionSaving)
}

// MarkSaved moves a saving tile to saved.
func (b *Board) MarkSaved(tile *Tile) bool {
	if !b.transitionAction(tile, ActionSaving, ActionSaved) {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writeLocked(b.formatEvent(ActionSaved.String(), tile.jobID, tile.galleryID))
	return true
}

// ResetAction restores the idle affordance after a failed save.
func (b *Board) ResetAction(tile *Tile) bool {
	return b.transitionAction(tile, ActionSaving, ActionIdle)
}

func (b *Board) transitionAction(tile *Tile, from, to Action) bool {
	if tile == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if tile.removed || tile.state != StateDone || tile.action != from {
		return false
	}
	tile.action = to
	return true
}

// FailureText ensures msg carries the no-charge notice.
func FailureText(msg string) string {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		msg = "Generation failed"
	}
	if strings.Contains(msg, NoChargeNotice) {
		return msg
	}
	if !strings.HasSuffix(msg, ".") && !strings.HasSuffix(msg, "!") && !strings.HasSuffix(msg, "?") {
		msg += "."
	}
	return msg + " " + NoChargeNotice
}

func (b *Board) findLocked(jobID string) *Tile {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil
	}
	for _, tile := range b.tiles {
		if tile.jobID == jobID {
			return tile
		}
	}
	return nil
}

func (b *Board) dropLocked(tile *Tile) {
	for i, candidate := range b.tiles {
		if candidate == tile {
			b.tiles = append(b.tiles[:i], b.tiles[i+1:]...)
			break
		}
	}
	tile.removed = true
	delete(b.samplers, tile)
}
