package render

import "time"

// State is a tile's lifecycle stage.
type State int

const (
	StatePlaceholder State = iota
	StatePending
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePlaceholder:
		return "submitting"
	case StatePending:
		return "pending"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the tile can no longer change state.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Action is the save-to-gallery affordance on a done tile.
type Action int

const (
	ActionNone Action = iota
	ActionIdle
	ActionSaving
	ActionSaved
)

func (a Action) String() string {
	switch a {
	case ActionIdle:
		return "save"
	case ActionSaving:
		return "saving"
	case ActionSaved:
		return "saved"
	default:
		return ""
	}
}

// NoChargeNotice is appended to every failure message.
const NoChargeNotice = "No credits were charged."

// Tile is a handle to one job's display slot. Its fields are owned by the Board.
type Tile struct {
	seq       int
	jobID     string
	prompt    string
	state     State
	progress  float64
	phase     string
	resultURL string
	galleryID string
	message   string
	action    Action
	removed   bool

	lastWrite    time.Time
	lastProgress float64
}

// TileView is a read-only copy of a tile.
type TileView struct {
	JobID     string
	Prompt    string
	State     State
	Progress  float64
	Phase     string
	ResultURL string
	GalleryID string
	Message   string
	Action    Action
}

func (t *Tile) view() TileView {
	return TileView{
		JobID:     t.jobID,
		Prompt:    t.prompt,
		State:     t.state,
		Progress:  t.progress,
		Phase:     t.phase,
		ResultURL: t.resultURL,
		GalleryID: t.galleryID,
		Message:   t.message,
		Action:    t.action,
	}
}
