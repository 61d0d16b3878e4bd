// Package render keeps the on-screen tiles for a generation queue.
//
// A Board holds one Tile per job, most recent first. Tiles move from
// placeholder (submitted, no job id yet) to pending, and then irrevocably to
// done or failed. Every accepted change is written as one event line to the
// board's writer; Snapshot draws the whole board as a table.
//
// Progress writes are throttled and never move a tile backwards.
package render
